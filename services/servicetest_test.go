package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"phixall-server/database"
	"phixall-server/models"
)

// testDB opens a fresh in-memory database for one test. The DSN is named
// after the test so parallel tests never share state.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func seedUser(t *testing.T, db *gorm.DB, role models.UserRole, name string) *models.User {
	t.Helper()
	user := &models.User{
		FullName: name,
		Email:    fmt.Sprintf("%s-%s@example.test", strings.ToLower(strings.ReplaceAll(name, " ", ".")), role),
		Role:     role,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedJob(t *testing.T, db *gorm.DB, clientID uint, artisanID *uint, status models.JobStatus) *models.Job {
	t.Helper()
	job := &models.Job{
		Title:           "Fix leaking sink",
		Description:     "Kitchen sink drips under the counter",
		ServiceCategory: "plumbing",
		ServiceAddress:  "12 Harbour Road",
		ClientID:        clientID,
		ArtisanID:       artisanID,
		Status:          status,
	}
	if err := db.Create(job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

// fakeBlobStore records uploads and can be told to fail.
type fakeBlobStore struct {
	uploads []string
	failOn  string // fail when the uploaded name contains this substring
}

func (f *fakeBlobStore) Upload(ctx context.Context, r io.Reader, folder, name string) (string, error) {
	if f.failOn != "" && strings.Contains(name, f.failOn) {
		return "", fmt.Errorf("simulated upload failure for %s", name)
	}
	url := fmt.Sprintf("https://cdn.test/%s/%s", folder, name)
	f.uploads = append(f.uploads, url)
	return url, nil
}

// fakeGateway counts settle calls and can be forced to decline or error.
// When entered/release are set, Settle signals on entered and then blocks
// until release closes, letting tests hold a payment in flight.
type fakeGateway struct {
	calls     int
	declined  bool
	transport bool
	entered   chan struct{}
	release   chan struct{}
}

func (f *fakeGateway) Settle(ctx context.Context, jobID uint, amount float64) (*PaymentResult, error) {
	f.calls++
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.transport {
		return nil, fmt.Errorf("simulated gateway timeout")
	}
	if f.declined {
		return &PaymentResult{Success: false, ErrorCode: "insufficient_funds"}, nil
	}
	return &PaymentResult{Success: true, Reference: fmt.Sprintf("pay-%d-%d", jobID, f.calls)}, nil
}

// recordedNotification captures one Notify/NotifyAdmins call.
type recordedNotification struct {
	UserID uint
	Admins bool
	Type   models.NotificationType
	JobID  uint
}

// recordingNotifier captures notifications without touching the database.
type recordingNotifier struct {
	sent []recordedNotification
}

func (r *recordingNotifier) Notify(userID uint, ntype models.NotificationType, title, message string, jobID uint, completionID *string) {
	r.sent = append(r.sent, recordedNotification{UserID: userID, Type: ntype, JobID: jobID})
}

func (r *recordingNotifier) NotifyAdmins(ntype models.NotificationType, title, message string, jobID uint, completionID *string) {
	r.sent = append(r.sent, recordedNotification{Admins: true, Type: ntype, JobID: jobID})
}

func (r *recordingNotifier) countType(ntype models.NotificationType) int {
	n := 0
	for _, rec := range r.sent {
		if rec.Type == ntype {
			n++
		}
	}
	return n
}
