package services

// Publisher is the realtime push surface the workflow writes to. The
// websocket hub implements it in production; tests use an in-memory fake.
// Every call is fire-and-forget: a publish must never fail or block the
// workflow step that triggered it.
type Publisher interface {
	// PublishJob pushes an event to everyone watching the given job.
	PublishJob(jobID uint, event string, data interface{})
	// PushUser pushes an event to a single connected user, if present.
	PushUser(userID uint, event string, data interface{})
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) PublishJob(uint, string, interface{}) {}
func (NopPublisher) PushUser(uint, string, interface{})   {}
