package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"phixall-server/models"
	"phixall-server/services"
)

// JobHandler serves the job lifecycle endpoints.
type JobHandler struct {
	Lifecycle *services.LifecycleService
}

func NewJobHandler(lifecycle *services.LifecycleService) *JobHandler {
	return &JobHandler{Lifecycle: lifecycle}
}

// Register registers job routes on an authenticated group.
func (h *JobHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/", h.createJob)
	rg.GET("/my-jobs", h.myJobs)
	rg.GET("/:id", h.getJob)
	rg.POST("/:id/accept", h.acceptJob)
	rg.POST("/:id/start", h.startJob)
	rg.POST("/:id/cancel", h.cancelJob)
}

func (h *JobHandler) createJob(c *gin.Context) {
	userID := c.GetUint("user_id")

	var req models.JobCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}

	job, err := h.Lifecycle.CreateJob(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"job": job})
}

func (h *JobHandler) myJobs(c *gin.Context) {
	userID := c.GetUint("user_id")
	role, _ := c.Get("role")

	jobs, err := h.Lifecycle.JobsForUser(c.Request.Context(), userID, role.(models.UserRole))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (h *JobHandler) getJob(c *gin.Context) {
	jobID, err := parseID(c)
	if err != nil {
		return
	}

	job, err := h.Lifecycle.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (h *JobHandler) acceptJob(c *gin.Context) {
	jobID, err := parseID(c)
	if err != nil {
		return
	}
	userID := c.GetUint("user_id")

	job, err := h.Lifecycle.AcceptJob(c.Request.Context(), jobID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": job, "message": "Job accepted"})
}

func (h *JobHandler) startJob(c *gin.Context) {
	jobID, err := parseID(c)
	if err != nil {
		return
	}
	userID := c.GetUint("user_id")

	job, err := h.Lifecycle.StartJob(c.Request.Context(), jobID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": job, "message": "Job started"})
}

func (h *JobHandler) cancelJob(c *gin.Context) {
	jobID, err := parseID(c)
	if err != nil {
		return
	}
	userID := c.GetUint("user_id")

	job, err := h.Lifecycle.CancelJob(c.Request.Context(), jobID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": job, "message": "Job cancelled"})
}

// parseID reads the :id path param. On failure it writes the 400 itself so
// handlers can just return.
func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "Invalid id"})
		return 0, err
	}
	return uint(id), nil
}
