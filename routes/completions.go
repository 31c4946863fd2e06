package routes

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"phixall-server/models"
	"phixall-server/services"
)

// CompletionHandler serves completion submission for artisans and the review
// queue for admins.
type CompletionHandler struct {
	Completions *services.CompletionService
	Approvals   *services.ApprovalService
}

func NewCompletionHandler(completions *services.CompletionService, approvals *services.ApprovalService) *CompletionHandler {
	return &CompletionHandler{Completions: completions, Approvals: approvals}
}

// RegisterArtisan registers the artisan-facing submission route.
func (h *CompletionHandler) RegisterArtisan(rg *gin.RouterGroup) {
	rg.POST("/:id/completion", h.submitCompletion)
}

// RegisterAdmin registers the admin review routes.
func (h *CompletionHandler) RegisterAdmin(rg *gin.RouterGroup) {
	rg.GET("/completions", h.listCompletions)
	rg.GET("/completions/:id", h.getCompletion)
	rg.POST("/completions/:id/approve", h.approveCompletion)
	rg.POST("/completions/:id/reject", h.rejectCompletion)
}

// submitCompletion accepts a multipart form: text fields plus up to five
// evidence photos under the "images" key.
func (h *CompletionHandler) submitCompletion(c *gin.Context) {
	jobID, err := parseID(c)
	if err != nil {
		return
	}
	artisanID := c.GetUint("user_id")

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "Invalid multipart form"})
		return
	}

	in := services.CompletionInput{
		WhatWasDone:   c.PostForm("what_was_done"),
		MaterialsUsed: c.PostForm("materials_used"),
		HoursWorked:   c.PostForm("hours_worked"),
		Notes:         c.PostForm("notes"),
	}

	if raw := c.PostForm("additional_tasks"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.AdditionalTasks); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "additional_tasks must be a JSON array"})
			return
		}
	}

	files := form.File["images"]
	if len(files) > 5 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "At most 5 images allowed"})
		return
	}

	opened := make([]multipart.File, 0, len(files))
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()

	for _, fh := range files {
		if !allowedImage(fh.Filename) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "Only jpg, jpeg, png and webp images are allowed"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "Could not read uploaded file"})
			return
		}
		opened = append(opened, f)
		in.Images = append(in.Images, services.ImageUpload{Name: fh.Filename, Reader: f})
	}

	completion, err := h.Completions.Submit(c.Request.Context(), jobID, artisanID, in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"completion": completion,
		"message":    "Completion submitted for review",
	})
}

func (h *CompletionHandler) listCompletions(c *gin.Context) {
	status := models.CompletionStatus(c.DefaultQuery("status", string(models.CompletionStatusPending)))

	completions, err := h.Completions.List(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"completions": completions, "count": len(completions)})
}

func (h *CompletionHandler) getCompletion(c *gin.Context) {
	completion, err := h.Completions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"completion": completion})
}

func (h *CompletionHandler) approveCompletion(c *gin.Context) {
	adminID := c.GetUint("user_id")

	var req struct {
		FinalAmount float64 `json:"final_amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}

	result, err := h.Approvals.Approve(c.Request.Context(), c.Param("id"), adminID, req.FinalAmount)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":           "Completion approved",
		"payment_reference": result.PaymentReference,
		"final_amount":      result.FinalAmount,
	})
}

func (h *CompletionHandler) rejectCompletion(c *gin.Context) {
	adminID := c.GetUint("user_id")

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "A rejection reason is required"})
		return
	}

	if err := h.Approvals.Reject(c.Request.Context(), c.Param("id"), adminID, req.Reason); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Completion rejected, job reopened"})
}

func allowedImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}
