package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"phixall-server/models"
	"phixall-server/services"
)

// MaterialHandler serves material recommendations: proposal by artisans and
// resolution by admins.
type MaterialHandler struct {
	Materials *services.MaterialService
}

func NewMaterialHandler(materials *services.MaterialService) *MaterialHandler {
	return &MaterialHandler{Materials: materials}
}

// RegisterArtisan registers the artisan-facing routes on the jobs group.
func (h *MaterialHandler) RegisterArtisan(rg *gin.RouterGroup) {
	rg.POST("/:id/materials", h.proposeMaterial)
	rg.GET("/:id/materials", h.listJobMaterials)
}

// RegisterAdmin registers the admin resolution routes.
func (h *MaterialHandler) RegisterAdmin(rg *gin.RouterGroup) {
	rg.GET("/materials", h.listMaterials)
	rg.POST("/materials/:id/resolve", h.resolveMaterial)
}

// proposeMaterial accepts a multipart form so the receipt photo can ride
// along with the proposal fields. Older artisan app builds send the caller id
// as phixer_id; it is accepted here and dropped, the authenticated user is
// authoritative.
func (h *MaterialHandler) proposeMaterial(c *gin.Context) {
	jobID, err := parseID(c)
	if err != nil {
		return
	}
	artisanID := c.GetUint("user_id")

	quantity, err := strconv.Atoi(c.DefaultPostForm("quantity", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "quantity must be an integer"})
		return
	}
	unitCost, err := strconv.ParseFloat(c.DefaultPostForm("unit_cost", "0"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "unit_cost must be a number"})
		return
	}

	in := services.MaterialInput{
		MaterialName: c.PostForm("material_name"),
		Quantity:     quantity,
		UnitCost:     unitCost,
		Note:         c.PostForm("note"),
	}

	if lat, ok := parseOptionalFloat(c.PostForm("location_lat")); ok {
		in.LocationLat = lat
	}
	if lng, ok := parseOptionalFloat(c.PostForm("location_lng")); ok {
		in.LocationLng = lng
	}

	if fh, err := c.FormFile("photo"); err == nil {
		if !allowedImage(fh.Filename) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "Only jpg, jpeg, png and webp images are allowed"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "Could not read uploaded file"})
			return
		}
		defer f.Close()
		in.Photo = &services.ImageUpload{Name: fh.Filename, Reader: f}
	}

	material, err := h.Materials.Propose(c.Request.Context(), jobID, artisanID, in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"material": material,
		"message":  "Material recommendation submitted",
	})
}

func (h *MaterialHandler) listJobMaterials(c *gin.Context) {
	jobID, err := parseID(c)
	if err != nil {
		return
	}

	materials, err := h.Materials.ListForJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"materials": materials, "count": len(materials)})
}

func (h *MaterialHandler) listMaterials(c *gin.Context) {
	status := models.MaterialStatus(c.DefaultQuery("status", string(models.MaterialStatusPending)))

	materials, err := h.Materials.List(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"materials": materials, "count": len(materials)})
}

func (h *MaterialHandler) resolveMaterial(c *gin.Context) {
	materialID, err := parseID(c)
	if err != nil {
		return
	}
	adminID := c.GetUint("user_id")

	var req services.MaterialResolution
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}

	material, err := h.Materials.Resolve(c.Request.Context(), materialID, adminID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"material": material, "message": "Material recommendation resolved"})
}

func parseOptionalFloat(raw string) (*float64, bool) {
	if raw == "" {
		return nil, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, false
	}
	return &v, true
}
