package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/apexlab/apex-backend/internal/services"
)

type AthleteHandler struct {
	athletes services.AthleteService
}

func NewAthleteHandler(athletes services.AthleteService) *AthleteHandler {
	return &AthleteHandler{athletes: athletes}
}

// POST /api/athletes
func (h *AthleteHandler) Create(c *gin.Context) {
	var in services.CreateAthleteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	athlete, err := h.athletes.Create(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, "athlete_create_failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"athlete": athlete})
}

// GET /api/athletes/:id
func (h *AthleteHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_athlete_id", err)
		return
	}
	athlete, err := h.athletes.GetByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "athlete_not_found", err)
		return
	}
	RespondOK(c, gin.H{"athlete": athlete})
}
