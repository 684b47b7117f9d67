package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	valdclient "github.com/apexlab/apex-backend/internal/clients/vald"
	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/services"
)

type ValdHandler struct {
	client     valdclient.Client
	link       services.ProfileLinkService
	percentile services.ValdPercentileService
	composite  services.CompositeService
	recalc     services.RecalculateService
	queue      services.ProfileQueueService
}

func NewValdHandler(
	client valdclient.Client,
	link services.ProfileLinkService,
	percentile services.ValdPercentileService,
	composite services.CompositeService,
	recalc services.RecalculateService,
	queue services.ProfileQueueService,
) *ValdHandler {
	return &ValdHandler{
		client:     client,
		link:       link,
		percentile: percentile,
		composite:  composite,
		recalc:     recalc,
		queue:      queue,
	}
}

// POST /api/athletes/:id/vald/resolve
func (h *ValdHandler) ResolveProfile(c *gin.Context) {
	athleteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_athlete_id", err)
		return
	}
	res, err := h.link.Resolve(c.Request.Context(), athleteID)
	if err != nil {
		respondServiceError(c, "vald_resolve_failed", err)
		return
	}
	RespondOK(c, gin.H{"result": res})
}

// POST /api/athletes/:id/vald/link
func (h *ValdHandler) LinkExisting(c *gin.Context) {
	athleteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_athlete_id", err)
		return
	}
	var body struct {
		ProfileID string `json:"profile_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if strings.TrimSpace(body.ProfileID) == "" {
		RespondError(c, http.StatusBadRequest, "missing_profile_id", fmt.Errorf("profile_id required"))
		return
	}
	if err := h.link.LinkExisting(c.Request.Context(), athleteID, body.ProfileID); err != nil {
		respondServiceError(c, "vald_link_failed", err)
		return
	}
	RespondOK(c, gin.H{"linked": true})
}

// GET /api/vald/profiles/search?given_name=&family_name=
// Diagnostic lookup straight against the external API.
func (h *ValdHandler) SearchProfiles(c *gin.Context) {
	given := strings.TrimSpace(c.Query("given_name"))
	family := strings.TrimSpace(c.Query("family_name"))
	if given == "" && family == "" {
		RespondError(c, http.StatusBadRequest, "missing_name", fmt.Errorf("given_name or family_name required"))
		return
	}
	profiles, err := h.client.SearchByName(c.Request.Context(), given, family)
	if err != nil {
		RespondError(c, http.StatusBadGateway, "vald_search_failed", err)
		return
	}
	RespondOK(c, gin.H{"profiles": profiles})
}

// POST /api/vald/tests
func (h *ValdHandler) IngestTest(c *gin.Context) {
	var body struct {
		AthleteID  uuid.UUID          `json:"athlete_id"`
		TestID     string             `json:"test_id"`
		TestType   string             `json:"test_type"`
		RecordedAt string             `json:"recorded_at"`
		Metrics    map[string]float64 `json:"metrics"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	result, err := parseTestResult(body.AthleteID, body.TestID, body.TestType, body.RecordedAt, body.Metrics)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_test", err)
		return
	}

	saved, err := h.percentile.IngestTestResult(c.Request.Context(), result)
	if err != nil {
		respondServiceError(c, "vald_ingest_failed", err)
		return
	}

	// A fresh test may complete a force profile. Its absence is not an
	// ingest failure.
	composite, err := h.composite.UpdateCompositeScore(c.Request.Context(), body.AthleteID)
	if err != nil {
		respondServiceError(c, "vald_composite_failed", err)
		return
	}
	RespondOK(c, gin.H{"saved": saved, "composite": composite})
}

// GET /api/athletes/:id/percentiles?play_level=
func (h *ValdHandler) PercentileHistory(c *gin.Context) {
	athleteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_athlete_id", err)
		return
	}
	rows, err := h.percentile.HistoryForAthlete(c.Request.Context(), athleteID, strings.TrimSpace(c.Query("play_level")))
	if err != nil {
		respondServiceError(c, "percentile_history_failed", err)
		return
	}
	RespondOK(c, gin.H{"history": rows})
}

// POST /api/athletes/:id/percentiles/recalculate
func (h *ValdHandler) Recalculate(c *gin.Context) {
	athleteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_athlete_id", err)
		return
	}
	// Optional body restricting the pass to specific tests.
	var body struct {
		TestIDs []string `json:"test_ids"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
			return
		}
	}
	res, err := h.recalc.RecalculateAthlete(c.Request.Context(), athleteID, body.TestIDs...)
	if err != nil {
		respondServiceError(c, "recalculate_failed", err)
		return
	}
	RespondOK(c, gin.H{"result": res})
}

// POST /api/athletes/:id/vald/composite
func (h *ValdHandler) UpdateComposite(c *gin.Context) {
	athleteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_athlete_id", err)
		return
	}
	res, err := h.composite.UpdateCompositeScore(c.Request.Context(), athleteID)
	if err != nil {
		respondServiceError(c, "vald_composite_failed", err)
		return
	}
	if res == nil {
		RespondOK(c, gin.H{"computed": false})
		return
	}
	RespondOK(c, gin.H{"computed": true, "result": res})
}

// POST /api/vald/queue/sweep
func (h *ValdHandler) SweepQueue(c *gin.Context) {
	res, err := h.queue.ProcessQueue(c.Request.Context())
	if err != nil {
		respondServiceError(c, "queue_sweep_failed", err)
		return
	}
	RespondOK(c, gin.H{"result": res})
}

func parseTestResult(athleteID uuid.UUID, testID, testType, recordedAt string, metrics map[string]float64) (types.TestResult, error) {
	if athleteID == uuid.Nil {
		return types.TestResult{}, fmt.Errorf("athlete_id required")
	}
	if strings.TrimSpace(testID) == "" {
		return types.TestResult{}, fmt.Errorf("test_id required")
	}
	tt := types.TestType(strings.ToUpper(strings.TrimSpace(testType)))
	if !tt.Valid() {
		return types.TestResult{}, fmt.Errorf("unknown test_type %q", testType)
	}
	when := time.Now().UTC()
	if raw := strings.TrimSpace(recordedAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return types.TestResult{}, fmt.Errorf("recorded_at: %w", err)
		}
		when = parsed
	}
	return types.TestResult{
		TestID:     testID,
		TestType:   tt,
		AthleteID:  athleteID,
		RecordedAt: when,
		RawMetrics: metrics,
	}, nil
}

// GET /api/vald/queue?limit=
func (h *ValdHandler) ListQueue(c *gin.Context) {
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = n
	}
	items, err := h.queue.ListRecent(c.Request.Context(), limit)
	if err != nil {
		respondServiceError(c, "queue_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"items": items})
}
