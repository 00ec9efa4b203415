// Package api exposes the intake workflow over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	cerr "intake-service/internal/common/errors"
	"intake-service/internal/common/logger"
	"intake-service/internal/intake"
	"intake-service/internal/intake/enrollment"
	"intake-service/internal/search"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc      *intake.Service
	enforcer *enrollment.Enforcer
	search   *search.Index
	logger   logger.Logger
}

func NewHandler(svc *intake.Service, enforcer *enrollment.Enforcer, searchIndex *search.Index, log logger.Logger) *Handler {
	return &Handler{
		svc:      svc,
		enforcer: enforcer,
		search:   searchIndex,
		logger:   log.WithFields(map[string]interface{}{"component": "intake-api"}),
	}
}

type createIntakeRequest struct {
	UserID    string `json:"userId"`
	ProgramID string `json:"programId" binding:"required"`
}

func (h *Handler) CreateIntake(c *gin.Context) {
	var req createIntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cerr.NewValidationFailedError("invalid request body"))
		return
	}

	rec, serr := h.svc.Create(c.Request.Context(), callerFrom(c), req.UserID, req.ProgramID)
	if serr != nil {
		writeError(c, serr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"intakeId": rec.ID,
		"message":  "Intake record created",
	})
}

func (h *Handler) GetIntake(c *gin.Context) {
	rec, serr := h.svc.Get(c.Request.Context(), callerFrom(c), c.Param("id"))
	if serr != nil {
		writeError(c, serr)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListIntakes(c *gin.Context) {
	recs, serr := h.svc.List(c.Request.Context(), callerFrom(c), c.Query("userId"), c.Query("programId"))
	if serr != nil {
		writeError(c, serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"intakes": recs, "count": len(recs)})
}

type submitStepRequest struct {
	Step string          `json:"step" binding:"required"`
	Data json.RawMessage `json:"data"`
}

func (h *Handler) SubmitStep(c *gin.Context) {
	var req submitStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cerr.NewValidationFailedError("invalid request body"))
		return
	}

	rec, serr := h.svc.SubmitStep(c.Request.Context(), callerFrom(c), c.Param("id"), req.Step, req.Data)
	if serr != nil {
		writeError(c, serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  rec.Status,
		"message": fmt.Sprintf("Step %s processed", req.Step),
	})
}

// SearchIntakes is a staff-side lookup over the search index.
func (h *Handler) SearchIntakes(c *gin.Context) {
	caller := callerFrom(c)
	if !caller.Role.IsStaff() {
		writeError(c, cerr.NewForbiddenError("search is restricted to staff"))
		return
	}
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is not enabled"})
		return
	}

	from, _ := strconv.Atoi(c.DefaultQuery("from", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	result, err := h.search.SearchIntakes(c.Request.Context(), search.Query{
		Keywords: c.Query("q"),
		Status:   c.Query("status"),
		Pathway:  c.Query("pathway"),
		From:     from,
		Size:     size,
	})
	if err != nil {
		h.logger.Error("search failed", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// CheckEligibility reports whether a user may enroll in a program.
func (h *Handler) CheckEligibility(c *gin.Context) {
	caller := callerFrom(c)
	userID := c.Query("userId")
	if userID == "" {
		userID = caller.UserID
	}
	if userID != caller.UserID && !caller.Role.IsStaff() {
		writeError(c, cerr.NewForbiddenError("cannot check another user's eligibility"))
		return
	}

	programID := c.Query("programId")
	if programID == "" {
		writeError(c, cerr.NewValidationFailedError("programId is required"))
		return
	}

	res, err := h.enforcer.ValidateEligibility(c.Request.Context(), userID, programID)
	if err != nil {
		h.logger.Error("eligibility check failed", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "eligibility check failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError renders the flat error envelope: {error, code} plus whatever
// the error carries for the caller (intakeId/status on duplicates, errors
// and nextStep on failed completion, canProceed on financial readiness).
func writeError(c *gin.Context, serr *cerr.StandardError) {
	body := gin.H{
		"error": serr.Message,
		"code":  serr.Code,
	}
	for k, v := range serr.Metadata {
		body[k] = v
	}
	c.JSON(cerr.HTTPStatus(serr.Code), body)
}
