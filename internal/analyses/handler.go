package analyses

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"autoanalyze-backend/internal/shared/server/middleware"
	"autoanalyze-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches auto-analyze routes to the router group. mw runs in
// front of every auto-analyze route.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, mw ...gin.HandlerFunc) {
	g := rg.Group("/auto-analyze", mw...)
	g.POST("/start", h.start)
	g.GET("/progress/:id", h.progress)
	g.GET("/results/:id", h.results)
	g.POST("/cancel/:id", h.cancel)
}

func (h *Handler) start(c *gin.Context) {
	var cfg AnalysisConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", []map[string]string{
			{"field": "body", "issue": "invalid_json"},
		})
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	id, err := h.Svc.Start(ctx, cfg)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			respond.Error(c, http.StatusBadRequest, "validation_error", ve.Message, []map[string]string{
				{"field": ve.Field, "issue": ve.Issue},
			})
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		return
	}

	c.Set("analysisId", id)
	c.Set("statusTransition", "->"+string(PhaseSampling))
	respond.Accepted(c, gin.H{
		"analysisId": id,
		"status":     "started",
	})
}

func (h *Handler) progress(c *gin.Context) {
	id, ok := analysisID(c)
	if !ok {
		return
	}
	view, err := h.Svc.Progress(c.Request.Context(), id)
	if err != nil {
		h.lookupError(c, err, "failed to fetch progress")
		return
	}
	respond.OK(c, view)
}

func (h *Handler) results(c *gin.Context) {
	id, ok := analysisID(c)
	if !ok {
		return
	}
	res, err := h.Svc.Results(c.Request.Context(), id)
	if err != nil {
		var nr *NotReadyError
		if errors.As(err, &nr) {
			msg := "analysis is still running"
			if nr.Phase == PhaseError {
				msg = nr.Reason
				if msg == "" {
					msg = "analysis failed"
				}
			}
			respond.Error(c, http.StatusConflict, "not_ready", msg, []map[string]string{
				{"field": "phase", "issue": string(nr.Phase)},
			})
			return
		}
		h.lookupError(c, err, "failed to fetch results")
		return
	}
	respond.OK(c, res)
}

func (h *Handler) cancel(c *gin.Context) {
	id, ok := analysisID(c)
	if !ok {
		return
	}
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	cancelled, err := h.Svc.Cancel(ctx, id)
	if err != nil {
		h.lookupError(c, err, "failed to cancel analysis")
		return
	}
	if cancelled {
		c.Set("statusTransition", "->"+string(PhaseError))
	}
	respond.OK(c, gin.H{
		"analysisId": id,
		"cancelled":  cancelled,
	})
}

func (h *Handler) lookupError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, ErrNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		return
	}
	respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
}

func analysisID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "analysis id is required", nil)
		return "", false
	}
	c.Set("analysisId", id)
	return id, true
}
