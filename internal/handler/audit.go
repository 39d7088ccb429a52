package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/quickserve/servegate/internal/ledger"
	"github.com/quickserve/servegate/internal/pkg/apperrors"
)

// AuditHandler exposes the ledger's verification and export surface.
// Mounted behind the admin key; auditors and compliance, not uploaders.
type AuditHandler struct {
	ledger *ledger.Service
}

func NewAuditHandler(ledgerSvc *ledger.Service) *AuditHandler {
	return &AuditHandler{ledger: ledgerSvc}
}

func (h *AuditHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/verify", h.Verify)
	rg.GET("/export", h.Export)
	rg.GET("/actors/:id/trail", h.ActorTrail)
}

// Verify recomputes the chain over [from, to] (full chain by default) and
// reports the first break. A broken chain still returns 200: the finding
// is the payload, not a server fault.
func (h *AuditHandler) Verify(c *gin.Context) {
	from, to, ok := rangeBounds(c)
	if !ok {
		return
	}
	result, err := h.ledger.Verify(c.Request.Context(), from, to)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "verification pass failed", err))
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AuditHandler) Export(c *gin.Context) {
	from, to, ok := rangeBounds(c)
	if !ok {
		return
	}
	envelope, err := h.ledger.Export(c.Request.Context(), from, to)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "export failed", err))
		return
	}
	c.JSON(http.StatusOK, envelope)
}

func (h *AuditHandler) ActorTrail(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	trail, err := h.ledger.ActorTrail(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "failed to load actor trail", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"actor_id": c.Param("id"), "entries": trail, "count": len(trail)})
}

// rangeBounds parses optional from/to sequence bounds; zero leaves an end
// open.
func rangeBounds(c *gin.Context) (uint64, uint64, bool) {
	from, err := parseSeq(c.Query("from"))
	if err != nil {
		c.Error(apperrors.NewInvalidRequest("from must be a positive integer"))
		return 0, 0, false
	}
	to, err := parseSeq(c.Query("to"))
	if err != nil {
		c.Error(apperrors.NewInvalidRequest("to must be a positive integer"))
		return 0, 0, false
	}
	if from != 0 && to != 0 && from > to {
		c.Error(apperrors.NewInvalidRequest("from must not exceed to"))
		return 0, 0, false
	}
	return from, to, true
}

func parseSeq(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
