package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quickserve/servegate/internal/model"
	"github.com/quickserve/servegate/internal/pkg/timeutil"
	"github.com/quickserve/servegate/internal/redemption"
	"github.com/quickserve/servegate/internal/service"
)

type RedeemHandler struct {
	redemption *redemption.Service
	docs       *service.DocumentService
}

func NewRedeemHandler(red *redemption.Service, docs *service.DocumentService) *RedeemHandler {
	return &RedeemHandler{redemption: red, docs: docs}
}

// Redeem consumes a one-shot link. Exactly one request per token ever
// reaches the success branch; the error handler maps the loss classes to
// 404 (unknown), 410 (expired) and 409 (already collected).
func (h *RedeemHandler) Redeem(c *gin.Context) {
	result, err := h.redemption.Redeem(c.Request.Context(), c.Param("token"), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		c.Error(err)
		return
	}

	h.docs.ConfirmDownload(c.Request.Context(), result.Token.DocumentID)

	resp := model.RedeemResponse{
		DocumentID: result.Token.DocumentID,
		RedeemedAt: *result.Token.ConsumedAt,
	}
	resp.ServedAtSAST = timeutil.FormatSAST(*result.Token.ConsumedAt)

	if doc, docErr := h.docs.GetDocument(c.Request.Context(), result.Token.DocumentID); docErr == nil && doc != nil {
		resp.Filename = doc.OriginalFilename
	}

	c.JSON(http.StatusOK, resp)
}
