package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quickserve/servegate/internal/ledger"
	"github.com/quickserve/servegate/internal/middleware"
	"github.com/quickserve/servegate/internal/model"
	"github.com/quickserve/servegate/internal/pkg/apperrors"
	"github.com/quickserve/servegate/internal/pkg/timeutil"
	"github.com/quickserve/servegate/internal/service"
	"github.com/shopspring/decimal"
)

// UserRepo resolves and registers portal members. Satisfied by
// repository.PortalStore.
type UserRepo interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
}

type DocumentHandler struct {
	docs   *service.DocumentService
	users  UserRepo
	ledger *ledger.Service
}

func NewDocumentHandler(docs *service.DocumentService, users UserRepo, ledgerSvc *ledger.Service) *DocumentHandler {
	return &DocumentHandler{docs: docs, users: users, ledger: ledgerSvc}
}

// RegisterRoutes mounts the portal API. registerGuard middleware (rate
// rules for account creation) runs ahead of the user registration handler
// only.
func (h *DocumentHandler) RegisterRoutes(rg *gin.RouterGroup, registerGuard ...gin.HandlerFunc) {
	rg.POST("/users", append(registerGuard, h.RegisterUser)...)
	rg.POST("/documents", h.RegisterDocument)
	rg.GET("/documents", h.ListDocuments)
	rg.GET("/documents/:id", h.GetDocument)
	rg.POST("/documents/:id/issue-link", h.IssueLink)
	rg.POST("/documents/:id/fees", h.RecordFee)
	rg.GET("/documents/:id/trail", h.DocumentTrail)
}

type registerUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	FullName string `json:"full_name" binding:"required"`
	Practice string `json:"practice"`
}

func (h *DocumentHandler) RegisterUser(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	user := &model.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		FullName:  req.FullName,
		Practice:  req.Practice,
		CreatedAt: timeutil.NowUTC(),
	}
	if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "failed to register user", err))
		return
	}

	if _, err := h.ledger.Append(c.Request.Context(), model.EventDraft{
		ActorID:    &user.ID,
		Action:     model.ActionUserRegistered,
		SubjectID:  user.ID,
		ClientAddr: c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Metadata:   map[string]any{"email": user.Email},
	}); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (h *DocumentHandler) RegisterDocument(c *gin.Context) {
	sender, ok := h.caller(c)
	if !ok {
		return
	}

	var req model.UploadDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	resp, err := h.docs.RegisterUpload(c.Request.Context(), sender, &req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	sender, ok := h.caller(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	docs, err := h.docs.ListSent(c.Request.Context(), sender.ID, limit)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "failed to list documents", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}

func (h *DocumentHandler) GetDocument(c *gin.Context) {
	sender, ok := h.caller(c)
	if !ok {
		return
	}

	doc, err := h.docs.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "failed to load document", err))
		return
	}
	if doc == nil || doc.SenderID != sender.ID {
		c.Error(apperrors.New(apperrors.ErrNotFound, "document not found", nil))
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) IssueLink(c *gin.Context) {
	sender, ok := h.caller(c)
	if !ok {
		return
	}

	resp, err := h.docs.IssueLink(c.Request.Context(), c.Param("id"), sender.ID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *DocumentHandler) RecordFee(c *gin.Context) {
	sender, ok := h.caller(c)
	if !ok {
		return
	}

	var req model.RecordFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest("amount is not a valid decimal"))
		return
	}

	fee, err := h.docs.RecordFee(c.Request.Context(), c.Param("id"), sender.ID, amount, req.Currency)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, fee)
}

// DocumentTrail returns the chronological ledger trail for one document:
// upload, link issuances, notification, the redemption. Senders see the
// trail of their own documents only.
func (h *DocumentHandler) DocumentTrail(c *gin.Context) {
	sender, ok := h.caller(c)
	if !ok {
		return
	}

	id := c.Param("id")
	doc, err := h.docs.GetDocument(c.Request.Context(), id)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "failed to load document", err))
		return
	}
	if doc == nil || doc.SenderID != sender.ID {
		c.Error(apperrors.New(apperrors.ErrNotFound, "document not found", nil))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	trail, err := h.ledger.SubjectTrail(c.Request.Context(), id, limit)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "failed to load trail", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": id, "entries": trail, "count": len(trail)})
}

// caller resolves the authenticated user record, erroring the request when
// the ID from the auth layer matches no portal member.
func (h *DocumentHandler) caller(c *gin.Context) (*model.User, bool) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.Error(apperrors.New(apperrors.ErrAuthFailed, "caller identity missing", nil))
		return nil, false
	}
	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "failed to resolve caller", err))
		return nil, false
	}
	if user == nil {
		c.Error(apperrors.New(apperrors.ErrAuthFailed, "unknown caller", nil))
		return nil, false
	}
	return user, true
}
