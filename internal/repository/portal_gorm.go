package repository

import (
	"context"
	"errors"

	"github.com/quickserve/servegate/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PortalStore is the ORM-backed CRUD layer for the portal's document and
// user metadata. The integrity core (ledger, tokens) deliberately does not
// go through gorm; those tables need hand-written conditional SQL.
type PortalStore struct {
	db *gorm.DB
}

func NewPortalStore(dsn string) (*PortalStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.Document{}, &model.User{}, &model.ServiceFee{}); err != nil {
		return nil, err
	}
	return &PortalStore{db: db}, nil
}

// NewPortalStoreWithDB wraps an existing gorm handle (tests use sqlite or a
// shared connection).
func NewPortalStoreWithDB(db *gorm.DB) (*PortalStore, error) {
	if err := db.AutoMigrate(&model.Document{}, &model.User{}, &model.ServiceFee{}); err != nil {
		return nil, err
	}
	return &PortalStore{db: db}, nil
}

func (s *PortalStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	return s.db.WithContext(ctx).Create(doc).Error
}

func (s *PortalStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *PortalStore) ListSentDocuments(ctx context.Context, senderID string, limit int) ([]*model.Document, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var docs []*model.Document
	err := s.db.WithContext(ctx).
		Where("sender_id = ?", senderID).
		Order("created_at DESC").
		Limit(limit).
		Find(&docs).Error
	return docs, err
}

// MarkServed records ECTA service: the notification entered the recipient's
// system. Separate from download confirmation.
func (s *PortalStore) MarkServed(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      model.DocStatusServed,
			"served_at":   gorm.Expr("COALESCE(served_at, NOW())"),
			"notified_at": gorm.Expr("COALESCE(notified_at, NOW())"),
		}).Error
}

// MarkDownloaded records the recipient's confirmed collection. Guarded on
// downloaded_at IS NULL so a replayed call cannot move the recorded instant.
func (s *PortalStore) MarkDownloaded(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND downloaded_at IS NULL", id).
		Updates(map[string]any{
			"status":        model.DocStatusDownloaded,
			"downloaded_at": gorm.Expr("NOW()"),
		}).Error
}

func (s *PortalStore) CreateUser(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *PortalStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *PortalStore) RecordFee(ctx context.Context, fee *model.ServiceFee) error {
	return s.db.WithContext(ctx).Create(fee).Error
}
