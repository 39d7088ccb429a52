package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/quickserve/servegate/internal/model"
	"github.com/quickserve/servegate/internal/pkg/timeutil"
)

// MemoryPortalStore backs the portal CRUD surface without a database.
// Used in tests and databaseless development; records vanish on restart,
// which is fine because the audit ledger fallback is equally ephemeral.
type MemoryPortalStore struct {
	mu    sync.Mutex
	docs  map[string]*model.Document
	users map[string]*model.User
	fees  []*model.ServiceFee
}

func NewMemoryPortalStore() *MemoryPortalStore {
	return &MemoryPortalStore{
		docs:  make(map[string]*model.Document),
		users: make(map[string]*model.User),
	}
}

func (s *MemoryPortalStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *MemoryPortalStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (s *MemoryPortalStore) ListSentDocuments(ctx context.Context, senderID string, limit int) ([]*model.Document, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Document, 0, limit)
	for _, doc := range s.docs {
		if doc.SenderID == senderID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryPortalStore) MarkServed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %s not found", id)
	}
	now := timeutil.NowUTC()
	if doc.ServedAt == nil {
		doc.ServedAt = &now
	}
	if doc.NotifiedAt == nil {
		doc.NotifiedAt = &now
	}
	if doc.Status == model.DocStatusPending {
		doc.Status = model.DocStatusServed
	}
	return nil
}

func (s *MemoryPortalStore) MarkDownloaded(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %s not found", id)
	}
	if doc.DownloadedAt != nil {
		return nil
	}
	now := timeutil.NowUTC()
	doc.DownloadedAt = &now
	doc.Status = model.DocStatusDownloaded
	return nil
}

func (s *MemoryPortalStore) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryPortalStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

func (s *MemoryPortalStore) RecordFee(ctx context.Context, fee *model.ServiceFee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *fee
	s.fees = append(s.fees, &cp)
	return nil
}
