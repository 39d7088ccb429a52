package redemption

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quickserve/servegate/internal/model"
)

// MemoryTokenRepo is an in-process TokenRepo for tests and databaseless
// development. The mutex around ConsumeIfIssued gives the same
// compare-and-swap guarantee the Postgres conditional UPDATE provides.
type MemoryTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*model.RedemptionToken
}

func NewMemoryTokenRepo() *MemoryTokenRepo {
	return &MemoryTokenRepo{tokens: make(map[string]*model.RedemptionToken)}
}

func (r *MemoryTokenRepo) Create(ctx context.Context, token *model.RedemptionToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tokens[token.TokenValue]; exists {
		return fmt.Errorf("token value collision")
	}
	cp := *token
	r.tokens[token.TokenValue] = &cp
	return nil
}

func (r *MemoryTokenRepo) Get(ctx context.Context, tokenValue string) (*model.RedemptionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenValue]
	if !ok {
		return nil, nil
	}
	cp := *token
	return &cp, nil
}

func (r *MemoryTokenRepo) ConsumeIfIssued(ctx context.Context, tokenValue string, now time.Time, clientAddr, userAgent string) (*model.RedemptionToken, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[tokenValue]
	if !ok || token.State != model.TokenStateIssued || token.Expired(now) {
		return nil, false, nil
	}

	token.State = model.TokenStateConsumed
	consumedAt := now
	token.ConsumedAt = &consumedAt
	token.ConsumedByAddr = &clientAddr
	ua := userAgent
	if len(ua) > 500 {
		ua = ua[:500]
	}
	token.ConsumedUserAgent = &ua

	cp := *token
	return &cp, true, nil
}
