package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/crypto"
	"github.com/dtorcivia/calbook/internal/kvstore"
	"github.com/dtorcivia/calbook/internal/util"
)

// DefaultStateTTL bounds how long an issued authorization URL stays usable.
const DefaultStateTTL = 10 * time.Minute

const statePrefix = "oauth_state:"

// PendingAuthorization is what a state token stands for until its callback
// arrives.
type PendingAuthorization struct {
	TenantID  string          `json:"tenant_id"`
	Vendor    calendar.Vendor `json:"vendor"`
	IssuedAt  time.Time       `json:"issued_at"`
	ReturnURL string          `json:"return_url,omitempty"`
}

// StateStore keeps pending authorizations in a kvstore under the SHA-256 of
// the state token, so stored keys cannot be replayed as callbacks.
type StateStore struct {
	kv    kvstore.Store
	ttl   time.Duration
	clock util.Clock
}

// NewStateStore returns a StateStore; ttl <= 0 uses DefaultStateTTL.
func NewStateStore(kv kvstore.Store, ttl time.Duration, clock util.Clock) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &StateStore{kv: kv, ttl: ttl, clock: clock}
}

// Issue generates a random state token and records p against it.
func (s *StateStore) Issue(ctx context.Context, p PendingAuthorization) (string, error) {
	state, err := crypto.GenerateStateToken()
	if err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	p.IssuedAt = s.clock.Now().UTC()

	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	if err := s.kv.Put(ctx, statePrefix+crypto.HashSHA256(state), data, s.ttl); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}
	return state, nil
}

// Consume atomically removes and returns the pending authorization. Unknown,
// expired and already consumed states all yield InvalidStateError.
func (s *StateStore) Consume(ctx context.Context, state string) (*PendingAuthorization, error) {
	if state == "" {
		return nil, &calendar.InvalidStateError{Reason: "missing state parameter"}
	}

	data, err := s.kv.Take(ctx, statePrefix+crypto.HashSHA256(state))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, &calendar.InvalidStateError{Reason: "state is unknown, expired or already used"}
	}
	if err != nil {
		return nil, fmt.Errorf("consume state: %w", err)
	}

	var p PendingAuthorization
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &calendar.InvalidStateError{Reason: "corrupt state entry"}
	}
	return &p, nil
}
