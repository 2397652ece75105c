package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/kvstore"
	"github.com/dtorcivia/calbook/internal/util"
)

// DefaultSessionTTL is how long an idle scheduling conversation is kept.
const DefaultSessionTTL = 30 * time.Minute

const sessionPrefix = "booking_session:"

// ErrSessionNotFound is returned for unknown or expired conversations.
var ErrSessionNotFound = errors.New("scheduling session not found")

// Session is the scheduling state of one conversation: the date being
// discussed and the slots last offered for it.
type Session struct {
	ConversationID string              `json:"conversation_id"`
	TenantID       string              `json:"tenant_id"`
	ContactID      string              `json:"contact_id,omitempty"`
	Date           string              `json:"date,omitempty"`
	OfferedSlots   []calendar.TimeSlot `json:"offered_slots,omitempty"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Offered reports whether start is one of the offered slot starts.
func (s *Session) Offered(start time.Time) bool {
	for _, slot := range s.OfferedSlots {
		if slot.Start.Equal(start) {
			return true
		}
	}
	return false
}

// Sessions stores scheduling sessions in a kvstore. Every Save restarts
// the TTL.
type Sessions struct {
	kv    kvstore.Store
	ttl   time.Duration
	clock util.Clock
}

// NewSessions returns a Sessions; ttl <= 0 uses DefaultSessionTTL.
func NewSessions(kv kvstore.Store, ttl time.Duration, clock util.Clock) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &Sessions{kv: kv, ttl: ttl, clock: clock}
}

// Save stores s under its conversation id.
func (r *Sessions) Save(ctx context.Context, s *Session) error {
	if s.ConversationID == "" {
		return fmt.Errorf("session has no conversation id")
	}
	s.UpdatedAt = r.clock.Now().UTC()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.kv.Put(ctx, sessionPrefix+s.ConversationID, data, r.ttl); err != nil {
		return fmt.Errorf("save session %s: %w", s.ConversationID, err)
	}
	return nil
}

// Load returns the conversation's session or ErrSessionNotFound.
func (r *Sessions) Load(ctx context.Context, conversationID string) (*Session, error) {
	data, err := r.kv.Get(ctx, sessionPrefix+conversationID)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", conversationID, err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", conversationID, err)
	}
	return &s, nil
}

// Clear forgets the conversation.
func (r *Sessions) Clear(ctx context.Context, conversationID string) error {
	return r.kv.Delete(ctx, sessionPrefix+conversationID)
}
