// Package booking books and cancels appointments on a tenant's connected
// calendar after re-validating the requested slot.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dtorcivia/calbook/internal/availability"
	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/metrics"
	"github.com/dtorcivia/calbook/internal/util"
)

var (
	// ErrSlotUnavailable means the requested start is not an open slot.
	ErrSlotUnavailable = errors.New("requested time is not available")
	// ErrOutsideBookingWindow means the start is in the past or beyond the
	// account's advance booking window.
	ErrOutsideBookingWindow = errors.New("requested time is outside the booking window")
	// ErrContactNotFound is returned by a ContactDirectory for unknown ids.
	ErrContactNotFound = errors.New("contact not found")
)

// Contact is who an appointment is booked for.
type Contact struct {
	Name  string
	Email string
}

// ContactDirectory resolves a tenant's contact ids.
type ContactDirectory interface {
	Lookup(ctx context.Context, tenantID, contactID string) (*Contact, error)
}

// AccountFinder resolves a tenant's active calendar account.
type AccountFinder interface {
	ActiveForTenant(ctx context.Context, tenantID string) (*calendar.ProviderAccount, error)
}

// ClientResolver picks the provider client for an account.
type ClientResolver interface {
	For(account *calendar.ProviderAccount) (calendar.Client, error)
}

// Request asks for an appointment. LocalDateTime is read as a wall clock
// time in the account's timezone; its own location is ignored.
type Request struct {
	TenantID      string
	ContactID     string
	LocalDateTime time.Time
	Description   string
}

// Confirmation is returned for a created appointment.
type Confirmation struct {
	EventID string    `json:"event_id"`
	Link    string    `json:"link,omitempty"`
	Text    string    `json:"text"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Config wires a Service.
type Config struct {
	Accounts AccountFinder
	Engine   *availability.Engine
	Clients  ClientResolver
	Contacts ContactDirectory
	Clock    util.Clock
	Metrics  *metrics.Metrics
	Logger   *util.Logger
}

// Service is the booking use case.
type Service struct {
	accounts AccountFinder
	engine   *availability.Engine
	clients  ClientResolver
	contacts ContactDirectory
	clock    util.Clock
	metrics  *metrics.Metrics
	logger   *util.Logger
}

// NewService creates a Service. Contacts may be nil.
func NewService(cfg Config) *Service {
	s := &Service{
		accounts: cfg.Accounts,
		engine:   cfg.Engine,
		clients:  cfg.Clients,
		contacts: cfg.Contacts,
		clock:    cfg.Clock,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	if s.clock == nil {
		s.clock = util.SystemClock{}
	}
	if s.logger == nil {
		s.logger = util.GetDefaultLogger()
	}
	return s
}

// Slots returns the open slots of the tenant's active account on date.
func (s *Service) Slots(ctx context.Context, tenantID string, date time.Time) ([]calendar.TimeSlot, error) {
	account, err := s.accounts.ActiveForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	loc, err := s.engine.Location(account)
	if err != nil {
		return nil, err
	}
	return s.engine.GetAvailableSlots(ctx, account, wallClock(date, loc))
}

// Book re-validates the requested slot and creates the event. Provider
// errors are returned as is; nothing is reported as booked unless the
// provider created the event.
func (s *Service) Book(ctx context.Context, req Request) (*Confirmation, error) {
	account, err := s.accounts.ActiveForTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithFields(map[string]interface{}{
		"tenant_id":  account.TenantID,
		"vendor":     account.Vendor.Lower(),
		"account_id": account.ID,
	})

	cfg, err := availability.FromAccount(account)
	if err != nil {
		return nil, err
	}
	loc, err := s.engine.Location(account)
	if err != nil {
		return nil, err
	}
	start := wallClock(req.LocalDateTime, loc)
	end := start.Add(cfg.SlotDuration())

	now := s.clock.Now()
	if start.Before(now) || start.After(now.AddDate(0, 0, cfg.AdvanceBookingDays)) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideBookingWindow, start.Format(time.RFC3339))
	}

	ok, err := s.engine.IsSlotAvailable(ctx, account, start)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSlotUnavailable, start.Format(time.RFC3339))
	}

	contact := s.lookupContact(ctx, req.TenantID, req.ContactID)
	event := &calendar.CalendarEvent{
		Summary:     summaryFor(contact),
		Description: strings.TrimSpace(req.Description),
		Start:       start,
		End:         end,
		TimeZone:    loc.String(),
	}
	if contact != nil && contact.Email != "" {
		if err := util.ValidateEmail(contact.Email); err == nil {
			event.Attendees = []string{contact.Email}
		} else {
			log.Warn("Skipping invalid attendee email", "contact_id", req.ContactID)
		}
	}

	client, err := s.clients.For(account)
	if err != nil {
		return nil, err
	}
	created, err := client.CreateEvent(ctx, account, event)
	s.metrics.Booking(account.Vendor, err)
	if err != nil {
		log.Error("Booking failed", "start", start.Format(time.RFC3339), "error", err)
		return nil, err
	}
	log.Info("Appointment booked", "event_id", created.ID, "start", start.Format(time.RFC3339))

	link := created.WebLink
	if created.MeetingURL != "" {
		link = created.MeetingURL
	}
	return &Confirmation{
		EventID: created.ID,
		Link:    link,
		Text:    confirmationText(contact, start, loc),
		Start:   start,
		End:     end,
	}, nil
}

// Cancel deletes eventID from the tenant's active calendar.
func (s *Service) Cancel(ctx context.Context, tenantID, eventID string) error {
	account, err := s.accounts.ActiveForTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	client, err := s.clients.For(account)
	if err != nil {
		return err
	}
	if err := client.DeleteEvent(ctx, account, eventID); err != nil {
		return fmt.Errorf("cancel %s: %w", eventID, err)
	}
	s.logger.Info("Appointment cancelled", "tenant_id", tenantID, "vendor", account.Vendor.Lower(), "event_id", eventID)
	return nil
}

func (s *Service) lookupContact(ctx context.Context, tenantID, contactID string) *Contact {
	if s.contacts == nil || contactID == "" {
		return nil
	}
	c, err := s.contacts.Lookup(ctx, tenantID, contactID)
	if err != nil {
		if !errors.Is(err, ErrContactNotFound) {
			s.logger.Warn("Contact lookup failed", "tenant_id", tenantID, "contact_id", contactID, "error", err)
		}
		return nil
	}
	return c
}

// wallClock reinterprets t's wall clock reading in loc.
func wallClock(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, loc)
}

func summaryFor(c *Contact) string {
	if c == nil || strings.TrimSpace(c.Name) == "" {
		return "Appointment"
	}
	return "Appointment with " + util.SanitizeString(c.Name)
}

func confirmationText(c *Contact, start time.Time, loc *time.Location) string {
	when := start.Format("Monday, January 2, 2006 at 15:04")
	if c != nil && c.Name != "" {
		return fmt.Sprintf("%s, your appointment is confirmed for %s (%s).", util.SanitizeString(c.Name), when, loc)
	}
	return fmt.Sprintf("Your appointment is confirmed for %s (%s).", when, loc)
}
