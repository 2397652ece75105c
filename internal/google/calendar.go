// Package google implements calendar.Client on the Google Calendar v3 API.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/metrics"
	"github.com/dtorcivia/calbook/internal/util"
)

// DefaultCalendarID is used when an account configures none.
const DefaultCalendarID = "primary"

// Config wires a Client.
type Config struct {
	Reauth *calendar.Reauth
	// Timeout bounds every API call.
	Timeout time.Duration
	// Transport is the base round tripper; nil uses http.DefaultTransport.
	Transport http.RoundTripper
	// Endpoint overrides the Calendar API base URL.
	Endpoint string
	// UserinfoEndpoint overrides the OAuth2 userinfo API base URL.
	UserinfoEndpoint  string
	DefaultCalendarID string
	Metrics           *metrics.Metrics
}

// Client talks to Google Calendar on behalf of provider accounts.
type Client struct {
	reauth            *calendar.Reauth
	timeout           time.Duration
	transport         http.RoundTripper
	endpoint          string
	userinfoEndpoint  string
	defaultCalendarID string
	metrics           *metrics.Metrics
}

// New creates a Client.
func New(cfg Config) *Client {
	c := &Client{
		reauth:            cfg.Reauth,
		timeout:           cfg.Timeout,
		transport:         cfg.Transport,
		endpoint:          cfg.Endpoint,
		userinfoEndpoint:  cfg.UserinfoEndpoint,
		defaultCalendarID: cfg.DefaultCalendarID,
		metrics:           cfg.Metrics,
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	if c.transport == nil {
		c.transport = http.DefaultTransport
	}
	if c.defaultCalendarID == "" {
		c.defaultCalendarID = DefaultCalendarID
	}
	return c
}

// Vendor returns calendar.VendorGoogle.
func (c *Client) Vendor() calendar.Vendor {
	return calendar.VendorGoogle
}

// httpClient returns a bearer client for accessToken with the call timeout.
func (c *Client) httpClient(accessToken string) *http.Client {
	return &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}
}

func (c *Client) service(ctx context.Context, accessToken string) (*gcal.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(c.httpClient(accessToken))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, &calendar.ConfigurationError{Reason: "create calendar service", Err: err}
	}
	return svc, nil
}

// call runs op with a service bound to the account's current token, inside
// the re-authorization loop.
func call[T any](ctx context.Context, c *Client, name string, account *calendar.ProviderAccount, op func(ctx context.Context, svc *gcal.Service, calendarID string) (T, error)) (T, error) {
	start := time.Now()
	result, err := calendar.WithReauth(ctx, c.reauth, account, func(ctx context.Context, a *calendar.ProviderAccount) (T, error) {
		var zero T
		svc, err := c.service(ctx, a.AccessToken)
		if err != nil {
			return zero, err
		}
		result, err := op(ctx, svc, a.CalendarID(c.defaultCalendarID))
		if err != nil {
			return zero, classify(err)
		}
		return result, nil
	})
	c.metrics.ObserveRequest(calendar.VendorGoogle, name, start, err)
	return result, err
}

// CreateEvent inserts an event, requesting a Meet link when asked for an
// online meeting.
func (c *Client) CreateEvent(ctx context.Context, account *calendar.ProviderAccount, event *calendar.CalendarEvent) (*calendar.CalendarEventResponse, error) {
	return call(ctx, c, "create_event", account, func(ctx context.Context, svc *gcal.Service, calendarID string) (*calendar.CalendarEventResponse, error) {
		ge := toGoogleEvent(event)
		if event.OnlineMeeting {
			ge.ConferenceData = &gcal.ConferenceData{
				CreateRequest: &gcal.CreateConferenceRequest{
					RequestId:             uuid.NewString(),
					ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
				},
			}
		}
		req := svc.Events.Insert(calendarID, ge).Context(ctx)
		if event.OnlineMeeting {
			req = req.ConferenceDataVersion(1)
		}
		if len(event.Attendees) > 0 {
			req = req.SendUpdates("all")
		}
		created, err := req.Do()
		if err != nil {
			return nil, err
		}
		return fromGoogleEvent(created), nil
	})
}

// UpdateEvent patches the event with every field of event.
func (c *Client) UpdateEvent(ctx context.Context, account *calendar.ProviderAccount, eventID string, event *calendar.CalendarEvent) (*calendar.CalendarEventResponse, error) {
	return call(ctx, c, "update_event", account, func(ctx context.Context, svc *gcal.Service, calendarID string) (*calendar.CalendarEventResponse, error) {
		updated, err := svc.Events.Patch(calendarID, eventID, toGoogleEvent(event)).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return fromGoogleEvent(updated), nil
	})
}

// DeleteEvent removes the event. An event that is already gone counts as
// deleted.
func (c *Client) DeleteEvent(ctx context.Context, account *calendar.ProviderAccount, eventID string) error {
	_, err := call(ctx, c, "delete_event", account, func(ctx context.Context, svc *gcal.Service, calendarID string) (struct{}, error) {
		err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && gErr.Code == http.StatusGone {
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	return err
}

// GetEvent fetches one event.
func (c *Client) GetEvent(ctx context.Context, account *calendar.ProviderAccount, eventID string) (*calendar.CalendarEventResponse, error) {
	return call(ctx, c, "get_event", account, func(ctx context.Context, svc *gcal.Service, calendarID string) (*calendar.CalendarEventResponse, error) {
		e, err := svc.Events.Get(calendarID, eventID).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return fromGoogleEvent(e), nil
	})
}

// ListEvents returns the single-event expansion of the window in start
// order, following every page.
func (c *Client) ListEvents(ctx context.Context, account *calendar.ProviderAccount, window calendar.TimeWindow) ([]calendar.CalendarEventResponse, error) {
	return call(ctx, c, "list_events", account, func(ctx context.Context, svc *gcal.Service, calendarID string) ([]calendar.CalendarEventResponse, error) {
		var out []calendar.CalendarEventResponse
		err := svc.Events.List(calendarID).
			TimeMin(window.Start.Format(time.RFC3339)).
			TimeMax(window.End.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			Pages(ctx, func(page *gcal.Events) error {
				for _, item := range page.Items {
					out = append(out, *fromGoogleEvent(item))
				}
				return nil
			})
		return out, err
	})
}

// GetFreeBusy queries /freeBusy and expresses the busy intervals in the
// query's timezone.
func (c *Client) GetFreeBusy(ctx context.Context, account *calendar.ProviderAccount, query calendar.FreeBusyQuery) (*calendar.FreeBusyResponse, error) {
	loc, err := queryLocation(query.TimeZone)
	if err != nil {
		return nil, err
	}
	return call(ctx, c, "free_busy", account, func(ctx context.Context, svc *gcal.Service, calendarID string) (*calendar.FreeBusyResponse, error) {
		ids := query.CalendarIDs
		if len(ids) == 0 {
			ids = []string{calendarID}
		}
		req := &gcal.FreeBusyRequest{
			TimeMin:  query.Start.Format(time.RFC3339),
			TimeMax:  query.End.Format(time.RFC3339),
			TimeZone: loc.String(),
		}
		for _, id := range ids {
			req.Items = append(req.Items, &gcal.FreeBusyRequestItem{Id: id})
		}

		resp, err := svc.Freebusy.Query(req).Context(ctx).Do()
		if err != nil {
			return nil, err
		}

		var busy []calendar.TimeSlot
		for _, id := range ids {
			cal, ok := resp.Calendars[id]
			if !ok {
				continue
			}
			if len(cal.Errors) > 0 {
				return nil, &calendar.APIError{
					Vendor:  calendar.VendorGoogle,
					Code:    cal.Errors[0].Reason,
					Message: "free/busy unavailable for calendar " + id,
				}
			}
			for _, p := range cal.Busy {
				slot, err := parsePeriod(p.Start, p.End, loc)
				if err != nil {
					return nil, err
				}
				busy = append(busy, slot)
			}
		}
		calendar.SortSlots(busy)

		return &calendar.FreeBusyResponse{
			Start: query.Start.In(loc),
			End:   query.End.In(loc),
			Busy:  busy,
			Free:  calendar.ComplementSlots(query.Window().In(loc), busy),
		}, nil
	})
}

func queryLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := util.LoadLocation(name)
	if err != nil {
		return nil, &calendar.ConfigurationError{Reason: err.Error(), Err: err}
	}
	return loc, nil
}

func parsePeriod(start, end string, loc *time.Location) (calendar.TimeSlot, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return calendar.TimeSlot{}, malformed(err)
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return calendar.TimeSlot{}, malformed(err)
	}
	return calendar.TimeSlot{Start: s.In(loc), End: e.In(loc)}, nil
}

func malformed(err error) error {
	return &calendar.APIError{Vendor: calendar.VendorGoogle, Code: "malformed_response", Message: err.Error(), Err: err}
}

// classify maps client library errors into the calendar taxonomy.
func classify(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		mapped := calendar.ClassifyResponse(calendar.VendorGoogle, gErr.Code, []byte(gErr.Body))
		var apiErr *calendar.APIError
		if errors.As(mapped, &apiErr) {
			if apiErr.Message == "" {
				apiErr.Message = gErr.Message
			}
			if apiErr.Code == "" && len(gErr.Errors) > 0 {
				apiErr.Code = gErr.Errors[0].Reason
			}
		}
		return mapped
	}

	var synErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &synErr) || errors.As(err, &typeErr) {
		return malformed(err)
	}
	var cfgErr *calendar.ConfigurationError
	var apiErr *calendar.APIError
	if errors.As(err, &cfgErr) || errors.As(err, &apiErr) {
		return err
	}
	return calendar.ClassifyTransport(calendar.VendorGoogle, err)
}
