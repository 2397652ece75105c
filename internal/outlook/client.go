// Package outlook implements calendar.Client on Microsoft Graph v1.0.
package outlook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/metrics"
)

const (
	// DefaultBaseURL is the Graph v1.0 root.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	graphTimeFormat = "2006-01-02T15:04:05"
	maxErrorBody    = 64 << 10
)

// Config wires a Client.
type Config struct {
	Reauth    *calendar.Reauth
	Timeout   time.Duration
	Transport http.RoundTripper
	BaseURL   string
	Metrics   *metrics.Metrics
}

// Client talks to Microsoft Graph on behalf of provider accounts.
type Client struct {
	reauth    *calendar.Reauth
	timeout   time.Duration
	transport http.RoundTripper
	baseURL   string
	metrics   *metrics.Metrics
}

// New creates a Client.
func New(cfg Config) *Client {
	c := &Client{
		reauth:    cfg.Reauth,
		timeout:   cfg.Timeout,
		transport: cfg.Transport,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		metrics:   cfg.Metrics,
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	if c.transport == nil {
		c.transport = http.DefaultTransport
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	return c
}

// Vendor returns calendar.VendorOutlook.
func (c *Client) Vendor() calendar.Vendor {
	return calendar.VendorOutlook
}

type request struct {
	method string
	path   string // relative to baseURL, or an absolute nextLink
	body   any
	tz     string // sent as the outlook.timezone preference
}

// do sends one Graph request with accessToken and decodes a 2xx body into
// out when out is non-nil.
func (c *Client) do(ctx context.Context, accessToken string, r request, out any) error {
	url := r.path
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = c.baseURL + r.path
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.tz != "" {
		req.Header.Set("Prefer", fmt.Sprintf("outlook.timezone=%q", r.tz))
	}

	client := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return calendar.ClassifyTransport(calendar.VendorOutlook, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return calendar.ClassifyResponse(calendar.VendorOutlook, resp.StatusCode, data)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return calendar.ClassifyTransport(calendar.VendorOutlook, err)
		}
		return &calendar.APIError{
			Vendor:  calendar.VendorOutlook,
			Status:  resp.StatusCode,
			Code:    "malformed_response",
			Message: err.Error(),
			Err:     err,
		}
	}
	return nil
}

// call runs op inside the re-authorization loop and records the outcome.
func call[T any](ctx context.Context, c *Client, name string, account *calendar.ProviderAccount, op func(ctx context.Context, token string) (T, error)) (T, error) {
	start := time.Now()
	result, err := calendar.WithReauth(ctx, c.reauth, account, func(ctx context.Context, a *calendar.ProviderAccount) (T, error) {
		return op(ctx, a.AccessToken)
	})
	c.metrics.ObserveRequest(calendar.VendorOutlook, name, start, err)
	return result, err
}

// calendarPath roots event paths at the configured calendar, or at /me
// for the default one.
func calendarPath(account *calendar.ProviderAccount) string {
	if id := account.CalendarID(""); id != "" {
		return "/me/calendars/" + id
	}
	return "/me"
}

func eventsPath(account *calendar.ProviderAccount) string {
	return calendarPath(account) + "/events"
}

// CreateEvent posts a new event, asking Teams for a meeting link when the
// event is online.
func (c *Client) CreateEvent(ctx context.Context, account *calendar.ProviderAccount, event *calendar.CalendarEvent) (*calendar.CalendarEventResponse, error) {
	tz := eventTimeZone(event, account)
	return call(ctx, c, "create_event", account, func(ctx context.Context, token string) (*calendar.CalendarEventResponse, error) {
		var out graphEvent
		err := c.do(ctx, token, request{method: http.MethodPost, path: eventsPath(account), body: toGraphEvent(event, tz), tz: tz}, &out)
		if err != nil {
			return nil, err
		}
		return out.toResponse()
	})
}

// UpdateEvent patches the event with every field of event.
func (c *Client) UpdateEvent(ctx context.Context, account *calendar.ProviderAccount, eventID string, event *calendar.CalendarEvent) (*calendar.CalendarEventResponse, error) {
	tz := eventTimeZone(event, account)
	return call(ctx, c, "update_event", account, func(ctx context.Context, token string) (*calendar.CalendarEventResponse, error) {
		var out graphEvent
		err := c.do(ctx, token, request{method: http.MethodPatch, path: "/me/events/" + eventID, body: toGraphEvent(event, tz), tz: tz}, &out)
		if err != nil {
			return nil, err
		}
		return out.toResponse()
	})
}

// DeleteEvent removes the event.
func (c *Client) DeleteEvent(ctx context.Context, account *calendar.ProviderAccount, eventID string) error {
	_, err := call(ctx, c, "delete_event", account, func(ctx context.Context, token string) (struct{}, error) {
		return struct{}{}, c.do(ctx, token, request{method: http.MethodDelete, path: "/me/events/" + eventID}, nil)
	})
	return err
}

// GetEvent fetches one event with times in the account's timezone.
func (c *Client) GetEvent(ctx context.Context, account *calendar.ProviderAccount, eventID string) (*calendar.CalendarEventResponse, error) {
	return call(ctx, c, "get_event", account, func(ctx context.Context, token string) (*calendar.CalendarEventResponse, error) {
		var out graphEvent
		err := c.do(ctx, token, request{method: http.MethodGet, path: "/me/events/" + eventID, tz: account.Timezone()}, &out)
		if err != nil {
			return nil, err
		}
		return out.toResponse()
	})
}

// ListEvents reads the calendar view of the window on the same calendar
// CreateEvent writes to. The view expands recurring series; pages are
// followed through @odata.nextLink.
func (c *Client) ListEvents(ctx context.Context, account *calendar.ProviderAccount, window calendar.TimeWindow) ([]calendar.CalendarEventResponse, error) {
	path := fmt.Sprintf("%s/calendarView?startDateTime=%s&endDateTime=%s&$orderby=start/dateTime",
		calendarPath(account), window.Start.UTC().Format(time.RFC3339), window.End.UTC().Format(time.RFC3339))

	return call(ctx, c, "list_events", account, func(ctx context.Context, token string) ([]calendar.CalendarEventResponse, error) {
		var events []calendar.CalendarEventResponse
		next := path
		for next != "" {
			var page struct {
				Value    []graphEvent `json:"value"`
				NextLink string       `json:"@odata.nextLink"`
			}
			if err := c.do(ctx, token, request{method: http.MethodGet, path: next, tz: account.Timezone()}, &page); err != nil {
				return nil, err
			}
			for i := range page.Value {
				e, err := page.Value[i].toResponse()
				if err != nil {
					return nil, err
				}
				events = append(events, *e)
			}
			next = page.NextLink
		}
		return events, nil
	})
}

var _ calendar.Client = (*Client)(nil)
