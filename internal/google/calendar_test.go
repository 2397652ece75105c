package google

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtorcivia/calbook/internal/calendar"
)

type stubTokens struct {
	refreshes atomic.Int32
}

func (s *stubTokens) EnsureValid(_ context.Context, a *calendar.ProviderAccount) (*calendar.ProviderAccount, error) {
	return a, nil
}

func (s *stubTokens) Refresh(_ context.Context, a *calendar.ProviderAccount) (*calendar.ProviderAccount, error) {
	n := s.refreshes.Add(1)
	c := a.Clone()
	c.AccessToken = fmt.Sprintf("fresh-%d", n)
	return c, nil
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *stubTokens) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := &stubTokens{}
	return New(Config{
		Reauth:           calendar.NewReauth(tokens),
		Timeout:          2 * time.Second,
		Endpoint:         srv.URL + "/",
		UserinfoEndpoint: srv.URL + "/",
	}), tokens
}

func testAccount(token string) *calendar.ProviderAccount {
	return &calendar.ProviderAccount{
		ID:            "acc-1",
		TenantID:      "tenant-1",
		Vendor:        calendar.VendorGoogle,
		AccessToken:   token,
		Configuration: map[string]any{"calendarId": "primary", "timezone": "America/Guayaquil"},
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func googleError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
			"errors":  []map[string]any{{"reason": reason, "message": message}},
		},
	})
}

const createdEvent = `{
  "id": "evt-1",
  "status": "confirmed",
  "htmlLink": "https://calendar.google.com/event?eid=evt-1",
  "hangoutLink": "https://meet.google.com/abc-defg-hij",
  "summary": "Consulta",
  "description": "Primera visita",
  "start": {"dateTime": "2026-03-02T09:00:00-05:00", "timeZone": "America/Guayaquil"},
  "end": {"dateTime": "2026-03-02T09:30:00-05:00", "timeZone": "America/Guayaquil"},
  "attendees": [{"email": "owner@example.com", "organizer": true}, {"email": "client@example.com"}],
  "organizer": {"email": "owner@example.com"},
  "created": "2026-03-01T10:00:00Z",
  "updated": "2026-03-01T10:00:00Z"
}`

func TestCreateEventMapsRequestAndResponse(t *testing.T) {
	var captured map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer token-0", r.Header.Get("Authorization"))
		assert.Equal(t, "1", r.URL.Query().Get("conferenceDataVersion"))
		assert.Equal(t, "all", r.URL.Query().Get("sendUpdates"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, createdEvent)
	})
	client, _ := newTestClient(t, mux)

	loc, _ := time.LoadLocation("America/Guayaquil")
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)
	resp, err := client.CreateEvent(context.Background(), testAccount("token-0"), &calendar.CalendarEvent{
		Summary:       "Consulta",
		Description:   "Primera visita",
		Start:         start,
		End:           start.Add(30 * time.Minute),
		TimeZone:      "America/Guayaquil",
		Attendees:     []string{"client@example.com"},
		OnlineMeeting: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Consulta", captured["summary"])
	startBody := captured["start"].(map[string]any)
	assert.Equal(t, "2026-03-02T09:00:00-05:00", startBody["dateTime"])
	assert.Equal(t, "America/Guayaquil", startBody["timeZone"])
	assert.Contains(t, captured, "conferenceData")

	assert.Equal(t, "evt-1", resp.ID)
	assert.Equal(t, "https://calendar.google.com/event?eid=evt-1", resp.WebLink)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", resp.MeetingURL)
	assert.True(t, resp.OnlineMeeting)
	assert.Equal(t, "America/Guayaquil", resp.TimeZone)
	assert.Equal(t, "America/Guayaquil", resp.Start.Location().String())
	assert.True(t, resp.Start.Equal(start))
	assert.Equal(t, []string{"client@example.com"}, resp.Attendees)
	assert.Equal(t, "owner@example.com", resp.Organizer)
	assert.Equal(t, "confirmed", resp.Status)
	assert.False(t, resp.Created.IsZero())
}

func TestUnauthorizedTriggersRefreshAndRetry(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events/evt-1", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		if r.Header.Get("Authorization") == "Bearer stale" {
			googleError(w, http.StatusUnauthorized, "authError", "Invalid Credentials")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, createdEvent)
	})
	client, tokens := newTestClient(t, mux)

	resp, err := client.GetEvent(context.Background(), testAccount("stale"), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", resp.ID)
	assert.EqualValues(t, 2, attempts.Load())
	assert.EqualValues(t, 1, tokens.refreshes.Load())
}

func TestPersistentUnauthorizedSurfacesAuthError(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events/evt-1", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		googleError(w, http.StatusUnauthorized, "authError", "Invalid Credentials")
	})
	client, tokens := newTestClient(t, mux)

	_, err := client.GetEvent(context.Background(), testAccount("stale"), "evt-1")
	require.True(t, calendar.IsAuthError(err))
	assert.EqualValues(t, 3, attempts.Load())
	assert.EqualValues(t, 2, tokens.refreshes.Load())
}

func TestNotFoundIsAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events/missing", func(w http.ResponseWriter, r *http.Request) {
		googleError(w, http.StatusNotFound, "notFound", "Not Found")
	})
	client, tokens := newTestClient(t, mux)

	_, err := client.GetEvent(context.Background(), testAccount("t"), "missing")
	var apiErr *calendar.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "notFound", apiErr.Code)
	assert.Equal(t, "Not Found", apiErr.Message)
	assert.True(t, calendar.IsNotFound(err))
	assert.Zero(t, tokens.refreshes.Load())
}

func TestTimeoutIsTemporaryAndNotRetried(t *testing.T) {
	var attempts atomic.Int32
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events/slow", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer close(release)

	tokens := &stubTokens{}
	client := New(Config{Reauth: calendar.NewReauth(tokens), Timeout: 100 * time.Millisecond, Endpoint: srv.URL + "/"})

	_, err := client.GetEvent(context.Background(), testAccount("t"), "slow")
	require.Error(t, err)
	assert.True(t, calendar.IsTemporary(err))
	assert.False(t, calendar.IsAuthError(err))
	assert.EqualValues(t, 1, attempts.Load())
	assert.Zero(t, tokens.refreshes.Load())
}

func TestDeleteEventTreatsGoneAsDeleted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events/evt-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		googleError(w, http.StatusGone, "deleted", "Resource has been deleted")
	})
	client, _ := newTestClient(t, mux)

	assert.NoError(t, client.DeleteEvent(context.Background(), testAccount("t"), "evt-1"))
}

func TestUpdateEventPatches(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events/evt-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, createdEvent)
	})
	client, _ := newTestClient(t, mux)

	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	resp, err := client.UpdateEvent(context.Background(), testAccount("t"), "evt-1", &calendar.CalendarEvent{
		Summary: "Consulta", Start: start, End: start.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", resp.ID)
}

func TestListEventsFollowsPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		assert.Equal(t, "startTime", r.URL.Query().Get("orderBy"))
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"items":         []map[string]any{{"id": "a", "start": map[string]any{"date": "2026-03-02"}, "end": map[string]any{"date": "2026-03-03"}}},
				"nextPageToken": "p2",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{{"id": "b", "start": map[string]any{"dateTime": "2026-03-02T10:00:00Z"}, "end": map[string]any{"dateTime": "2026-03-02T11:00:00Z"}}},
		})
	})
	client, _ := newTestClient(t, mux)

	window := calendar.TimeWindow{
		Start: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
	}
	events, err := client.ListEvents(context.Background(), testAccount("t"), window)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].ID)
	assert.True(t, events[0].Start.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "b", events[1].ID)
}

func TestGetFreeBusyConvertsAndComplements(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/freeBusy", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "America/Guayaquil", req["timeZone"])
		writeJSON(w, http.StatusOK, map[string]any{
			"calendars": map[string]any{
				"primary": map[string]any{
					"busy": []map[string]any{
						{"start": "2026-03-02T15:00:00Z", "end": "2026-03-02T15:30:00Z"},
						{"start": "2026-03-02T13:00:00Z", "end": "2026-03-02T13:30:00Z"},
					},
				},
			},
		})
	})
	client, _ := newTestClient(t, mux)

	loc, _ := time.LoadLocation("America/Guayaquil")
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	resp, err := client.GetFreeBusy(context.Background(), testAccount("t"), calendar.FreeBusyQuery{
		Start: day, End: day.AddDate(0, 0, 1), TimeZone: "America/Guayaquil",
	})
	require.NoError(t, err)
	require.Len(t, resp.Busy, 2)
	assert.Equal(t, 8, resp.Busy[0].Start.Hour())
	assert.Equal(t, 10, resp.Busy[1].Start.Hour())
	assert.Equal(t, "America/Guayaquil", resp.Busy[0].Start.Location().String())

	require.Len(t, resp.Free, 3)
	assert.True(t, resp.Free[0].Start.Equal(day))
	assert.True(t, resp.Free[0].End.Equal(time.Date(2026, 3, 2, 8, 0, 0, 0, loc)))
	assert.True(t, resp.Free[2].End.Equal(day.AddDate(0, 0, 1)))
}

func TestGetFreeBusyCalendarErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/freeBusy", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"calendars": map[string]any{
				"primary": map[string]any{"errors": []map[string]any{{"domain": "global", "reason": "notFound"}}},
			},
		})
	})
	client, _ := newTestClient(t, mux)

	_, err := client.GetFreeBusy(context.Background(), testAccount("t"), calendar.FreeBusyQuery{
		Start: time.Now(), End: time.Now().Add(time.Hour),
	})
	var apiErr *calendar.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "notFound", apiErr.Code)
}

func TestFetchProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"email": "owner@example.com", "verified_email": true})
	})
	mux.HandleFunc("/users/me/settings/timezone", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "timezone", "value": "America/Guayaquil"})
	})
	client, _ := newTestClient(t, mux)

	profile, err := client.FetchProfile(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", profile.Email)
	assert.Equal(t, "America/Guayaquil", profile.TimeZone)
}

func TestScopes(t *testing.T) {
	assert.Contains(t, Scopes(), "https://www.googleapis.com/auth/calendar")
}
