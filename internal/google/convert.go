package google

import (
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/util"
)

func toGoogleEvent(e *calendar.CalendarEvent) *gcal.Event {
	ge := &gcal.Event{
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Start: &gcal.EventDateTime{
			DateTime: e.Start.Format(time.RFC3339),
			TimeZone: e.TimeZone,
		},
		End: &gcal.EventDateTime{
			DateTime: e.End.Format(time.RFC3339),
			TimeZone: e.TimeZone,
		},
	}
	for _, email := range e.Attendees {
		ge.Attendees = append(ge.Attendees, &gcal.EventAttendee{Email: email})
	}
	return ge
}

func fromGoogleEvent(e *gcal.Event) *calendar.CalendarEventResponse {
	out := &calendar.CalendarEventResponse{
		CalendarEvent: calendar.CalendarEvent{
			Summary:     e.Summary,
			Description: e.Description,
			Location:    e.Location,
		},
		ID:      e.Id,
		Status:  e.Status,
		WebLink: e.HtmlLink,
	}

	if e.Start != nil {
		out.TimeZone = e.Start.TimeZone
		out.Start = parseEventTime(e.Start)
	}
	if e.End != nil {
		if out.TimeZone == "" {
			out.TimeZone = e.End.TimeZone
		}
		out.End = parseEventTime(e.End)
	}

	for _, a := range e.Attendees {
		if a.Email != "" && !a.Organizer {
			out.Attendees = append(out.Attendees, a.Email)
		}
	}
	if e.Organizer != nil {
		out.Organizer = e.Organizer.Email
	}

	if e.HangoutLink != "" {
		out.OnlineMeeting = true
		out.MeetingURL = e.HangoutLink
	} else if e.ConferenceData != nil {
		for _, ep := range e.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				out.OnlineMeeting = true
				out.MeetingURL = ep.Uri
				break
			}
		}
	}

	if e.Created != "" {
		out.Created, _ = time.Parse(time.RFC3339, e.Created)
	}
	if e.Updated != "" {
		out.Updated, _ = time.Parse(time.RFC3339, e.Updated)
	}
	return out
}

// parseEventTime keeps the offset Google sent and, when the event names a
// loadable zone, attaches that zone to the same instant.
func parseEventTime(t *gcal.EventDateTime) time.Time {
	var loc *time.Location
	if t.TimeZone != "" {
		loc, _ = util.LoadLocation(t.TimeZone)
	}

	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}
		}
		if loc != nil {
			return parsed.In(loc)
		}
		return parsed
	}

	if t.Date != "" {
		if loc == nil {
			loc = time.UTC
		}
		day, err := time.ParseInLocation("2006-01-02", t.Date, loc)
		if err == nil {
			return day
		}
	}
	return time.Time{}
}
