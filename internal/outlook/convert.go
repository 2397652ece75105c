package outlook

import (
	"time"

	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/util"
)

type dateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type emailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type graphAttendee struct {
	EmailAddress emailAddress `json:"emailAddress"`
	Type         string       `json:"type,omitempty"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type graphRecipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type graphOnlineMeeting struct {
	JoinURL string `json:"joinUrl"`
}

type graphEvent struct {
	ID                    string              `json:"id,omitempty"`
	Subject               string              `json:"subject"`
	Body                  *itemBody           `json:"body,omitempty"`
	Start                 *dateTimeTimeZone   `json:"start,omitempty"`
	End                   *dateTimeTimeZone   `json:"end,omitempty"`
	Location              *graphLocation      `json:"location,omitempty"`
	Attendees             []graphAttendee     `json:"attendees,omitempty"`
	Organizer             *graphRecipient     `json:"organizer,omitempty"`
	IsOnlineMeeting       bool                `json:"isOnlineMeeting,omitempty"`
	OnlineMeetingProvider string              `json:"onlineMeetingProvider,omitempty"`
	OnlineMeeting         *graphOnlineMeeting `json:"onlineMeeting,omitempty"`
	IsCancelled           bool                `json:"isCancelled,omitempty"`
	WebLink               string              `json:"webLink,omitempty"`
	CreatedDateTime       string              `json:"createdDateTime,omitempty"`
	LastModifiedDateTime  string              `json:"lastModifiedDateTime,omitempty"`
}

// eventTimeZone picks the zone an event is written in: the event's own,
// then the account's.
func eventTimeZone(e *calendar.CalendarEvent, account *calendar.ProviderAccount) string {
	if e.TimeZone != "" {
		return e.TimeZone
	}
	return account.Timezone()
}

func toGraphEvent(e *calendar.CalendarEvent, tz string) *graphEvent {
	if tz == "" {
		tz = "UTC"
	}
	loc, err := util.LoadLocation(tz)
	if err != nil {
		loc, tz = time.UTC, "UTC"
	}

	ge := &graphEvent{
		Subject: e.Summary,
		Start:   &dateTimeTimeZone{DateTime: e.Start.In(loc).Format(graphTimeFormat), TimeZone: tz},
		End:     &dateTimeTimeZone{DateTime: e.End.In(loc).Format(graphTimeFormat), TimeZone: tz},
	}
	if e.Description != "" {
		ge.Body = &itemBody{ContentType: "text", Content: e.Description}
	}
	if e.Location != "" {
		ge.Location = &graphLocation{DisplayName: e.Location}
	}
	for _, email := range e.Attendees {
		ge.Attendees = append(ge.Attendees, graphAttendee{
			EmailAddress: emailAddress{Address: email},
			Type:         "required",
		})
	}
	if e.OnlineMeeting {
		ge.IsOnlineMeeting = true
		ge.OnlineMeetingProvider = "teamsForBusiness"
	}
	return ge
}

func (e *graphEvent) toResponse() (*calendar.CalendarEventResponse, error) {
	out := &calendar.CalendarEventResponse{
		CalendarEvent: calendar.CalendarEvent{
			Summary:       e.Subject,
			OnlineMeeting: e.IsOnlineMeeting,
		},
		ID:      e.ID,
		WebLink: e.WebLink,
		Status:  "confirmed",
	}
	if e.IsCancelled {
		out.Status = "cancelled"
	}
	if e.Body != nil {
		out.Description = e.Body.Content
	}
	if e.Location != nil {
		out.Location = e.Location.DisplayName
	}
	var err error
	if e.Start != nil {
		out.TimeZone = e.Start.TimeZone
		if out.Start, err = parseGraphTime(*e.Start); err != nil {
			return nil, err
		}
	}
	if e.End != nil {
		if out.End, err = parseGraphTime(*e.End); err != nil {
			return nil, err
		}
	}
	if e.Organizer != nil {
		out.Organizer = e.Organizer.EmailAddress.Address
	}
	for _, a := range e.Attendees {
		if a.EmailAddress.Address != "" {
			out.Attendees = append(out.Attendees, a.EmailAddress.Address)
		}
	}
	if e.OnlineMeeting != nil && e.OnlineMeeting.JoinURL != "" {
		out.OnlineMeeting = true
		out.MeetingURL = e.OnlineMeeting.JoinURL
	}
	out.Created = parseTimestamp(e.CreatedDateTime)
	out.Updated = parseTimestamp(e.LastModifiedDateTime)
	return out, nil
}

// parseGraphTime reads a wall-clock dateTime in its named zone. Graph sends
// seven fractional digits, which time.Parse accepts after the seconds field.
// Unknown zones and unparseable values are malformed responses.
func parseGraphTime(dt dateTimeTimeZone) (time.Time, error) {
	loc, err := graphZoneLocation(dt.TimeZone)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation(graphTimeFormat, dt.DateTime, loc)
	if err != nil {
		return time.Time{}, malformed("unparseable dateTime "+dt.DateTime, err)
	}
	return t, nil
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
