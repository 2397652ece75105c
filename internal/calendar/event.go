package calendar

import (
	"sort"
	"time"
)

// TimeSlot is a half-open [Start, End) interval.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether s and o share any instant.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return s.Start.Before(o.End) && s.End.After(o.Start)
}

// In returns the slot expressed in loc.
func (s TimeSlot) In(loc *time.Location) TimeSlot {
	return TimeSlot{Start: s.Start.In(loc), End: s.End.In(loc)}
}

// Duration returns End - Start.
func (s TimeSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// SortSlots orders slots by start, then end.
func SortSlots(slots []TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].End.Before(slots[j].End)
	})
}

// TimeWindow bounds list and free/busy queries.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// CalendarEvent is a vendor-neutral booking request.
type CalendarEvent struct {
	Summary       string    `json:"summary"`
	Description   string    `json:"description,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	TimeZone      string    `json:"timeZone,omitempty"`
	Location      string    `json:"location,omitempty"`
	Attendees     []string  `json:"attendees,omitempty"`
	OnlineMeeting bool      `json:"onlineMeeting,omitempty"`
}

// CalendarEventResponse is the provider's stored copy of an event.
type CalendarEventResponse struct {
	CalendarEvent
	ID         string    `json:"id"`
	Organizer  string    `json:"organizer,omitempty"`
	Status     string    `json:"status,omitempty"`
	WebLink    string    `json:"webLink,omitempty"`
	MeetingURL string    `json:"meetingUrl,omitempty"`
	Created    time.Time `json:"created,omitempty"`
	Updated    time.Time `json:"updated,omitempty"`
}

// FreeBusyQuery asks for busy intervals inside a window. TimeZone selects
// the location returned slots are expressed in; empty means UTC.
type FreeBusyQuery struct {
	Start       time.Time
	End         time.Time
	TimeZone    string
	CalendarIDs []string
}

// Window returns the query bounds as a TimeSlot.
func (q FreeBusyQuery) Window() TimeSlot {
	return TimeSlot{Start: q.Start, End: q.End}
}

// FreeBusyResponse carries provider busy intervals and the computed free
// complement within the same window.
type FreeBusyResponse struct {
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
	Busy  []TimeSlot `json:"busy"`
	Free  []TimeSlot `json:"free"`
}

// AccountProfile is the identity a vendor reports for a connected account.
type AccountProfile struct {
	Email    string
	TimeZone string
}
