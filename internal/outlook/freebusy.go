package outlook

import (
	"context"
	"net/http"
	"time"

	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/util"
)

// availabilityViewInterval is the getSchedule resolution in minutes. Only
// scheduleItems are read, so it does not affect slot precision.
const availabilityViewInterval = 30

type scheduleRequest struct {
	Schedules                []string         `json:"schedules"`
	StartTime                dateTimeTimeZone `json:"startTime"`
	EndTime                  dateTimeTimeZone `json:"endTime"`
	AvailabilityViewInterval int              `json:"availabilityViewInterval"`
}

type scheduleResponse struct {
	Value []struct {
		ScheduleID    string `json:"scheduleId"`
		ScheduleItems []struct {
			Status string           `json:"status"`
			Start  dateTimeTimeZone `json:"start"`
			End    dateTimeTimeZone `json:"end"`
		} `json:"scheduleItems"`
		Error *struct {
			Message      string `json:"message"`
			ResponseCode string `json:"responseCode"`
		} `json:"error"`
	} `json:"value"`
}

// GetFreeBusy asks getSchedule for the account's mailbox, or the calendars
// named in the query, and keeps only items whose status is "busy".
// Tentative and out-of-office items do not block.
func (c *Client) GetFreeBusy(ctx context.Context, account *calendar.ProviderAccount, query calendar.FreeBusyQuery) (*calendar.FreeBusyResponse, error) {
	loc, tz, err := queryLocation(query.TimeZone)
	if err != nil {
		return nil, err
	}

	schedules := query.CalendarIDs
	if len(schedules) == 0 {
		schedules = []string{account.AccountEmail}
	}
	body := scheduleRequest{
		Schedules:                schedules,
		StartTime:                dateTimeTimeZone{DateTime: query.Start.In(loc).Format(graphTimeFormat), TimeZone: tz},
		EndTime:                  dateTimeTimeZone{DateTime: query.End.In(loc).Format(graphTimeFormat), TimeZone: tz},
		AvailabilityViewInterval: availabilityViewInterval,
	}

	return call(ctx, c, "free_busy", account, func(ctx context.Context, token string) (*calendar.FreeBusyResponse, error) {
		var out scheduleResponse
		err := c.do(ctx, token, request{method: http.MethodPost, path: "/me/calendar/getSchedule", body: body, tz: tz}, &out)
		if err != nil {
			return nil, err
		}

		var busy []calendar.TimeSlot
		for _, s := range out.Value {
			if s.Error != nil {
				return nil, &calendar.APIError{
					Vendor:  calendar.VendorOutlook,
					Code:    s.Error.ResponseCode,
					Message: s.Error.Message,
				}
			}
			for _, item := range s.ScheduleItems {
				if item.Status != "busy" {
					continue
				}
				// Items carry the zone from the Prefer header, or the
				// request's zone when Graph omits it.
				start, end := item.Start, item.End
				if start.TimeZone == "" {
					start.TimeZone = tz
				}
				if end.TimeZone == "" {
					end.TimeZone = tz
				}
				slotStart, err := parseGraphTime(start)
				if err != nil {
					return nil, err
				}
				slotEnd, err := parseGraphTime(end)
				if err != nil {
					return nil, err
				}
				slot := calendar.TimeSlot{Start: slotStart, End: slotEnd}
				busy = append(busy, slot.In(loc))
			}
		}

		busy = calendar.MergeSlots(busy)
		return &calendar.FreeBusyResponse{
			Start: query.Start.In(loc),
			End:   query.End.In(loc),
			Busy:  busy,
			Free:  calendar.ComplementSlots(query.Window().In(loc), busy),
		}, nil
	})
}

// queryLocation resolves the query zone; empty means UTC.
func queryLocation(name string) (*time.Location, string, error) {
	if name == "" {
		return time.UTC, "UTC", nil
	}
	loc, err := util.LoadLocation(name)
	if err != nil {
		return nil, "", &calendar.ConfigurationError{Reason: err.Error(), Err: err}
	}
	return loc, name, nil
}
