package outlook

import (
	"fmt"
	"time"

	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/util"
)

// windowsZones maps the Windows zone names Graph emits when it ignores the
// outlook.timezone preference to IANA names. It covers the zones of the
// Americas and Europe plus UTC; anything else is rejected.
var windowsZones = map[string]string{
	"UTC":                            "UTC",
	"Coordinated Universal Time":     "UTC",
	"SA Pacific Standard Time":       "America/Bogota",
	"SA Western Standard Time":       "America/La_Paz",
	"SA Eastern Standard Time":       "America/Cayenne",
	"Venezuela Standard Time":        "America/Caracas",
	"Pacific SA Standard Time":       "America/Santiago",
	"Argentina Standard Time":        "America/Argentina/Buenos_Aires",
	"E. South America Standard Time": "America/Sao_Paulo",
	"Paraguay Standard Time":         "America/Asuncion",
	"Montevideo Standard Time":       "America/Montevideo",
	"Central America Standard Time":  "America/Guatemala",
	"Central Standard Time (Mexico)": "America/Mexico_City",
	"Eastern Standard Time":          "America/New_York",
	"Central Standard Time":          "America/Chicago",
	"Mountain Standard Time":         "America/Denver",
	"US Mountain Standard Time":      "America/Phoenix",
	"Pacific Standard Time":          "America/Los_Angeles",
	"Alaskan Standard Time":          "America/Anchorage",
	"Hawaiian Standard Time":         "Pacific/Honolulu",
	"Atlantic Standard Time":         "America/Halifax",
	"GMT Standard Time":              "Europe/London",
	"W. Europe Standard Time":        "Europe/Berlin",
	"Romance Standard Time":          "Europe/Paris",
	"Central Europe Standard Time":   "Europe/Budapest",
	"Central European Standard Time": "Europe/Warsaw",
	"GTB Standard Time":              "Europe/Bucharest",
	"E. Europe Standard Time":        "Europe/Chisinau",
	"FLE Standard Time":              "Europe/Kiev",
	"Russian Standard Time":          "Europe/Moscow",
}

// graphZoneLocation resolves a zone name from a Graph dateTimeTimeZone: an IANA
// name, or one of the mapped Windows names. Empty means UTC.
func graphZoneLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	if iana, ok := windowsZones[name]; ok {
		name = iana
	}
	loc, err := util.LoadLocation(name)
	if err != nil {
		return nil, malformed(fmt.Sprintf("unknown time zone %q", name), err)
	}
	return loc, nil
}

func malformed(message string, err error) *calendar.APIError {
	return &calendar.APIError{
		Vendor:  calendar.VendorOutlook,
		Code:    "malformed_response",
		Message: message,
		Err:     err,
	}
}
