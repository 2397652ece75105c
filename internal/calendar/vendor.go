package calendar

import (
	"fmt"
	"strings"
)

// Vendor identifies an external calendar provider.
type Vendor string

const (
	VendorGoogle  Vendor = "GOOGLE"
	VendorOutlook Vendor = "OUTLOOK"
)

// Vendors lists supported vendors in lookup preference order.
var Vendors = []Vendor{VendorGoogle, VendorOutlook}

// ParseVendor accepts the canonical tag or a lower-case alias.
func ParseVendor(s string) (Vendor, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GOOGLE":
		return VendorGoogle, nil
	case "OUTLOOK", "MICROSOFT":
		return VendorOutlook, nil
	default:
		return "", &ConfigurationError{Reason: fmt.Sprintf("unsupported vendor %q", s), Err: ErrUnsupportedVendor}
	}
}

// Lower returns the lower-case tag used in URLs and metric labels.
func (v Vendor) Lower() string {
	return strings.ToLower(string(v))
}
