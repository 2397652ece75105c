// Package calendar holds the vendor-neutral calendar model shared by the
// Google and Outlook provider clients: provider accounts, events, free/busy
// windows and time slots, the error taxonomy, the provider router, and the
// bounded re-authorization retry loop every provider operation runs inside.
package calendar
