package calendar

import (
	"fmt"
	"sync"
)

// Router maps a vendor tag to its Client.
type Router struct {
	mu      sync.RWMutex
	clients map[Vendor]Client
}

// NewRouter registers clients by their reported vendor.
func NewRouter(clients ...Client) *Router {
	r := &Router{clients: make(map[Vendor]Client, len(clients))}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the client for c.Vendor().
func (r *Router) Register(c Client) {
	r.mu.Lock()
	r.clients[c.Vendor()] = c
	r.mu.Unlock()
}

// Client returns the client for vendor or a ConfigurationError.
func (r *Router) Client(vendor Vendor) (Client, error) {
	r.mu.RLock()
	c, ok := r.clients[vendor]
	r.mu.RUnlock()
	if !ok {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("no client registered for vendor %q", vendor),
			Err:    ErrUnsupportedVendor,
		}
	}
	return c, nil
}

// For returns the client serving account.
func (r *Router) For(account *ProviderAccount) (Client, error) {
	return r.Client(account.Vendor)
}
