package calendar

import (
	"context"
)

// DefaultMaxReauthRetries bounds forced refreshes per operation, giving at
// most three attempts in total.
const DefaultMaxReauthRetries = 2

// Reauth binds a TokenManager to a retry budget.
type Reauth struct {
	Tokens     TokenManager
	MaxRetries int
	Observer   ReauthObserver
}

// NewReauth returns a Reauth with the default budget.
func NewReauth(tokens TokenManager) *Reauth {
	return &Reauth{Tokens: tokens, MaxRetries: DefaultMaxReauthRetries}
}

// WithReauth validates the account's token, runs op, and on an
// AuthenticationError forces a refresh and runs op again, up to
// r.MaxRetries times. A failed refresh ends the loop with that error.
func WithReauth[T any](ctx context.Context, r *Reauth, account *ProviderAccount, op func(ctx context.Context, account *ProviderAccount) (T, error)) (T, error) {
	var zero T

	current, err := r.Tokens.EnsureValid(ctx, account)
	if err != nil {
		return zero, err
	}

	for retries := 0; ; retries++ {
		result, err := op(ctx, current)
		if err == nil {
			return result, nil
		}
		if !IsAuthError(err) || retries >= r.MaxRetries {
			return zero, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ClassifyTransport(current.Vendor, ctxErr)
		}

		current, err = r.Tokens.Refresh(ctx, current)
		if err != nil {
			return zero, err
		}
		if r.Observer != nil {
			r.Observer.ReauthRetry(current.Vendor)
		}
	}
}

// Exec is WithReauth for operations with no result.
func Exec(ctx context.Context, r *Reauth, account *ProviderAccount, op func(ctx context.Context, account *ProviderAccount) error) error {
	_, err := WithReauth(ctx, r, account, func(ctx context.Context, a *ProviderAccount) (struct{}, error) {
		return struct{}{}, op(ctx, a)
	})
	return err
}
