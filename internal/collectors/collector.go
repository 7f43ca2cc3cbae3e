// Package collectors implements the Collector contract (spec.md §4.2):
// connect, health_check, collect(tokens, since, limit) as a stream of
// validated posts, disconnect. Each adapter owns its own backoff and
// applies the shared cashtag/address extraction rules.
package collectors

import (
	"context"
	"time"

	"github.com/toxzak-svg/sentibridge/internal/domain"
)

// Collector is the common contract every social-media adapter implements.
type Collector interface {
	SourceName() domain.Source
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) bool
	// Collect streams validated posts mentioning any of tokens, bounded by
	// limit, created at or after since. The returned channel is closed
	// when the collector has no more posts for this call or ctx is
	// cancelled.
	Collect(ctx context.Context, tokens []string, since time.Time, limit int) (<-chan domain.SocialPost, <-chan error)
}

// Error is the typed variant for a transient collector failure (spec.md
// §7): network error or rate limit. Each adapter backs off and retries a
// failing request up to 3 times before sending an Error; the orchestrator
// logs it and continues the cycle with what the source has already sent.
type Error struct {
	Source domain.Source
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return "collector error: " + string(e.Source) + ": " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
