package stats

import (
	"errors"
	"fmt"

	"github.com/okian/guildboard/internal/domain/model"
)

// Sentinel kinds for stats provider errors. NotFound is permanent; the
// others are worth retrying except Unauthorized, which needs an operator.
var (
	ErrNotFound     = fmt.Errorf("player stats not found: %w", model.ErrNotFound)
	ErrRateLimited  = fmt.Errorf("stats api rate limited: %w", model.ErrUnavailable)
	ErrUnauthorized = fmt.Errorf("stats api rejected credentials: %w", model.ErrUnavailable)
	ErrTransient    = fmt.Errorf("stats api unavailable: %w", model.ErrUnavailable)
	ErrUnknownKind  = fmt.Errorf("kind not served by this provider: %w", model.ErrValidation)
)

// Class returns a short label for err, used in metrics and logs.
func Class(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrUnknownKind):
		return "unknown_kind"
	default:
		return "transient"
	}
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
