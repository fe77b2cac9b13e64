package server

import (
	"errors"

	"github.com/fedepagnotta/lottery-server/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen  = errors.New("listen")
	ErrAccept  = errors.New("accept")
	ErrContext = errors.New("context_cancelled")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrAccept), errors.Is(err, ErrListen):
		return metrics.ErrAccept
	case errors.Is(err, ErrContext):
		return "context"
	default:
		return "other"
	}
}
