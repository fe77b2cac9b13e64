package session

import (
	"errors"

	"github.com/fedepagnotta/lottery-server/internal/metrics"
	"github.com/fedepagnotta/lottery-server/internal/wire"
)

// mapWireErrToMetric maps a wire sentinel to a bounded-cardinality
// Prometheus label, mirroring the teacher's mapErrToMetric dispatcher.
func mapWireErrToMetric(err error) string {
	switch {
	case errors.Is(err, wire.ErrTransport):
		return metrics.ErrConnRead
	case errors.Is(err, wire.ErrInvalidLength),
		errors.Is(err, wire.ErrLengthMismatch),
		errors.Is(err, wire.ErrInvalidBody),
		errors.Is(err, wire.ErrInvalidOpcode):
		return metrics.ErrFraming
	default:
		return "other"
	}
}
