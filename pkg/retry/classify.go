package retry

import (
	"context"
	"errors"

	"github.com/aretw0/arbor/pkg/domain"
)

// Class is the failure category driving the retry decision.
type Class string

const (
	// ClassTransient covers network timeouts, rate-limit rejections, and
	// upstream 5xx responses. Retried with backoff.
	ClassTransient Class = "transient"
	// ClassPermanent covers malformed input and schema violations. Never
	// retried.
	ClassPermanent Class = "permanent"
	// ClassUnknown covers uncategorized errors. Retried once, then escalated.
	ClassUnknown Class = "unknown"
)

// Classify maps an error to its failure class. Node timeouts surface as
// context.DeadlineExceeded and are transient by definition.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, domain.ErrValidation):
		return ClassPermanent
	case errors.Is(err, domain.ErrTransientProvider),
		errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	default:
		return ClassUnknown
	}
}
