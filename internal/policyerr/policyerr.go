// Package policyerr defines the invariant-violation error every policy
// engine raises when its own internal bookkeeping (byte accounting, index
// consistency) disagrees with itself — the Go analogue of the original
// simulator's assert() calls, but recoverable as a typed error instead of
// aborting the process from inside library code.
package policyerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Invariant reports a broken policy invariant together with the request
// being processed when it was detected, so the caller can log a diagnostic
// identifying both the invariant and the last request.
type Invariant struct {
	Policy    string
	Invariant string
	RequestAt float64
	Key       uint64
}

func (e *Invariant) Error() string {
	return fmt.Sprintf("%s: invariant violated: %s (last request key=%d time=%v)",
		e.Policy, e.Invariant, e.Key, e.RequestAt)
}

// Wrap annotates an Invariant with a stack trace via pkg/errors, the
// teacher's own error-wrapping dependency.
func Wrap(policy, invariant string, requestAt float64, key uint64) error {
	return errors.WithStack(&Invariant{
		Policy:    policy,
		Invariant: invariant,
		RequestAt: requestAt,
		Key:       key,
	})
}
