package lifecycle

import (
	"errors"

	"github.com/geodex-labs/geodex/pkg/models"
)

// ErrInvalidTransition means a status move the machine does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// CanTransition reports whether an index may move between the two statuses.
// Running is the only way into a build; Available and Error both allow
// re-entry, so a finished index can be rebuilt and a failed one retried.
// NotAvailable is never a transition target: only the administrative reset
// writes it, and reset bypasses the machine on purpose.
func CanTransition(from, to models.Status) bool {
	switch from.Kind {
	case models.StatusKindNotAvailable, models.StatusKindAvailable, models.StatusKindError:
		return to.Kind == models.StatusKindRunning
	case models.StatusKindRunning:
		return to.Kind == models.StatusKindAvailable || to.Kind == models.StatusKindError
	}
	return false
}
