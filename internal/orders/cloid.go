package orders

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Cloids are 128-bit client order ids in 0x-prefixed hex, the format
// the exchange echoes back on fills and open-order queries. Attaching
// one to every order makes placement idempotent: a resubmitted cloid
// can be matched against resting orders instead of being placed twice.

var cloidPattern = regexp.MustCompile(`^0x[0-9a-f]{32}$`)

// NewCloid generates a random client order id.
func NewCloid() string {
	id := uuid.New()
	return "0x" + strings.ReplaceAll(id.String(), "-", "")
}

// ValidateCloid checks that s is a well-formed client order id.
func ValidateCloid(s string) error {
	if !cloidPattern.MatchString(s) {
		return fmt.Errorf("invalid cloid %q: want 0x followed by 32 hex chars", s)
	}
	return nil
}
