package util

import (
	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ulid.Make draws from a process-wide
// monotonic source and is safe for concurrent use.
func New() string {
	return ulid.Make().String()
}
