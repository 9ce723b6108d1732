package graph

import (
	"errors"
	"fmt"
)

// ErrDataUnavailable is returned with an empty graph when the source table
// cannot be read. Simulation over the empty graph is a no-op.
var ErrDataUnavailable = errors.New("dependency data unavailable")

// MalformedValueError describes a single cell that failed numeric parsing.
// Loaders skip the cell and keep going.
type MalformedValueError struct {
	Supplier string
	Client   string
	Raw      string
	Err      error
}

func (e *MalformedValueError) Error() string {
	return fmt.Sprintf("malformed edge value %q for %s -> %s: %v", e.Raw, e.Supplier, e.Client, e.Err)
}

func (e *MalformedValueError) Unwrap() error { return e.Err }
