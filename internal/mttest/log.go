// Package mttest contains helpers shared by tests across the module.
package mttest

import (
	"log/slog"
	"testing"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a logger that writes through t.Log,
// so output is attached to the test that produced it.
func NewLogger(t testing.TB) *slog.Logger {
	return slogt.New(t)
}
