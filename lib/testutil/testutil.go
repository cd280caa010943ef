// Package testutil holds the shared per-test environment setup.
package testutil

import (
	"fmt"
	"testing"

	"bussola-backend/lib/telemetry"
)

// Setup initializes logging and telemetry for one test package. The
// returned cleanup flushes exporters.
func Setup(t testing.TB, name string) func() {
	return telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", name))
}
