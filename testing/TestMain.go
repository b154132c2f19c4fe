// Package testing switches the process into test mode when imported, so
// binaries built from test packages never start real servers.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// Defaults that let app.LoadConfig succeed without a .env file.
var testEnv = map[string]string{
	"SESSION_SECRET": "test-session-secret-0123456789abcdef",
	"CSRF_SECRET":    "test-csrf-secret-0123456789abcdef",
}

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		for key, value := range testEnv {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
