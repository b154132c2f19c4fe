package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// TestModeEnv is set by the testing package; binaries started under it
// return before dialing Postgres or Redis.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether TestModeEnv holds a true value. The result is
// cached until RefreshTestMode.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads TestModeEnv and returns the new value.
func RefreshTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	testMode.Store(&on)
	return on
}
