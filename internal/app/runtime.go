package app

import (
	"os"
	"strconv"
)

// TestModeEnv disables network side effects in the binaries when set to a
// true value. Test binaries set it through the testing package.
const TestModeEnv = "VITRINE_TEST_MODE"

// InTestMode reports whether TestModeEnv is enabled.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}
