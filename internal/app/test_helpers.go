package app

import (
	"os"
	"testing"

	"github.com/vk/gridpipe/internal/hcl"
	"github.com/vk/gridpipe/internal/registry"
	"github.com/vk/gridpipe/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing, loading the
// pipeline with the HCL loader rooted at appConfig.Root.
func SetupAppTest(t *testing.T, appConfig *Config, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	appConfig.LogLevel = "debug"
	testApp := NewApp(logBuffer, appConfig, hcl.NewLoader(appConfig.Root), modules...)

	t.Cleanup(func() {
		if os.Getenv("GRIDPIPE_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
