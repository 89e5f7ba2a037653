package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenarios whose steps each run a single workflow, so their traces are
// fully ordered.
var goldenScenarios = []string{
	"login_success",
	"login_rejected",
	"logout",
	"temporary_permissions",
}

func TestGoldenTraces(t *testing.T) {
	for _, name := range goldenScenarios {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestFormatTrace(t *testing.T) {
	got := FormatTrace("demo", []TraceEvent{
		{Seq: 2, Type: "persist/REHYDRATE"},
		{Seq: 3, Type: "auth/LOGOUT_SUCCESS", Task: "task-7"},
	})
	assert.Equal(t, "# demo\n2 persist/REHYDRATE\n3 auth/LOGOUT_SUCCESS task-7\n", string(got))
}

func TestFormatTrace_Empty(t *testing.T) {
	assert.Equal(t, "# empty\n", string(FormatTrace("empty", nil)))
}
