package shell

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Execute(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	dir := t.TempDir()
	continueOnError := false
	testCases := []struct {
		description  string
		input        *Input
		expectStatus int
		expectOutput string
		expectRuns   int
	}{
		{
			description:  "single command",
			input:        &Input{Commands: []string{"echo hello"}},
			expectOutput: "hello",
			expectRuns:   1,
		},
		{
			description:  "abort on first failure",
			input:        &Input{Commands: []string{"false", "echo never"}},
			expectStatus: 1,
			expectRuns:   1,
		},
		{
			description:  "continue on failure",
			input:        &Input{Commands: []string{"false", "echo after"}, AbortOnError: &continueOnError},
			expectOutput: "after",
			expectRuns:   2,
		},
		{
			description:  "workdir",
			input:        &Input{Workdir: dir, Commands: []string{"touch marker && ls"}},
			expectOutput: "marker",
			expectRuns:   1,
		},
	}

	srv := New()
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			output := &Output{}
			require.NoError(t, srv.Execute(context.Background(), testCase.input, output))
			assert.Equal(t, testCase.expectStatus, output.Status)
			assert.Len(t, output.Commands, testCase.expectRuns)
			if testCase.expectOutput != "" {
				assert.Contains(t, output.Stdout, testCase.expectOutput)
			}
			assert.False(t, output.TimedOut)
		})
	}
}

func TestQuote(t *testing.T) {
	testCases := []struct {
		value  string
		expect string
	}{
		{value: "plain", expect: "'plain'"},
		{value: "with space", expect: "'with space'"},
		{value: "it's", expect: `'it'"'"'s'`},
		{value: "", expect: "''"},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expect, Quote(testCase.value))
	}
}
