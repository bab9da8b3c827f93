package agents

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/exegol/model"
)

const roster = "# Agents\n\nThe roster below drives the governance pipeline.\n\n" +
	"```yaml\n" +
	"agents:\n" +
	"  - name: Maul\n" +
	"    role: builder\n" +
	"    permissions: [\"git:commit:requires-approval\", \"tests:run:requires-approval\"]\n" +
	"  - name: Vader\n" +
	"    role: lead\n" +
	"    permissions:\n" +
	"      - git:commit\n" +
	"      - instruction:queue\n" +
	"```\n"

func TestParse(t *testing.T) {
	testCases := []struct {
		description string
		markdown    string
		expect      model.Agents
		expectErr   string
	}{
		{
			description: "valid roster",
			markdown:    roster,
			expect: model.Agents{
				{Name: "Maul", Role: "builder", Permissions: []string{"git:commit:requires-approval", "tests:run:requires-approval"}},
				{Name: "Vader", Role: "lead", Permissions: []string{"git:commit", "instruction:queue"}},
			},
		},
		{
			description: "yml fence and missing permissions",
			markdown:    "```yml\nagents:\n  - name: Sidious\n    role: observer\n```",
			expect:      model.Agents{{Name: "Sidious", Role: "observer"}},
		},
		{description: "no block", markdown: "# Agents\n\nnothing here", expectErr: "no yaml block found"},
		{description: "malformed yaml", markdown: "```yaml\nagents: [name: \n```", expectErr: "malformed yaml block"},
		{description: "no agents key", markdown: "```yaml\nteam: []\n```", expectErr: "no agents list"},
		{description: "empty list", markdown: "```yaml\nagents: []\n```", expectErr: "agents list is empty"},
		{description: "missing name", markdown: "```yaml\nagents:\n  - role: lead\n```", expectErr: "agent #0 has no name"},
		{description: "duplicate name", markdown: "```yaml\nagents:\n  - name: Maul\n  - name: Maul\n```", expectErr: `duplicate agent "Maul"`},
		{description: "permissions not a list", markdown: "```yaml\nagents:\n  - name: Maul\n    permissions: {a: b}\n```", expectErr: "agent #0 is malformed"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			actual, err := Parse("agents.md", []byte(testCase.markdown))
			if testCase.expectErr != "" {
				require.Error(t, err)
				assert.True(t, model.IsConfiguration(err))
				assert.Contains(t, err.Error(), testCase.expectErr)
				assert.Contains(t, err.Error(), "agents.md")
				return
			}
			require.NoError(t, err)
			assert.EqualValues(t, testCase.expect, actual)
		})
	}
}

func TestService_Load(t *testing.T) {
	dir := t.TempDir()
	location := filepath.Join(dir, "agents.md")
	require.NoError(t, os.WriteFile(location, []byte(roster), 0o644))

	actual, err := New().Load(context.Background(), location)
	require.NoError(t, err)
	require.Len(t, actual, 2)
	assert.Equal(t, "Vader", actual.FirstWithPrefix("instruction:queue").Name)
	assert.Equal(t, "Maul", actual.FirstWithPrefix("tests:run").Name)

	_, err = New().Load(context.Background(), filepath.Join(dir, "missing.md"))
	assert.True(t, model.IsConfiguration(err))
}
