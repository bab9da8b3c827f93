package yml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNode_Lookup(t *testing.T) {
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("Agents:\n  - name: Maul\n  - name: Vader\nversion: 2\n"), &doc))
	root := (*Node)(&doc).Root()

	agents := root.Lookup("agents")
	require.NotNil(t, agents)
	assert.Equal(t, yaml.SequenceNode, agents.Kind)

	var names []string
	require.NoError(t, agents.Items(func(_ int, node *Node) error {
		names = append(names, node.Lookup("name").Value)
		return nil
	}))
	assert.Equal(t, []string{"Maul", "Vader"}, names)

	var keys []string
	require.NoError(t, root.Pairs(func(key string, _ *Node) error {
		keys = append(keys, key)
		return nil
	}))
	assert.Equal(t, []string{"Agents", "version"}, keys)

	assert.Nil(t, root.Lookup("missing"))
	assert.Nil(t, agents.Lookup("name"))
}
