package yml

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Node adds traversal helpers to yaml.Node.
type Node yaml.Node

// Root returns the top level value of a document node, or n itself.
func (n *Node) Root() *Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return (*Node)(n.Content[0])
	}
	return n
}

// Lookup returns the value of a mapping key, matched case-insensitively, or nil.
func (n *Node) Lookup(name string) *Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if strings.EqualFold(n.Content[i].Value, name) {
			return (*Node)(n.Content[i+1])
		}
	}
	return nil
}

// Items iterates sequence elements.
func (n *Node) Items(callback func(index int, node *Node) error) error {
	for i := 0; i < len(n.Content); i++ {
		if err := callback(i, (*Node)(n.Content[i])); err != nil {
			return err
		}
	}
	return nil
}

// Pairs iterates mapping entries.
func (n *Node) Pairs(callback func(key string, node *Node) error) error {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := callback(n.Content[i].Value, (*Node)(n.Content[i+1])); err != nil {
			return err
		}
	}
	return nil
}

// Decode decodes the node into v.
func (n *Node) Decode(v interface{}) error {
	return (*yaml.Node)(n).Decode(v)
}
