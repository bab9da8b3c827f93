package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/exegol/internal/yml"
	"github.com/viant/exegol/model"
	"gopkg.in/yaml.v3"
)

var fencedYAML = regexp.MustCompile("(?s)```ya?ml[^\\n]*\\n(.*?)```")

// Service loads agent rosters from markdown documents.
type Service struct {
	fs afs.Service
}

// New creates an agents Service.
func New() *Service {
	return &Service{fs: afs.New()}
}

// Load reads the markdown document at URL and parses its agent roster.
func (s *Service) Load(ctx context.Context, URL string) (model.Agents, error) {
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, model.NewConfigurationError(URL, "agents source is not readable", err)
	}
	return Parse(URL, data)
}

// Parse extracts the first fenced yaml block of a markdown document and
// decodes its "agents" list. source only labels errors.
func Parse(source string, markdown []byte) (model.Agents, error) {
	match := fencedYAML.FindSubmatch(markdown)
	if match == nil {
		return nil, model.NewConfigurationError(source, "no yaml block found", nil)
	}
	var document yaml.Node
	if err := yaml.Unmarshal(match[1], &document); err != nil {
		return nil, model.NewConfigurationError(source, "malformed yaml block", err)
	}
	list := (*yml.Node)(&document).Root().Lookup("agents")
	if list == nil || list.Kind != yaml.SequenceNode {
		return nil, model.NewConfigurationError(source, "yaml block has no agents list", nil)
	}
	var result model.Agents
	seen := map[string]bool{}
	err := list.Items(func(index int, node *yml.Node) error {
		agent := &model.AgentProfile{}
		if err := node.Decode(agent); err != nil {
			return model.NewConfigurationError(source, fmt.Sprintf("agent #%d is malformed", index), err)
		}
		agent.Name = strings.TrimSpace(agent.Name)
		if agent.Name == "" {
			return model.NewConfigurationError(source, fmt.Sprintf("agent #%d has no name", index), nil)
		}
		if seen[agent.Name] {
			return model.NewConfigurationError(source, fmt.Sprintf("duplicate agent %q", agent.Name), nil)
		}
		seen[agent.Name] = true
		result = append(result, agent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, model.NewConfigurationError(source, "agents list is empty", nil)
	}
	return result, nil
}
