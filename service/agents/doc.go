// Package agents parses the agent roster: a markdown document whose fenced
// yaml block lists agents with a name, a role and permission strings.
package agents
