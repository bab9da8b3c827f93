package model

import "time"

// ActivityEntry is one line of the append-only activity trail.
type ActivityEntry struct {
	ID        string                 `json:"id"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Instruction is a queued edit instruction waiting for a human operator.
type Instruction struct {
	ID        string    `json:"id"`
	RepoPath  string    `json:"repo_path"`
	Task      string    `json:"task"`
	Block     string    `json:"block"`
	Agent     string    `json:"agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
