package shell

// Input describes a batch of commands run in one local shell session.
type Input struct {
	Workdir      string            `json:"workdir,omitempty"`      // directory the session changes into first
	Env          map[string]string `json:"env,omitempty"`          // environment variables set before commands run
	Commands     []string          `json:"commands,omitempty"`     // commands run sequentially in the same session
	TimeoutMs    int               `json:"timeoutMs,omitempty"`    // per command deadline, default one minute
	AbortOnError *bool             `json:"abortOnError,omitempty"` // stop at the first non-zero status, default true
}

// Command is the result of one command.
type Command struct {
	Input    string `json:"input,omitempty"`
	Output   string `json:"output,omitempty"`
	Status   int    `json:"status"`
	TimedOut bool   `json:"timedOut,omitempty"`
}

// Output aggregates every command of an Input.
type Output struct {
	Commands []*Command `json:"commands,omitempty"`
	Stdout   string     `json:"stdout,omitempty"` // combined output of all commands
	Status   int        `json:"status"`           // status of the last command run
	TimedOut bool       `json:"timedOut,omitempty"`
}

func (i *Input) abortOnError() bool {
	if i.AbortOnError == nil {
		return true
	}
	return *i.AbortOnError
}
