package vcs

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/exegol/service/shell"
)

// Bot identity configured on repositories this package initialises.
const (
	BotName  = "Exegol Bot"
	BotEmail = "exegol@local"
)

// CommitResult describes a recorded commit.
type CommitResult struct {
	CommitID    string
	Output      string
	Initialized bool
}

// Repository drives git in local working copies.
type Repository struct {
	shell shell.Executor
	fs    afs.Service
}

// New creates a Repository; a nil executor uses a local shell.
func New(executor shell.Executor) *Repository {
	if executor == nil {
		executor = shell.New()
	}
	return &Repository{shell: executor, fs: afs.New()}
}

// Ensure makes location a git repository. An existing repository is reused
// untouched; otherwise it is initialised with the bot identity. It reports
// whether initialisation happened.
func (r *Repository) Ensure(ctx context.Context, location string) (bool, error) {
	exists, _ := r.fs.Exists(ctx, location)
	if !exists {
		if err := r.fs.Create(ctx, location, file.DefaultDirOsMode, true); err != nil {
			return false, fmt.Errorf("failed to create repository dir %s: %w", location, err)
		}
	}
	if ok, _ := r.fs.Exists(ctx, path.Join(location, ".git")); ok {
		return false, nil
	}
	_, err := r.run(ctx, location,
		"git init -q",
		"git config user.name "+shell.Quote(BotName),
		"git config user.email "+shell.Quote(BotEmail),
	)
	if err != nil {
		return false, fmt.Errorf("failed to initialise repository %s: %w", location, err)
	}
	return true, nil
}

// Commit writes marker with a timestamped line, stages it and commits with
// message. Each call records exactly one commit.
func (r *Repository) Commit(ctx context.Context, location, marker, message string) (*CommitResult, error) {
	initialized, err := r.Ensure(ctx, location)
	if err != nil {
		return nil, err
	}
	content := fmt.Sprintf("Demo update at %s\n", time.Now().UTC().Format(time.RFC3339Nano))
	if err = r.fs.Upload(ctx, path.Join(location, marker), file.DefaultFileOsMode, bytes.NewReader([]byte(content))); err != nil {
		return nil, fmt.Errorf("failed to write marker %s: %w", marker, err)
	}
	output, err := r.run(ctx, location,
		"git add -- "+shell.Quote(marker),
		"git commit -q -m "+shell.Quote(message),
		"git rev-parse HEAD",
	)
	if err != nil {
		return nil, err
	}
	last := output.Commands[len(output.Commands)-1]
	commitID := strings.TrimSpace(last.Output)
	return &CommitResult{CommitID: commitID, Output: output.Stdout, Initialized: initialized}, nil
}

// CommitCount returns the number of commits reachable from HEAD.
func (r *Repository) CommitCount(ctx context.Context, location string) (int, error) {
	output, err := r.run(ctx, location, "git rev-list --count HEAD")
	if err != nil {
		return 0, err
	}
	var count int
	if _, err = fmt.Sscanf(strings.TrimSpace(output.Stdout), "%d", &count); err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %w", output.Stdout, err)
	}
	return count, nil
}

func (r *Repository) run(ctx context.Context, location string, commands ...string) (*shell.Output, error) {
	output := &shell.Output{}
	if err := r.shell.Execute(ctx, &shell.Input{Workdir: location, Commands: commands}, output); err != nil {
		return nil, err
	}
	if output.Status != 0 || len(output.Commands) != len(commands) {
		if len(output.Commands) == 0 {
			return nil, fmt.Errorf("%s: exit status %d", commands[0], output.Status)
		}
		failed := output.Commands[len(output.Commands)-1]
		return nil, fmt.Errorf("%s: exit status %d: %s", failed.Input, failed.Status, strings.TrimSpace(failed.Output))
	}
	return output, nil
}
