package plan

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	sgdiff "github.com/sourcegraph/go-diff/diff"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/exegol/internal/clock"
	"github.com/viant/exegol/model"
)

const (
	// FileName is the plan document kept in every workspace.
	FileName = "plan.md"
	// EmptyDocument stands in for a plan that does not exist yet.
	EmptyDocument = "# Plan\n\n"
	// RemediationRequirement is recorded whenever a test run did not succeed.
	RemediationRequirement = "Investigate failing tests"

	timestampLayout = "2006-01-02 15:04:05 UTC"
)

// Update is one test outcome recorded in a plan.
type Update struct {
	Command string
	Status  model.ExecStatus
	At      time.Time
}

// Change describes what an append did to the plan.
type Change struct {
	Path    string `json:"path"`
	Diff    string `json:"-"`
	Added   int    `json:"added"`
	Changed int    `json:"changed"`
	Deleted int    `json:"deleted"`
}

// Service reads and appends plan documents.
type Service struct {
	fs afs.Service
}

// New creates a plan Service.
func New() *Service {
	return &Service{fs: afs.New()}
}

// Path returns the plan location of a workspace.
func Path(workspace string) string {
	return path.Join(workspace, FileName)
}

// Read returns the plan at location, or EmptyDocument when there is none.
func (s *Service) Read(ctx context.Context, location string) (string, error) {
	content, _, err := s.read(ctx, location)
	return content, err
}

func (s *Service) read(ctx context.Context, location string) (string, bool, error) {
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return "", false, fmt.Errorf("failed to check plan %s: %w", location, err)
	}
	if !exists {
		return EmptyDocument, false, nil
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return "", false, fmt.Errorf("failed to read plan %s: %w", location, err)
	}
	return string(data), true, nil
}

// AppendRequirementsUpdate appends a "Requirements Update" section for update
// to the plan at location, creating the document if needed.
func (s *Service) AppendRequirementsUpdate(ctx context.Context, location string, update *Update) (*Change, error) {
	before, existed, err := s.read(ctx, location)
	if err != nil {
		return nil, err
	}
	after := strings.TrimRight(before, " \t\r\n") + "\n" + RenderRequirementsUpdate(update)
	if err = s.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader([]byte(after))); err != nil {
		return nil, fmt.Errorf("failed to write plan %s: %w", location, err)
	}
	if !existed {
		before = ""
	}
	return Diff(location, before, after)
}

// RenderRequirementsUpdate formats the section appended for update, starting
// with a blank separator line.
func RenderRequirementsUpdate(update *Update) string {
	at := update.At
	if at.IsZero() {
		at = clock.Now()
	}
	lines := []string{
		"",
		fmt.Sprintf("## Requirements Update (%s)", at.UTC().Format(timestampLayout)),
		fmt.Sprintf("- Test command: `%s`", update.Command),
		fmt.Sprintf("- Result: %s", update.Status),
	}
	if update.Status != model.ExecSuccess {
		lines = append(lines, "- Requirement: "+RemediationRequirement)
	}
	return strings.Join(lines, "\n") + "\n"
}

// Diff computes a unified diff between two plan revisions with line stats.
func Diff(location, before, after string) (*Change, error) {
	change := &Change{Path: location}
	if before == after {
		return change, nil
	}
	unified := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: location,
		ToFile:   location,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(unified)
	if err != nil {
		return nil, fmt.Errorf("failed to diff plan %s: %w", location, err)
	}
	change.Diff = text
	fileDiff, err := sgdiff.ParseFileDiff([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan diff %s: %w", location, err)
	}
	stat := fileDiff.Stat()
	change.Added, change.Changed, change.Deleted = int(stat.Added), int(stat.Changed), int(stat.Deleted)
	return change, nil
}

// Snippet returns up to maxLines non-heading, non-blank lines of the plan,
// joined by "; ".
func (s *Service) Snippet(ctx context.Context, location string, maxLines int) (string, error) {
	content, err := s.Read(ctx, location)
	if err != nil {
		return "", err
	}
	if maxLines <= 0 {
		maxLines = 3
	}
	var picked []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		picked = append(picked, strings.TrimSpace(strings.TrimPrefix(line, "- ")))
		if len(picked) == maxLines {
			break
		}
	}
	return strings.Join(picked, "; "), nil
}
