package dispatcher

import "strings"

// RenderInstruction formats the block an operator applies in their editor.
func RenderInstruction(task string) string {
	return strings.Join([]string{
		"Editor Action Required:",
		"- Task: " + task,
		"- Open the relevant file(s) in the editor",
		"- Apply the suggested edits",
		"- Run tests after the change",
	}, "\n")
}
