package classifier

import (
	"strings"
	"time"
)

const basePrompt = `You are a security agent verifying a camera feed. Your job is to detect specific events and report them.
Your output should always be exactly two lines:
1. First line: One of these in CAPS:
   - ALARM <type> for urgent situations
   - OBSERVATION <type> for non-urgent observations
   - NOTHING TO REPORT when everything is normal
2. Second line: A brief description of what you see

The current time is %TIME%.
`

// FormatInstructions drops comment lines (first non-blank character '#')
// and blank lines, keeping the remaining lines in order.
func FormatInstructions(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// BuildPrompt prefixes the formatted instructions with the output contract
// and the local wall-clock time, so the model can tell day from night.
func BuildPrompt(instructions string, at time.Time) string {
	prompt := strings.Replace(basePrompt, "%TIME%", at.Format("15:04"), 1)
	if instructions == "" {
		return prompt
	}
	return prompt + "\n" + instructions + "\n"
}
