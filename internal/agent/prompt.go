package agent

import (
	"fmt"
	"strings"

	"github.com/harrison/crucible/internal/models"
)

// maxPromptFailures caps how many failures are described per prompt.
const maxPromptFailures = 10

// BuildPrompt renders the request sent to the agent: the current candidate in
// a fenced block, the run summary, and one correction prompt per failure.
func BuildPrompt(code, language string, analysis models.AnalysisResult) string {
	var sb strings.Builder

	sb.WriteString("The following code fails its test suite. Rewrite it so that every test passes.\n")
	sb.WriteString("Reply with the complete corrected file in a single fenced code block and nothing else.\n\n")

	fmt.Fprintf(&sb, "```%s\n%s", fenceLanguage(language), code)
	if !strings.HasSuffix(code, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```\n\n")

	fmt.Fprintf(&sb, "Test results: %d of %d passing (%.0f%%).\n",
		analysis.PassedTests, analysis.TotalTests, analysis.PassRate*100)

	if len(analysis.Failures) > 0 {
		sb.WriteString("\nFailures:\n")
		for i, f := range analysis.Failures {
			if i == maxPromptFailures {
				fmt.Fprintf(&sb, "... and %d more\n", len(analysis.Failures)-maxPromptFailures)
				break
			}
			fmt.Fprintf(&sb, "%d. [%s]", i+1, f.Category)
			if f.Location != nil {
				fmt.Fprintf(&sb, " %s:%d", f.Location.File, f.Location.Line)
			}
			fmt.Fprintf(&sb, " %s\n", f.CorrectionPrompt)
		}
	}

	if len(analysis.Suggestions) > 0 {
		sb.WriteString("\nSuggestions:\n")
		for _, s := range analysis.Suggestions {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
	}

	return sb.String()
}
