package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harrison/crucible/internal/models"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		language string
		want     string
	}{
		{
			name:     "single fenced block",
			reply:    "Here is the fix:\n\n```python\ndef add(a, b):\n    return a + b\n```\n\nDone.",
			language: "python",
			want:     "def add(a, b):\n    return a + b\n",
		},
		{
			name:     "prefers matching language alias",
			reply:    "```text\nnotes\n```\n\n```py\nx = 1\n```\n",
			language: "python",
			want:     "x = 1\n",
		},
		{
			name:     "falls back to first block",
			reply:    "```\nfirst\n```\n\n```ruby\nsecond\n```\n",
			language: "go",
			want:     "first\n",
		},
		{
			name:     "no fences returns trimmed reply",
			reply:    "\n  package main\n\nfunc main() {}\n\n",
			language: "go",
			want:     "package main\n\nfunc main() {}",
		},
		{
			name:     "shell alias",
			reply:    "```bash\necho ok\n```",
			language: "shell",
			want:     "echo ok\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCode(tt.reply, tt.language))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	analysis := models.AnalysisResult{
		Status:      models.AnalysisFail,
		TotalTests:  4,
		PassedTests: 3,
		FailedTests: 1,
		PassRate:    0.75,
		Failures: []models.FailureAnalysis{{
			Category:         models.CategoryLogic,
			Message:          "assert 5 == 4",
			Location:         &models.Location{File: "test_candidate.py", Line: 7},
			CorrectionPrompt: "Check the arithmetic in add.",
		}},
		Suggestions: []string{"1 logic failure(s): review the algorithm"},
	}

	prompt := BuildPrompt("def add(a, b):\n    return a - b", "python", analysis)

	assert.Contains(t, prompt, "```python\ndef add(a, b):\n    return a - b\n```")
	assert.Contains(t, prompt, "Test results: 3 of 4 passing (75%).")
	assert.Contains(t, prompt, "1. [logic] test_candidate.py:7 Check the arithmetic in add.")
	assert.Contains(t, prompt, "- 1 logic failure(s): review the algorithm")

	// The candidate is the first fenced block, so echoing the prompt back
	// yields the candidate unchanged.
	assert.Equal(t, "def add(a, b):\n    return a - b\n", ExtractCode(prompt, "python"))
}

func TestBuildPromptCapsFailures(t *testing.T) {
	var analysis models.AnalysisResult
	for i := 0; i < maxPromptFailures+3; i++ {
		analysis.Failures = append(analysis.Failures, models.FailureAnalysis{Category: models.CategoryRuntime, CorrectionPrompt: "fix"})
	}
	prompt := BuildPrompt("x", "go", analysis)
	assert.Equal(t, maxPromptFailures, strings.Count(prompt, "[runtime]"))
	assert.Contains(t, prompt, "... and 3 more")
}
