// SPDX-License-Identifier: AGPL-3.0-only
package engine

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jolks/pipetask/internal/model"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"shorter than limit", "hello", 10, "hello"},
		{"exactly at limit", "hello", 5, "hello"},
		{"ascii cut", "hello world", 5, "hello"},
		{"multibyte before boundary", "héllo", 3, "hé"},
		{"multibyte straddling boundary", "日本語", 4, "日"},
		{"all multibyte under limit", "日本語", 9, "日本語"},
	}
	for _, tc := range cases {
		got := truncate(tc.in, tc.n)
		if got != tc.want {
			t.Errorf("%s: truncate(%q, %d) = %q, want %q", tc.name, tc.in, tc.n, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("%s: truncate produced invalid UTF-8 %q", tc.name, got)
		}
		if len(got) > tc.n {
			t.Errorf("%s: truncate returned %d bytes, limit %d", tc.name, len(got), tc.n)
		}
	}
}

func TestSummaryPromptExcerptsStayValidUTF8(t *testing.T) {
	task := model.NewTask("utf8 check", "")
	task.Steps = []model.Step{{ID: 1, Description: "only step"}}
	task.Results = []model.StepResult{{
		StepID: 1,
		Status: model.StepCompleted,
		// three bytes per rune, well past the excerpt cap
		Output: strings.Repeat("汉", 100),
	}}

	prompt := summaryPrompt(task)
	if !utf8.ValidString(prompt) {
		t.Error("summary request contains invalid UTF-8")
	}
}
