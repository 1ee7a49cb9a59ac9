// SPDX-License-Identifier: AGPL-3.0-only
package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug": Debug,
		"info":  Info,
		"warn":  Warn,
		"error": Error,
		"fatal": Fatal,
		"INFO":  Info,
		"bogus": Info,
		"":      Info,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: Warn, Output: &buf})

	logger.Debugf("hidden debug")
	logger.Infof("hidden info")
	logger.Warnf("visible warning")
	logger.Errorf("visible error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "visible warning") || !strings.Contains(out, "visible error") {
		t.Errorf("expected warn and error output, got %q", out)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: Error, Output: &buf})

	logger.Infof("before")
	logger.SetLevel(Info)
	logger.Infof("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Errorf("info logged below threshold: %q", out)
	}
	if !strings.Contains(out, "after") {
		t.Errorf("info missing after SetLevel: %q", out)
	}
}
