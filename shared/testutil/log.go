// Package testutil contains assertion helpers for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
)

// AssertLogsContain fails the test unless want occurs in a message captured
// by the hook. The failure lists every captured entry with its level.
func AssertLogsContain(t *testing.T, hook *test.Hook, want string) {
	t.Helper()
	if !logsContain(hook, want) {
		t.Fatalf("expected logs to contain %q, captured:\n%s", want, renderEntries(hook))
	}
}

// AssertLogsDoNotContain is the inverse check of AssertLogsContain.
func AssertLogsDoNotContain(t *testing.T, hook *test.Hook, want string) {
	t.Helper()
	if logsContain(hook, want) {
		t.Fatalf("expected logs to not contain %q, captured:\n%s", want, renderEntries(hook))
	}
}

func logsContain(hook *test.Hook, want string) bool {
	for _, entry := range hook.AllEntries() {
		if strings.Contains(entry.Message, want) {
			return true
		}
	}
	return false
}

func renderEntries(hook *test.Hook) string {
	entries := hook.AllEntries()
	if len(entries) == 0 {
		return "(no log entries)"
	}
	var b strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&b, "[%s] %s\n", entry.Level, entry.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}
