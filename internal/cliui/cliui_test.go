package cliui

import (
	"strings"
	"testing"
	"time"
)

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 5); got != "ab..." {
		t.Fatalf("truncate: got %q", got)
	}
	if got := Truncate("abc", 5); got != "abc" {
		t.Fatalf("no truncate: got %q", got)
	}
	if got := Truncate("abcdef", 2); got != "ab" {
		t.Fatalf("short: got %q", got)
	}
}

func TestTableRender(t *testing.T) {
	tbl := NewTable(
		Column{Name: "PID", AlignRight: true},
		Column{Name: "COMMAND", MaxWidth: 8},
	)
	tbl.Row("7", "gcc -c main.c")
	tbl.Row("12345")
	got := tbl.String()
	want := "" +
		"  PID  COMMAND\n" +
		"-----  --------\n" +
		"    7  gcc -...\n" +
		"12345  \n"
	if got != want {
		t.Fatalf("unexpected table:\n%s\nwant:\n%s", got, want)
	}
	if tbl.Len() != 2 {
		t.Fatalf("len: %d", tbl.Len())
	}
}

func TestTimeFormats(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := Offset(start.Add(2500*time.Millisecond), start); got != "+2.5s" {
		t.Fatalf("offset: got %q", got)
	}
	if got := Duration(start.UnixNano(), start.Add(3*time.Second).UnixNano()); got != "3s" {
		t.Fatalf("duration: got %q", got)
	}
	if got := Duration(start.UnixNano(), 0); got != "-" {
		t.Fatalf("open duration: got %q", got)
	}
	if got := Timestamp(start.UnixNano()); !strings.HasPrefix(got, "2026-01-02T03:04:05.000") {
		t.Fatalf("timestamp: got %q", got)
	}
}
