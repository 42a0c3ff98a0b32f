// Package cliui renders the plain-text tables printed by the sessions
// command.
package cliui

import (
	"io"
	"strings"
	"unicode/utf8"
)

const colGap = "  "

type Column struct {
	Name       string
	MaxWidth   int // 0 means unbounded
	AlignRight bool
}

// Table collects rows and prints them aligned under a header and a rule.
type Table struct {
	cols []Column
	rows [][]string
}

func NewTable(cols ...Column) *Table {
	return &Table{cols: cols}
}

// Row appends one row. Missing cells print empty, extra cells are ignored.
func (t *Table) Row(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) Render(w io.Writer) error {
	if len(t.cols) == 0 {
		return nil
	}
	widths := t.widths()
	var b strings.Builder

	header := make([]string, len(t.cols))
	rule := make([]string, len(t.cols))
	for i, c := range t.cols {
		header[i] = c.Name
		rule[i] = strings.Repeat("-", widths[i])
	}
	t.line(&b, widths, header)
	t.line(&b, widths, rule)
	for _, row := range t.rows {
		t.line(&b, widths, row)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (t *Table) String() string {
	var b strings.Builder
	_ = t.Render(&b)
	return b.String()
}

func (t *Table) line(b *strings.Builder, widths []int, cells []string) {
	for i, c := range t.cols {
		cell := ""
		if i < len(cells) {
			cell = Truncate(cells[i], widths[i])
		}
		pad := strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell))
		last := i == len(t.cols)-1
		switch {
		case c.AlignRight:
			b.WriteString(pad + cell)
		case last:
			b.WriteString(cell)
		default:
			b.WriteString(cell + pad)
		}
		if !last {
			b.WriteString(colGap)
		}
	}
	b.WriteByte('\n')
}

func (t *Table) widths() []int {
	widths := make([]int, len(t.cols))
	for i, c := range t.cols {
		widths[i] = utf8.RuneCountInString(c.Name)
		for _, row := range t.rows {
			if i < len(row) {
				widths[i] = max(widths[i], utf8.RuneCountInString(row[i]))
			}
		}
		if c.MaxWidth > 0 {
			widths[i] = min(widths[i], max(c.MaxWidth, utf8.RuneCountInString(c.Name)))
		}
	}
	return widths
}

// Truncate returns s trimmed to at most n runes, ending in "..." when cut.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	rs := []rune(s)
	if n <= 3 {
		return string(rs[:n])
	}
	return string(rs[:n-3]) + "..."
}
