// Package render projects evidence and synthesis artifacts into markdown.
// Every function here is pure: the same input gives byte-identical output.
package render

import (
	"fmt"
	"strings"
)

// cell escapes a value for a markdown table cell.
func cell(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", "<br>")
}

// inline escapes a value placed in a heading or list item.
func inline(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "<", "&lt;")
	if strings.HasPrefix(s, "#") {
		s = `\` + s
	}
	return s
}

// fence wraps content in a code fence longer than any backtick run inside it.
func fence(b *strings.Builder, content string) {
	ticks := strings.Repeat("`", max(3, longestRun(content, '`')+1))
	fmt.Fprintf(b, "%stext\n", ticks)
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	fmt.Fprintf(b, "%s\n", ticks)
}

func longestRun(s string, r byte) int {
	best, cur := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == r {
			cur++
			best = max(best, cur)
		} else {
			cur = 0
		}
	}
	return best
}

type row struct{ label, value string }

func table(b *strings.Builder, header [2]string, rows []row) {
	fmt.Fprintf(b, "| %s | %s |\n|---|---|\n", header[0], header[1])
	for _, r := range rows {
		fmt.Fprintf(b, "| %s | %s |\n", cell(r.label), cell(r.value))
	}
	b.WriteString("\n")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
