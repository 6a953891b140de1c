package render

import (
	"fmt"
	"strings"
)

// textConfig accumulates an INI-like config.
type textConfig struct {
	b strings.Builder
}

func (t *textConfig) line(format string, args ...interface{}) {
	if len(args) == 0 {
		t.b.WriteString(format)
	} else {
		fmt.Fprintf(&t.b, format, args...)
	}
	t.b.WriteByte('\n')
}

func (t *textConfig) lines(ls []string) {
	for _, l := range ls {
		t.line(l)
	}
}

func (t *textConfig) blank() {
	t.b.WriteByte('\n')
}

func (t *textConfig) section(name string) {
	t.line("[%s]", name)
}

func (t *textConfig) bytes() []byte {
	return []byte(t.b.String())
}

func join(items []string) string {
	return strings.Join(items, ", ")
}

// stripCaseFlag removes a leading (?i) for engines that take no inline flags.
func stripCaseFlag(pattern string) string {
	return strings.TrimPrefix(pattern, "(?i)")
}

func isASCIILetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func swapCase(c byte) byte {
	return c ^ 0x20
}

// escapeLen returns the length of the escape sequence starting at p[i] == '\\'.
func escapeLen(p string, i int) int {
	if i+1 >= len(p) {
		return 1
	}
	n := 2
	switch p[i+1] {
	case 'p', 'P', 'k':
		if i+2 < len(p) && (p[i+2] == '{' || p[i+2] == '<') {
			closing := byte('}')
			if p[i+2] == '<' {
				closing = '>'
			}
			if j := strings.IndexByte(p[i+2:], closing); j >= 0 {
				n = j + 3
			}
		}
	case 'x':
		n = 4
	case 'u':
		n = 6
	case 'c':
		n = 3
	}
	if i+n > len(p) {
		n = len(p) - i
	}
	return n
}

// groupHeaderEnd returns the end of a group header whose body starts at
// p[k], just past "(?". Names and inline option letters are part of the
// header; lookaround markers are not.
func groupHeaderEnd(p string, k int) int {
	if k >= len(p) {
		return k
	}
	switch {
	case p[k] == '<' && k+1 < len(p) && p[k+1] != '=' && p[k+1] != '!':
		if j := strings.IndexByte(p[k:], '>'); j >= 0 {
			return k + j + 1
		}
	case p[k] == '\'':
		if j := strings.IndexByte(p[k+1:], '\''); j >= 0 {
			return k + j + 2
		}
	}
	for k < len(p) && (isASCIILetter(p[k]) || p[k] == '-') {
		k++
	}
	return k
}

// foldCase rewrites a case-insensitive pattern for engines that match case
// sensitively and take no inline flags: the leading (?i) is dropped and every
// ASCII letter becomes a class holding both cases, e.g. HK -> [Hh][Kk].
// Escapes and group constructs are copied unchanged.
func foldCase(pattern string) string {
	p := stripCaseFlag(pattern)
	var b strings.Builder
	b.Grow(len(p) * 2)
	inClass := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c == '\\':
			n := escapeLen(p, i)
			b.WriteString(p[i : i+n])
			i += n - 1
		case inClass && c == ']':
			inClass = false
			b.WriteByte(c)
		case !inClass && c == '[':
			inClass = true
			b.WriteByte(c)
			if i+1 < len(p) && p[i+1] == '^' {
				b.WriteByte('^')
				i++
			}
		case !inClass && c == '(' && i+1 < len(p) && p[i+1] == '?':
			j := groupHeaderEnd(p, i+2)
			b.WriteString(p[i:j])
			i = j - 1
		case !isASCIILetter(c):
			b.WriteByte(c)
		case inClass:
			if i+2 < len(p) && p[i+1] == '-' && isASCIILetter(p[i+2]) {
				lo, hi := p[i], p[i+2]
				b.WriteString(p[i : i+3])
				if (lo >= 'a') == (hi >= 'a') {
					b.WriteByte(swapCase(lo))
					b.WriteByte('-')
					b.WriteByte(swapCase(hi))
				}
				i += 2
				continue
			}
			b.WriteByte(c)
			b.WriteByte(swapCase(c))
		default:
			upper := c &^ 0x20
			b.WriteByte('[')
			b.WriteByte(upper)
			b.WriteByte(upper | 0x20)
			b.WriteByte(']')
		}
	}
	return b.String()
}
