// Package expand implements the single-pass variable and command
// substitution rules of spec.md §4.D. It runs on the raw line before the
// parse package ever sees it, and returns a new string with quote
// delimiters left in place (word splitting and quote removal happen later,
// in parse.Parse) so that e.g. a quoted double space survives.
package expand

import (
	"strings"
)

// Substituter runs the command inside $(...) or `...` and returns its
// captured, trailing-newline-trimmed stdout. Per spec.md §4.D, a failing
// substitution is silently treated as empty expansion — Substituter itself
// should never need to report that failure upward.
type Substituter func(command string) (string, error)

// Lookup resolves an environment variable by name, spec.md rule 4.
type Lookup func(name string) (value string, ok bool)

// Expand performs the single left-to-right pass described in spec.md §4.D.
func Expand(line string, lookup Lookup, sub Substituter) (string, error) {
	var out strings.Builder
	i := 0
	n := len(line)

	for i < n {
		c := line[i]
		switch {
		case c == '\'':
			j := closingQuote(line, i+1, '\'')
			if j < n {
				out.WriteString(line[i : j+1])
				i = j + 1
			} else {
				out.WriteString(line[i:])
				i = n
			}

		case c == '"':
			j, err := expandDoubleQuoted(&out, line, i, lookup, sub)
			if err != nil {
				return "", err
			}
			i = j

		case c == '\\':
			// Unquoted backslash: copy the next character literally.
			if i+1 < n {
				out.WriteByte(line[i+1])
				i += 2
			} else {
				out.WriteByte('\\')
				i++
			}

		case c == '$':
			j, err := expandDollar(&out, line, i, lookup, sub)
			if err != nil {
				return "", err
			}
			i = j

		case c == '`':
			j, err := expandBacktick(&out, line, i, sub)
			if err != nil {
				return "", err
			}
			i = j

		default:
			out.WriteByte(c)
			i++
		}
	}

	return out.String(), nil
}

// closingQuote returns the index of the matching quote starting the scan
// at start, or len(line) if unterminated (lenient, per spec.md §4.E — the
// expander mirrors the parser's leniency so it never needs to error on a
// dangling quote mid-line).
func closingQuote(line string, start int, quote byte) int {
	for i := start; i < len(line); i++ {
		if line[i] == quote {
			return i
		}
	}
	return len(line)
}

// expandDoubleQuoted processes the contents of a "..." span: backslash
// escapes the next character, $ expands, everything else is literal. The
// surrounding quote characters are preserved in the output.
func expandDoubleQuoted(out *strings.Builder, line string, start int, lookup Lookup, sub Substituter) (int, error) {
	out.WriteByte('"')
	i := start + 1
	n := len(line)
	for i < n && line[i] != '"' {
		c := line[i]
		switch {
		case c == '\\' && i+1 < n:
			out.WriteByte(line[i+1])
			i += 2
		case c == '$':
			j, err := expandDollar(out, line, i, lookup, sub)
			if err != nil {
				return 0, err
			}
			i = j
		case c == '`':
			j, err := expandBacktick(out, line, i, sub)
			if err != nil {
				return 0, err
			}
			i = j
		default:
			out.WriteByte(c)
			i++
		}
	}
	out.WriteByte('"')
	if i < n {
		i++ // closing quote
	}
	return i, nil
}

func isNameStart(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func isNameChar(b byte) bool {
	return isNameStart(b) || (b >= '0' && b <= '9')
}

// expandDollar handles $NAME, ${NAME}, and $(...) starting at line[i]=='$'.
// A lone $ not followed by a valid name or '(' is copied literally.
func expandDollar(out *strings.Builder, line string, i int, lookup Lookup, sub Substituter) (int, error) {
	n := len(line)
	if i+1 >= n {
		out.WriteByte('$')
		return i + 1, nil
	}

	switch {
	case line[i+1] == '(':
		end := matchParen(line, i+1)
		cmd := line[i+2 : end]
		result, err := sub(cmd)
		if err != nil {
			result = "" // spec.md: failures are silently treated as empty expansion
		}
		out.WriteString(strings.TrimRight(result, "\n"))
		return end + 1, nil

	case line[i+1] == '{':
		end := strings.IndexByte(line[i+2:], '}')
		if end < 0 {
			// Unterminated brace: copy the rest literally, lenient like quotes.
			out.WriteString(line[i:])
			return n, nil
		}
		name := line[i+2 : i+2+end]
		if v, ok := lookup(name); ok {
			out.WriteString(v)
		}
		return i + 2 + end + 1, nil

	case isNameStart(line[i+1]):
		j := i + 1
		for j < n && isNameChar(line[j]) {
			j++
		}
		name := line[i+1 : j]
		if v, ok := lookup(name); ok {
			out.WriteString(v)
		}
		return j, nil

	default:
		out.WriteByte('$')
		return i + 1, nil
	}
}

// matchParen returns the index of the ')' matching the '(' at line[open],
// counting nested parens.
func matchParen(line string, open int) int {
	depth := 0
	for i := open; i < len(line); i++ {
		switch line[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(line)
}

// expandBacktick handles `...` command substitution; no nesting is
// required per spec.md §4.D.
func expandBacktick(out *strings.Builder, line string, i int, sub Substituter) (int, error) {
	end := closingQuote(line, i+1, '`')
	if end >= len(line) {
		// Unterminated backtick: copy the rest literally, lenient like quotes.
		out.WriteString(line[i:])
		return len(line), nil
	}
	cmd := line[i+1 : end]
	result, err := sub(cmd)
	if err != nil {
		result = ""
	}
	out.WriteString(strings.TrimRight(result, "\n"))
	return end + 1, nil
}
