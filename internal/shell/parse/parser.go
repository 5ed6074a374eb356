package parse

import (
	"fmt"
	"strings"
)

// Parse turns an already-expanded line into a Pipeline: background
// detection, quote-aware pipe splitting, then per-segment tokenization and
// redirection extraction, per spec.md §4.E.
func Parse(line string) (*Pipeline, error) {
	line, background := stripBackground(line)

	parts, err := splitPipe(line)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("parse: empty pipeline")
	}

	segments := make([]*Segment, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("parse: empty segment in pipeline")
		}
		seg, err := parseSegment(part)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}

	return &Pipeline{Segments: segments, Background: background}, nil
}

// quoteScan walks s tracking which byte offsets fall inside a single- or
// double-quoted region, so callers can split on metacharacters without
// being fooled by one appearing inside quotes.
func quoteScan(s string) (inQuote []bool) {
	inQuote = make([]bool, len(s))
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			inQuote[i] = true
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			inQuote[i] = true
			continue
		}
	}
	return inQuote
}

// stripBackground removes a trailing '&' that marks the pipeline as
// background, ignoring one that falls inside quotes or is not the line's
// last non-whitespace character.
func stripBackground(line string) (string, bool) {
	inQuote := quoteScan(line)

	end := len(line)
	for end > 0 && isSpace(line[end-1]) {
		end--
	}
	if end == 0 {
		return line, false
	}
	last := end - 1
	if line[last] != '&' || inQuote[last] {
		return line, false
	}
	return line[:last], true
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

// splitPipe splits on unquoted '|'.
func splitPipe(line string) ([]string, error) {
	inQuote := quoteScan(line)

	var parts []string
	start := 0
	for i := 0; i < len(line); i++ {
		if line[i] == '|' && !inQuote[i] {
			parts = append(parts, line[start:i])
			start = i + 1
		}
	}
	parts = append(parts, line[start:])
	return parts, nil
}

// parseSegment tokenizes one pipeline stage and extracts redirections.
func parseSegment(s string) (*Segment, error) {
	tk := newTokenizer(s)
	seg := &Segment{}

	for {
		tok, err := tk.next()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case EOF:
			if len(seg.Argv) == 0 {
				return nil, fmt.Errorf("parse: syntax error: empty command")
			}
			return seg, nil
		case WORD:
			seg.Argv = append(seg.Argv, tok.Value)
		case REDIR_IN:
			target, err := tk.next()
			if err != nil {
				return nil, err
			}
			if target.Type != WORD {
				return nil, fmt.Errorf("parse: missing target for '<' redirection")
			}
			seg.Infile = target.Value // last-wins
		case REDIR_OUT:
			target, err := tk.next()
			if err != nil {
				return nil, err
			}
			if target.Type != WORD {
				return nil, fmt.Errorf("parse: missing target for '>' redirection")
			}
			seg.Outfile = target.Value
			seg.Append = false
		case REDIR_APPEND:
			target, err := tk.next()
			if err != nil {
				return nil, err
			}
			if target.Type != WORD {
				return nil, fmt.Errorf("parse: missing target for '>>' redirection")
			}
			seg.Outfile = target.Value
			seg.Append = true
		}
	}
}
