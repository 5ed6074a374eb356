// Package parse turns an already-expanded command line into a Pipeline of
// Segments: pipe splitting, background detection, per-segment tokenization
// and redirection extraction. It performs no variable or command
// substitution — that is the Expander's job, run before the line reaches
// this package.
package parse

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// Segment is one pipeline stage.
type Segment struct {
	Argv    []string
	Infile  string
	Outfile string
	Append  bool
}

func (s *Segment) hasInfile() bool  { return s.Infile != "" }
func (s *Segment) hasOutfile() bool { return s.Outfile != "" }

// String renders the segment back into shell syntax, for the round-trip
// testable property (parse . String . parse is the identity on
// Argv/redirections for words that shellquote renders with quotes only;
// the tokenizer does not remove backslash escapes, so a word rendered
// with backslashes does not re-parse to itself). Job and history display
// use the original line, not this.
func (s *Segment) String() string {
	var b strings.Builder
	b.WriteString(shellquote.Join(s.Argv...))
	if s.Infile != "" {
		b.WriteString(" < ")
		b.WriteString(shellquote.Join(s.Infile))
	}
	if s.Outfile != "" {
		if s.Append {
			b.WriteString(" >> ")
		} else {
			b.WriteString(" > ")
		}
		b.WriteString(shellquote.Join(s.Outfile))
	}
	return b.String()
}

// Pipeline is an ordered sequence of segments plus the background flag.
type Pipeline struct {
	Segments   []*Segment
	Background bool
}

func (p *Pipeline) String() string {
	parts := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		parts[i] = s.String()
	}
	out := strings.Join(parts, " | ")
	if p.Background {
		out += " &"
	}
	return out
}
