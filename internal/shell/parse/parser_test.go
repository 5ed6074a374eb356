package parse

import "testing"

func TestParseSimple(t *testing.T) {
	p, err := Parse("echo hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(p.Segments))
	}
	want := []string{"echo", "hello", "world"}
	got := p.Segments[0].Argv
	if len(got) != len(want) {
		t.Fatalf("argv = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParsePipeline(t *testing.T) {
	p, err := Parse(`echo "a  b" | cat`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(p.Segments))
	}
	if p.Segments[0].Argv[1] != "a  b" {
		t.Errorf("quoted double space not preserved: got %q", p.Segments[0].Argv[1])
	}
	if p.Segments[1].Argv[0] != "cat" {
		t.Errorf("second segment = %v", p.Segments[1].Argv)
	}
}

func TestPipeInsideQuotesIsLiteral(t *testing.T) {
	p, err := Parse(`echo "a|b"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Segments) != 1 {
		t.Fatalf("quoted pipe should not split pipeline, got %d segments", len(p.Segments))
	}
	if p.Segments[0].Argv[1] != "a|b" {
		t.Errorf("got %q", p.Segments[0].Argv[1])
	}
}

func TestBackgroundDetection(t *testing.T) {
	p, err := Parse("sleep 30 &")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Background {
		t.Error("expected background = true")
	}
	if len(p.Segments[0].Argv) != 2 || p.Segments[0].Argv[1] != "30" {
		t.Errorf("trailing '&' should not leak into argv: %v", p.Segments[0].Argv)
	}
}

func TestBackgroundInQuotesIsLiteral(t *testing.T) {
	p, err := Parse(`echo "foo&"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Background {
		t.Error("quoted trailing & must not be treated as background")
	}
}

func TestRedirectionAttachedAndDetached(t *testing.T) {
	p, err := Parse("echo one >out.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Segments[0].Outfile != "out.txt" {
		t.Errorf("attached redirection target = %q", p.Segments[0].Outfile)
	}

	p, err = Parse("echo one > out.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Segments[0].Outfile != "out.txt" {
		t.Errorf("detached redirection target = %q", p.Segments[0].Outfile)
	}

	p, err = Parse("cat < in.txt >> out.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seg := p.Segments[0]
	if seg.Infile != "in.txt" || seg.Outfile != "out.txt" || !seg.Append {
		t.Errorf("segment = %+v", seg)
	}
}

func TestRedirectionLastWins(t *testing.T) {
	p, err := Parse("echo hi > a.txt > b.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Segments[0].Outfile != "b.txt" {
		t.Errorf("expected last redirection to win, got %q", p.Segments[0].Outfile)
	}
}

func TestMissingRedirectionTargetIsError(t *testing.T) {
	if _, err := Parse("echo hi >"); err == nil {
		t.Error("expected error for missing redirection target")
	}
}

func TestEmptySegmentInPipelineIsError(t *testing.T) {
	if _, err := Parse("echo hi | | cat"); err == nil {
		t.Error("expected error for empty segment between pipes")
	}
}

func TestEmptyArgvAfterRedirectionIsError(t *testing.T) {
	if _, err := Parse("> out.txt"); err == nil {
		t.Error("expected error for segment with no command words")
	}
}

func TestRoundTripStringReparse(t *testing.T) {
	p, err := Parse(`echo "a  b" > out.txt`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, err := Parse(p.Segments[0].String())
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if again.Segments[0].Outfile != "out.txt" || again.Segments[0].Argv[1] != "a  b" {
		t.Errorf("round trip mismatch: %+v", again.Segments[0])
	}
}
