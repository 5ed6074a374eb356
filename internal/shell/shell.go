// Package shell wires the line editor, expander, parser, executor, job
// table, and history store into the interactive REPL (spec.md §2's "data
// flow per line"). Grounded on the teacher's interactiveWithReadline in
// internal/llmsh/shell.go: readline.NewEx with a Prompt/HistoryFile/
// AutoComplete config, an EOF/interrupt-aware read loop, and a completer
// built from the command surface — regeneralized here from the teacher's
// fixed text-tool list to built-ins plus every executable on $PATH.
package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	isatty "github.com/mattn/go-isatty"

	"github.com/mako10k/myshell/internal/shell/builtin"
	"github.com/mako10k/myshell/internal/shell/expand"
	myexec "github.com/mako10k/myshell/internal/shell/exec"
	"github.com/mako10k/myshell/internal/shell/history"
	"github.com/mako10k/myshell/internal/shell/job"
	"github.com/mako10k/myshell/internal/shell/parse"
	"github.com/mako10k/myshell/internal/shell/term"
)

// Version is the shell's reported version string.
var Version = "0.1.0"

// Shell owns every per-session component and drives the REPL.
type Shell struct {
	term      *term.Terminal
	jobs      *job.Table
	exec      *myexec.Executor
	hist      *history.History
	reaper    *job.Reaper
	exitCode  int
	closeOnce sync.Once
}

// New assembles a Shell. Raw terminal mode and job-control signal setup are
// only engaged when stdin is actually a terminal (spec.md §6 environment);
// piped/batch stdin runs the same pipeline machinery without any of it.
func New() (*Shell, error) {
	jobs := job.NewTable(0)

	var t *term.Terminal
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		var err error
		t, err = term.Open(int(os.Stdin.Fd()))
		if err != nil {
			return nil, fmt.Errorf("shell: opening terminal: %w", err)
		}
	}

	h, err := history.Open(history.DefaultPath(), 1000)
	if err != nil {
		return nil, fmt.Errorf("shell: opening history: %w", err)
	}

	s := &Shell{
		term: t,
		jobs: jobs,
		exec: myexec.New(t, jobs),
		hist: h,
	}
	// The reaper runs in batch mode too: foreground waits depend on it.
	s.reaper = job.StartReaper(jobs)
	return s, nil
}

// Jobs, History, and Resume implement builtin.API.
func (s *Shell) Jobs() *job.Table          { return s.jobs }
func (s *Shell) History() *history.History { return s.hist }
func (s *Shell) Resume(j *job.Job, foreground bool) error {
	return s.exec.Resume(j, foreground)
}

// Close restores the terminal and stops the reaper goroutine. Safe to call
// more than once, and safe to call on a Shell built for batch mode (no
// terminal was ever opened) or on a substitution sub-interpreter (no
// reaper of its own).
func (s *Shell) Close() {
	s.closeOnce.Do(func() {
		if s.reaper != nil {
			s.reaper.Stop()
		}
		if s.term != nil {
			s.term.LeaveRaw()
		}
	})
}

// ExitCode is the value a prior "exit" builtin requested, if any.
func (s *Shell) ExitCode() int { return s.exitCode }

// Interactive runs the read-eval-print loop against a real terminal, using
// chzyer/readline for editing keys and history recall (spec.md §4.B). The
// same history file backs both readline's recall buffer and the shell's
// own on-disk log (spec.md §4.C), so the two stay consistent.
func (s *Shell) Interactive() error {
	if s.term != nil {
		if err := s.term.EnterRaw(); err != nil {
			return fmt.Errorf("shell: entering raw mode: %w", err)
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     history.DefaultPath(),
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "",
		VimMode:         false,
	})
	if err != nil {
		return fmt.Errorf("shell: starting readline: %w", err)
	}
	defer rl.Close()

	for {
		s.reportDone()

		rl.SetPrompt(s.prompt())
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}

		if err := s.RunLine(line); err != nil {
			var exitErr *builtin.ExitError
			if errors.As(err, &exitErr) {
				s.exitCode = exitErr.Code
				return nil
			}
			fmt.Fprintf(os.Stderr, "myshell: %v\n", err)
		}
	}
}

// RunBatch executes every non-empty line of script in order, stopping
// early on an exit builtin or at the first line that returns an error,
// which it returns.
func (s *Shell) RunBatch(script string) error {
	for _, line := range strings.Split(script, "\n") {
		if err := s.RunLine(line); err != nil {
			var exitErr *builtin.ExitError
			if errors.As(err, &exitErr) {
				s.exitCode = exitErr.Code
				return nil
			}
			return err
		}
	}
	return nil
}

// RunLine expands, parses, and executes a single line, recording it to
// history first (spec.md's data-flow order: Editor -> History -> Expander
// -> Parser -> Executor). A blank line after trimming is a no-op: nothing
// is forked and nothing is recorded (spec.md §8 property 5).
func (s *Shell) RunLine(line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}

	s.hist.Append(trimmed, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, "myshell: "+format+"\n", args...)
	})

	expanded, err := expand.Expand(trimmed, lookupEnv, s.substitute)
	if err != nil {
		return fmt.Errorf("expand: %w", err)
	}

	pipeline, err := parse.Parse(expanded)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if len(pipeline.Segments) == 0 {
		return nil
	}

	return s.dispatch(pipeline, trimmed)
}

// dispatch runs pipeline, handling the spec.md §9 open-question resolution
// that a lone built-in segment runs in-process (its own redirection, if
// any, opened directly) while anything piped or multi-segment goes through
// the real fork/exec Executor.
func (s *Shell) dispatch(p *parse.Pipeline, cmdline string) error {
	if len(p.Segments) == 1 {
		seg := p.Segments[0]
		if fn, ok := builtin.Lookup(seg.Argv[0]); ok {
			return s.runBuiltin(fn, seg)
		}
	}

	_, err := s.exec.Run(p, cmdline)
	return err
}

func (s *Shell) runBuiltin(fn builtin.Func, seg *parse.Segment) error {
	ctx := &builtin.Context{
		Args:   seg.Argv[1:],
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		API:    s,
	}

	if seg.Infile != "" {
		f, err := os.Open(seg.Infile)
		if err != nil {
			return fmt.Errorf("%s: %w", seg.Argv[0], err)
		}
		defer f.Close()
		ctx.Stdin = f
	}
	if seg.Outfile != "" {
		flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if seg.Append {
			flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := os.OpenFile(seg.Outfile, flag, 0644)
		if err != nil {
			return fmt.Errorf("%s: %w", seg.Argv[0], err)
		}
		defer f.Close()
		ctx.Stdout = f
	}

	return fn(ctx)
}

// substitute runs command to completion as a nested interpreter (spec.md
// §4.D) sharing this shell's job table and terminal handle — a second
// independent Reaper would race the first over which goroutine's wait4(-1)
// reaps a given child, so the sub-interpreter is a plain Shell value
// without its own Close-able reaper, not a fresh New(). Returns the
// captured, trailing-newline-trimmed stdout; a failing substitution is
// treated as empty output, and its exit status is never propagated,
// matching spec.md's explicit choice not to implement $?.
func (s *Shell) substitute(command string) (string, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	sub := &Shell{term: s.term, jobs: s.jobs, exec: myexec.New(s.term, s.jobs), hist: s.hist}

	origStdout := os.Stdout
	os.Stdout = w
	runErr := sub.RunBatch(command)
	os.Stdout = origStdout
	w.Close()

	out, readErr := io.ReadAll(r)
	r.Close()
	if readErr != nil || runErr != nil {
		return "", nil
	}
	return strings.TrimRight(string(out), "\n"), nil
}

func lookupEnv(name string) (string, bool) {
	return os.LookupEnv(name)
}

// reportDone prints completed background jobs at the top of a REPL
// iteration, never mid-edit (spec.md §4.H ordering guarantee).
func (s *Shell) reportDone() {
	for _, j := range s.jobs.ReapDone() {
		fmt.Printf("[%d]+  Done                    %s\n", j.ID, j.Cmdline)
	}
}

func (s *Shell) prompt() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "?"
	}
	return filepath.Base(wd) + "$ "
}

// completer offers built-in names and every executable on $PATH, replacing
// the teacher's fixed text-processing command list with one generated from
// the actual environment.
func (s *Shell) completer() readline.AutoCompleter {
	names := make(map[string]struct{})
	for name := range builtin.Table {
		names[name] = struct{}{}
	}
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				names[e.Name()] = struct{}{}
			}
		}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	items := make([]readline.PrefixCompleterInterface, len(sorted))
	for i, name := range sorted {
		items[i] = readline.PcItem(name)
	}
	return readline.NewPrefixCompleter(items...)
}
