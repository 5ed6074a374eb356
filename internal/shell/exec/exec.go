// Package exec launches pipelines as real OS processes: pipes and
// redirections are wired with os.Pipe and *os.File, process groups with
// syscall.SysProcAttr, and foreground terminal ownership through
// internal/shell/term. Grounded on the teacher's internal/llmsh/executor.go
// pipe-plumbing structure (per-stage stdin/stdout wiring, last segment vs.
// middle segment), re-targeted from the teacher's in-process VFS dispatch
// to real fork+exec, and on other_examples' orospakr-spawnexec cmd.go for
// the SysProcAttr.{Setpgid,Pgid,Foreground} field shapes.
package exec

import (
	"fmt"
	"os"
	gexec "os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mako10k/myshell/internal/shell/job"
	"github.com/mako10k/myshell/internal/shell/parse"
	"github.com/mako10k/myshell/internal/shell/term"
)

// childDefaultSignals lists the job-control signals the shell itself
// ignores (term.ignoreJobControlSignals) but spec.md §4.F.1.b requires
// every forked child to receive with SIG_DFL restored. signal.Ignore sets
// true SIG_IGN at the OS level, and POSIX execve(2) carries SIG_IGN
// dispositions across exec unchanged (only *caught* signals, i.e. ones
// with an installed handler such as SIGCHLD via signal.Notify, are reset
// to SIG_DFL by exec automatically). Without this bracket every child
// would inherit SIGINT/SIGTSTP as ignored, so Ctrl-C and "kill -TSTP"
// would have no effect on any foreground job.
var childDefaultSignals = []os.Signal{
	syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTSTP, syscall.SIGTTIN, syscall.SIGTTOU,
}

// forkMu serializes the disposition toggle around cmd.Start() below, so
// two pipelines forking concurrently (e.g. a background job launched while
// a command substitution's sub-interpreter is spawning) can't race over
// the shell process's own signal dispositions.
var forkMu sync.Mutex

// Executor launches pipelines and owns the shell's own process group id,
// used to hand the terminal back after a foreground job returns or stops.
type Executor struct {
	Term      *term.Terminal
	Jobs      *job.Table
	ShellPgid int
}

// New creates an Executor. ShellPgid is captured once at startup (the
// shell's own pgid, equal to its pid since it is a session/process-group
// leader in the common case of being launched directly from a terminal).
func New(t *term.Terminal, jobs *job.Table) *Executor {
	pgid, err := syscall.Getpgid(os.Getpid())
	if err != nil {
		pgid = os.Getpid()
	}
	return &Executor{Term: t, Jobs: jobs, ShellPgid: pgid}
}

// Run launches pipeline p (cmdline is the original text, kept for jobs/
// history display). For a foreground pipeline it blocks until the group
// finishes or stops and returns the job only if it stopped (a job that
// runs to completion in the foreground is reaped and never surfaced).
// For a background pipeline it registers the job, prints "[id] pgid", and
// returns immediately.
func (e *Executor) Run(p *parse.Pipeline, cmdline string) (*job.Job, error) {
	if len(p.Segments) == 0 {
		return nil, nil
	}

	pgid, pids, err := e.spawn(p)
	if err != nil {
		return nil, err
	}

	if p.Background {
		j, err := e.Jobs.Add(pgid, cmdline, true, pids)
		if err != nil {
			return nil, err
		}
		fmt.Printf("[%d] %d\n", j.ID, j.Pgid)
		return j, nil
	}

	return e.runForeground(pgid, pids, cmdline)
}

// spawn forks every segment of p in order, wiring pipes between adjacent
// stages and redirections at the ends, and returns the pipeline's process
// group id and member pids.
func (e *Executor) spawn(p *parse.Pipeline) (pgid int, pids []int, err error) {
	n := len(p.Segments)
	var prevRead *os.File
	cleanup := func(files ...*os.File) {
		for _, f := range files {
			if f != nil {
				f.Close()
			}
		}
	}

	for i, seg := range p.Segments {
		if len(seg.Argv) == 0 {
			cleanup(prevRead)
			return 0, nil, fmt.Errorf("exec: empty command")
		}

		cmd := gexec.Command(seg.Argv[0], seg.Argv[1:]...)
		cmd.Stderr = os.Stderr

		var stdinFile, stdoutFile *os.File
		switch {
		case i > 0:
			stdinFile = prevRead
		case seg.Infile != "":
			f, oerr := os.Open(seg.Infile)
			if oerr != nil {
				cleanup(prevRead)
				return 0, nil, fmt.Errorf("exec: %s: %w", seg.Infile, oerr)
			}
			stdinFile = f
		case p.Background:
			f, oerr := os.OpenFile(os.DevNull, os.O_RDONLY, 0)
			if oerr != nil {
				cleanup(prevRead)
				return 0, nil, fmt.Errorf("exec: %w", oerr)
			}
			stdinFile = f
		default:
			stdinFile = os.Stdin
		}
		cmd.Stdin = stdinFile

		var nextRead *os.File
		if i < n-1 {
			r, w, perr := os.Pipe()
			if perr != nil {
				cleanup(prevRead, stdinFile)
				return 0, nil, fmt.Errorf("exec: pipe: %w", perr)
			}
			stdoutFile = w
			nextRead = r
		} else if seg.Outfile != "" {
			// O_CREAT|(append ? O_APPEND : O_TRUNC), mode 0644, per spec.md §4.F.
			flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			if seg.Append {
				flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
			}
			f, oerr := os.OpenFile(seg.Outfile, flag, 0644)
			if oerr != nil {
				cleanup(prevRead, stdinFile, nextRead)
				return 0, nil, fmt.Errorf("exec: %s: %w", seg.Outfile, oerr)
			}
			stdoutFile = f
		} else {
			stdoutFile = os.Stdout
		}
		cmd.Stdout = stdoutFile

		// Every child joins pgid (the first child's own pid); the
		// redundant parent-side Setpgid below closes the race where a
		// later child execs before the parent's call lands.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}

		// The child must start with default dispositions for these five
		// (spec.md §4.F.1.b), but the shell ignores them for itself via
		// signal.Ignore in internal/shell/term — SIG_IGN survives exec, so
		// the reset has to happen in the parent before fork and be undone
		// right after Start returns (fork has completed by then).
		forkMu.Lock()
		signal.Reset(childDefaultSignals...)
		startErr := cmd.Start()
		signal.Ignore(childDefaultSignals...)
		forkMu.Unlock()
		if startErr != nil {
			cleanup(prevRead, stdinFile, stdoutFile, nextRead)
			return 0, nil, fmt.Errorf("exec: %s: %w", seg.Argv[0], startErr)
		}

		if i == 0 {
			pgid = cmd.Process.Pid
		}
		_ = syscall.Setpgid(cmd.Process.Pid, pgid)
		pids = append(pids, cmd.Process.Pid)

		// The parent's copies of fds now owned by a started child are
		// closed promptly so EOF propagates once every writer exits.
		if prevRead != nil {
			prevRead.Close()
		}
		if stdinFile != os.Stdin && stdinFile != prevRead {
			stdinFile.Close()
		}
		if stdoutFile != os.Stdout {
			stdoutFile.Close()
		}
		prevRead = nextRead
	}

	return pgid, pids, nil
}

// runForeground hands the terminal to pgid, blocks until the job leaves
// Running, then reclaims the terminal unconditionally. A job that stops is
// registered and returned so fg can resume it later; a job that runs to
// completion is removed from the table right after the wait (spec.md §3:
// foreground jobs are removed immediately after wait).
func (e *Executor) runForeground(pgid int, pids []int, cmdline string) (*job.Job, error) {
	j, err := e.Jobs.Add(pgid, cmdline, false, pids)
	if err != nil {
		return nil, err
	}

	if e.Term != nil {
		if err := e.Term.SetForeground(pgid); err != nil {
			fmt.Fprintf(os.Stderr, "myshell: %v\n", err)
		}
	}

	state, _ := e.Jobs.WaitForeground(pgid)

	if e.Term != nil {
		if err := e.Term.SetForeground(e.ShellPgid); err != nil {
			fmt.Fprintf(os.Stderr, "myshell: %v\n", err)
		}
	}

	if state == job.Stopped {
		return j, nil
	}
	e.Jobs.Remove(j.ID)
	return nil, nil
}

// Resume sends SIGCONT to j's process group. fg additionally waits in the
// foreground exactly as a freshly launched pipeline would; bg leaves it
// running in the background.
func (e *Executor) Resume(j *job.Job, foreground bool) error {
	if err := syscall.Kill(-j.Pgid, syscall.SIGCONT); err != nil {
		return fmt.Errorf("exec: kill(SIGCONT): %w", err)
	}
	e.Jobs.UpdateState(j.Pgid, job.Running)

	if !foreground {
		j.Background = true
		return nil
	}

	j.Background = false
	if e.Term != nil {
		if err := e.Term.SetForeground(j.Pgid); err != nil {
			fmt.Fprintf(os.Stderr, "myshell: %v\n", err)
		}
	}
	state, ok := e.Jobs.WaitForeground(j.Pgid)
	if e.Term != nil {
		if err := e.Term.SetForeground(e.ShellPgid); err != nil {
			fmt.Fprintf(os.Stderr, "myshell: %v\n", err)
		}
	}
	if ok && state == job.Done {
		e.Jobs.Remove(j.ID)
	}
	return nil
}

// Note on SIGCHLD: unlike the five signals reset around cmd.Start() above,
// SIGCHLD needs no such bracket. The shell never calls signal.Ignore on it;
// job.Reaper installs a real (os/signal.Notify-backed) handler, which is a
// *caught* disposition, and POSIX execve(2) resets caught signals to
// SIG_DFL automatically — only SIG_IGN survives exec unchanged.
