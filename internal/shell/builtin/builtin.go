// Package builtin implements the shell's built-in commands (spec.md §4.I):
// cd, exit, history, jobs, fg, bg, kill, echo. Grounded on the teacher's
// executeEcho/executeTest-style flag-scanning idiom in
// internal/llmsh/executor.go (a plain switch over the leading "-n"/"-d"
// style flag before consuming the rest of argv), generalized from the
// teacher's in-process io.ReadWriteCloser signature to plain io.Reader/
// io.Writer since these run directly in the shell process.
package builtin

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/mako10k/myshell/internal/shell/history"
	"github.com/mako10k/myshell/internal/shell/job"
)

// API is the shell-level state a builtin may need beyond its own stdio:
// the job table for jobs/fg/bg/kill, the history store, and a hook to
// resume a stopped or backgrounded job through the same machinery a
// freshly launched pipeline uses.
type API interface {
	Jobs() *job.Table
	History() *history.History
	Resume(j *job.Job, foreground bool) error
}

// Context carries one invocation's arguments and redirected streams.
type Context struct {
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	API    API
}

// Func is a built-in command's implementation.
type Func func(ctx *Context) error

// ExitError is returned by the exit builtin; the REPL (internal/shell)
// detects it and terminates the process with Code after restoring the
// terminal and flushing history, rather than the builtin calling os.Exit
// directly and skipping that cleanup.
type ExitError struct{ Code int }

func (e *ExitError) Error() string { return fmt.Sprintf("exit %d", e.Code) }

// Table maps built-in names to their implementations.
var Table = map[string]Func{
	"cd":      cd,
	"exit":    exitBuiltin,
	"history": historyBuiltin,
	"jobs":    jobsBuiltin,
	"fg":      fg,
	"bg":      bg,
	"kill":    kill,
	"echo":    echo,
}

// Lookup returns name's implementation, if it is a built-in.
func Lookup(name string) (Func, bool) {
	fn, ok := Table[name]
	return fn, ok
}

// cd changes the shell's working directory. With no argument it falls back
// to $HOME — the documented resolution of spec.md §9's open question,
// matching the common interactive-shell convention rather than erroring.
func cd(ctx *Context) error {
	dir := ""
	if len(ctx.Args) > 0 {
		dir = ctx.Args[0]
	} else {
		dir = os.Getenv("HOME")
		if dir == "" {
			return fmt.Errorf("cd: HOME not set")
		}
	}
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("cd: %w", err)
	}
	return nil
}

func exitBuiltin(ctx *Context) error {
	code := 0
	if len(ctx.Args) > 0 {
		n, err := strconv.Atoi(ctx.Args[0])
		if err != nil {
			return fmt.Errorf("exit: numeric argument required")
		}
		code = n
	}
	return &ExitError{Code: code}
}

func historyBuiltin(ctx *Context) error {
	for _, e := range ctx.API.History().List() {
		fmt.Fprintf(ctx.Stdout, "%5d  %s\n", e.Index, e.Line)
	}
	return nil
}

// jobsBuiltin lists the job table. A leading "-l" also prints each job's
// pgid, a supplement beyond spec.md's plain "jobs" (see SPEC_FULL.md).
func jobsBuiltin(ctx *Context) error {
	long := len(ctx.Args) > 0 && ctx.Args[0] == "-l"
	for _, j := range ctx.API.Jobs().List() {
		if long {
			fmt.Fprintf(ctx.Stdout, "[%d] %d %s  %s\n", j.ID, j.Pgid, j.State, j.Cmdline)
		} else {
			fmt.Fprintf(ctx.Stdout, "[%d] %s  %s\n", j.ID, j.State, j.Cmdline)
		}
	}
	return nil
}

// resolveJob finds the job named by a "%id", bare "id", or (with none
// given) the most recently added job.
func resolveJob(api API, arg string) (*job.Job, error) {
	if arg == "" {
		j, ok := api.Jobs().MostRecent()
		if !ok {
			return nil, fmt.Errorf("no current job")
		}
		return j, nil
	}
	arg = strings.TrimPrefix(arg, "%")
	id, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid job id: %s", arg)
	}
	j, ok := api.Jobs().ByID(id)
	if !ok {
		return nil, fmt.Errorf("no such job: %s", arg)
	}
	return j, nil
}

func fg(ctx *Context) error {
	arg := ""
	if len(ctx.Args) > 0 {
		arg = ctx.Args[0]
	}
	j, err := resolveJob(ctx.API, arg)
	if err != nil {
		return fmt.Errorf("fg: %w", err)
	}
	fmt.Fprintln(ctx.Stdout, j.Cmdline)
	return ctx.API.Resume(j, true)
}

func bg(ctx *Context) error {
	arg := ""
	if len(ctx.Args) > 0 {
		arg = ctx.Args[0]
	}
	j, err := resolveJob(ctx.API, arg)
	if err != nil {
		return fmt.Errorf("bg: %w", err)
	}
	fmt.Fprintf(ctx.Stdout, "[%d] %s &\n", j.ID, j.Cmdline)
	return ctx.API.Resume(j, false)
}

// signalsByName supports "kill -SIGNAME" / "kill -N" / "kill -l", the
// name-or-number spelling spec.md's grammar leaves open.
var signalsByName = map[string]syscall.Signal{
	"HUP":  syscall.SIGHUP,
	"INT":  syscall.SIGINT,
	"QUIT": syscall.SIGQUIT,
	"KILL": syscall.SIGKILL,
	"USR1": syscall.SIGUSR1,
	"USR2": syscall.SIGUSR2,
	"PIPE": syscall.SIGPIPE,
	"ALRM": syscall.SIGALRM,
	"TERM": syscall.SIGTERM,
	"CHLD": syscall.SIGCHLD,
	"CONT": syscall.SIGCONT,
	"STOP": syscall.SIGSTOP,
	"TSTP": syscall.SIGTSTP,
	"TTIN": syscall.SIGTTIN,
	"TTOU": syscall.SIGTTOU,
}

func parseSignal(spec string) (syscall.Signal, error) {
	spec = strings.TrimPrefix(spec, "-")
	spec = strings.TrimPrefix(spec, "SIG")
	if n, err := strconv.Atoi(spec); err == nil {
		return syscall.Signal(n), nil
	}
	if sig, ok := signalsByName[strings.ToUpper(spec)]; ok {
		return sig, nil
	}
	return 0, fmt.Errorf("unknown signal: %s", spec)
}

// kill implements "kill [-SIG] pid | %id" plus the supplemental "kill -l"
// (list signal names) noted in SPEC_FULL.md.
func kill(ctx *Context) error {
	args := ctx.Args
	if len(args) > 0 && args[0] == "-l" {
		names := make([]string, 0, len(signalsByName))
		for name := range signalsByName {
			names = append(names, name)
		}
		fmt.Fprintln(ctx.Stdout, strings.Join(names, " "))
		return nil
	}

	sig := syscall.SIGTERM
	if len(args) > 0 && strings.HasPrefix(args[0], "-") {
		s, err := parseSignal(args[0])
		if err != nil {
			return fmt.Errorf("kill: %w", err)
		}
		sig = s
		args = args[1:]
	}
	if len(args) == 0 {
		return fmt.Errorf("kill: missing pid or %%job operand")
	}

	target := args[0]
	if strings.HasPrefix(target, "%") {
		j, err := resolveJob(ctx.API, target)
		if err != nil {
			return fmt.Errorf("kill: %w", err)
		}
		if err := syscall.Kill(-j.Pgid, sig); err != nil {
			return fmt.Errorf("kill: %w", err)
		}
		return nil
	}

	pid, err := strconv.Atoi(target)
	if err != nil {
		return fmt.Errorf("kill: invalid pid: %s", target)
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return fmt.Errorf("kill: %w", err)
	}
	return nil
}

// echo writes its arguments joined by single spaces followed by a
// newline, per spec.md §4.I (no -n/-e flag handling: those are coreutils
// extensions, not part of the spec's grammar).
func echo(ctx *Context) error {
	_, err := fmt.Fprintln(ctx.Stdout, strings.Join(ctx.Args, " "))
	return err
}
