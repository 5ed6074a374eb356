package builtin

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/mako10k/myshell/internal/shell/history"
	"github.com/mako10k/myshell/internal/shell/job"
)

type fakeAPI struct {
	jobs    *job.Table
	hist    *history.History
	resumed []*job.Job
}

func (f *fakeAPI) Jobs() *job.Table          { return f.jobs }
func (f *fakeAPI) History() *history.History { return f.hist }
func (f *fakeAPI) Resume(j *job.Job, fg bool) error {
	f.resumed = append(f.resumed, j)
	return nil
}

func newFakeAPI(t *testing.T) *fakeAPI {
	h, err := history.Open(t.TempDir()+"/hist", 100)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	return &fakeAPI{jobs: job.NewTable(8), hist: h}
}

func run(ctx *Context, name string) error {
	fn, ok := Lookup(name)
	if !ok {
		panic("no such builtin: " + name)
	}
	return fn(ctx)
}

func TestEcho(t *testing.T) {
	var out bytes.Buffer
	ctx := &Context{Args: []string{"a", "b", "c"}, Stdout: &out}
	if err := run(ctx, "echo"); err != nil {
		t.Fatalf("echo: %v", err)
	}
	if out.String() != "a b c\n" {
		t.Fatalf("got %q", out.String())
	}
}

func TestEchoNoArgs(t *testing.T) {
	var out bytes.Buffer
	ctx := &Context{Stdout: &out}
	if err := run(ctx, "echo"); err != nil {
		t.Fatalf("echo: %v", err)
	}
	if out.String() != "\n" {
		t.Fatalf("got %q", out.String())
	}
}

func TestExitDefault(t *testing.T) {
	ctx := &Context{}
	err := run(ctx, "exit")
	ee, ok := err.(*ExitError)
	if !ok || ee.Code != 0 {
		t.Fatalf("got %v; want *ExitError{Code: 0}", err)
	}
}

func TestExitWithCode(t *testing.T) {
	ctx := &Context{Args: []string{"7"}}
	err := run(ctx, "exit")
	ee, ok := err.(*ExitError)
	if !ok || ee.Code != 7 {
		t.Fatalf("got %v; want *ExitError{Code: 7}", err)
	}
}

func TestExitNonNumericIsError(t *testing.T) {
	ctx := &Context{Args: []string{"nope"}}
	if err := run(ctx, "exit"); err == nil {
		t.Fatal("want error for non-numeric exit code")
	}
}

func TestCdNoArgUsesHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cwd, _ := os.Getwd()
	defer os.Chdir(cwd)

	ctx := &Context{}
	if err := run(ctx, "cd"); err != nil {
		t.Fatalf("cd: %v", err)
	}

	wantHome, err := filepath.EvalSymlinks(home)
	if err != nil {
		t.Fatalf("EvalSymlinks(home): %v", err)
	}
	got, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	gotResolved, err := filepath.EvalSymlinks(got)
	if err != nil {
		t.Fatalf("EvalSymlinks(cwd): %v", err)
	}
	if gotResolved != wantHome {
		t.Fatalf("cwd = %s; want %s", gotResolved, wantHome)
	}
}

func TestCdMissingHomeErrors(t *testing.T) {
	t.Setenv("HOME", "")
	ctx := &Context{}
	if err := run(ctx, "cd"); err == nil {
		t.Fatal("want error when HOME is unset and no argument given")
	}
}

func TestJobsListsRegisteredJobs(t *testing.T) {
	api := newFakeAPI(t)
	api.jobs.Add(100, "sleep 5", true, []int{100})

	var out bytes.Buffer
	ctx := &Context{Stdout: &out, API: api}
	if err := run(ctx, "jobs"); err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out.String(), "sleep 5") {
		t.Fatalf("got %q; want it to mention the job's cmdline", out.String())
	}
}

func TestJobsLongFormIncludesPgid(t *testing.T) {
	api := newFakeAPI(t)
	api.jobs.Add(4242, "sleep 5", true, []int{4242})

	var out bytes.Buffer
	ctx := &Context{Args: []string{"-l"}, Stdout: &out, API: api}
	if err := run(ctx, "jobs"); err != nil {
		t.Fatalf("jobs -l: %v", err)
	}
	if !strings.Contains(out.String(), "4242") {
		t.Fatalf("got %q; want it to mention the pgid", out.String())
	}
}

func TestFgResolvesMostRecentByDefault(t *testing.T) {
	api := newFakeAPI(t)
	api.jobs.Add(100, "sleep 1", true, []int{100})
	j2, _ := api.jobs.Add(200, "sleep 2", true, []int{200})

	var out bytes.Buffer
	ctx := &Context{Stdout: &out, API: api}
	if err := run(ctx, "fg"); err != nil {
		t.Fatalf("fg: %v", err)
	}
	if len(api.resumed) != 1 || api.resumed[0].ID != j2.ID {
		t.Fatalf("resumed %v; want job %d", api.resumed, j2.ID)
	}
}

func TestFgUnknownJobIsError(t *testing.T) {
	api := newFakeAPI(t)
	ctx := &Context{Args: []string{"%9"}, Stdout: &bytes.Buffer{}, API: api}
	if err := run(ctx, "fg"); err == nil {
		t.Fatal("want error for unknown job id")
	}
}

func TestHistoryListsEntries(t *testing.T) {
	api := newFakeAPI(t)
	api.hist.Append("echo one", func(string, ...any) {})
	api.hist.Append("echo two", func(string, ...any) {})

	var out bytes.Buffer
	ctx := &Context{Stdout: &out, API: api}
	if err := run(ctx, "history"); err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out.String(), "echo one") || !strings.Contains(out.String(), "echo two") {
		t.Fatalf("got %q", out.String())
	}
}

func TestKillByPid(t *testing.T) {
	// Signal 0 performs a no-op existence/permission check; target our own
	// pid so the test needs no special privileges.
	api := newFakeAPI(t)
	ctx := &Context{Args: []string{"-0", strconv.Itoa(os.Getpid())}, API: api}
	if err := run(ctx, "kill"); err != nil {
		t.Fatalf("kill -0 self: %v", err)
	}
}

func TestKillUnknownSignalIsError(t *testing.T) {
	api := newFakeAPI(t)
	ctx := &Context{Args: []string{"-NOTASIGNAL", "1"}, API: api}
	if err := run(ctx, "kill"); err == nil {
		t.Fatal("want error for unknown signal name")
	}
}

func TestKillMissingOperandIsError(t *testing.T) {
	api := newFakeAPI(t)
	ctx := &Context{API: api}
	if err := run(ctx, "kill"); err == nil {
		t.Fatal("want error for missing pid/job operand")
	}
}

func TestLookupUnknownBuiltin(t *testing.T) {
	if _, ok := Lookup("not-a-builtin"); ok {
		t.Fatal("want miss for a non-builtin name")
	}
}
