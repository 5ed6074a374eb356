// Package job implements the Job Table of spec.md §4.G: jobs tracked by id
// and pgid, with state transitions driven by the SIGCHLD reaper in
// wait_unix.go. Grounded on the teacher's VFS pipe bookkeeping pattern
// (internal/llmsh/vfs.go: an owning table keyed by a small id, cleaned up
// on completion) generalized from file handles to process-group records.
package job

import (
	"fmt"
	"sort"
	"sync"
)

// State is one of a Job's lifecycle states, per spec.md §3.
type State int

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// Job is a pipeline tracked after fork.
type Job struct {
	ID      int
	Pgid    int
	State   State
	Cmdline string
	// Background records whether the job was launched with '&' (and is
	// updated when fg/bg resume it).
	Background bool

	// remaining counts pipeline members not yet reaped. waitpid reports
	// per-pid exits, not per-group, so the job only becomes Done once
	// every member has exited.
	remaining int
}

const defaultCapacity = 64

// Table is the job table: a mapping from id to Job with a secondary index
// on pgid, bounded capacity, single-threaded except for the state field
// which the SIGCHLD reaper also updates — guarded here by mu rather than
// the raw async-signal-safe field writes spec.md §5 describes, since Go's
// os/signal delivers over a channel to an ordinary goroutine (see
// wait_unix.go), not a true signal handler.
type Table struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	nextID   int
	byID     map[int]*Job
	byPgid   map[int]*Job
	// byPid maps each live pipeline member pid to its pgid. waitpid(2)
	// cannot be asked for a reaped pid's group afterward, so the
	// reaper needs this recorded at spawn time rather than queried later.
	byPid map[int]int
}

// NewTable creates an empty job table with the given capacity (spec.md §3:
// bounded, capacity ≥ 64).
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	t := &Table{
		capacity: capacity,
		nextID:   1,
		byID:     make(map[int]*Job),
		byPgid:   make(map[int]*Job),
		byPid:    make(map[int]int),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// WaitForeground blocks until the job owning pgid leaves the Running state
// (Stopped or Done) and returns that state. This is how the REPL's
// synchronous foreground wait (spec.md §4.F.3/§4.H) is realized without a
// second goroutine also calling wait4 on the same pgid: the single
// SIGCHLD reader goroutine (wait_unix.go) is the only caller of wait4, and
// state changes it records are broadcast here. Returns (Done, false) if
// the job is not present (already reaped and removed).
func (t *Table) WaitForeground(pgid int) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		j, ok := t.byPgid[pgid]
		if !ok {
			return Done, false
		}
		if j.State != Running {
			return j.State, true
		}
		t.cond.Wait()
	}
}

// Add registers a newly launched pipeline and returns its id. pids lists
// every process sharing pgid (one per pipeline segment); the job only
// transitions to Done once each of them has been reaped, since waitpid
// reports exits per-pid, not per-group. Ids are recycled once a job is
// removed.
func (t *Table) Add(pgid int, cmdline string, background bool, pids []int) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.byID) >= t.capacity {
		return nil, fmt.Errorf("job: table full (capacity %d)", t.capacity)
	}
	members := len(pids)
	if members < 1 {
		members = 1
	}

	id := t.allocID()
	j := &Job{ID: id, Pgid: pgid, State: Running, Cmdline: cmdline, Background: background, remaining: members}
	t.byID[id] = j
	t.byPgid[pgid] = j
	for _, pid := range pids {
		t.byPid[pid] = pgid
	}
	return j, nil
}

// PgidForPid returns the process group a still-tracked pid belongs to. The
// reaper calls this for a pid waitpid just reaped, since the kernel no
// longer answers getpgid(2) for it once reaping has occurred.
func (t *Table) PgidForPid(pid int) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pgid, ok := t.byPid[pid]
	return pgid, ok
}

// allocID finds the smallest unused positive id, so ids are reused after
// removal rather than growing unboundedly.
func (t *Table) allocID() int {
	for id := 1; ; id++ {
		if _, ok := t.byID[id]; !ok {
			return id
		}
	}
}

// ByID returns the job with the given id, if any.
func (t *Table) ByID(id int) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.byID[id]
	return j, ok
}

// ByPgid returns the job owning the given process group, if any.
func (t *Table) ByPgid(pgid int) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.byPgid[pgid]
	return j, ok
}

// UpdateState transitions the job owning pgid to state. Called from the
// reap loop; touches only the state field, per spec.md §4.G.
func (t *Table) UpdateState(pgid int, state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.byPgid[pgid]; ok {
		j.State = state
	}
	t.cond.Broadcast()
}

// MemberExited records that the pipeline member pid (belonging to pgid) has
// been reaped, decrementing the outstanding-process count for the job
// owning pgid and transitioning it to Done once every member has exited.
// Returns whether the job reached Done on this call.
func (t *Table) MemberExited(pgid, pid int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byPid, pid)
	j, ok := t.byPgid[pgid]
	if !ok {
		return false
	}
	if j.remaining > 0 {
		j.remaining--
	}
	if j.remaining == 0 {
		j.State = Done
		t.cond.Broadcast()
		return true
	}
	return false
}

// Remove deletes a job from both indices.
func (t *Table) Remove(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.byID[id]; ok {
		delete(t.byPgid, j.Pgid)
		delete(t.byID, id)
		for pid, pgid := range t.byPid {
			if pgid == j.Pgid {
				delete(t.byPid, pid)
			}
		}
	}
	t.cond.Broadcast()
}

// List returns all jobs ordered by id ascending, stable.
func (t *Table) List() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	jobs := make([]*Job, 0, len(t.byID))
	for _, j := range t.byID {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID < jobs[k].ID })
	return jobs
}

// ReapDone returns (and removes) every job currently in the Done state, in
// id order. Called at the top of each REPL iteration so a background job's
// completion is reported at the next prompt, never mid-edit, per spec.md
// §4.H.
func (t *Table) ReapDone() []*Job {
	t.mu.Lock()
	var done []*Job
	for id, j := range t.byID {
		if j.State == Done {
			done = append(done, j)
			delete(t.byID, id)
			delete(t.byPgid, j.Pgid)
			for pid, pgid := range t.byPid {
				if pgid == j.Pgid {
					delete(t.byPid, pid)
				}
			}
		}
	}
	t.mu.Unlock()
	sort.Slice(done, func(i, k int) bool { return done[i].ID < done[k].ID })
	return done
}

// MostRecent returns the highest-id job, used as the default target of
// fg/bg with no argument.
func (t *Table) MostRecent() (*Job, bool) {
	jobs := t.List()
	if len(jobs) == 0 {
		return nil, false
	}
	return jobs[len(jobs)-1], true
}
