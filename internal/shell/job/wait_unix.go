//go:build unix

package job

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// Reaper drains child status changes into a Table. Grounded on spec.md
// §4.H's SIGCHLD handler, realized the Go-idiomatic way described in
// spec.md §9's "cleaner re-architecture" note: os/signal delivers SIGCHLD
// over a channel to an ordinary goroutine, which plays the role of the
// self-pipe/eventfd the spec recommends, so the reap loop runs with full
// library access instead of being restricted to async-signal-safe field
// writes.
type Reaper struct {
	table *Table
	sigCh chan os.Signal
	done  chan struct{}
}

// StartReaper installs the SIGCHLD notification and begins draining child
// status changes into table. Call Stop to shut it down.
func StartReaper(table *Table) *Reaper {
	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, syscall.SIGCHLD)

	r := &Reaper{table: table, sigCh: sigCh, done: make(chan struct{})}
	go r.loop()
	return r
}

// Stop withdraws the SIGCHLD notification and ends the reap goroutine.
func (r *Reaper) Stop() {
	signal.Stop(r.sigCh)
	close(r.done)
}

func (r *Reaper) loop() {
	for {
		select {
		case <-r.sigCh:
			r.drain()
		case <-r.done:
			return
		}
	}
}

// drain calls wait4(-1, WNOHANG|WUNTRACED|WCONTINUED) until no more status
// changes are pending, updating the job table for each reaped pid. A
// stopped or continued process is still alive, so its pgid can still be
// queried directly; an exited or signaled one has already been reaped by
// Wait4 above and the kernel no longer answers getpgid(2) for it, so its
// group is looked up from the table's own spawn-time record instead.
func (r *Reaper) drain() {
	var ws unix.WaitStatus
	for {
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if err != nil || pid <= 0 {
			return
		}
		switch {
		case ws.Stopped():
			if pgid, err := unix.Getpgid(pid); err == nil {
				r.table.UpdateState(pgid, Stopped)
			}
		case ws.Continued():
			if pgid, err := unix.Getpgid(pid); err == nil {
				r.table.UpdateState(pgid, Running)
			}
		case ws.Exited(), ws.Signaled():
			if pgid, ok := r.table.PgidForPid(pid); ok {
				r.table.MemberExited(pgid, pid)
			}
		}
	}
}
