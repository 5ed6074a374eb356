// Package term owns the controlling terminal: putting it into
// character-at-a-time mode for the line editor, restoring it on exit, and
// handing process-group ownership to foreground jobs and back. Grounded on
// golang.org/x/sys/unix, the teacher's own indirect dependency (promoted
// here to direct use) — there is no portable stdlib surface for
// tcsetpgrp/ioctl(TIOCSPGRP), which job control requires.
//
//go:build unix

package term

import (
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// Terminal wraps the shell's controlling tty, tracked by fd.
type Terminal struct {
	fd    int
	saved *unix.Termios
}

// Open acquires the terminal on fd (typically os.Stdin.Fd()) and ignores
// the signals a shell must never act on directly: SIGTTOU, SIGTTIN,
// SIGTSTP, SIGINT, SIGQUIT, per spec.md §4.A. The current attributes are
// saved by the first EnterRaw call, not here.
func Open(fd int) (*Terminal, error) {
	t := &Terminal{fd: fd}
	ignoreJobControlSignals()
	return t, nil
}

// IsTTY reports whether fd refers to a terminal device.
func IsTTY(fd int) bool {
	_, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	return err == nil
}

// EnterRaw disables canonical mode and local echo. Idempotent under signal
// restart: calling it twice without an intervening LeaveRaw is a no-op
// because the saved attributes are only captured once.
func (t *Terminal) EnterRaw() error {
	if t.saved == nil {
		saved, err := unix.IoctlGetTermios(t.fd, ioctlGetTermios)
		if err != nil {
			return fmt.Errorf("term: get attributes: %w", err)
		}
		t.saved = saved
	}

	raw := *t.saved
	raw.Lflag &^= unix.ECHO | unix.ICANON | unix.ISIG
	raw.Iflag &^= unix.IXON | unix.ICRNL
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(t.fd, ioctlSetTermios, &raw); err != nil {
		return fmt.Errorf("term: set raw attributes: %w", err)
	}
	return nil
}

// LeaveRaw restores the exact attributes EnterRaw saved.
func (t *Terminal) LeaveRaw() error {
	if t.saved == nil {
		return nil
	}
	if err := unix.IoctlSetTermios(t.fd, ioctlSetTermios, t.saved); err != nil {
		return fmt.Errorf("term: restore attributes: %w", err)
	}
	return nil
}

// Foreground returns the pgid currently owning the terminal.
func (t *Terminal) Foreground() (int, error) {
	pgid, err := unix.IoctlGetInt(t.fd, unix.TIOCGPGRP)
	if err != nil {
		return 0, fmt.Errorf("term: tcgetpgrp: %w", err)
	}
	return pgid, nil
}

// SetForeground hands the terminal to pgid (tcsetpgrp). Every call that
// hands it to a job must be matched by a later call handing it back to the
// shell's own process group, on every exit path including errors — see
// Executor.runForeground.
func (t *Terminal) SetForeground(pgid int) error {
	if err := unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, pgid); err != nil {
		return fmt.Errorf("term: tcsetpgrp(%d): %w", pgid, err)
	}
	return nil
}

// ignoreJobControlSignals makes terminal-control operations on the shell
// process itself unable to stop it, per spec.md §4.A and §4.H.
func ignoreJobControlSignals() {
	signal.Ignore(syscall.SIGTTOU, syscall.SIGTTIN, syscall.SIGTSTP, syscall.SIGINT, syscall.SIGQUIT)
}
