//go:build linux

package auth

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

func procStat(pid int) (procfs.ProcStat, error) {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return procfs.ProcStat{}, err
	}
	st, err := p.Stat()
	if err != nil {
		return procfs.ProcStat{}, fmt.Errorf("proc stat %d: %w", pid, err)
	}
	return st, nil
}

// ProcessStartTime returns the start time of pid in clock ticks since boot.
func ProcessStartTime(pid int) (uint64, error) {
	st, err := procStat(pid)
	if err != nil {
		return 0, err
	}
	return st.Starttime, nil
}

// ProcessAlive reports whether pid is still running. When start is non-zero
// the process must also have that start time, so a reused pid counts as gone.
func ProcessAlive(pid int, start uint64) bool {
	if pid <= 0 {
		return false
	}
	if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
		return false
	}
	st, err := procStat(pid)
	if err != nil {
		// kill saw it; /proc may be hidden from us.
		return !errors.Is(err, fs.ErrNotExist)
	}
	if st.State == "Z" || st.State == "X" {
		return false
	}
	return start == 0 || st.Starttime == start
}
