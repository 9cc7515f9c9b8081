package process

import "fmt"

// ProcessID represents a unique identifier for a process or thread
type ProcessID int

func (pid ProcessID) String() string {
	return fmt.Sprintf("%d", int(pid))
}

// ProcessInfo is the subset of /proc/[pid]/status memfetch cares about
type ProcessInfo struct {
	PID     ProcessID    // Process (or thread) ID
	Tgid    ProcessID    // Thread group leader
	Name    string       // Name: line of the status file
	State   ProcessState // Process state (R, S, D, Z, t, etc.)
	Threads int          // Number of threads in the group
}

// IsThread reports whether PID names a secondary thread rather than the
// thread group leader.
func (pi ProcessInfo) IsThread() bool {
	return pi.Tgid != 0 && pi.Tgid != pi.PID
}
