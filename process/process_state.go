package process

// ProcessState represents the state of a process
type ProcessState string

const (
	ProcessRunning    ProcessState = "R" // Running
	ProcessSleeping   ProcessState = "S" // Sleeping in an interruptible wait
	ProcessWaiting    ProcessState = "D" // Waiting in uninterruptible disk sleep
	ProcessZombie     ProcessState = "Z" // Zombie
	ProcessStopped    ProcessState = "T" // Stopped (on a signal)
	ProcessTracingStp ProcessState = "t" // Tracing stop
	ProcessDead       ProcessState = "X" // Dead
	ProcessUnknown    ProcessState = "?"
)

// Alive reports whether a process in this state can still be traced.
func (ps ProcessState) Alive() bool {
	switch ps {
	case ProcessZombie, ProcessDead, ProcessUnknown, "":
		return false
	}
	return true
}

// JobStopped reports a group-stop that is not a ptrace stop. A tracee left
// in this state after detach needs a SIGCONT to run again.
func (ps ProcessState) JobStopped() bool {
	return ps == ProcessStopped
}
