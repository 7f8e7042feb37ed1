package environment

// TeardownReport summarizes which configured units came down cleanly
// during Stop and which returned an error from their runner's Stop.
// The container runner logs a failed container termination ("leaks are
// logged, never raised", §4.1) and does not return it, so such a leak
// shows up in the log, not in Leaked.
type TeardownReport struct {
	Stopped []string
	Leaked  []TeardownFailure
}

// TeardownFailure names a unit whose Stop call returned an error.
type TeardownFailure struct {
	Service string
	Err     error
}

// Clean reports whether every unit stopped without error.
func (r *TeardownReport) Clean() bool { return len(r.Leaked) == 0 }
