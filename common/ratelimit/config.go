package ratelimit

// Policy carries the intake limits the middleware enforces. Both limits
// share one window; either can be disabled by setting it to zero.
type Policy struct {
	PerOrg        int64 // Runs allowed per org per window (0 = unlimited)
	Global        int64 // Runs allowed service-wide per window (0 = unlimited)
	WindowSeconds int   // Fixed window length
}

// DefaultPolicy matches the documented environment defaults
var DefaultPolicy = Policy{
	PerOrg:        60,
	Global:        600,
	WindowSeconds: 60,
}

// Window returns the configured window, falling back to one minute
func (p Policy) Window() int {
	if p.WindowSeconds <= 0 {
		return DefaultPolicy.WindowSeconds
	}
	return p.WindowSeconds
}
