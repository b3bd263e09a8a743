package application

import "expvar"

// Counters are published under the "auth" expvar map and served by the debug
// module.
var (
	authVars       = expvar.NewMap("auth")
	loginSuccesses = newCounter("login_success")
	loginFailures  = newCounter("login_failure")
	accountLocked  = newCounter("account_locked")
	registrations  = newCounter("register_success")
)

func newCounter(name string) *expvar.Int {
	v := new(expvar.Int)
	authVars.Set(name, v)
	return v
}
