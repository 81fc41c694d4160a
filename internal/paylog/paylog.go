// Package paylog gives each worker a named structured sub-logger built
// on go-ethereum's log package, so log lines are attributable to the
// component that emitted them without a baked-in prefix string at every
// call site.
package paylog

import "github.com/ethereum/go-ethereum/log"

// For names the three workers (and the CLIs) log under.
const (
	Engine     = "engine"
	Payreq     = "payreq"
	Executor   = "executor"
	Dashboard  = "dashboard"
	Migrate    = "migrate"
	Secret     = "secret"
	Zaptrial   = "zaptrial"
)

// For returns a logger tagged with "component", name.
func For(name string) log.Logger {
	return log.New("component", name)
}
