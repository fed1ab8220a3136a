// Package signal provides a small helper for invoking a shutdown
// callback on SIGINT/SIGTERM, used by cmd/aoecasd to cancel the engine's
// context in response to an operator-requested stop.
package signal // import "github.com/chronos-tachyon/aoe-cas/server/signal"

import (
	"os"
	"os/signal"
	"syscall"
)

// ShutdownSignals are the signals that should trigger a graceful stop of
// the AoE engine's frame loop.
var ShutdownSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}

// Catcher invokes a callback each time one of a set of signals arrives,
// until Close is called.
type Catcher struct {
	ch chan os.Signal
}

// Catch starts watching signals and invokes fn on every delivery, until
// the returned Catcher is closed.
func Catch(signals []os.Signal, fn func()) *Catcher {
	ch := make(chan os.Signal, 1)
	sc := &Catcher{ch: ch}
	go func() {
		for sig := range ch {
			if sig == nil {
				return
			}
			if fn != nil {
				fn()
			}
		}
	}()
	signal.Notify(sc.ch, signals...)
	return sc
}

// Close stops watching for signals and releases the Catcher's goroutine.
func (sc *Catcher) Close() error {
	signal.Stop(sc.ch)
	close(sc.ch)
	return nil
}
