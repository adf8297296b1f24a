// observer.go renders orchestration events on the terminal.
package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"rlm-translate/internal/orchestrator"
	"rlm-translate/internal/state"
)

// Output palette shared by the observer and the command handlers.
var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed)
)

// consoleObserver prints engine events as they happen. Progress and repair
// notices always show; per-phase steps and running costs need --verbose;
// --quiet silences everything. Batch runs share one observer across
// goroutines, so writes are serialized.
type consoleObserver struct {
	mu      sync.Mutex
	out     io.Writer
	quiet   bool
	verbose bool
}

var _ orchestrator.Observer = (*consoleObserver)(nil)

func newConsoleObserver(out io.Writer, quiet, verbose bool) *consoleObserver {
	return &consoleObserver{out: out, quiet: quiet, verbose: verbose}
}

func (o *consoleObserver) Progress(message string, fraction float64) {
	if o.quiet {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if fraction > 0 {
		headerColor.Fprintf(o.out, "[%3.0f%%] ", fraction*100)
	} else {
		headerColor.Fprint(o.out, "[ -- ] ")
	}
	fmt.Fprintln(o.out, message)
}

func (o *consoleObserver) Step(name string) {
	if o.quiet || !o.verbose {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.out, "       %s\n", name)
}

func (o *consoleObserver) QualityFlags(flags []state.ChunkStatus) {
	if o.quiet || !o.verbose {
		return
	}
	var repaired, failed int
	for _, f := range flags {
		switch f {
		case state.StatusRepaired:
			repaired++
		case state.StatusFailed:
			failed++
		}
	}
	if repaired == 0 && failed == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if repaired > 0 {
		warnColor.Fprintf(o.out, "       repaired so far: %d\n", repaired)
	}
	if failed > 0 {
		errColor.Fprintf(o.out, "       failed so far: %d\n", failed)
	}
}

func (o *consoleObserver) CostStats(cost float64, calls int, chunks int) {
	if o.quiet || !o.verbose {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.out, "       $%.4f over %d calls, %d chunks committed\n", cost, calls, chunks)
}

func (o *consoleObserver) Repair(repairType state.RepairType, message string) {
	if o.quiet {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	warnColor.Fprintf(o.out, "       repair (%s): %s\n", repairType, message)
}
