package orchestrator

import (
	"unicode/utf8"

	"rlm-translate/internal/state"
	"rlm-translate/internal/textutil"
)

// selectNextChunk picks the index to work on next, or -1 when every chunk
// has been committed.
func (o *Orchestrator) selectNextChunk() int {
	remaining := o.state.Plan.Remaining()
	if len(remaining) == 0 {
		return -1
	}
	switch o.strategy {
	case state.StrategyAdaptive:
		return o.selectAdaptive(remaining)
	case state.StrategyPriority:
		return selectPriority(o.state.Plan.Chunks, remaining)
	default:
		return remaining[0]
	}
}

// selectAdaptive favors the remaining chunk most lexically similar to the
// most recently committed translation, keeping runs of related content
// together. The opening round and ties fall back to the lowest index.
func (o *Orchestrator) selectAdaptive(remaining []int) int {
	if len(remaining) < 2 || o.lastCommitted == "" {
		return remaining[0]
	}
	best := remaining[0]
	bestSim := 0.0
	for _, idx := range remaining {
		sim := textutil.JaccardSimilarity(o.lastCommitted, o.state.Plan.Chunks[idx].Text)
		if sim > bestSim {
			bestSim = sim
			best = idx
		}
	}
	return best
}

// selectPriority works through the earliest contiguous run of uncommitted
// chunks, shortest first.
func selectPriority(chunks []state.Chunk, remaining []int) int {
	run := []int{remaining[0]}
	for _, idx := range remaining[1:] {
		if idx != run[len(run)-1]+1 {
			break
		}
		run = append(run, idx)
	}
	best := run[0]
	bestLen := utf8.RuneCountInString(chunks[best].Text)
	for _, idx := range run[1:] {
		if n := utf8.RuneCountInString(chunks[idx].Text); n < bestLen {
			bestLen = n
			best = idx
		}
	}
	return best
}
