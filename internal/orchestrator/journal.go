package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"platen/internal/history"
	"platen/internal/protocol"
	"platen/internal/services"
)

// RunEvent is one journaled worker event. Seq starts at 1 and increases in
// delivery order within a run; StageIndex is -1 for single-script runs.
type RunEvent struct {
	Seq        int64
	StageIndex int
	PluginID   string
	At         time.Time
	Event      protocol.Event
}

const (
	// journalCap bounds the per-run event backlog; the oldest events fall
	// off once a worker is chattier than clients consume.
	journalCap = 10000
	// journalRetain keeps a few finished journals around so a client can
	// fetch the tail of a run that just ended.
	journalRetain = 4

	pollInterval = 100 * time.Millisecond
)

type runJournal struct {
	mu     sync.Mutex
	events []RunEvent
	next   int64
	done   bool
}

func (j *runJournal) append(stageIndex int, plugin string, event protocol.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.next++
	j.events = append(j.events, RunEvent{
		Seq:        j.next,
		StageIndex: stageIndex,
		PluginID:   plugin,
		At:         time.Now(),
		Event:      event,
	})
	if len(j.events) > journalCap {
		j.events = j.events[len(j.events)-journalCap:]
	}
}

// after returns copies of the events with Seq > seq and whether the run has
// finished journaling.
func (j *runJournal) after(seq int64) ([]RunEvent, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.events) == 0 {
		return nil, j.done
	}
	first := j.events[0].Seq
	offset := seq - first + 1
	if offset < 0 {
		offset = 0
	}
	if offset >= int64(len(j.events)) {
		return nil, j.done
	}
	out := make([]RunEvent, len(j.events)-int(offset))
	copy(out, j.events[offset:])
	return out, j.done
}

func (j *runJournal) finish() {
	j.mu.Lock()
	j.done = true
	j.mu.Unlock()
}

// journalSet tracks the journals of the active run and a few finished ones.
type journalSet struct {
	mu       sync.Mutex
	journals map[string]*runJournal
	finished []string
}

func newJournalSet() *journalSet {
	return &journalSet{journals: make(map[string]*runJournal)}
}

func (s *journalSet) open(runID string) *runJournal {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &runJournal{}
	s.journals[runID] = j
	return j
}

func (s *journalSet) get(runID string) (*runJournal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.journals[runID]
	return j, ok
}

// finish marks the run's journal done and evicts the oldest finished
// journals beyond the retention window.
func (s *journalSet) finish(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.journals[runID]
	if !ok {
		return
	}
	j.finish()
	s.finished = append(s.finished, runID)
	for len(s.finished) > journalRetain {
		evict := s.finished[0]
		s.finished = s.finished[1:]
		delete(s.journals, evict)
	}
}

// RunEvents returns the journaled events of runID with Seq > afterSeq. When
// none are available yet it polls until wait elapses, an event arrives, or
// the run finishes. The done result reports that no further events will
// come. A run that is known to history but no longer journaled reports done
// with no events; an unknown run id is an error.
func (o *Orchestrator) RunEvents(ctx context.Context, runID string, afterSeq int64, wait time.Duration) ([]RunEvent, bool, error) {
	deadline := time.Now().Add(wait)
	for {
		j, ok := o.journals.get(runID)
		if !ok {
			if _, err := o.store.Get(ctx, runID); err != nil {
				if errors.Is(err, history.ErrNotFound) {
					return nil, false, services.Wrap(services.ErrNotFound, "orchestrator", "run events",
						fmt.Sprintf("unknown run %s", runID), nil)
				}
				return nil, false, err
			}
			return nil, true, nil
		}
		events, done := j.after(afterSeq)
		if len(events) > 0 || done || wait <= 0 || !time.Now().Before(deadline) {
			return events, done, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
