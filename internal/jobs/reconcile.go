package jobs

import (
	"fmt"
	"sort"
	"time"
)

// LogEntry is one status-change event of a transaction.
type LogEntry struct {
	StatusID   Status
	StatusTime time.Time
	Actor      string
	Machine    string
	Stage      Stage
}

// Elapsed is the read-only projection of a status log: the time worked
// in closed intervals plus the open interval, if any.
type Elapsed struct {
	// Accumulated covers closed (Started -> Paused/Completed) intervals
	// only, so it is stable across repeated reconciliations.
	Accumulated  time.Duration
	State        Status
	Live         bool
	RunningSince time.Time
}

// Reconcile walks a status log and computes the accumulated working time
// and the current state. A Started entry while an interval is already
// open restarts the interval at the later timestamp; the time between the
// two Started events is dropped. The input slice is not modified.
func Reconcile(entries []LogEntry, now time.Time) Elapsed {
	if len(entries) == 0 {
		return Elapsed{State: StatusNotStarted}
	}

	sorted := make([]LogEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StatusTime.Before(sorted[j].StatusTime)
	})

	var (
		out          Elapsed
		runningStart *time.Time
		everStarted  bool
	)
	for i := range sorted {
		e := sorted[i]
		switch {
		case e.StatusID == StatusStarted:
			t := e.StatusTime
			runningStart = &t
			everStarted = true
		case e.StatusID.IsStop() && runningStart != nil:
			out.Accumulated += e.StatusTime.Sub(*runningStart)
			runningStart = nil
		}
	}

	if runningStart != nil {
		out.Live = true
		out.RunningSince = *runningStart
		out.State = StatusStarted
		return out
	}

	if everStarted {
		out.State = sorted[len(sorted)-1].StatusID
	} else {
		out.State = StatusNotStarted
	}
	return out
}

// Total returns the elapsed working time as of now. For a live
// transaction the open interval is counted up to now.
func (e Elapsed) Total(now time.Time) time.Duration {
	if !e.Live {
		return e.Accumulated
	}
	open := now.Sub(e.RunningSince)
	if open < 0 {
		open = 0
	}
	return e.Accumulated + open
}

// Seconds returns Total(now) truncated to whole seconds.
func (e Elapsed) Seconds(now time.Time) int64 {
	return int64(e.Total(now) / time.Second)
}

// AccumulatedSeconds returns the closed-interval time in whole seconds.
func (e Elapsed) AccumulatedSeconds() int64 {
	return int64(e.Accumulated / time.Second)
}

// FormatHMS renders seconds as zero-padded HH:MM:SS. Hours are not
// folded into days and may exceed 24.
func FormatHMS(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
