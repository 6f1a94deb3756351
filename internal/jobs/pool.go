package jobs

import "time"

// PoolStatus derives the status of a job pool from the most recent status
// event across all member logs. A pool with no events is NotStarted.
func PoolStatus(memberLogs ...[]LogEntry) Status {
	var (
		latest LogEntry
		found  bool
	)
	for _, log := range memberLogs {
		for _, e := range log {
			if !found || !e.StatusTime.Before(latest.StatusTime) {
				latest = e
				found = true
			}
		}
	}
	if !found {
		return StatusNotStarted
	}
	return latest.StatusID
}

// ReconcilePool merges the member logs of a pool and reconciles them as a
// single log.
func ReconcilePool(memberLogs [][]LogEntry, now time.Time) Elapsed {
	n := 0
	for _, log := range memberLogs {
		n += len(log)
	}
	merged := make([]LogEntry, 0, n)
	for _, log := range memberLogs {
		merged = append(merged, log...)
	}
	return Reconcile(merged, now)
}
