package violationsync

import (
	"context"
	"sync"
	"time"
)

// fakePages serves violation pages from memory. Rows are matched against the
// filter: an "in" filter on activity_nr, or any other filter returning every row.
type fakePages struct {
	mu    sync.Mutex
	rows  []RawViolation
	calls []fakeCall
	// failOn makes the n-th call (1-based) return the error.
	failOn map[int]error
	// failAll makes every call return the error.
	failAll error
}

type fakeCall struct {
	Filter Filter
	Limit  int
	Offset int
}

func (f *fakePages) FetchPage(_ context.Context, filter Filter, limit, offset int) ([]RawViolation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{Filter: filter, Limit: limit, Offset: offset})
	if f.failAll != nil {
		return nil, f.failAll
	}
	if err, ok := f.failOn[len(f.calls)]; ok {
		return nil, err
	}

	var matched []RawViolation
	ids, isIn := filter.Value.([]string)
	for _, row := range f.rows {
		if !isIn || containsString(ids, row.ActivityNr.String()) {
			matched = append(matched, row)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return append([]RawViolation(nil), matched[offset:end]...), nil
}

func (f *fakePages) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type recordingSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slept = append(r.slept, d)
}

func raw(activityNr, citationID, current, initial string) RawViolation {
	return RawViolation{
		ActivityNr:     FlexString(activityNr),
		CitationID:     FlexString(citationID),
		ViolType:       "S",
		CurrentPenalty: FlexString(current),
		InitialPenalty: FlexString(initial),
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []NewViolationsEvent
	err    error
}

func (n *recordingNotifier) NotifyNewViolations(_ context.Context, ev NewViolationsEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}
