package violationsync

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tsgsafety/osha_tracker/config"
	"github.com/tsgsafety/osha_tracker/utils"
)

// Sleeper paces consecutive API requests.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}

type wallSleeper struct{}

func (wallSleeper) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// FetchResult is everything one fetch collected. Every requested identifier
// ends up in exactly one of Completed, Unprocessed or Failed.
type FetchResult struct {
	Records      []RawViolation
	RequestsUsed int

	// Completed identifiers were paged to the end, including those with no rows.
	Completed []string
	// Unprocessed identifiers were not fully paged because the request budget ran out.
	Unprocessed []string
	// Failed identifiers belong to a chunk aborted by a transport error.
	Failed []string
	Errors []error

	// Exhausted is set by FetchSince when the end of the date window was reached.
	Exhausted bool
}

// ZeroResult lists completed identifiers for which the API returned nothing.
func (r FetchResult) ZeroResult() []string {
	seen := make(map[string]struct{}, len(r.Records))
	for _, rec := range r.Records {
		seen[rec.ActivityNr.String()] = struct{}{}
	}
	var out []string
	for _, id := range r.Completed {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// BatchFetcher pulls violation pages under a hard per-invocation request
// ceiling. It performs network I/O only; callers hold no database connection
// while it runs.
type BatchFetcher struct {
	client    PageFetcher
	chunkSize int
	pageSize  int
	sleeper   Sleeper
	logger    *logrus.Logger
}

type FetcherOption func(*BatchFetcher)

func WithSleeper(s Sleeper) FetcherOption {
	return func(f *BatchFetcher) { f.sleeper = s }
}

func WithChunkSize(n int) FetcherOption {
	return func(f *BatchFetcher) {
		if n > 0 {
			f.chunkSize = n
		}
	}
}

func WithPageSize(n int) FetcherOption {
	return func(f *BatchFetcher) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

func NewBatchFetcher(client PageFetcher, opts ...FetcherOption) *BatchFetcher {
	f := &BatchFetcher{
		client:    client,
		chunkSize: 100,
		pageSize:  200,
		sleeper:   wallSleeper{},
		logger:    config.GetLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// pacer sleeps before every request except the first one of a fetch.
type pacer struct {
	sleeper Sleeper
	delay   time.Duration
	issued  bool
}

func (p *pacer) wait(ctx context.Context) {
	if p.issued {
		p.sleeper.Sleep(ctx, p.delay)
	}
}

// Fetch retrieves violations for ids, chunked into "in" filters and paged
// until a short page. At most maxRequests requests are issued in total.
func (f *BatchFetcher) Fetch(ctx context.Context, ids []string, maxRequests int, delay time.Duration) FetchResult {
	var res FetchResult
	chunks := utils.ChunkSlice(ids, f.chunkSize)
	p := &pacer{sleeper: f.sleeper, delay: delay}

	for i, chunk := range chunks {
		if res.RequestsUsed >= maxRequests {
			for _, rest := range chunks[i:] {
				res.Unprocessed = append(res.Unprocessed, rest...)
			}
			break
		}

		filter := ActivityNrFilter(chunk)
		offset := 0
		for {
			if res.RequestsUsed >= maxRequests {
				res.Unprocessed = append(res.Unprocessed, chunk...)
				break
			}

			p.wait(ctx)
			page, err := f.client.FetchPage(ctx, filter, f.pageSize, offset)
			if !errors.Is(err, ErrCircuitOpen) {
				res.RequestsUsed++
				p.issued = true
			}
			if err != nil {
				f.logger.WithFields(logrus.Fields{
					"field":  "violation_fetch",
					"chunk":  i + 1,
					"offset": offset,
				}).Warn(err)
				res.Failed = append(res.Failed, chunk...)
				res.Errors = append(res.Errors, err)
				break
			}

			f.logger.WithFields(logrus.Fields{
				"field":    "violation_fetch",
				"chunk":    i + 1,
				"ids":      len(chunk),
				"offset":   offset,
				"received": len(page),
				"request":  res.RequestsUsed,
			}).Debug("violation page fetched")

			res.Records = append(res.Records, page...)
			if len(page) < f.pageSize {
				res.Completed = append(res.Completed, chunk...)
				break
			}
			offset += len(page)
		}
	}
	return res
}

// FetchSince pages every violation whose field is after since. Exhausted
// reports whether the window was read to the end within the budget.
func (f *BatchFetcher) FetchSince(ctx context.Context, field string, since time.Time, maxRequests int, delay time.Duration) FetchResult {
	var res FetchResult
	filter := SinceFilter(field, since)
	p := &pacer{sleeper: f.sleeper, delay: delay}

	offset := 0
	for res.RequestsUsed < maxRequests {
		p.wait(ctx)
		page, err := f.client.FetchPage(ctx, filter, f.pageSize, offset)
		if !errors.Is(err, ErrCircuitOpen) {
			res.RequestsUsed++
			p.issued = true
		}
		if err != nil {
			f.logger.WithFields(logrus.Fields{
				"field":  "violation_fetch_since",
				"offset": offset,
			}).Warn(err)
			res.Errors = append(res.Errors, err)
			return res
		}

		res.Records = append(res.Records, page...)
		if len(page) < f.pageSize {
			res.Exhausted = true
			return res
		}
		offset += len(page)
	}
	return res
}
