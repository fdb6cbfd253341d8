package session

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/ironsheep/traffic-violations-mcp/internal/violation"
)

// DateLayout keys PerDate counts.
const DateLayout = "2006-01-02"

// ErrSuperseded is returned by Ticket.Commit when a newer request started
// on the same session, or the session was cleared, after the ticket was
// issued.
var ErrSuperseded = errors.New("request superseded")

// DateCount is one entry of the per-date timeline. Count includes clean
// records; Violations only those carrying a fined tag.
type DateCount struct {
	Date       string `json:"date"`
	Count      int    `json:"count"`
	Violations int    `json:"violations"`
}

// Stats is a point-in-time view over a session's records.
type Stats struct {
	TotalProcessed  int     `json:"total_processed"`
	TotalViolations int     `json:"total_violations"`
	TotalFines      int     `json:"total_fines"`
	ViolationRate   float64 `json:"violation_rate"`
	// SyntheticRecords counts records produced by a synthetic detector.
	SyntheticRecords int                   `json:"synthetic_records"`
	PerType          map[violation.Tag]int `json:"per_type"`
	PerDate          map[string]int        `json:"per_date"`
	// Timeline is PerDate sorted by date.
	Timeline []DateCount `json:"timeline"`
}

// Aggregator is the append-only record sequence of one session. It is safe
// for concurrent use.
type Aggregator struct {
	mu         sync.RWMutex
	records    []violation.Record
	generation uint64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Append adds a record to the end of the sequence.
func (a *Aggregator) Append(rec violation.Record) {
	a.mu.Lock()
	a.records = append(a.records, rec)
	a.mu.Unlock()
}

// Clear drops every record. Requests in flight when Clear is called can no
// longer commit.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.records = nil
	a.generation++
	a.mu.Unlock()
}

// Len returns the number of records.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// Records returns a copy of the records in append order.
func (a *Aggregator) Records() []violation.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.records)
}

// Stats computes statistics over every record appended so far in a single
// pass. A record counts as a violation when it carries any fined tag.
// PerType counts every tag of every record, NoViolation included.
func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return computeStats(a.records)
}

func computeStats(records []violation.Record) Stats {
	s := Stats{
		PerType:  map[violation.Tag]int{},
		PerDate:  map[string]int{},
		Timeline: []DateCount{},
	}

	violationsPerDate := map[string]int{}
	for _, rec := range records {
		date := rec.Timestamp.Format(DateLayout)
		s.TotalProcessed++
		if rec.HasViolation() {
			s.TotalViolations++
			violationsPerDate[date]++
		}
		if rec.Synthetic {
			s.SyntheticRecords++
		}
		s.TotalFines += rec.Fine
		for _, tag := range rec.Tags.Tags() {
			s.PerType[tag]++
		}
		s.PerDate[date]++
	}

	if s.TotalProcessed > 0 {
		s.ViolationRate = float64(s.TotalViolations) / float64(s.TotalProcessed) * 100
	}

	dates := lo.Keys(s.PerDate)
	slices.Sort(dates)
	for _, d := range dates {
		s.Timeline = append(s.Timeline, DateCount{Date: d, Count: s.PerDate[d], Violations: violationsPerDate[d]})
	}
	return s
}

// Ticket tracks one in-flight request against an aggregator.
type Ticket struct {
	agg        *Aggregator
	ctx        context.Context
	generation uint64
}

// Begin starts a request. Every ticket issued earlier for this aggregator is
// superseded.
func (a *Aggregator) Begin(ctx context.Context) *Ticket {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generation++
	return &Ticket{agg: a, ctx: ctx, generation: a.generation}
}

// Commit appends records atomically if the ticket is still current and its
// context is live. Otherwise nothing is appended and ErrSuperseded or the
// context error is returned.
func (t *Ticket) Commit(records []violation.Record) error {
	t.agg.mu.Lock()
	defer t.agg.mu.Unlock()

	if t.agg.generation != t.generation {
		return ErrSuperseded
	}
	if err := t.ctx.Err(); err != nil {
		return err
	}
	t.agg.records = append(t.agg.records, records...)
	return nil
}
