package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/Saul-Punybz/newsdesk/internal/dedup"
	"github.com/Saul-Punybz/newsdesk/internal/jobs"
	"github.com/Saul-Punybz/newsdesk/internal/models"
)

// Outcome is what happened to one feed entry.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeError     Outcome = "error"
)

// ItemResult records one entry of a fetched feed.
type ItemResult struct {
	GUID      string
	URL       string
	Outcome   Outcome
	Reason    dedup.Reason
	MatchedID uuid.UUID
	ItemID    uuid.UUID
	Detail    string
	Err       error
}

// SourceResult records one source of a run.
type SourceResult struct {
	Source   models.FeedSource
	Items    []ItemResult
	Err      error
	Deferred bool
	Elapsed  time.Duration
}

func (s SourceResult) counts() jobs.Counts {
	var c jobs.Counts
	for _, it := range s.Items {
		c.Processed++
		switch it.Outcome {
		case OutcomeCreated:
			c.Created++
		case OutcomeDuplicate:
			c.Duplicated++
		case OutcomeSkipped:
			c.Skipped++
		case OutcomeError:
			c.Errored++
		}
	}
	return c
}

// RunResult is the outcome of one run, one entry per due source.
type RunResult struct {
	Sources []SourceResult
	Elapsed time.Duration
}

func (r *RunResult) deferred() int {
	n := 0
	for _, s := range r.Sources {
		if s.Deferred {
			n++
		}
	}
	return n
}

// Report folds the run into a job report. A failed source counts as one
// errored unit on top of any item errors it recorded.
func (r *RunResult) Report() jobs.Report {
	rep := jobs.Report{Errors: []jobs.SourceError{}}
	for _, s := range r.Sources {
		if s.Deferred {
			rep.Deferred++
			continue
		}
		rep.Sources++
		c := s.counts()
		rep.Processed += c.Processed
		rep.Created += c.Created
		rep.Duplicated += c.Duplicated
		rep.Skipped += c.Skipped
		rep.Errored += c.Errored

		for _, it := range s.Items {
			if it.Err != nil {
				rep.Errors = append(rep.Errors, jobs.SourceError{
					SourceID: s.Source.ID.String(),
					Source:   s.Source.Name,
					Item:     it.URL,
					Error:    it.Err.Error(),
				})
			}
		}
		if s.Err != nil {
			rep.Errored++
			rep.Errors = append(rep.Errors, jobs.SourceError{
				SourceID: s.Source.ID.String(),
				Source:   s.Source.Name,
				Error:    s.Err.Error(),
			})
		}
	}
	return rep
}
