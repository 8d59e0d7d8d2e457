// Package report flattens per-venue results into the run document.
package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/busyness-collector/internal/types"
)

// Exit codes for a finished run.
const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitPartial = 2
)

// Build pairs venues with their results by position. results must be the
// same length as venues.
func Build(venues []types.Venue, results []types.Result, now time.Time) *types.Report {
	records := make([]types.Record, len(venues))
	successful := 0

	for i, venue := range venues {
		r := results[i]
		rec := types.Record{
			LocationID: venue.ID,
			Name:       venue.Name,
			Area:       venue.Area,
			Status:     r.Outcome().String(),
		}

		switch r.Outcome() {
		case types.OutcomeSuccess:
			successful++
			rec.LivePercent = r.LivePercent()
			rec.TypicalPercent = r.TypicalPercent()
			raw := r.RawText()
			rec.RawText = &raw
		case types.OutcomeError:
			msg := r.Message()
			rec.Error = &msg
		}

		records[i] = rec
	}

	return &types.Report{
		Timestamp:         now.UTC(),
		TotalLocations:    len(venues),
		SuccessfulScrapes: successful,
		Results:           records,
	}
}

// ExitCode maps a report to the process exit status: 0 when no venue
// errored, 1 when every venue errored, 2 otherwise.
func ExitCode(r *types.Report) int {
	errored := 0
	for _, rec := range r.Results {
		if rec.Status == types.OutcomeError.String() {
			errored++
		}
	}

	switch {
	case errored == 0:
		return ExitOK
	case errored == len(r.Results):
		return ExitFatal
	default:
		return ExitPartial
	}
}

// Write prints the report as indented JSON.
func Write(w io.Writer, r *types.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
