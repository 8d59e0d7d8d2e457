package types

import (
	"fmt"
	"time"
)

// Candidate is an unvalidated proxy address scraped from a public list
type Candidate struct {
	Address  string `json:"address"`
	Protocol string `json:"protocol"` // "http" or "socks5"
	Source   string `json:"source"`
}

// Proxy is a candidate that passed a single reachability probe
type Proxy struct {
	Address  string `json:"address"`
	Protocol string `json:"protocol"`
}

// URL renders the proxy in the scheme://host:port form browsers and
// http.Transport understand.
func (p Proxy) URL() string {
	scheme := p.Protocol
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, p.Address)
}

const (
	VenueTypeInverse = "inverse"

	SourceScrape     = "scrape"
	SourcePizzaWatch = "pizzawatch"
	SourceBestTime   = "besttime"
)

// Venue describes one physical location to observe
type Venue struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Area         string `json:"area"`
	URL          string `json:"url"`
	Type         string `json:"type,omitempty"`   // "inverse" or empty
	Source       string `json:"source,omitempty"` // "scrape" (default), "pizzawatch", "besttime"
	Address      string `json:"address,omitempty"`
	PizzaWatchID string `json:"pizzawatch_id,omitempty"`
}

func (v Venue) Inverse() bool {
	return v.Type == VenueTypeInverse
}

// ResolvedBy returns the collaborator responsible for this venue.
func (v Venue) ResolvedBy() string {
	if v.Source == "" {
		return SourceScrape
	}
	return v.Source
}

// Outcome tags which branch of a Result is populated
type Outcome int

const (
	OutcomeError Outcome = iota
	OutcomeSuccess
	OutcomeNoData
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNoData:
		return "no_data"
	default:
		return "error"
	}
}

// Result is the classified outcome for one venue. Build it with Success,
// NoData or Failure; the zero value is an Error with no message.
type Result struct {
	outcome Outcome
	live    *int
	typical *int
	raw     string
	message string
}

func Success(live, typical *int, raw string) Result {
	return Result{outcome: OutcomeSuccess, live: live, typical: typical, raw: raw}
}

func NoData() Result {
	return Result{outcome: OutcomeNoData}
}

func Failure(message string) Result {
	return Result{outcome: OutcomeError, message: message}
}

func (r Result) Outcome() Outcome     { return r.outcome }
func (r Result) LivePercent() *int    { return r.live }
func (r Result) TypicalPercent() *int { return r.typical }
func (r Result) RawText() string      { return r.raw }
func (r Result) Message() string      { return r.message }

// Record is the flattened per-venue entry of a report
type Record struct {
	LocationID     string  `json:"location_id"`
	Name           string  `json:"name"`
	Area           string  `json:"area"`
	LivePercent    *int    `json:"live_percent"`
	TypicalPercent *int    `json:"typical_percent"`
	RawText        *string `json:"raw_text"`
	Error          *string `json:"error"`
	Status         string  `json:"status"`
}

// Report is the single document a run produces
type Report struct {
	Timestamp         time.Time `json:"timestamp"`
	TotalLocations    int       `json:"total_locations"`
	SuccessfulScrapes int       `json:"successful_scrapes"`
	Results           []Record  `json:"results"`
}

// IntPtr is a small helper for optional percentages.
func IntPtr(v int) *int {
	return &v
}

// Run is one finished collection pass together with its report
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ExitCode   int       `json:"exit_code"`
	Report     *Report   `json:"report"`
}
