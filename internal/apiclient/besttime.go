package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/busyness-collector/internal/config"
	"github.com/busyness-collector/internal/types"
	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// BestTime queries the foot-traffic forecast API one venue at a time.
type BestTime struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
}

func NewBestTime(cfg config.ClientsConfig, apiKey string) *BestTime {
	return &BestTime{
		baseURL: strings.TrimRight(cfg.BestTimeURL, "/"),
		apiKey:  apiKey,
		client:  newRetryClient(cfg, types.SourceBestTime),
	}
}

// Forecast returns the live busyness of one venue. A missing API key is
// reported per venue, without any request.
func (b *BestTime) Forecast(ctx context.Context, v types.Venue) types.Result {
	if b.apiKey == "" {
		return types.Failure("skipped: no API key")
	}

	params := url.Values{}
	params.Set("api_key_private", b.apiKey)
	params.Set("venue_name", v.Name)
	params.Set("venue_address", v.Address)

	req, err := newRequest(ctx, http.MethodPost, b.baseURL+"/forecasts?"+params.Encode())
	if err != nil {
		return types.Failure(fmt.Sprintf("error: %v", err))
	}

	status, body, err := do(b.client, req)
	if err != nil {
		return types.Failure(fmt.Sprintf("error: %v", err))
	}

	switch {
	case status == http.StatusTooManyRequests:
		log.Warnf("BestTime rate limit exceeded for %s", v.Name)
		return types.Failure("rate limited")
	case !isSuccess(status):
		log.WithField("venue", v.ID).Errorf("BestTime API error %d: %s", status, truncate(string(body), 200))
		return types.Failure(fmt.Sprintf("besttime: API error %d", status))
	}

	live := gjson.GetBytes(body, "analysis.venue_live_busyness")
	if !live.Exists() || live.Type != gjson.Number {
		return types.NoData()
	}

	n := int(live.Int())
	return types.Success(types.IntPtr(n), nil, fmt.Sprintf("BestTime live: %d", n))
}

// Resolve queries venues sequentially; the API meters per request.
func (b *BestTime) Resolve(ctx context.Context, venues []types.Venue) []types.Result {
	if b.apiKey == "" {
		log.Warn("No BestTime API key configured, BestTime venues will be skipped")
	}

	results := make([]types.Result, len(venues))
	for i, v := range venues {
		results[i] = b.Forecast(ctx, v)
	}
	return results
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
