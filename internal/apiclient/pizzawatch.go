package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/busyness-collector/internal/config"
	"github.com/busyness-collector/internal/types"
	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// PizzaWatch reads the public dashboard feed, which carries live
// popularity for a fixed set of places in one document.
type PizzaWatch struct {
	url    string
	client *retryablehttp.Client
}

func NewPizzaWatch(cfg config.ClientsConfig) *PizzaWatch {
	return &PizzaWatch{
		url:    cfg.PizzaWatchURL,
		client: newRetryClient(cfg, types.SourcePizzaWatch),
	}
}

// Dashboard fetches the feed and indexes its places by place_id and by
// lower-cased name.
func (p *PizzaWatch) Dashboard(ctx context.Context) (map[string]gjson.Result, error) {
	req, err := newRequest(ctx, http.MethodGet, p.url)
	if err != nil {
		return nil, err
	}

	status, body, err := do(p.client, req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON in response")
	}

	places := make(map[string]gjson.Result)
	for _, item := range gjson.GetBytes(body, "data").Array() {
		if !item.IsObject() {
			continue
		}
		if id := item.Get("place_id").String(); id != "" {
			places[id] = item
		}
		if name := item.Get("name").String(); name != "" {
			places[nameKey(name)] = item
		}
	}
	return places, nil
}

// Resolve fetches the feed once and classifies every venue against it.
func (p *PizzaWatch) Resolve(ctx context.Context, venues []types.Venue) []types.Result {
	results := make([]types.Result, len(venues))

	places, err := p.Dashboard(ctx)
	if err != nil {
		log.Errorf("Failed to fetch PizzaWatch data: %v", err)
		for i := range results {
			results[i] = types.Failure(fmt.Sprintf("pizzawatch: %v", err))
		}
		return results
	}

	log.Infof("PizzaWatch returned %d places", len(places))
	for i, v := range venues {
		results[i] = classifyPlace(v, places)
	}
	return results
}

func classifyPlace(v types.Venue, places map[string]gjson.Result) types.Result {
	item, ok := places[v.PizzaWatchID]
	if !ok {
		item, ok = places[nameKey(v.Name)]
	}
	if !ok {
		return types.Failure("data not found in PizzaWatch response")
	}

	if live := item.Get("current_popularity"); live.Exists() && live.Type == gjson.Number {
		n := int(live.Int())
		return types.Success(types.IntPtr(n), nil, fmt.Sprintf("Live popularity: %d", n))
	}

	// closed, or open without a live reading
	return types.NoData()
}

func nameKey(name string) string {
	return "name:" + strings.ToLower(strings.TrimSpace(name))
}
