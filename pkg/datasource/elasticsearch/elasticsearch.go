// Package elasticsearch implements a suggest data provider on top of an
// Elasticsearch query log: searches executed by shop users are aggregated
// into weighted suggestion records, the popularity of a query is its weight.
package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/CommerceExperts/smartsuggest/pkg/suggest"
)

const (
	defaultMaxRecords = 10_000
	defaultQueryField = "query.keyword"
	defaultTimeField  = "@timestamp"
)

// Config holds the Elasticsearch connection parameters and how the query
// log is laid out.
type Config struct {
	// URLs is the list of Elasticsearch node URLs.
	URLs []string

	// Username and Password for basic authentication.
	Username string
	Password string

	// CloudID for connecting to Elastic Cloud.
	CloudID string

	// APIKey for API key authentication (alternative to username/password).
	APIKey string

	// IndexPattern names the query-log index per suggest index, with "%s"
	// replaced by the suggest index name. Default: "querylog-%s".
	IndexPattern string

	// QueryField is the keyword field holding the raw query string.
	// Default: "query.keyword".
	QueryField string

	// TimeField is the date field used to determine data freshness.
	// Default: "@timestamp".
	TimeField string

	// MaxRecords caps how many distinct queries are loaded, most popular
	// first. Default: 10000.
	MaxRecords int
}

func (c *Config) setDefaults() {
	if c.IndexPattern == "" {
		c.IndexPattern = "querylog-%s"
	}
	if c.QueryField == "" {
		c.QueryField = defaultQueryField
	}
	if c.TimeField == "" {
		c.TimeField = defaultTimeField
	}
	if c.MaxRecords <= 0 {
		c.MaxRecords = defaultMaxRecords
	}
}

// Provider implements suggest.DataProvider against a query-log index.
type Provider struct {
	client *elasticsearch.Client
	cfg    Config
}

var _ suggest.DataProvider = (*Provider)(nil)

// New creates the provider and probes the connection, so a broken cluster
// address fails at startup instead of on the first update tick.
func New(config Config) (*Provider, error) {
	config.setDefaults()

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: config.URLs,
		Username:  config.Username,
		Password:  config.Password,
		CloudID:   config.CloudID,
		APIKey:    config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch connection error: %s", res.String())
	}

	return &Provider{client: client, cfg: config}, nil
}

func (p *Provider) Name() string { return "elasticsearch" }

func (p *Provider) logIndex(indexName string) string {
	return fmt.Sprintf(p.cfg.IndexPattern, indexName)
}

// HasData reports whether the query log of the index exists and holds at
// least one entry.
func (p *Provider) HasData(indexName string) bool {
	req := esapi.CountRequest{Index: []string{p.logIndex(indexName)}}
	res, err := req.Do(context.Background(), p.client)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	if res.IsError() {
		return false
	}
	var count struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&count); err != nil {
		return false
	}
	return count.Count > 0
}

// LastModTime returns the timestamp of the newest query-log entry in epoch
// milliseconds, or -1 when the log is empty.
func (p *Provider) LastModTime(indexName string) (int64, error) {
	body := fmt.Sprintf(`{"size":0,"aggs":{"newest":{"max":{"field":%q}}}}`, p.cfg.TimeField)
	res, err := p.search(indexName, body)
	if err != nil {
		return -1, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return -1, fmt.Errorf("query-log mod-time lookup failed: %s", res.String())
	}

	var parsed struct {
		Aggregations struct {
			Newest struct {
				Value *float64 `json:"value"`
			} `json:"newest"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return -1, fmt.Errorf("decoding mod-time response: %w", err)
	}
	if parsed.Aggregations.Newest.Value == nil {
		return -1, nil
	}
	return int64(*parsed.Aggregations.Newest.Value), nil
}

// LoadData aggregates the query log into one record per distinct query,
// weighted by how often it was searched.
func (p *Provider) LoadData(indexName string) (*suggest.Dataset, error) {
	modTime, err := p.LastModTime(indexName)
	if err != nil {
		return nil, err
	}

	body := fmt.Sprintf(`{
		"size": 0,
		"aggs": {
			"queries": {
				"terms": {"field": %q, "size": %d, "order": {"_count": "desc"}},
				"aggs": {"last_seen": {"max": {"field": %q}}}
			}
		}
	}`, p.cfg.QueryField, p.cfg.MaxRecords, p.cfg.TimeField)

	res, err := p.search(indexName, body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("query-log aggregation failed: %s", res.String())
	}

	var parsed struct {
		Aggregations struct {
			Queries struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int64  `json:"doc_count"`
					LastSeen struct {
						Value *float64 `json:"value"`
					} `json:"last_seen"`
				} `json:"buckets"`
			} `json:"queries"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding aggregation response: %w", err)
	}

	data := &suggest.Dataset{Type: "queries", ModTime: modTime}
	for _, bucket := range parsed.Aggregations.Queries.Buckets {
		query := strings.TrimSpace(bucket.Key)
		if query == "" {
			continue
		}
		rec := suggest.Record{
			PrimaryText: query,
			Weight:      bucket.DocCount,
			Payload:     map[string]string{"type": "keyword"},
		}
		if bucket.LastSeen.Value != nil {
			lastSeen := time.UnixMilli(int64(*bucket.LastSeen.Value))
			rec.Payload["lastSeen"] = lastSeen.UTC().Format(time.RFC3339)
		}
		data.Records = append(data.Records, rec)
	}
	return data, nil
}

func (p *Provider) search(indexName, body string) (*esapi.Response, error) {
	req := esapi.SearchRequest{
		Index: []string{p.logIndex(indexName)},
		Body:  strings.NewReader(body),
	}
	res, err := req.Do(context.Background(), p.client)
	if err != nil {
		return nil, fmt.Errorf("query-log search failed: %w", err)
	}
	return res, nil
}
