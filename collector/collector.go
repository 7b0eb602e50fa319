package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"logserver/config"
)

// Collector is the public contract any stream source must satisfy.
type Collector interface {
	// Collect fetches the current value of the source.
	Collect(ctx context.Context) (float64, error)
}

// New builds the collector described by src.
func New(src config.Source, log *zap.Logger) (Collector, error) {
	switch strings.ToLower(src.Type) {
	case "json", "":
		if src.URL == "" {
			return nil, fmt.Errorf("json source needs a url")
		}
		return NewJSONCollector(src.URL, src.Field, src.Scale, src.Offset, log), nil
	case "prometheus":
		if src.URL == "" || src.Query == "" {
			return nil, fmt.Errorf("prometheus source needs a url and a query")
		}
		return NewPrometheusCollector(src.URL, src.Query, log), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", src.Type)
	}
}

// JSONCollector GETs a JSON document and reads one numeric field out of it,
// e.g. the latest temperature of a weather.gov observation.
type JSONCollector struct {
	URL       string       // e.g. "https://api.weather.gov/stations/KLGB/observations/latest"
	Field     string       // dotted path, e.g. "properties.temperature.value"; empty = whole document
	Scale     float64      // applied as value*Scale + Offset
	Offset    float64
	HTTP      *http.Client // injected for testability
	Log       *zap.Logger
	UserAgent string
}

// NewJSONCollector returns a ready-to-use collector. A zero scale means 1.
func NewJSONCollector(rawURL, field string, scale, offset float64, log *zap.Logger) *JSONCollector {
	if scale == 0 {
		scale = 1
	}
	return &JSONCollector{
		URL:       rawURL,
		Field:     field,
		Scale:     scale,
		Offset:    offset,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
		Log:       log,
		UserAgent: "logserver/0.1",
	}
}

// Collect implements the Collector interface.
func (j *JSONCollector) Collect(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.URL, nil)
	if err != nil {
		return 0, err
	}
	if j.UserAgent != "" {
		req.Header.Set("User-Agent", j.UserAgent)
	}
	resp, err := j.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("source request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("source returned %d: %s", resp.StatusCode, string(b))
	}

	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return 0, fmt.Errorf("failed to decode source JSON: %w", err)
	}

	v, err := lookup(doc, j.Field)
	if err != nil {
		return 0, err
	}
	val, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", j.Field, err)
	}
	j.Log.Debug("source sampled", zap.String("url", j.URL), zap.Float64("raw", val))
	return val*j.Scale + j.Offset, nil
}

// lookup walks a dotted path through nested objects; numeric segments index
// arrays.
func lookup(doc any, path string) (any, error) {
	if path == "" {
		return doc, nil
	}
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("field %q not found", seg)
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("bad index %q into array of %d", seg, len(node))
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("cannot descend into %T at %q", cur, seg)
		}
	}
	return cur, nil
}

func toFloat(v any) (float64, error) {
	switch num := v.(type) {
	case float64:
		return num, nil
	case string:
		// Try to parse a numeric string (e.g., "0.03").
		return parseFloat(num)
	case nil:
		return 0, fmt.Errorf("value is null")
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}

// PrometheusCollector issues an instant query against the Prometheus HTTP
// API (`/api/v1/query`) and returns the first sample of the result.
type PrometheusCollector struct {
	BaseURL   string       // e.g. "http://localhost:9090"
	Query     string       // PromQL expression, e.g. "node_hwmon_temp_celsius"
	HTTP      *http.Client // injected for testability
	Log       *zap.Logger
	UserAgent string
}

// prometheusAPIResponse - minimal subset of the JSON returned by /api/v1/query.
type prometheusAPIResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string          `json:"resultType"`
		Result     json.RawMessage `json:"result"`
	} `json:"data"`
}

// prometheusSample is one entry of a vector result: labels plus
// [ <timestamp>, "<value>" ].
type prometheusSample struct {
	Metric map[string]string `json:"metric"`
	Value  []any             `json:"value"`
}

// NewPrometheusCollector returns a ready-to-use collector.
func NewPrometheusCollector(baseURL, query string, log *zap.Logger) *PrometheusCollector {
	return &PrometheusCollector{
		BaseURL:   baseURL,
		Query:     query,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
		Log:       log,
		UserAgent: "logserver/0.1",
	}
}

// Collect implements the Collector interface.
func (p *PrometheusCollector) Collect(ctx context.Context) (float64, error) {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid prometheus base url: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/query"
	q := u.Query()
	q.Set("query", p.Query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("prometheus request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("prometheus returned %d: %s", resp.StatusCode, string(b))
	}

	var apiResp prometheusAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return 0, fmt.Errorf("failed to decode prometheus response: %w", err)
	}
	if apiResp.Status != "success" {
		return 0, fmt.Errorf("prometheus query not successful: %s", apiResp.Status)
	}

	var pair []any
	switch apiResp.Data.ResultType {
	case "vector":
		var samples []prometheusSample
		if err := json.Unmarshal(apiResp.Data.Result, &samples); err != nil {
			return 0, fmt.Errorf("failed to decode vector result: %w", err)
		}
		if len(samples) == 0 {
			return 0, fmt.Errorf("prometheus query returned no results")
		}
		pair = samples[0].Value
	case "scalar":
		if err := json.Unmarshal(apiResp.Data.Result, &pair); err != nil {
			return 0, fmt.Errorf("failed to decode scalar result: %w", err)
		}
	default:
		return 0, fmt.Errorf("unsupported prometheus result type %q", apiResp.Data.ResultType)
	}

	// pair[0] is the timestamp (float seconds since epoch), pair[1] the string value.
	if len(pair) != 2 {
		return 0, fmt.Errorf("malformed prometheus sample")
	}
	valStr, ok := pair[1].(string)
	if !ok {
		return 0, fmt.Errorf("unexpected value type in prometheus response")
	}
	val, err := parseFloat(valStr)
	if err != nil {
		return 0, fmt.Errorf("cannot parse prometheus value %q: %w", valStr, err)
	}
	p.Log.Debug("prometheus sampled", zap.String("query", p.Query), zap.Float64("value", val))
	return val, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
