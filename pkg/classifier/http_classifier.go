// DotMod - Discord moderation decision core
// Derived from DotAgent: https://github.com/dotsetgreg/dotagent
// License: MIT
//
// Copyright (c) 2026 DotAgent contributors

package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tidwall/gjson"

	"github.com/dotsetgreg/dotmod/pkg/logger"
)

const (
	DefaultConnectTimeout = 2 * time.Second
	DefaultRequestTimeout = 5 * time.Second

	maxResponseBytes = 1 << 20
	previewLimit     = 120
)

type HTTPOptions struct {
	Endpoint       string
	APIKey         string
	Proxy          string
	Debug          bool
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	// CacheSize > 0 keeps remote verdicts for identical messages for CacheTTL.
	CacheSize int
	CacheTTL  time.Duration
	// HTTPClient replaces the default client; timeouts above are then ignored.
	HTTPClient *http.Client
}

// HTTPClassifier asks an external service for a risk level and falls back to
// ClassifyByRules on any failure.
type HTTPClassifier struct {
	endpoint   string
	apiKey     string
	debug      bool
	httpClient *http.Client
	cache      *expirable.LRU[string, Classification]
}

func NewHTTPClassifier(opts HTTPOptions) *HTTPClassifier {
	client := opts.HTTPClient
	if client == nil {
		connect := opts.ConnectTimeout
		if connect <= 0 {
			connect = DefaultConnectTimeout
		}
		request := opts.RequestTimeout
		if request <= 0 {
			request = DefaultRequestTimeout
		}
		transport := &http.Transport{
			DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
			TLSHandshakeTimeout: connect,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}
		if opts.Proxy != "" {
			if proxyURL, err := url.Parse(opts.Proxy); err == nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		}
		client = &http.Client{Timeout: request, Transport: transport}
	}

	c := &HTTPClassifier{
		endpoint:   strings.TrimSpace(opts.Endpoint),
		apiKey:     strings.TrimSpace(opts.APIKey),
		debug:      opts.Debug,
		httpClient: client,
	}
	if opts.CacheSize > 0 {
		c.cache = expirable.NewLRU[string, Classification](opts.CacheSize, nil, opts.CacheTTL)
	}
	return c
}

func (c *HTTPClassifier) Endpoint() string {
	return c.endpoint
}

func (c *HTTPClassifier) Classify(ctx context.Context, content string, rules RuleContext) Classification {
	if c.endpoint == "" {
		return c.finish(content, rules, ClassifyByRules(rules), "LLM endpoint not configured.")
	}
	if c.cache != nil {
		if hit, ok := c.cache.Get(content); ok {
			hit.Source = SourceCache
			return c.finish(content, rules, hit, "Cached LLM verdict reused.")
		}
	}

	started := time.Now()
	result, note, err := c.callRemote(ctx, content)
	remoteDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		fallbackCount.WithLabelValues(fallbackReason(err)).Inc()
		logger.WarnCF("classifier", "Remote classification failed, using rules", map[string]any{
			"error": err.Error(),
		})
		return c.finish(content, rules, ClassifyByRules(rules), note)
	}
	if c.cache != nil {
		c.cache.Add(content, result)
	}
	return c.finish(content, rules, result, note)
}

var (
	errBadStatus      = errors.New("unexpected status")
	errMalformed      = errors.New("malformed response")
	errMissingLevel   = errors.New("missing risk level")
	errInvalidLevel   = errors.New("invalid risk level")
	errRequestAborted = errors.New("request aborted")
)

func (c *HTTPClassifier) callRemote(ctx context.Context, content string) (Classification, string, error) {
	payload, err := json.Marshal(map[string]string{
		"message":         content,
		"format":          "risk",
		"response_format": "json",
	})
	if err != nil {
		return Classification{}, "LLM request failed; using rules.", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Classification{}, "LLM request failed; using rules.", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Classification{}, "LLM request interrupted; using rules.", fmt.Errorf("%w: %v", errRequestAborted, ctx.Err())
		}
		return Classification{}, "LLM request failed; using rules.", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Classification{}, "LLM request failed; using rules.", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Classification{}, fmt.Sprintf("LLM HTTP status %d; using rules.", resp.StatusCode),
			fmt.Errorf("%w: %d", errBadStatus, resp.StatusCode)
	}
	return parseResponse(body)
}

// parseResponse reads the risk level from the top level or from a nested
// "classification" object, under riskLevel or risk_level.
func parseResponse(body []byte) (Classification, string, error) {
	if !gjson.ValidBytes(body) {
		return Classification{}, "LLM response was not valid JSON; using rules.", errMalformed
	}
	node := gjson.ParseBytes(body)
	if nested := node.Get("classification"); nested.IsObject() {
		node = nested
	}
	if !node.IsObject() {
		return Classification{}, "LLM response was not an object; using rules.", errMalformed
	}

	raw := strings.TrimSpace(node.Get("riskLevel").String())
	if raw == "" {
		raw = strings.TrimSpace(node.Get("risk_level").String())
	}
	if raw == "" {
		return Classification{}, "LLM response missing risk level; using rules.", errMissingLevel
	}
	level, ok := ParseRiskLevel(raw)
	if !ok {
		return Classification{}, "LLM response had invalid risk level; using rules.", fmt.Errorf("%w: %q", errInvalidLevel, raw)
	}

	rationale := strings.TrimSpace(node.Get("rationale").String())
	if rationale == "" {
		rationale = defaultRemoteRationale
	}
	return Classification{Level: level, Rationale: rationale, Source: SourceRemote}, "LLM response parsed.", nil
}

func fallbackReason(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, errRequestAborted):
		return "aborted"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, errBadStatus):
		return "status"
	case errors.Is(err, errMalformed), errors.Is(err, errMissingLevel), errors.Is(err, errInvalidLevel):
		return "response"
	default:
		return "transport"
	}
}

func (c *HTTPClassifier) finish(content string, rules RuleContext, result Classification, note string) Classification {
	classifyCount.WithLabelValues(string(result.Source), string(result.Level)).Inc()
	if c.debug {
		logReasoning(content, rules, result, note)
	}
	return result
}

// logReasoning writes one structured summary per classification when the
// debug flag is on.
func logReasoning(content string, rules RuleContext, result Classification, note string) {
	if strings.TrimSpace(note) == "" {
		note = "No additional notes."
	}
	logger.InfoCF("classifier", "Reasoning summary", map[string]any{
		"source":          string(result.Source),
		"risk":            string(result.Level),
		"rationale":       result.Rationale,
		"blocked_pattern": orNone(rules.BlockedPattern),
		"matched_keyword": orNone(rules.MatchedKeyword),
		"message_length":  len([]rune(content)),
		"message_preview": preview(content),
		"note":            note,
	})
}

func preview(content string) string {
	normalized := strings.Join(strings.Fields(content), " ")
	if normalized == "" {
		return "n/a"
	}
	runes := []rune(normalized)
	if len(runes) <= previewLimit {
		return normalized
	}
	return string(runes[:previewLimit-3]) + "..."
}

func orNone(v string) string {
	if strings.TrimSpace(v) == "" {
		return "none"
	}
	return strings.TrimSpace(v)
}
