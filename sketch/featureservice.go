package sketch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	// DefaultRequestTimeout is the default HTTP request timeout for feature-service calls.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxAttempts is one: feature-service calls are not retried unless configured.
	DefaultMaxAttempts = 1

	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes limits the response body to 50 MB to prevent OOM.
	maxResponseBytes = 50 << 20
)

// ClientOption configures a FeatureServiceClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout     time.Duration
	maxAttempts int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		timeout:     DefaultRequestTimeout,
		maxAttempts: DefaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries sets the total number of attempts for read requests.
func WithMaxRetries(n int) ClientOption {
	return func(c *clientConfig) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.client = client
	}
}

// ServiceError is an error reported by the feature service in its response
// body. The service answers HTTP 200 for these, so the status code alone does
// not reveal them.
type ServiceError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("feature service error %d: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("feature service error %d: %s", e.Code, e.Message)
}

// errorEnvelope checks a response body for {"error": {...}}.
type errorEnvelope struct {
	Error *ServiceError `json:"error"`
}

// EditItemError describes why a single add was rejected
type EditItemError struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

// EditItemResult is the per-feature outcome of an applyEdits request
type EditItemResult struct {
	ObjectID int64          `json:"objectId"`
	GlobalID *string        `json:"globalId,omitempty"`
	Success  bool           `json:"success"`
	Error    *EditItemError `json:"error,omitempty"`
}

// EditResult is the applyEdits response
type EditResult struct {
	AddResults    []EditItemResult `json:"addResults"`
	UpdateResults []EditItemResult `json:"updateResults"`
	DeleteResults []EditItemResult `json:"deleteResults"`
}

// ObjectIDs returns the object ids assigned to successful adds.
func (r *EditResult) ObjectIDs() []int64 {
	ids := make([]int64, 0, len(r.AddResults))
	for _, ar := range r.AddResults {
		if ar.Success {
			ids = append(ids, ar.ObjectID)
		}
	}
	return ids
}

// EditError is returned when the service accepted the request but rejected
// one or more adds.
type EditError struct {
	Failed []EditItemResult
}

func (e *EditError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Error != nil {
			parts = append(parts, fmt.Sprintf("%d: %s", f.Error.Code, f.Error.Description))
		} else {
			parts = append(parts, "unknown failure")
		}
	}
	return fmt.Sprintf("%d add(s) rejected: %s", len(e.Failed), strings.Join(parts, "; "))
}

// FeatureServiceClient talks to a single feature-service layer endpoint.
type FeatureServiceClient struct {
	layerURL string
	auth     Authenticator
	cfg      clientConfig
	client   *http.Client
}

// NewFeatureServiceClient creates a client for the layer at layerURL, e.g.
// "https://host/arcgis/rest/services/DEL_LRS/FeatureServer/0".
func NewFeatureServiceClient(layerURL string, auth Authenticator, opts ...ClientOption) (*FeatureServiceClient, error) {
	if layerURL == "" {
		return nil, fmt.Errorf("feature service: layer URL is empty")
	}
	if _, err := url.Parse(layerURL); err != nil {
		return nil, fmt.Errorf("feature service: invalid layer URL: %w", err)
	}
	if auth == nil {
		return nil, fmt.Errorf("feature service: authenticator is nil")
	}

	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	return &FeatureServiceClient{
		layerURL: strings.TrimRight(layerURL, "/"),
		auth:     auth,
		cfg:      cfg,
		client:   client,
	}, nil
}

// LayerURL returns the layer endpoint this client talks to
func (c *FeatureServiceClient) LayerURL() string {
	return c.layerURL
}

// QueryFeatures fetches every feature of the layer as GeoJSON. A layer with
// no features yields an empty, non-nil collection. Transport failures and
// 5xx responses are retried when more than one attempt is configured; service
// and decode errors are not.
func (c *FeatureServiceClient) QueryFeatures(ctx context.Context) (*geojson.FeatureCollection, error) {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("query features: authentication: %w", err)
	}

	params := url.Values{}
	params.Set("where", "1=1")
	params.Set("outFields", "*")
	params.Set("f", "geojson")
	params.Set("token", token)
	queryURL := c.layerURL + "/query?" + params.Encode()

	var lastErr error
	attempts := 0
	for attempt := range c.cfg.maxAttempts {
		attempts++
		if attempt > 0 {
			backoff := c.cfg.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("query features: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, err := c.do(ctx, http.MethodGet, queryURL, nil)
		if err != nil {
			lastErr = err
			if !isTransient(err) {
				break
			}
			continue
		}

		fc, err := decodeFeatureCollection(body)
		if err != nil {
			return nil, fmt.Errorf("query features: %w", err)
		}
		return fc, nil
	}

	if attempts > 1 {
		return nil, fmt.Errorf("query features: all %d attempts failed: %w", attempts, lastErr)
	}
	return nil, fmt.Errorf("query features: %w", lastErr)
}

// ApplyEdits submits new features to the layer. It is never retried, since a
// repeated add would create a duplicate feature.
func (c *FeatureServiceClient) ApplyEdits(ctx context.Context, payload EditPayload) (*EditResult, error) {
	if len(payload.Adds) == 0 {
		return nil, fmt.Errorf("apply edits: nothing to add")
	}

	token, err := c.auth.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply edits: authentication: %w", err)
	}

	adds, err := json.Marshal(payload.Adds)
	if err != nil {
		return nil, fmt.Errorf("apply edits: marshaling adds: %w", err)
	}

	form := url.Values{}
	form.Set("f", "json")
	form.Set("adds", string(adds))
	form.Set("token", token)

	body, err := c.do(ctx, http.MethodPost, c.layerURL+"/applyEdits", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("apply edits: %w", err)
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("apply edits: parsing JSON: %w", err)
	}
	if env.Error != nil {
		return nil, fmt.Errorf("apply edits: %w", env.Error)
	}

	var result EditResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("apply edits: parsing JSON: %w", err)
	}

	var failed []EditItemResult
	for _, ar := range result.AddResults {
		if !ar.Success {
			failed = append(failed, ar)
		}
	}
	if len(failed) > 0 {
		return &result, fmt.Errorf("apply edits: %w", &EditError{Failed: failed})
	}

	return &result, nil
}

// httpStatusError is a non-200 response.
type httpStatusError struct {
	method string
	url    string
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %s %s: status %d", e.method, e.url, e.status)
}

// transportError wraps failures that happened before a response arrived.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// isTransient reports whether a request failure is worth another attempt.
func isTransient(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	return false
}

// do performs a single request and returns the response body bytes. The
// token never appears in returned errors.
func (c *FeatureServiceClient) do(ctx context.Context, method, rawURL string, form io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, form)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	safeURL := redactToken(rawURL)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("HTTP %s %s: %w", method, safeURL, redactURLError(err))}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{method: method, url: safeURL, status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("reading response from %s: %w", safeURL, err)}
	}

	return body, nil
}

// queryResponse is the GeoJSON query body. The collection and feature "type"
// members are optional on the wire; a missing features array is an empty layer.
type queryResponse struct {
	Features   []queryFeature `json:"features"`
	Properties struct {
		ExceededTransferLimit bool `json:"exceededTransferLimit"`
	} `json:"properties"`
}

type queryFeature struct {
	ID         any                `json:"id"`
	Geometry   *geojson.Geometry  `json:"geometry"`
	Properties geojson.Properties `json:"properties"`
}

// decodeFeatureCollection parses a GeoJSON query response, surfacing the
// service's error envelope when present.
func decodeFeatureCollection(body []byte) (*geojson.FeatureCollection, error) {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if env.Error != nil {
		return nil, env.Error
	}

	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing GeoJSON: %w", err)
	}

	fc := geojson.NewFeatureCollection()
	for _, qf := range resp.Features {
		var g orb.Geometry
		if qf.Geometry != nil {
			g = qf.Geometry.Geometry()
		}
		f := geojson.NewFeature(g)
		f.ID = qf.ID
		if qf.Properties != nil {
			f.Properties = qf.Properties
		}
		fc.Append(f)
	}

	if resp.Properties.ExceededTransferLimit {
		log.Printf("[SYNC] Warning: query returned %d features but the service reports more are available", len(fc.Features))
	}

	return fc, nil
}

// redactToken strips the token parameter from a URL for logging.
func redactToken(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// redactURLError removes the request URL (which may carry the token) from a
// *url.Error, keeping the underlying cause.
func redactURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
