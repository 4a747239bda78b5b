// Package schema talks to the remote schema service that describes record
// types and their fields.
package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/querylint/querylint/internal/metadata"
)

// DefaultTimeout bounds a single request to the schema service
const DefaultTimeout = 10 * time.Second

// Config holds connection settings for the schema service
type Config struct {
	// BaseURL is the UI API root, e.g. https://example.my.salesforce.com/services/data/v60.0/ui-api
	BaseURL string
	Token   string
	Timeout time.Duration
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("schema service returned %d for %s", e.StatusCode, e.URL)
}

// IsUnauthorized reports whether err is a rejected-credentials response.
func IsUnauthorized(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden
}

// Client is a metadata.SchemaService backed by HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
	now     func() time.Time
}

var _ metadata.SchemaService = (*Client)(nil)

// NewClient creates a client. An empty token is allowed; such a client is
// never authorized.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid schema url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid schema url %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimSuffix(base.String(), "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
		now:     time.Now,
	}, nil
}

// IsAuthorized reports whether the configured credentials are accepted.
// Tokens that are JWTs are checked for expiry before any request is made.
func (c *Client) IsAuthorized(ctx context.Context) bool {
	if c.token == "" {
		return false
	}
	if c.tokenExpired() {
		c.logger.Info("access token expired")
		return false
	}

	err := c.probe(ctx)
	switch {
	case err == nil:
		return true
	case IsUnauthorized(err):
		c.logger.Info("schema service rejected the credentials", zap.Error(err))
	default:
		c.logger.Warn("schema service unavailable", zap.Error(err))
	}
	return false
}

// probe requests the service root. Client errors other than rejected
// credentials still prove the service is reachable and count as success.
func (c *Client) probe(ctx context.Context) error {
	resp, err := c.do(ctx, "/")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode >= http.StatusInternalServerError {
		return &StatusError{StatusCode: resp.StatusCode, URL: resp.Request.URL.String()}
	}
	return nil
}

type describeResponse struct {
	Objects map[string]json.RawMessage `json:"objects"`
}

// DescribeKnownTypes returns the sorted names of every type the service
// describes.
func (c *Client) DescribeKnownTypes(ctx context.Context) ([]string, error) {
	var body describeResponse
	if err := c.getJSON(ctx, "/object-info", &body); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(body.Objects))
	for name := range body.Objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// FetchObjectInfo fetches the metadata of one type.
func (c *Client) FetchObjectInfo(ctx context.Context, typeName string) (*metadata.ObjectInfo, error) {
	var info metadata.ObjectInfo
	err := c.getJSON(ctx, "/object-info/"+url.PathEscape(typeName), &info)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", typeName, metadata.ErrNotFound)
		}
		return nil, err
	}
	if info.APIName == "" {
		info.APIName = typeName
	}
	return &info, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, URL: resp.Request.URL.String()}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("schema request", zap.String("path", path))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("schema request failed: %w", err)
	}
	return resp, nil
}

// tokenExpired inspects the exp claim of JWT tokens without verifying the
// signature. Opaque tokens never count as expired.
func (c *Client) tokenExpired() bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !c.now().Before(exp.Time)
}
