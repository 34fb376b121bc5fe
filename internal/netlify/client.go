// Package netlify is a small client for the Netlify REST API covering site
// management and zip deploys.
package netlify

import (
	"bytes"
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
	"unicode/utf8"

	"github.com/splax/localvercel/sites/internal/throttle"
)

const (
	// DefaultBaseURL is the public Netlify API root.
	DefaultBaseURL = "https://api.netlify.com/api/v1"

	defaultTimeout   = 60 * time.Second
	maxErrorBodySize = 64 << 10
	maxErrorMessage  = 500
)

// ErrSiteNotFound indicates the requested site no longer exists upstream.
var ErrSiteNotFound = errors.New("netlify site not found")

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("netlify api error (status %d): %s", e.Status, e.Message)
}

// Site is the subset of the Netlify site object the pipeline uses.
type Site struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	SSLURL        string `json:"ssl_url"`
	AdminURL      string `json:"admin_url"`
	CustomDomain  string `json:"custom_domain"`
	DefaultDomain string `json:"default_domain,omitempty"`
}

// SiteRequest carries the writable site fields.
type SiteRequest struct {
	Name         string `json:"name,omitempty"`
	CustomDomain string `json:"custom_domain,omitempty"`
}

// Deploy is the subset of the Netlify deploy object the pipeline uses.
type Deploy struct {
	ID           string `json:"id"`
	SiteID       string `json:"site_id"`
	State        string `json:"state"`
	URL          string `json:"url"`
	SSLURL       string `json:"ssl_url"`
	DeployURL    string `json:"deploy_url"`
	ErrorMessage string `json:"error_message"`
}

// Client talks to the Netlify API. Every request waits on the shared limiter.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter throttle.Limiter
}

// NewClient builds a client. A nil limiter runs requests unthrottled.
func NewClient(baseURL, token string, httpClient *http.Client, limiter throttle.Limiter) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("parse netlify base url: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("netlify auth token required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: trimmed,
		token:   strings.TrimSpace(token),
		http:    httpClient,
		limiter: limiter,
	}, nil
}

// CreateSite provisions a new site.
func (c *Client) CreateSite(ctx context.Context, req SiteRequest) (*Site, error) {
	var site Site
	if err := c.doJSON(ctx, http.MethodPost, "/sites", req, &site); err != nil {
		return nil, fmt.Errorf("create site: %w", err)
	}
	return &site, nil
}

// GetSite fetches a site. A missing site yields ErrSiteNotFound.
func (c *Client) GetSite(ctx context.Context, siteID string) (*Site, error) {
	var site Site
	if err := c.doJSON(ctx, http.MethodGet, "/sites/"+url.PathEscape(siteID), nil, &site); err != nil {
		return nil, fmt.Errorf("get site %s: %w", siteID, notFound(err, siteID))
	}
	return &site, nil
}

// UpdateSite patches the writable fields of a site.
func (c *Client) UpdateSite(ctx context.Context, siteID string, req SiteRequest) (*Site, error) {
	var site Site
	if err := c.doJSON(ctx, http.MethodPatch, "/sites/"+url.PathEscape(siteID), req, &site); err != nil {
		return nil, fmt.Errorf("update site %s: %w", siteID, notFound(err, siteID))
	}
	return &site, nil
}

// DeleteSite removes a site and all of its deploys.
func (c *Client) DeleteSite(ctx context.Context, siteID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/sites/"+url.PathEscape(siteID), nil, nil); err != nil {
		return fmt.Errorf("delete site %s: %w", siteID, notFound(err, siteID))
	}
	return nil
}

// DeployZip uploads a zipped site as a new production deploy.
func (c *Client) DeployZip(ctx context.Context, siteID string, archive []byte) (*Deploy, error) {
	var deploy Deploy
	path := "/sites/" + url.PathEscape(siteID) + "/deploys"
	err := c.do(ctx, http.MethodPost, path, "application/zip", archive, &deploy)
	if err != nil {
		return nil, fmt.Errorf("deploy zip to %s: %w", siteID, err)
	}
	return &deploy, nil
}

// GetDeploy reads the current state of a deploy.
func (c *Client) GetDeploy(ctx context.Context, siteID, deployID string) (*Deploy, error) {
	var deploy Deploy
	path := "/sites/" + url.PathEscape(siteID) + "/deploys/" + url.PathEscape(deployID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &deploy); err != nil {
		return nil, fmt.Errorf("get deploy %s: %w", deployID, err)
	}
	return &deploy, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	contentType := ""
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = raw
		contentType = "application/json"
	}
	return c.do(ctx, method, path, contentType, body, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	call := func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return errorFromResponse(resp)
		}
		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	if c.limiter == nil {
		return call(ctx)
	}
	return c.limiter.Execute(ctx, call)
}

// errorFromResponse prefers the structured message of a JSON error body and
// falls back to the raw body, truncated.
func errorFromResponse(resp *http.Response) error {
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return &APIError{Status: resp.StatusCode, Message: errorMessage(buf, resp.Status)}
}

func errorMessage(body []byte, status string) string {
	var payload struct {
		Message string          `json:"message"`
		Error   string          `json:"error"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		case len(payload.Errors) > 0 && string(payload.Errors) != "null":
			return flattenErrors(payload.Errors)
		}
	}
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return status
	}
	if len(raw) > maxErrorMessage {
		cut := maxErrorMessage
		for cut > 0 && !utf8.RuneStart(raw[cut]) {
			cut--
		}
		raw = raw[:cut]
	}
	return strings.ToValidUTF8(raw, "")
}

// flattenErrors renders the "errors" member, which Netlify sends either as a
// list of strings or as a field→messages object.
func flattenErrors(raw json.RawMessage) string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err == nil {
		parts := make([]string, 0, len(fields))
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s: %v", key, fields[key]))
		}
		return strings.Join(parts, "; ")
	}
	return string(raw)
}

func notFound(err error, siteID string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
	}
	return err
}
