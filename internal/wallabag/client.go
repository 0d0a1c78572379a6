package wallabag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Config holds the credentials and server location for a Client.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	BaseURL      string
}

// Client talks to a wallabag server. It is safe for use from a single
// goroutine; the token cache is guarded so that a shared client does not
// race on refresh, but callers are expected to serialize sync passes.
type Client struct {
	cfg  Config
	http *http.Client

	tokenMu sync.Mutex
	token   *tokenInfo
}

// NewClient creates a client for the given server. No network traffic
// happens until the first call; the oauth token is fetched lazily.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// tokenRequest is the oauth token endpoint payload. The grant type selects
// which of the remaining fields the server reads.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// loadToken obtains a fresh token with the password grant.
func (c *Client) loadToken(ctx context.Context) error {
	req := tokenRequest{
		GrantType:    "password",
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Username:     c.cfg.Username,
		Password:     c.cfg.Password,
	}

	var info tokenInfo
	if err := c.requestJSON(ctx, http.MethodPost, "/oauth/v2/token", nil, req, false, &info); err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}
	c.token = &info
	return nil
}

// refreshToken renews the access token using the saved refresh token,
// falling back to the password grant if no token is loaded yet.
func (c *Client) refreshToken(ctx context.Context) error {
	if c.token == nil {
		return c.loadToken(ctx)
	}

	req := tokenRequest{
		GrantType:    "refresh_token",
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RefreshToken: c.token.RefreshToken,
	}

	var info tokenInfo
	if err := c.requestJSON(ctx, http.MethodPost, "/oauth/v2/token", nil, req, false, &info); err != nil {
		return fmt.Errorf("failed to refresh access token: %w", err)
	}
	c.token = &info
	return nil
}

// accessToken returns a usable bearer token, fetching one if needed.
// Caller must hold tokenMu.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.token == nil {
		if err := c.loadToken(ctx); err != nil {
			return "", err
		}
	}
	return c.token.AccessToken, nil
}

// callJSON runs an authenticated request and decodes the JSON response.
// If the server reports the token expired, the token is refreshed and the
// request retried exactly once; any other error surfaces unchanged.
func (c *Client) callJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	err := c.requestJSON(ctx, method, path, query, body, true, out)
	if err == errTokenExpired {
		if err = c.refreshToken(ctx); err != nil {
			return err
		}
		err = c.requestJSON(ctx, method, path, query, body, true, out)
	}
	return err
}

// requestJSON builds and sends a single request, mapping error statuses to
// the package's typed errors and decoding a success body into out.
func (c *Client) requestJSON(ctx context.Context, method, path string, query url.Values, body interface{}, useToken bool, out interface{}) error {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if useToken {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// checkStatus maps a non-success response to a typed error. The body is
// consumed for error responses.
func checkStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		var info responseError
		_ = json.NewDecoder(resp.Body).Decode(&info)
		if strings.Contains(info.ErrorDescription, "expired") {
			return errTokenExpired
		}
		if info.ErrorDescription != "" {
			return fmt.Errorf("%w: %s", ErrUnauthorized, info.ErrorDescription)
		}
		return ErrUnauthorized
	case http.StatusForbidden:
		var info codeMessageError
		_ = json.NewDecoder(resp.Body).Decode(&info)
		if info.Error.Message != "" {
			return fmt.Errorf("%w: %s", ErrForbidden, info.Error.Message)
		}
		return ErrForbidden
	case http.StatusNotFound:
		var info codeMessageError
		_ = json.NewDecoder(resp.Body).Decode(&info)
		if info.Error.Message != "" {
			return fmt.Errorf("%w: %s", ErrNotFound, info.Error.Message)
		}
		return ErrNotFound
	case http.StatusNotModified:
		return ErrNotModified
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
}

// ListEntries fetches entries matching the filter, following pagination
// until the last page. Entries in the listing embed their annotations and
// tags.
func (c *Client) ListEntries(ctx context.Context, filter EntriesFilter) ([]Entry, error) {
	var entries []Entry

	for page := 1; ; {
		var resp paginatedEntries
		if err := c.callJSON(ctx, http.MethodGet, "/api/entries.json", filter.query(page), nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to list entries (page %d): %w", page, err)
		}
		entries = append(entries, resp.Embedded.Items...)

		if resp.Page >= resp.Pages {
			break
		}
		page = resp.Page + 1
	}

	return entries, nil
}

// GetEntry fetches a single entry by id, including its content.
func (c *Client) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	var entry Entry
	if err := c.callJSON(ctx, http.MethodGet, fmt.Sprintf("/api/entries/%d.json", id), nil, nil, &entry); err != nil {
		return nil, fmt.Errorf("failed to get entry %d: %w", id, err)
	}
	return &entry, nil
}

// CreateEntry saves a new entry. The server fetches the article content
// unless it was supplied in the payload.
func (c *Client) CreateEntry(ctx context.Context, newEntry NewEntry) (*Entry, error) {
	var entry Entry
	if err := c.callJSON(ctx, http.MethodPost, "/api/entries.json", nil, newEntry, &entry); err != nil {
		return nil, fmt.Errorf("failed to create entry for %s: %w", newEntry.URL, err)
	}
	return &entry, nil
}

// UpdateEntry patches an entry. Nil patch fields are left unchanged.
func (c *Client) UpdateEntry(ctx context.Context, id int64, patch PatchEntry) (*Entry, error) {
	var entry Entry
	if err := c.callJSON(ctx, http.MethodPatch, fmt.Sprintf("/api/entries/%d.json", id), nil, patch, &entry); err != nil {
		return nil, fmt.Errorf("failed to update entry %d: %w", id, err)
	}
	return &entry, nil
}

// DeleteEntry removes an entry server-side. The delete response carries the
// deleted entity's fields but not its id, so the id is spliced back in.
func (c *Client) DeleteEntry(ctx context.Context, id int64) (*Entry, error) {
	var entry Entry
	if err := c.callJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/entries/%d.json", id), nil, nil, &entry); err != nil {
		return nil, fmt.Errorf("failed to delete entry %d: %w", id, err)
	}
	entry.ID = id
	return &entry, nil
}

// ReloadEntry asks the server to re-fetch the article content.
func (c *Client) ReloadEntry(ctx context.Context, id int64) (*Entry, error) {
	var entry Entry
	if err := c.callJSON(ctx, http.MethodPatch, fmt.Sprintf("/api/entries/%d/reload.json", id), nil, nil, &entry); err != nil {
		return nil, fmt.Errorf("failed to reload entry %d: %w", id, err)
	}
	return &entry, nil
}

// GetAnnotations fetches all annotations for an entry.
func (c *Client) GetAnnotations(ctx context.Context, entryID int64) ([]Annotation, error) {
	var resp annotationRows
	if err := c.callJSON(ctx, http.MethodGet, fmt.Sprintf("/api/annotations/%d.json", entryID), nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get annotations for entry %d: %w", entryID, err)
	}
	return resp.Rows, nil
}

// CreateAnnotation attaches a new annotation to an entry.
func (c *Client) CreateAnnotation(ctx context.Context, entryID int64, newAnn NewAnnotation) (*Annotation, error) {
	var ann Annotation
	if err := c.callJSON(ctx, http.MethodPost, fmt.Sprintf("/api/annotations/%d.json", entryID), nil, newAnn, &ann); err != nil {
		return nil, fmt.Errorf("failed to create annotation on entry %d: %w", entryID, err)
	}
	return &ann, nil
}

// UpdateAnnotation replaces an annotation's content server-side.
func (c *Client) UpdateAnnotation(ctx context.Context, ann Annotation) (*Annotation, error) {
	var updated Annotation
	if err := c.callJSON(ctx, http.MethodPut, fmt.Sprintf("/api/annotations/%d.json", ann.ID), nil, ann, &updated); err != nil {
		return nil, fmt.Errorf("failed to update annotation %d: %w", ann.ID, err)
	}
	return &updated, nil
}

// DeleteAnnotation removes an annotation server-side.
func (c *Client) DeleteAnnotation(ctx context.Context, id int64) error {
	if err := c.callJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/annotations/%d.json", id), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete annotation %d: %w", id, err)
	}
	return nil
}

// GetTags fetches all of the user's tags.
func (c *Client) GetTags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	if err := c.callJSON(ctx, http.MethodGet, "/api/tags.json", nil, nil, &tags); err != nil {
		return nil, fmt.Errorf("failed to get tags: %w", err)
	}
	return tags, nil
}

// CheckExists reports whether a url already has an entry, returning its id
// if so and nil otherwise.
func (c *Client) CheckExists(ctx context.Context, rawURL string) (*int64, error) {
	query := url.Values{}
	query.Set("url", rawURL)
	query.Set("return_id", "1")

	var resp existsResponse
	if err := c.callJSON(ctx, http.MethodGet, "/api/entries/exists.json", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to check existence of %s: %w", rawURL, err)
	}
	return resp.Exists, nil
}
