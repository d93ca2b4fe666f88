package civicdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Civicdesk HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Case represents the API case model (partial).
type Case struct {
	ID                string   `json:"id"`
	Code              string   `json:"case_code"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Status            string   `json:"status"`
	Priority          string   `json:"priority"`
	Channel           string   `json:"channel"`
	SubmittedBy       string   `json:"submitted_by,omitempty"`
	AssignedTaskForce *string  `json:"assigned_task_force_id,omitempty"`
	ResolvedAt        *string  `json:"resolved_at,omitempty"`
	ImageURLs         []string `json:"image_urls"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// Report is the shared shape of assessment and resolution reports (partial).
type Report struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Status   string `json:"status"`
	Revision int    `json:"revision"`
}

// CaseDetail is a case plus whichever reports exist.
type CaseDetail struct {
	Case       Case    `json:"case"`
	Assessment *Report `json:"assessment,omitempty"`
	Resolution *Report `json:"resolution,omitempty"`
}

// HistoryEntry is one status change.
type HistoryEntry struct {
	ID        int64   `json:"id"`
	ActorID   string  `json:"actor_id"`
	OldStatus *string `json:"old_status"`
	NewStatus string  `json:"new_status"`
	Note      string  `json:"note,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// SubmitCaseInput carries a new report. Taxonomy names are matched exactly.
type SubmitCaseInput struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	Location         string `json:"location,omitempty"`
	Priority         string `json:"priority,omitempty"`
	Sector           string `json:"sector,omitempty"`
	SubSector        string `json:"sub_sector,omitempty"`
	Community        string `json:"community,omitempty"`
	SmallerCommunity string `json:"smaller_community,omitempty"`
	Suburb           string `json:"suburb,omitempty"`
}

// PaginatedCases wraps list responses with cursors.
type PaginatedCases struct {
	Items      []Case `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SubmitCase reports a new issue.
func (c *Client) SubmitCase(ctx context.Context, in SubmitCaseInput) (CaseDetail, error) {
	var resp CaseDetail
	err := c.do(ctx, http.MethodPost, "cases", in, &resp)
	return resp, err
}

// GetCase fetches a case by id or case code.
func (c *Client) GetCase(ctx context.Context, id string) (CaseDetail, error) {
	var resp CaseDetail
	err := c.do(ctx, http.MethodGet, "cases/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListCases returns one page of the caller's default view. statuses, when
// given, replace the view's default statuses.
func (c *Client) ListCases(ctx context.Context, statuses []string, limit int, cursor string) (PaginatedCases, error) {
	q := url.Values{}
	for _, s := range statuses {
		q.Add("status", s)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "cases"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedCases
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// TransitionStatus moves a case to status.
func (c *Client) TransitionStatus(ctx context.Context, id, status, note string) (CaseDetail, error) {
	body := map[string]any{"status": status}
	if note != "" {
		body["note"] = note
	}
	var resp CaseDetail
	err := c.do(ctx, http.MethodPatch, "cases/"+url.PathEscape(id)+"/status", body, &resp)
	return resp, err
}

// History returns the status ledger of a case, oldest first.
func (c *Client) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	var resp struct {
		Items []HistoryEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "cases/"+url.PathEscape(id)+"/history", nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
