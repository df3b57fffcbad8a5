package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/crewdlabs/crewd/internal/domain"
)

// ErrNotFound is returned when the backend has no record for the
// requested id (e.g. /diff with an unknown task).
var ErrNotFound = errors.New("not found")

// Client is the HTTP client consoles use to talk to the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
}

// NewClient creates a client for the backend at the given port.
func NewClient(port int) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("http://localhost:%d", port),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetAuthToken sets the bearer token used on protected endpoints.
func (c *Client) SetAuthToken(token string) {
	c.authToken = strings.TrimSpace(token)
}

// SetBaseURL overrides the target (for remote backends and tests).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	return c.httpClient.Do(req)
}

// Health checks if the backend is responding.
func (c *Client) Health() error {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(c.baseURL + "/api/health")
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return nil
}

// WaitReady polls health until the backend responds or the timeout expires.
func (c *Client) WaitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := c.Health(); err == nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("backend not ready after %s", timeout)
}

// postJSON sends a JSON body and decodes a JSON response into out.
func (c *Client) postJSON(path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// getJSON issues a GET and decodes a JSON response into out.
func (c *Client) getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("backend: %s", e.Error)
		}
		return fmt.Errorf("backend: status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// ListChannels returns the known channel names.
func (c *Client) ListChannels() ([]string, error) {
	var out struct {
		Channels []string `json:"channels"`
	}
	if err := c.getJSON("/api/channels", &out); err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	return out.Channels, nil
}

// SendMessage persists a chat message and returns the stored entry
// with its server-assigned id.
func (c *Client) SendMessage(channel, recipient, text string) (domain.FeedEntry, error) {
	var out domain.FeedEntry
	err := c.postJSON("/api/channels/"+url.PathEscape(channel)+"/messages",
		map[string]string{"recipient": recipient, "text": text}, &out)
	if err != nil {
		return domain.FeedEntry{}, fmt.Errorf("sending message: %w", err)
	}
	return out, nil
}

// FetchMessages returns entries newer than since, oldest first. A zero
// since fetches the latest page.
func (c *Client) FetchMessages(channel string, since time.Time, limit int) ([]domain.FeedEntry, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.fetch(channel, q)
}

// FetchMessagesBefore returns the page of entries older than the entry
// with the given id, oldest first.
func (c *Client) FetchMessagesBefore(channel, beforeID string, limit int) ([]domain.FeedEntry, error) {
	q := url.Values{}
	q.Set("before_id", beforeID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.fetch(channel, q)
}

func (c *Client) fetch(channel string, q url.Values) ([]domain.FeedEntry, error) {
	path := "/api/channels/" + url.PathEscape(channel) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Entries []domain.FeedEntry `json:"entries"`
	}
	if err := c.getJSON(path, &out); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}
	return out.Entries, nil
}

// SaveCommand persists a finished command and returns the stored entry
// whose id replaces the console's temporary one.
func (c *Client) SaveCommand(channel, raw string, result domain.CommandResult) (domain.FeedEntry, error) {
	var out domain.FeedEntry
	err := c.postJSON("/api/channels/"+url.PathEscape(channel)+"/commands",
		map[string]any{"raw": raw, "result": result}, &out)
	if err != nil {
		return domain.FeedEntry{}, fmt.Errorf("saving command: %w", err)
	}
	return out, nil
}

// Shell executes a shell command in the channel workspace.
func (c *Client) Shell(channel, args, cwd string) (domain.ShellResult, error) {
	var out domain.ShellResult
	err := c.postJSON("/api/channels/"+url.PathEscape(channel)+"/shell",
		map[string]string{"args": args, "cwd": cwd}, &out)
	if err != nil {
		return domain.ShellResult{}, fmt.Errorf("shell: %w", err)
	}
	return out, nil
}

// Tasks returns the channel's task board rows.
func (c *Client) Tasks(channel string) ([]domain.Task, error) {
	var out struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := c.getJSON("/api/channels/"+url.PathEscape(channel)+"/tasks", &out); err != nil {
		return nil, fmt.Errorf("tasks: %w", err)
	}
	return out.Tasks, nil
}

// Cost returns the channel's spend summary.
func (c *Client) Cost(channel string) (domain.CostResult, error) {
	var out domain.CostResult
	if err := c.getJSON("/api/channels/"+url.PathEscape(channel)+"/cost", &out); err != nil {
		return domain.CostResult{}, fmt.Errorf("cost: %w", err)
	}
	return out, nil
}

// Diff returns the per-repo diffs for a task. ErrNotFound when the
// task id is unknown.
func (c *Client) Diff(taskID string) (domain.DiffResult, error) {
	var out domain.DiffResult
	if err := c.getJSON("/api/tasks/"+url.PathEscape(taskID)+"/diff", &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.DiffResult{}, ErrNotFound
		}
		return domain.DiffResult{}, fmt.Errorf("diff: %w", err)
	}
	return out, nil
}
