package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/herd-sh/herd/pkg/adapters"
)

const githubAPIURL = "https://api.github.com"

// GitHub provides the pull-request half of the Repo port over the GitHub
// REST API.
type GitHub struct {
	httpClient *http.Client
	baseURL    string
	token      string
	repo       string // "owner/name"
	logger     *slog.Logger
}

// NewGitHub creates a GitHub API client for one repository.
// token may be empty (public repos only, lower rate limits).
func NewGitHub(token, repo string) *GitHub {
	return NewGitHubWithBaseURL(token, repo, githubAPIURL)
}

// NewGitHubWithBaseURL targets a custom API base. Useful for testing with
// a mock server.
func NewGitHubWithBaseURL(token, repo, baseURL string) *GitHub {
	return &GitHub{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		repo:       repo,
		logger:     slog.Default().With("component", "github"),
	}
}

// request executes one API call, decoding a JSON body into out when the
// status matches want.
func (c *GitHub) request(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, adapters.ErrNotFound)
	}
	if resp.StatusCode != want {
		return fmt.Errorf("GitHub returned HTTP %d for %s: %s", resp.StatusCode, path, strings.TrimSpace(string(raw)))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *GitHub) setAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// prResponse is the wire shape of a pull request.
type prResponse struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	State   string `json:"state"`
	Merged  bool   `json:"merged"`
	HTMLURL string `json:"html_url"`
	Head    struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

func (r prResponse) record() adapters.PRRecord {
	return adapters.PRRecord{
		ID:        fmt.Sprintf("%d", r.Number),
		Number:    r.Number,
		Title:     r.Title,
		Body:      r.Body,
		State:     r.State,
		Head:      r.Head.Ref,
		Base:      r.Base.Ref,
		Author:    r.User.Login,
		URL:       r.HTMLURL,
		Merged:    r.Merged,
		CreatedAt: r.CreatedAt,
	}
}

// CreatePR opens a pull request and returns its number as the id.
func (c *GitHub) CreatePR(ctx context.Context, title, body, head, base string) (string, error) {
	payload := map[string]string{
		"title": title,
		"body":  body,
		"head":  head,
		"base":  base,
	}

	var resp prResponse
	path := fmt.Sprintf("/repos/%s/pulls", c.repo)
	if err := c.request(ctx, http.MethodPost, path, payload, http.StatusCreated, &resp); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", resp.Number), nil
}

// GetPR fetches a pull request by number.
func (c *GitHub) GetPR(ctx context.Context, id string) (adapters.PRRecord, error) {
	var resp prResponse
	path := fmt.Sprintf("/repos/%s/pulls/%s", c.repo, id)
	if err := c.request(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return adapters.PRRecord{}, err
	}
	return resp.record(), nil
}

// MergePR merges a pull request.
func (c *GitHub) MergePR(ctx context.Context, id string) error {
	var resp struct {
		Merged  bool   `json:"merged"`
		Message string `json:"message"`
	}
	path := fmt.Sprintf("/repos/%s/pulls/%s/merge", c.repo, id)
	if err := c.request(ctx, http.MethodPut, path, map[string]string{}, http.StatusOK, &resp); err != nil {
		return err
	}
	if !resp.Merged {
		return fmt.Errorf("GitHub did not merge PR %s: %s", id, resp.Message)
	}
	return nil
}

// AddPRComment posts a comment. PR comments ride the issues API.
func (c *GitHub) AddPRComment(ctx context.Context, id, body string) error {
	path := fmt.Sprintf("/repos/%s/issues/%s/comments", c.repo, id)
	return c.request(ctx, http.MethodPost, path, map[string]string{"body": body}, http.StatusCreated, nil)
}
