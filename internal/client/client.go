package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"surface/internal/config"
	"surface/internal/types"
)

// Client talks to the backend daemon that owns git operations, terminal
// lifecycle and diff computation. The engine consumes it through the
// interfaces it declares; this is the real implementation.
type Client struct {
	baseURL   string
	tokenPath string
	token     string
	http      *http.Client
}

func New() (*Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	tokenPath, err := config.TokenPath()
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   strings.TrimRight(cfg.Backend.Address, "/"),
		tokenPath: tokenPath,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	_ = c.loadToken()
	return c, nil
}

func NewWithBaseURL(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) ListSessions(ctx context.Context, projectPath string) ([]*types.Session, error) {
	path := "/v1/sessions"
	if strings.TrimSpace(projectPath) != "" {
		path += "?project=" + url.QueryEscape(projectPath)
	}
	var resp SessionsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) GetMergePreview(ctx context.Context, id string) (*types.MergePreview, error) {
	var preview types.MergePreview
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions/"+id+"/merge-preview", nil, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

func (c *Client) MergeSession(ctx context.Context, id string, mode types.MergeMode, commitMessage string) error {
	req := MergeSessionRequest{Mode: mode, CommitMessage: commitMessage}
	return c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+id+"/merge", req, nil)
}

func (c *Client) CancelSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+id+"/cancel", nil, nil)
}

func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*types.Session, error) {
	var session types.Session
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) PromoteSpecToSession(ctx context.Context, id string, req PromoteSpecRequest) (*types.Session, error) {
	var session types.Session
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+id+"/promote", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ConvertSessionToSpec turns a session back into a spec. The backend may
// reuse the id or mint a new one; an empty NewID means the id was kept.
func (c *Client) ConvertSessionToSpec(ctx context.Context, id string) (string, error) {
	var resp ConvertToSpecResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+id+"/convert-to-spec", nil, &resp); err != nil {
		return "", err
	}
	return resp.NewID, nil
}

func (c *Client) StartAgent(ctx context.Context, id, agentType string) error {
	req := StartAgentRequest{AgentType: agentType}
	return c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+id+"/agent/start", req, nil)
}

func (c *Client) AgentRunning(ctx context.Context, id string) (bool, error) {
	var resp AgentStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions/"+id+"/agent", nil, &resp); err != nil {
		return false, err
	}
	return resp.Running, nil
}

func (c *Client) ReleaseTerminal(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/terminals/"+id+"/release", nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.ensureToken(); err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) ensureToken() error {
	if strings.TrimSpace(c.token) == "" && c.tokenPath != "" {
		if err := c.loadToken(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) loadToken() error {
	if c.tokenPath == "" {
		return nil
	}
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.token = ""
			return nil
		}
		return err
	}
	c.token = strings.TrimSpace(string(data))
	return nil
}

func decodeAPIError(resp *http.Response) error {
	type errorPayload struct {
		Error string `json:"error"`
	}
	var payload errorPayload
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	if payload.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// IsPermissionDenied reports whether the backend rejected an operation for
// lack of access, which callers surface on a distinct channel rather than as
// a generic failure.
func IsPermissionDenied(err error) bool {
	apiErr := AsAPIError(err)
	return apiErr != nil && apiErr.StatusCode == http.StatusForbidden
}
