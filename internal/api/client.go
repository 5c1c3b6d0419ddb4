package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"bot-panel/internal/snapshot"
)

// Result is the {success, message} answer of the write endpoints.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Credentials struct {
	APIKey     string `json:"api_key"`
	APISecret  string `json:"api_secret"`
	Passphrase string `json:"passphrase"`
	UseTestnet bool   `json:"use_testnet"`
}

// Client talks to the backend's request/response endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Status fetches the full snapshot used for initial load and resync.
func (c *Client) Status(ctx context.Context) (snapshot.Status, error) {
	data, err := c.getJSON(ctx, "/api/status")
	if err != nil {
		return snapshot.Status{}, err
	}
	return snapshot.ParseStatus(data), nil
}

func (c *Client) Config(ctx context.Context) (map[string]any, error) {
	return c.getJSON(ctx, "/api/config")
}

// SaveConfig posts changed keys. A {success:false} body is returned as a
// Result even when the status code is not 2xx.
func (c *Client) SaveConfig(ctx context.Context, changes map[string]any) (Result, error) {
	return c.postResult(ctx, "/api/config", changes)
}

func (c *Client) TestAPIKey(ctx context.Context, creds Credentials) (Result, error) {
	return c.postResult(ctx, "/api/test_api_key", creds)
}

// DownloadLogs streams the log archive into w.
func (c *Client) DownloadLogs(ctx context.Context, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/download_logs", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, err
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) getJSON(ctx context.Context, path string) (map[string]any, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

func (c *Client) postResult(ctx context.Context, path string, req any) (Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, err
	}
	resp, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, err
	}
	var res struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if jsonErr := json.Unmarshal(body, &res); jsonErr != nil || res.Success == nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return Result{}, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(body, 2048))
		}
		return Result{}, errors.New("response has no success field")
	}
	msg := res.Message
	if msg == "" {
		msg = res.Error
	}
	if !*res.Success {
		c.log.Warn("backend rejected request", zap.String("path", path), zap.Int("status", resp.StatusCode), zap.String("message", msg))
	}
	return Result{Success: *res.Success, Message: msg}, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(httpReq)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
