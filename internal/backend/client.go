// Package backend talks to the assistant server over HTTP.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"vist/pkg/protocol"
)

// ErrNoUser is returned by calls that need a signed-in user when none is configured.
var ErrNoUser = errors.New("not signed in")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Body)
}

// Client is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	uid     string
	http    *http.Client
}

// New parses baseURL; httpClient nil means http.DefaultClient.
func New(baseURL, uid string, httpClient *http.Client) (*Client, error) {
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		return nil, errors.New("backend url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must include scheme and host", raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: u, uid: strings.TrimSpace(uid), http: httpClient}, nil
}

func (c *Client) UID() string { return c.uid }

// BaseURL returns the server root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// DataURL returns the address of a stored file served under /data/.
func (c *Client) DataURL(name string) string {
	u := *c.baseURL
	u.Path = path.Join(u.Path, "/data", name)
	u.RawQuery = ""
	return u.String()
}

// Reply is a streaming /api/process response. Close must be called.
type Reply struct {
	*protocol.Stream
	body io.Closer
}

func (r *Reply) Close() error {
	return r.body.Close()
}

// Process submits text for the configured user and returns the record stream.
func (c *Client) Process(ctx context.Context, text string, opts ...protocol.StreamOption) (*Reply, error) {
	if c.uid == "" {
		return nil, ErrNoUser
	}
	res, err := c.doJSON(ctx, http.MethodPost, "/api/process", nil, protocol.ProcessRequest{Text: text, UID: c.uid})
	if err != nil {
		return nil, err
	}
	if err := checkStatus(res); err != nil {
		return nil, err
	}
	return &Reply{Stream: protocol.NewStream(res.Body, opts...), body: res.Body}, nil
}

// History fetches the stored exchanges of the configured user.
func (c *Client) History(ctx context.Context) ([]protocol.HistoryEntry, error) {
	if c.uid == "" {
		return nil, ErrNoUser
	}
	var out protocol.HistoryResponse
	if err := c.getJSON(ctx, "/api/chat_history", url.Values{"uid": {c.uid}}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, errors.New(out.Error)
	}
	return out.History, nil
}

// AnalyzeImage uploads the image with a prompt and returns the description.
func (c *Client) AnalyzeImage(ctx context.Context, imagePath, prompt string) (string, error) {
	fields := map[string]string{"prompt": prompt}
	if c.uid != "" {
		fields["uid"] = c.uid
	}
	var out protocol.AnalyzeImageResponse
	if err := c.upload(ctx, "/api/analyze_image", "image", imagePath, fields, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	return out.Description, nil
}

// SetCurrentUser tells the server which user this client acts for.
func (c *Client) SetCurrentUser(ctx context.Context) error {
	if c.uid == "" {
		return ErrNoUser
	}
	var out protocol.StatusResponse
	return c.sendJSON(ctx, http.MethodPost, "/api/set_current_user", nil, protocol.UserRequest{UID: c.uid}, &out)
}

func (c *Client) endpoint(p string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + p
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, p string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(p, query), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, p, err)
	}
	return res, nil
}

func (c *Client) doJSON(ctx context.Context, method, p string, query url.Values, in any) (*http.Response, error) {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, method, p, query, body, contentType)
}

func (c *Client) getJSON(ctx context.Context, p string, query url.Values, out any) error {
	return c.sendJSON(ctx, http.MethodGet, p, query, nil, out)
}

func (c *Client) sendJSON(ctx context.Context, method, p string, query url.Values, in, out any) error {
	res, err := c.doJSON(ctx, method, p, query, in)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if err := checkStatus(res); err != nil {
		return err
	}
	return decodeBody(res.Body, out)
}

func (c *Client) upload(ctx context.Context, p, field, filePath string, fields map[string]string, out any) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filepath.Base(filePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	res, err := c.do(ctx, http.MethodPost, p, nil, &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if err := checkStatus(res); err != nil {
		return err
	}
	return decodeBody(res.Body, out)
}

func decodeBody(r io.Reader, out any) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, r)
		return nil
	}
	if err := json.NewDecoder(r).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus closes the body of failed responses.
func checkStatus(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	defer func() { _ = res.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	msg := strings.TrimSpace(string(body))
	var envelope protocol.ErrorResponse
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
		msg = envelope.Error
	}
	return &StatusError{StatusCode: res.StatusCode, Body: msg}
}
