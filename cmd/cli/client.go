package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// errNoContent marks a 204 reply: an empty list
var errNoContent = errors.New("no content")

// apiClient talks to the REST API and keeps the session cookie in a local file
type apiClient struct {
	baseURL     string
	cookieName  string
	sessionPath string
	http        *http.Client
}

func newAPIClient(baseURL, cookieName, sessionPath string) *apiClient {
	return &apiClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		cookieName:  cookieName,
		sessionPath: sessionPath,
		http:        &http.Client{Timeout: 15 * time.Second},
	}
}

// call sends body as JSON and decodes a 2xx reply into out when out is non-nil.
// Non-2xx replies become errors carrying the server's message.
func (c *apiClient) call(method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.loadSession(); token != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: token})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.storeSession(resp); err != nil {
		return resp.StatusCode, fmt.Errorf("save session: %w", err)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, apiError(resp.StatusCode, data)
	}
	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, errNoContent
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func apiError(status int, body []byte) error {
	var e struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if json.Unmarshal(body, &e) != nil || e.Error == "" {
		return fmt.Errorf("%d %s", status, http.StatusText(status))
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for k, v := range e.Fields {
			parts = append(parts, k+" "+v)
		}
		return fmt.Errorf("%d: %s", status, strings.Join(parts, "; "))
	}
	return fmt.Errorf("%d: %s", status, e.Error)
}

// storeSession persists a new session cookie or forgets a cleared one
func (c *apiClient) storeSession(resp *http.Response) error {
	for _, ck := range resp.Cookies() {
		if ck.Name != c.cookieName {
			continue
		}
		if ck.Value == "" || ck.MaxAge < 0 {
			return c.clearSession()
		}
		if err := os.MkdirAll(filepath.Dir(c.sessionPath), 0o700); err != nil {
			return err
		}
		return os.WriteFile(c.sessionPath, []byte(ck.Value), 0o600)
	}
	return nil
}

func (c *apiClient) loadSession() string {
	data, err := os.ReadFile(c.sessionPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (c *apiClient) clearSession() error {
	if err := os.Remove(c.sessionPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "datingapp-session")
	}
	return filepath.Join(home, ".datingapp", "session")
}

func defaultAPIURL() string {
	if url := os.Getenv("DATINGAPP_API"); url != "" {
		return url
	}
	return "http://localhost:8080"
}
