package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const githubAPI = "https://api.github.com"

// GitHubConfig locates the dataset file in a repository.
type GitHubConfig struct {
	Owner   string
	Repo    string
	Path    string
	Branch  string
	Token   string
	BaseURL string
}

// GitHubStore is a BlobStore over the repository contents API.
// The file's blob SHA is the version token.
type GitHubStore struct {
	cfg    GitHubConfig
	client *http.Client
	logger *logrus.Logger
}

// NewGitHubStore creates a store. A nil client gets a 60 second timeout.
func NewGitHubStore(cfg GitHubConfig, client *http.Client, logger *logrus.Logger) *GitHubStore {
	if cfg.BaseURL == "" {
		cfg.BaseURL = githubAPI
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &GitHubStore{cfg: cfg, client: client, logger: logger}
}

type contentsResponse struct {
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type blobResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

func (s *GitHubStore) contentsURL() string {
	path := strings.TrimPrefix(s.cfg.Path, "/")
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", s.cfg.BaseURL, s.cfg.Owner, s.cfg.Repo, path)
}

func (s *GitHubStore) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "token "+s.cfg.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and decodes a 2xx JSON body into out. It returns the status code.
func (s *GitHubStore) do(req *http.Request, out interface{}) (int, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("github %s %s: status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, truncate(string(body), 200))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode response: %v", ErrTransport, err)
		}
	}
	return resp.StatusCode, nil
}

func (s *GitHubStore) Get(ctx context.Context) ([]byte, string, error) {
	u := s.contentsURL() + "?ref=" + url.QueryEscape(s.cfg.Branch)
	req, err := s.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	var meta contentsResponse
	status, err := s.do(req, &meta)
	if status == http.StatusNotFound {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", transportErr(err)
	}

	// Files over 1MB come back without inline content.
	if meta.Encoding == "base64" && meta.Content != "" {
		data, err := decodeBase64(meta.Content)
		if err != nil {
			return nil, "", err
		}
		return data, meta.SHA, nil
	}

	s.logger.WithFields(logrus.Fields{"sha": meta.SHA, "size": meta.Size}).Debug("fetching large dataset through blobs api")
	data, err := s.getBlob(ctx, meta.SHA)
	if err != nil {
		return nil, "", err
	}
	return data, meta.SHA, nil
}

func (s *GitHubStore) getBlob(ctx context.Context, sha string) ([]byte, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/git/blobs/%s", s.cfg.BaseURL, s.cfg.Owner, s.cfg.Repo, sha)
	req, err := s.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var blob blobResponse
	if _, err := s.do(req, &blob); err != nil {
		return nil, transportErr(err)
	}
	if blob.Encoding != "base64" {
		return []byte(blob.Content), nil
	}
	return decodeBase64(blob.Content)
}

func (s *GitHubStore) Put(ctx context.Context, data []byte, expectedVersion, message string) (string, error) {
	payload, err := json.Marshal(putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  s.cfg.Branch,
		SHA:     expectedVersion,
	})
	if err != nil {
		return "", err
	}
	req, err := s.newRequest(ctx, http.MethodPut, s.contentsURL(), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	var out putResponse
	status, err := s.do(req, &out)
	switch {
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %v", ErrVersionConflict, err)
	case err != nil:
		return "", transportErr(err)
	}
	s.logger.WithFields(logrus.Fields{
		"path":    s.cfg.Path,
		"created": expectedVersion == "",
		"sha":     out.Content.SHA,
	}).Info("dataset written to github")
	return out.Content.SHA, nil
}

func decodeBase64(s string) ([]byte, error) {
	clean := strings.NewReplacer("\n", "", "\r", "").Replace(s)
	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: decode content: %v", ErrTransport, err)
	}
	return data, nil
}

func transportErr(err error) error {
	if errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
