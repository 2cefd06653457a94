// Package hosting is the code-hosting REST client: branch listing,
// tag refs, release creation and binary asset upload, bearer-token
// authenticated. The API shape follows the GitHub REST v3 surface.
package hosting

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
	"path/filepath"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.github.com"

var (
	// ErrReleaseNotFound indicates no release exists for the tag.
	ErrReleaseNotFound = errors.New("release not found")

	// ErrUnauthorized indicates the token was rejected.
	ErrUnauthorized = errors.New("hosting API rejected the token")
)

// Release is the remote release object.
type Release struct {
	ID        int64  `json:"id"`
	TagName   string `json:"tag_name"`
	Name      string `json:"name"`
	Body      string `json:"body"`
	Draft     bool   `json:"draft"`
	HTMLURL   string `json:"html_url"`
	UploadURL string `json:"upload_url"`
}

// Branch is one remote branch.
type Branch struct {
	Name string `json:"name"`
}

// Client talks to the hosting API for one repository.
type Client struct {
	baseURL   string
	uploadURL string
	token     string
	http      *http.Client
}

// Option adjusts the client.
type Option func(*Client)

// WithBaseURL points the client at a different API root (tests,
// self-hosted instances). The upload endpoint is derived from it.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(base, "/")
		c.uploadURL = c.baseURL
	}
}

// NewClient returns a hosting client using the given bearer token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:   defaultBaseURL,
		uploadURL: "https://uploads.github.com",
		token:     token,
		http:      &http.Client{Timeout: 60 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return err
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}

	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrReleaseNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 400:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// ListBranches returns the repository's remote branches.
func (c *Client) ListBranches(ctx context.Context, owner, repo string) ([]Branch, error) {
	var branches []Branch

	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("%s/repos/%s/%s/branches", c.baseURL, owner, repo), nil, "", &branches)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}

	return branches, nil
}

// CreateTagRef creates a lightweight remote ref for the tag pointing
// at the given commit SHA.
func (c *Client) CreateTagRef(ctx context.Context, owner, repo, tag, sha string) error {
	payload, err := json.Marshal(map[string]string{
		"ref": "refs/tags/" + tag,
		"sha": sha,
	})
	if err != nil {
		return err
	}

	err = c.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/repos/%s/%s/git/refs", c.baseURL, owner, repo),
		bytes.NewReader(payload), "application/json", nil)
	if err != nil {
		return fmt.Errorf("create tag ref %s: %w", tag, err)
	}

	return nil
}

// ReleaseByTag looks up an existing release. ErrReleaseNotFound when
// none exists.
func (c *Client) ReleaseByTag(ctx context.Context, owner, repo, tag string) (*Release, error) {
	var release Release

	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", c.baseURL, owner, repo, url.PathEscape(tag)), nil, "", &release)
	if err != nil {
		return nil, err
	}

	return &release, nil
}

// CreateRelease creates a release for the tag.
func (c *Client) CreateRelease(ctx context.Context, owner, repo, tag, name, body string) (*Release, error) {
	payload, err := json.Marshal(map[string]any{
		"tag_name":   tag,
		"name":       name,
		"body":       body,
		"draft":      false,
		"prerelease": false,
	})
	if err != nil {
		return nil, err
	}

	var release Release

	err = c.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/repos/%s/%s/releases", c.baseURL, owner, repo),
		bytes.NewReader(payload), "application/json", &release)
	if err != nil {
		return nil, fmt.Errorf("create release %s: %w", tag, err)
	}

	return &release, nil
}

// UploadAsset uploads one file as a release asset. The upload endpoint
// is derived from the release's upload URL template.
func (c *Client) UploadAsset(ctx context.Context, release *Release, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open asset: %w", err)
	}

	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat asset: %w", err)
	}

	name := filepath.Base(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, assetUploadURL(c.uploadURL, release, name), file)
	if err != nil {
		return err
	}

	// The upload endpoint requires an explicit Content-Length and
	// rejects chunked transfer encoding.
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/octet-stream")

	if err := c.send(req, nil); err != nil {
		return fmt.Errorf("upload asset %s: %w", name, err)
	}

	return nil
}

// assetUploadURL resolves the templated upload_url ("…/assets{?name,
// label}") into a concrete endpoint, falling back to a constructed
// path when the release carries no template.
func assetUploadURL(uploadBase string, release *Release, name string) string {
	raw := release.UploadURL
	if idx := strings.Index(raw, "{"); idx >= 0 {
		raw = raw[:idx]
	}

	if raw == "" {
		raw = fmt.Sprintf("%s/releases/%d/assets", uploadBase, release.ID)
	}

	return raw + "?name=" + url.QueryEscape(name)
}
