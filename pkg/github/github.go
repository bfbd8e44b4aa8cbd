// Package github is a minimal client for the GitHub releases API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
)

const DefaultBaseURL = "https://api.github.com"

type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

type Release struct {
	TagName    string    `json:"tag_name"`
	Name       string    `json:"name"`
	Body       string    `json:"body"`
	Draft      bool      `json:"draft"`
	Prerelease bool      `json:"prerelease"`
	Published  time.Time `json:"published_at"`
	Assets     []Asset   `json:"assets"`
}

// Asset returns the first asset whose name ends with suffix
func (r *Release) Asset(suffix string) (Asset, bool) {
	for _, asset := range r.Assets {
		if strings.HasSuffix(asset.Name, suffix) {
			return asset, true
		}
	}
	return Asset{}, false
}

// Version returns the tag without a leading "v"
func (r *Release) Version() string {
	return strings.TrimPrefix(r.TagName, "v")
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Token is sent as a bearer token if set
	Token string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) get(ctx context.Context, path string, target interface{}) error {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrapf(err, "Failed to build request for %s", url)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "lingle")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	api.Log(ctx).Debug().Str("url", url).Msg("GitHub request")
	resp, err := client.Do(req)
	if err != nil {
		return exitcode.Wrap(exitcode.Network, eris.Wrapf(err, "Request to %s failed", url))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// the body usually carries a short message like "Not Found" or the rate limit notice
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return exitcode.Wrap(exitcode.Network, eris.Errorf("GitHub returned %s for %s: %s", resp.Status, url,
			strings.TrimSpace(string(snippet))))
	}

	err = json.NewDecoder(resp.Body).Decode(target)
	if err != nil {
		return exitcode.Wrap(exitcode.Network, eris.Wrapf(err, "Failed to decode response from %s", url))
	}
	return nil
}

// LatestRelease fetches the newest non-prerelease of repo ("owner/name")
func (c *Client) LatestRelease(ctx context.Context, repo string) (*Release, error) {
	var release Release
	err := c.get(ctx, fmt.Sprintf("/repos/%s/releases/latest", repo), &release)
	if err != nil {
		return nil, err
	}
	return &release, nil
}

// Releases lists the most recent releases of repo, newest first
func (c *Client) Releases(ctx context.Context, repo string) ([]Release, error) {
	var releases []Release
	err := c.get(ctx, fmt.Sprintf("/repos/%s/releases", repo), &releases)
	if err != nil {
		return nil, err
	}
	return releases, nil
}
