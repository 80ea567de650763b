// Package social announces events on a status-posting API and remembers
// posted links in a TTL store so the same event is never announced twice.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/dghubble/oauth1"
)

const defaultStatusAPIURL = "https://api.twitter.com/1.1/statuses/update.json"

// Credentials holds the OAuth1 keys for the posting API.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Poster posts status updates.
type Poster struct {
	client *http.Client
	apiURL string
	logger *slog.Logger
}

// NewPoster creates a poster with an OAuth1-signing HTTP client.
func NewPoster(creds Credentials, apiURL string, logger *slog.Logger) *Poster {
	if apiURL == "" {
		apiURL = defaultStatusAPIURL
	}
	cfg := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessSecret)
	return &Poster{client: cfg.Client(oauth1.NoContext, token), apiURL: apiURL, logger: logger}
}

// Post publishes one status and returns the post identifier.
func (p *Poster) Post(ctx context.Context, status string) (string, error) {
	form := url.Values{}
	form.Set("status", status)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("post status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var body struct {
		IDStr string `json:"id_str"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode post response: %w", err)
	}
	return body.IDStr, nil
}
