// Package bluesky is a minimal AT Protocol client: just enough to post the
// invitation mentions the outbox relay delivers to Bluesky guests.
package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	createRecordPath = "/xrpc/com.atproto.repo.createRecord"
	postCollection   = "app.bsky.feed.post"
	maxPostRunes     = 300
)

// Client posts on behalf of one repository (the service's own account).
type Client struct {
	baseURL    *url.URL
	did        string
	httpClient *http.Client
}

// NewClient builds a client whose requests carry accessToken as a bearer
// token. The token is static; refreshing it is the operator's job.
func NewClient(serviceURL, did, accessToken string) (*Client, error) {
	if did == "" || accessToken == "" {
		return nil, errors.New("bluesky: did and access token are required")
	}
	base, err := url.Parse(strings.TrimRight(serviceURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse service URL")
	}
	hc := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	hc.Timeout = 10 * time.Second
	return &Client{baseURL: base, did: did, httpClient: hc}, nil
}

type postRecord struct {
	Type      string `json:"$type"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

type createRecordRequest struct {
	Repo       string     `json:"repo"`
	Collection string     `json:"collection"`
	Record     postRecord `json:"record"`
}

type createRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreatePost publishes text as a post and returns its at:// URI. Text longer
// than the network's limit is truncated.
func (c *Client) CreatePost(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("bluesky: empty post")
	}
	if r := []rune(text); len(r) > maxPostRunes {
		text = string(r[:maxPostRunes-1]) + "…"
	}

	body, err := json.Marshal(createRecordRequest{
		Repo:       c.did,
		Collection: postCollection,
		Record: postRecord{
			Type:      postCollection,
			Text:      text,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "encode createRecord body")
	}

	endpoint := c.baseURL.ResolveReference(&url.URL{Path: createRecordPath})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build createRecord request")
	}
	req.Header.Set("Content-Type", "application/json")

	var out createRecordResponse
	if err := c.do(req, &out); err != nil {
		return "", errors.Wrap(err, "execute createRecord request")
	}
	return out.URI, nil
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var xe xrpcError
		if json.Unmarshal(raw, &xe) == nil && xe.Error != "" {
			return fmt.Errorf("bluesky: %s: %s (status %d)", xe.Error, xe.Message, resp.StatusCode)
		}
		return fmt.Errorf("bluesky: unexpected status %d", resp.StatusCode)
	}
	return errors.Wrap(json.Unmarshal(raw, v), "decode response")
}

// NormalizeHandle strips a leading "@" and surrounding space and
// lower-cases the handle.
func NormalizeHandle(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}
