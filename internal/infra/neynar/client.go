// internal/infra/neynar/client.go
package neynar

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

	"github.com/sirupsen/logrus"
	"github.com/wb-go/wbf/retry"
	"golang.org/x/time/rate"

	"poidh_notification_service/internal/domain/farcaster"
)

const (
	defaultBaseURL    = "https://api.neynar.com"
	bulkByAddressPath = "/v2/farcaster/user/bulk-by-address"
	notificationsPath = "/v2/farcaster/frame/notifications/"

	// Addresses with no linked identity are displayed as this many leading
	// characters of the hex form.
	displayNamePrefixLen = 7

	defaultRequestsPerSecond = 5
)

// Client talks to the Neynar API. It implements both farcaster.Resolver and
// farcaster.Notifier. All outbound calls share one client-side rate limiter.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	sendRetry  retry.Strategy
	logger     *logrus.Logger
}

func NewClient(apiKey string, logger *logrus.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
		sendRetry:  retry.Strategy{Attempts: 3},
		logger:     logger,
	}
}

// UsersByAddresses performs one bulk address lookup. Any transport, status or
// parse failure degrades to an empty map: a dead resolver must look exactly
// like a set of unlinked addresses.
func (c *Client) UsersByAddresses(ctx context.Context, addresses []string) map[string][]farcaster.User {
	if len(addresses) == 0 {
		return map[string][]farcaster.User{}
	}

	folded := make([]string, len(addresses))
	for i, a := range addresses {
		folded[i] = strings.ToLower(a)
	}

	users, err := c.fetchUsers(ctx, folded)
	if err != nil {
		c.logger.Warnf("Neynar user lookup failed for %d addresses: %v", len(folded), err)
		return map[string][]farcaster.User{}
	}
	return users
}

func (c *Client) fetchUsers(ctx context.Context, folded []string) (map[string][]farcaster.User, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	lookupURL := c.baseURL + bulkByAddressPath + "?addresses=" + url.QueryEscape(strings.Join(folded, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("neynar request failed with %d", resp.StatusCode)
	}

	var users map[string][]farcaster.User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("decoding neynar response: %w", err)
	}
	return users, nil
}

// FIDs resolves addresses to the fid of each address's first linked user.
func (c *Client) FIDs(ctx context.Context, addresses []string) []int64 {
	users := c.UsersByAddresses(ctx, addresses)

	fids := make([]int64, 0, len(addresses))
	for _, a := range addresses {
		linked := users[strings.ToLower(a)]
		if len(linked) > 0 {
			fids = append(fids, linked[0].FID)
		}
	}
	return fids
}

// DisplayName returns "@<username>" if the address resolves, otherwise the
// address truncated to a short prefix.
func (c *Client) DisplayName(ctx context.Context, address string) string {
	users := c.UsersByAddresses(ctx, []string{address})
	linked := users[strings.ToLower(address)]
	if len(linked) > 0 && linked[0].Username != "" {
		return "@" + linked[0].Username
	}
	if len(address) > displayNamePrefixLen {
		return address[:displayNamePrefixLen]
	}
	return address
}

type notificationBody struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	TargetURL string `json:"target_url"`
}

type sendRequest struct {
	TargetFIDs   []int64          `json:"target_fids"`
	Notification notificationBody `json:"notification"`
}

// Send delivers one notification, retrying transport failures up to the
// strategy's attempt budget. A completed request counts as delivered whatever
// the response says; exhausting all attempts is logged as "no confirmation"
// and absorbed here.
func (c *Client) Send(ctx context.Context, n farcaster.Notification) {
	targetFIDs := n.TargetFIDs
	if targetFIDs == nil {
		targetFIDs = []int64{}
	}

	body, err := json.Marshal(sendRequest{
		TargetFIDs: targetFIDs,
		Notification: notificationBody{
			Title:     n.Title,
			Body:      n.Body,
			TargetURL: n.TargetURL,
		},
	})
	if err != nil {
		c.logger.Errorf("Failed to marshal notification %q: %v", n.Title, err)
		return
	}

	err = retry.Do(func() error {
		return c.post(ctx, body)
	}, c.sendRetry)
	if err != nil {
		c.logger.Errorf("Notification %q not confirmed: %v", n.Title, err)
	}
}

func (c *Client) post(ctx context.Context, body []byte) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+notificationsPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warnf("Neynar notification publish returned status %d", resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
