// Package ledger wraps the remote account-ledger REST API: OAuth token
// acquisition and refresh, and the handful of read endpoints the
// filesystem projects. The filesystem core is agnostic to everything in
// here; handlers are the only consumers.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dabrowne/ledgerfs/internal/util"
)

// pageLimit is the transaction page size requested from the API.
const pageLimit = 100

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithAuthURL points the authorization flow at a different auth page.
func WithAuthURL(u string) Option {
	return func(c *Client) { c.authURL = strings.TrimRight(u, "/") }
}

// WithCallbackAddr sets the local listen address for the OAuth redirect.
func WithCallbackAddr(addr string) Option {
	return func(c *Client) { c.callbackAddr = addr }
}

// WithTokenPath sets where the OAuth token is persisted.
func WithTokenPath(path string) Option {
	return func(c *Client) { c.tokenPath = path }
}

// WithHTTPClient substitutes the transport, mostly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithToken injects a static token, skipping Initialize's load/authorize
// path entirely. Mostly for tests.
func WithToken(t *Token) Option {
	return func(c *Client) { c.token = t }
}

// Client authenticates against and calls the ledger API.
type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	authURL      string
	callbackAddr string
	tokenPath    string
	http         *http.Client
	log          zerolog.Logger

	mu    sync.Mutex // guards token load/refresh
	token *Token
}

func New(clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      "https://api.monzo.com",
		authURL:      "https://auth.monzo.com",
		callbackAddr: "localhost:1234",
		http:         http.DefaultClient,
		log:          util.GetLogger("ledger"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		c.tokenPath = filepath.Join(home, ".ledgerfs")
	} else {
		c.tokenPath = ".ledgerfs"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize makes the client ready to issue API calls: it loads a
// persisted token, refreshes it if expired, and falls back to the
// interactive authorization flow when no usable token exists.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil {
		t, err := loadToken(c.tokenPath)
		switch {
		case err == nil:
			c.token = t
		case os.IsNotExist(err):
			// First run
		default:
			c.log.Warn().Err(err).Str("path", c.tokenPath).Msg("Failed to load persisted token")
		}
	}

	if c.token != nil && c.token.Expired() {
		if err := c.refreshLocked(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Token refresh failed, re-authorizing")
			c.token = nil
		}
	}

	if c.token == nil || c.token.Expired() {
		return c.authorize(ctx)
	}
	return nil
}

// accessToken returns a valid bearer token, refreshing first if needed.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil {
		return "", fmt.Errorf("client is not initialized")
	}
	if c.token.Expired() {
		if err := c.refreshLocked(ctx); err != nil {
			return "", fmt.Errorf("refresh token: %w", err)
		}
	}
	return c.token.AccessToken, nil
}

func (c *Client) refreshLocked(ctx context.Context) error {
	return c.fetchTokenLocked(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.token.RefreshToken},
	})
}

// fetchTokenLocked exchanges params for a token at the token endpoint and
// persists the result. Caller holds c.mu.
func (c *Client) fetchTokenLocked(ctx context.Context, params url.Values) error {
	params.Set("client_id", c.clientID)
	params.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/oauth2/token", strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint: %s: %s", resp.Status, readErrBody(resp.Body))
	}

	var t Token
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	t.ExpiresAt = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	c.token = &t

	if err := saveToken(c.tokenPath, &t); err != nil {
		c.log.Warn().Err(err).Str("path", c.tokenPath).Msg("Failed to persist token")
	}
	return nil
}

// get issues an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, p string, params url.Values, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	u := c.baseURL + p
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s: %s", p, resp.Status, readErrBody(resp.Body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readErrBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(body))
}

// Account is one ledger account owned by the authorized user.
type Account struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Created     time.Time `json:"created"`
}

// Accounts lists the user's accounts.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.get(ctx, "/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// Balance is the scalar balance record for one account. Amounts are in
// minor units (pence).
type Balance struct {
	Balance    int64  `json:"balance"`
	Currency   string `json:"currency"`
	SpendToday int64  `json:"spend_today"`
}

// Balance fetches the current balance for an account.
func (c *Client) Balance(ctx context.Context, accountID string) (Balance, error) {
	var out Balance
	err := c.get(ctx, "/balance", url.Values{"account_id": {accountID}}, &out)
	return out, err
}

// Transaction is a decoded transaction object. Fields stay loose JSON so
// the filesystem can project whatever the API returns, known or not.
type Transaction map[string]any

// ID returns the transaction id, or "" when absent.
func (t Transaction) ID() string {
	id, _ := t["id"].(string)
	return id
}

// Created returns the transaction creation timestamp when present and
// parseable.
func (t Transaction) Created() (time.Time, bool) {
	s, ok := t["created"].(string)
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Clone returns a shallow copy safe to annotate without aliasing cache
// entries.
func (t Transaction) Clone() Transaction {
	cp := make(Transaction, len(t))
	for k, v := range t {
		cp[k] = v
	}
	return cp
}

// Transactions returns every transaction for accountID created in
// [from, to), following the API's cursor pagination: each page advances
// the since parameter to the newest created timestamp seen so far. The
// cursor keeps full sub-second precision; a full page that fails to move
// it forward is an error, not an excuse to refetch the same page.
func (c *Client) Transactions(ctx context.Context, accountID string, from, to time.Time) ([]Transaction, error) {
	var all []Transaction
	since := from
	for {
		params := url.Values{
			"account_id": {accountID},
			"limit":      {strconv.Itoa(pageLimit)},
			"since":      {since.UTC().Format(time.RFC3339Nano)},
			"before":     {to.UTC().Format(time.RFC3339Nano)},
		}
		var out struct {
			Transactions []Transaction `json:"transactions"`
		}
		if err := c.get(ctx, "/transactions", params, &out); err != nil {
			return nil, err
		}

		var newest time.Time
		for _, txn := range out.Transactions {
			if ts, ok := txn.Created(); ok && ts.After(newest) {
				newest = ts
			}
			all = append(all, txn)
		}

		if len(out.Transactions) < pageLimit {
			return all, nil
		}
		if newest.IsZero() || !newest.After(since) {
			return nil, fmt.Errorf("paginate transactions for %s: cursor stuck at %s",
				accountID, since.UTC().Format(time.RFC3339Nano))
		}
		since = newest
	}
}

// Transaction fetches a single transaction, optionally with merchant
// details expanded in place of the bare merchant id.
func (c *Client) Transaction(ctx context.Context, id string, expandMerchant bool) (Transaction, error) {
	params := url.Values{}
	if expandMerchant {
		params.Set("expand[]", "merchant")
	}
	var out struct {
		Transaction Transaction `json:"transaction"`
	}
	if err := c.get(ctx, "/transactions/"+id, params, &out); err != nil {
		return nil, err
	}
	return out.Transaction, nil
}
