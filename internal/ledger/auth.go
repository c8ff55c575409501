package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// authorize walks the user through the OAuth authorization-code flow: it
// prints the authorization URL, captures the redirect with a one-shot
// local HTTP server, validates the state nonce and exchanges the code for
// a token. Caller holds c.mu.
func (c *Client) authorize(ctx context.Context) error {
	state := uuid.NewString()

	q := url.Values{
		"client_id":     {c.clientID},
		"redirect_uri":  {c.redirectURI()},
		"response_type": {"code"},
		"state":         {state},
	}
	authorizeURL := c.authURL + "/?" + q.Encode()

	c.log.Info().Str("url", authorizeURL).Msg("Waiting for authorization")
	fmt.Println("Please go to the URL below to authorize this app:")
	fmt.Println()
	fmt.Println("  " + authorizeURL)
	fmt.Println()

	code, err := c.waitForCallback(ctx, state)
	if err != nil {
		return fmt.Errorf("authorization callback: %w", err)
	}

	return c.fetchTokenLocked(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.redirectURI()},
	})
}

func (c *Client) redirectURI() string {
	return "http://" + c.callbackAddr + "/"
}

// waitForCallback serves exactly one authorization redirect on the
// configured callback address and returns the code it carried.
func (c *Client) waitForCallback(ctx context.Context, state string) (string, error) {
	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		code, gotState := q.Get("code"), q.Get("state")
		if code == "" {
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			results <- result{err: errors.New("redirect carried no code")}
			return
		}
		if gotState != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			results <- result{err: errors.New("state nonce did not round-trip")}
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, callbackPage) //nolint:errcheck
		results <- result{code: code}
	})

	ln, err := net.Listen("tcp", c.callbackAddr)
	if err != nil {
		return "", err
	}
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln) //nolint:errcheck
	defer srv.Close()

	select {
	case r := <-results:
		return r.code, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

const callbackPage = `<!DOCTYPE html>
<html>
  <head><title>ledgerfs authorized</title></head>
  <body>
    <h1>Success!</h1>
    <p>ledgerfs is authorized. You can close this tab and browse the mount
    point in your favorite file browser.</p>
  </body>
</html>
`
