package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Token is an OAuth token plus the absolute expiry computed when it was
// issued. It is persisted verbatim as JSON.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresIn    int64     `json:"expires_in,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (t *Token) Expired() bool {
	return !time.Now().Before(t.ExpiresAt)
}

func loadToken(path string) (*Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", path, err)
	}
	return &t, nil
}

func saveToken(path string, t *Token) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	// Owner-only: the file holds live credentials.
	return os.WriteFile(path, data, 0o600)
}
