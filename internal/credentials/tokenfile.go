package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// FileToken is a token read from disk. ExpiresAt is set only when the
// file records an expiry.
type FileToken struct {
	AccessToken string
	ExpiresAt   *time.Time
}

type tokenFields struct {
	AccessToken string  `json:"access_token"`
	ExpiresAt   float64 `json:"expires_at"`
}

// LoadTokenFile reads a token file. A JSON object is read as
// {"access_token", "expires_at"}, either flat or nested under "tokens",
// with expires_at in Unix seconds. Anything else is taken as the raw
// token text.
func LoadTokenFile(path string) (*FileToken, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("token file %s is empty", path)
	}

	if !strings.HasPrefix(text, "{") {
		return &FileToken{AccessToken: text}, nil
	}

	var doc struct {
		tokenFields
		Tokens *tokenFields `json:"tokens"`
	}
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", path, err)
	}
	fields := doc.tokenFields
	if doc.Tokens != nil {
		fields = *doc.Tokens
	}
	if fields.AccessToken == "" {
		return nil, fmt.Errorf("token file %s has no access_token", path)
	}

	ft := &FileToken{AccessToken: fields.AccessToken}
	if fields.ExpiresAt > 0 {
		exp := time.Unix(int64(fields.ExpiresAt), 0)
		ft.ExpiresAt = &exp
	}
	return ft, nil
}
