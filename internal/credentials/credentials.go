// Package credentials discovers the two bearer tokens the gateway
// accepts: a gateway (ingress) token and a backend token that the
// gateway forwards to the target server.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Environment variables read during discovery.
const (
	EnvClientID      = "CLIENT_ID"
	EnvClientSecret  = "CLIENT_SECRET"
	EnvKeycloakURL   = "KEYCLOAK_URL"
	EnvKeycloakRealm = "KEYCLOAK_REALM"
)

// expiryWarningWindow is how close to expiry a token must be to warn.
const expiryWarningWindow = 60 * time.Second

// Options controls token discovery.
type Options struct {
	// TokenFile holds the backend token, as raw text or JSON.
	TokenFile string

	// IngressTokenFile holds the gateway token as JSON. A missing file
	// is not an error.
	IngressTokenFile string

	// TokenEnv names the environment variable carrying the gateway token.
	TokenEnv string

	// Getenv defaults to os.Getenv.
	Getenv func(string) string

	// HTTPClient is used for the M2M token request.
	HTTPClient *http.Client

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Inspection describes one discovered token.
type Inspection struct {
	Label     string     `json:"label"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Warning   string     `json:"warning,omitempty"`
}

// Set is the outcome of discovery. Either token may be empty.
type Set struct {
	GatewayToken string       `json:"-"`
	BackendToken string       `json:"-"`
	Sources      []string     `json:"sources"`
	Inspections  []Inspection `json:"inspections"`
}

// Status renders one line per source and inspection.
func (s *Set) Status() []string {
	if len(s.Sources) == 0 {
		return []string{"auth: no credentials found"}
	}
	lines := make([]string, 0, len(s.Sources)+len(s.Inspections))
	for _, src := range s.Sources {
		lines = append(lines, "auth: "+src)
	}
	for _, in := range s.Inspections {
		switch {
		case in.Warning != "":
			lines = append(lines, fmt.Sprintf("%s: warning: %s", in.Label, in.Warning))
		case in.ExpiresAt != nil:
			lines = append(lines, fmt.Sprintf("%s: valid until %s", in.Label, in.ExpiresAt.UTC().Format(time.RFC3339)))
		}
	}
	return lines
}

// Warnings returns the inspection warnings only.
func (s *Set) Warnings() []string {
	var out []string
	for _, in := range s.Inspections {
		if in.Warning != "" {
			out = append(out, in.Label+": "+in.Warning)
		}
	}
	return out
}

// Resolve discovers both tokens. The backend token comes from
// TokenFile, else from a Keycloak client-credentials grant when the
// M2M environment is set. The gateway token comes from TokenEnv, else
// from IngressTokenFile. An explicit TokenFile that cannot be read is
// an error; every other gap just leaves the token empty.
func Resolve(ctx context.Context, opts Options) (*Set, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	set := &Set{}

	// Backend token.
	switch {
	case opts.TokenFile != "":
		ft, err := LoadTokenFile(opts.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("backend token: %w", err)
		}
		set.BackendToken = ft.AccessToken
		set.Sources = append(set.Sources, "backend token from "+opts.TokenFile)
		set.Inspections = append(set.Inspections, inspect("backend token", ft.AccessToken, ft.ExpiresAt, now()))

	case m2mConfigured(getenv):
		tok, err := fetchM2M(ctx, getenv, opts.HTTPClient)
		if err != nil {
			logger.Warn("M2M token request failed", "error", err)
			set.Inspections = append(set.Inspections, Inspection{
				Label:   "backend token",
				Warning: fmt.Sprintf("M2M token request failed: %v", err),
			})
			break
		}
		set.BackendToken = tok.AccessToken
		set.Sources = append(set.Sources, "backend token from Keycloak client "+getenv(EnvClientID))
		var exp *time.Time
		if !tok.Expiry.IsZero() {
			exp = &tok.Expiry
		}
		set.Inspections = append(set.Inspections, inspect("backend token", tok.AccessToken, exp, now()))
	}

	// Gateway token.
	if opts.TokenEnv != "" {
		if tok := strings.TrimSpace(getenv(opts.TokenEnv)); tok != "" {
			set.GatewayToken = tok
			set.Sources = append(set.Sources, "gateway token from $"+opts.TokenEnv)
			set.Inspections = append(set.Inspections, inspect("gateway token", tok, nil, now()))
		}
	}
	if set.GatewayToken == "" && opts.IngressTokenFile != "" {
		ft, err := LoadTokenFile(opts.IngressTokenFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logger.Debug("no ingress token file", "path", opts.IngressTokenFile)
		case err != nil:
			logger.Warn("ingress token file unreadable", "path", opts.IngressTokenFile, "error", err)
		case ft.ExpiresAt != nil && !now().Before(*ft.ExpiresAt):
			logger.Warn("ingress token expired", "path", opts.IngressTokenFile, "expired_at", ft.ExpiresAt)
			set.Inspections = append(set.Inspections, Inspection{
				Label:     "gateway token",
				ExpiresAt: ft.ExpiresAt,
				Warning:   fmt.Sprintf("token in %s expired at %s; regenerate it with ./credentials-provider/generate_creds.sh", opts.IngressTokenFile, ft.ExpiresAt.UTC().Format(time.RFC3339)),
			})
		default:
			set.GatewayToken = ft.AccessToken
			set.Sources = append(set.Sources, "gateway token from "+opts.IngressTokenFile)
			set.Inspections = append(set.Inspections, inspect("gateway token", ft.AccessToken, ft.ExpiresAt, now()))
		}
	}

	return set, nil
}

func m2mConfigured(getenv func(string) string) bool {
	for _, k := range []string{EnvClientID, EnvClientSecret, EnvKeycloakURL, EnvKeycloakRealm} {
		if getenv(k) == "" {
			return false
		}
	}
	return true
}

// KeycloakTokenURL returns the realm's OpenID Connect token endpoint.
func KeycloakTokenURL(baseURL, realm string) string {
	return strings.TrimRight(baseURL, "/") + "/realms/" + realm + "/protocol/openid-connect/token"
}

func fetchM2M(ctx context.Context, getenv func(string) string, httpClient *http.Client) (*oauth2.Token, error) {
	cfg := clientcredentials.Config{
		ClientID:     getenv(EnvClientID),
		ClientSecret: getenv(EnvClientSecret),
		TokenURL:     KeycloakTokenURL(getenv(EnvKeycloakURL), getenv(EnvKeycloakRealm)),
		Scopes:       []string{"openid"},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	return cfg.Token(ctx)
}
