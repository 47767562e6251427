package credentials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func signedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "agent",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadTokenFile(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantToken string
		wantExp   int64
	}{
		{"raw", "  raw-token\n", "raw-token", 0},
		{"flat json", `{"access_token":"flat","expires_at":1772366400}`, "flat", 1772366400},
		{"nested json", `{"provider":"keycloak","tokens":{"access_token":"nested","expires_at":1772366400.5}}`, "nested", 1772366400},
		{"no expiry", `{"access_token":"forever"}`, "forever", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft, err := LoadTokenFile(writeFile(t, "token", tt.content))
			if err != nil {
				t.Fatalf("LoadTokenFile: %v", err)
			}
			if ft.AccessToken != tt.wantToken {
				t.Errorf("AccessToken = %q, want %q", ft.AccessToken, tt.wantToken)
			}
			switch {
			case tt.wantExp == 0 && ft.ExpiresAt != nil:
				t.Errorf("ExpiresAt = %v, want nil", ft.ExpiresAt)
			case tt.wantExp != 0 && (ft.ExpiresAt == nil || ft.ExpiresAt.Unix() != tt.wantExp):
				t.Errorf("ExpiresAt = %v, want unix %d", ft.ExpiresAt, tt.wantExp)
			}
		})
	}
}

func TestLoadTokenFile_Errors(t *testing.T) {
	for name, content := range map[string]string{
		"empty":           "  \n",
		"bad json":        `{"access_token":`,
		"no access token": `{"tokens":{"expires_at":1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadTokenFile(writeFile(t, "token", content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestJWTExpiry(t *testing.T) {
	exp := testNow.Add(time.Hour).Truncate(time.Second)
	got, ok := JWTExpiry(signedJWT(t, exp))
	if !ok || !got.Equal(exp) {
		t.Errorf("JWTExpiry = %v, %v; want %v", got, ok, exp)
	}
	if _, ok := JWTExpiry("not-a-jwt"); ok {
		t.Error("non-JWT should report no expiry")
	}
}

func TestInspect(t *testing.T) {
	tests := []struct {
		name        string
		token       string
		wantWarning string
		wantExpiry  bool
	}{
		{"valid", signedJWT(t, testNow.Add(time.Hour)), "", true},
		{"expired", signedJWT(t, testNow.Add(-time.Minute)), "token expired at", true},
		{"expiring soon", signedJWT(t, testNow.Add(30*time.Second)), "token expires in 30s", true},
		{"opaque", "opaque-token", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := inspect("gateway token", tt.token, nil, testNow)
			if (in.ExpiresAt != nil) != tt.wantExpiry {
				t.Errorf("ExpiresAt = %v, want set=%v", in.ExpiresAt, tt.wantExpiry)
			}
			if tt.wantWarning == "" && in.Warning != "" {
				t.Errorf("Warning = %q, want none", in.Warning)
			}
			if tt.wantWarning != "" && !strings.Contains(in.Warning, tt.wantWarning) {
				t.Errorf("Warning = %q, want it to contain %q", in.Warning, tt.wantWarning)
			}
		})
	}
}

func TestResolve_TokenFileAndEnv(t *testing.T) {
	backend := signedJWT(t, testNow.Add(time.Hour))
	set, err := Resolve(context.Background(), Options{
		TokenFile:        writeFile(t, "backend.json", `{"access_token":"`+backend+`"}`),
		IngressTokenFile: writeFile(t, "ingress.json", `{"access_token":"ignored"}`),
		TokenEnv:         "MCP_AUTH_TOKEN",
		Getenv:           env(map[string]string{"MCP_AUTH_TOKEN": "gw-from-env"}),
		Now:              func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.BackendToken != backend {
		t.Errorf("BackendToken = %q", set.BackendToken)
	}
	if set.GatewayToken != "gw-from-env" {
		t.Errorf("GatewayToken = %q, env should win over the ingress file", set.GatewayToken)
	}
	if len(set.Sources) != 2 {
		t.Errorf("Sources = %v", set.Sources)
	}
	if len(set.Warnings()) != 0 {
		t.Errorf("Warnings = %v", set.Warnings())
	}
}

func TestResolve_IngressFile(t *testing.T) {
	exp := testNow.Add(time.Hour).Unix()
	path := writeFile(t, "ingress.json", `{"tokens":{"access_token":"ingress","expires_at":`+itoa(exp)+`}}`)

	set, err := Resolve(context.Background(), Options{
		IngressTokenFile: path,
		TokenEnv:         "MCP_AUTH_TOKEN",
		Getenv:           env(nil),
		Now:              func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.GatewayToken != "ingress" || set.BackendToken != "" {
		t.Errorf("tokens = %q / %q", set.GatewayToken, set.BackendToken)
	}
	if set.Inspections[0].ExpiresAt == nil || set.Inspections[0].ExpiresAt.Unix() != exp {
		t.Errorf("inspection = %+v, want file expiry", set.Inspections[0])
	}
}

func TestResolve_ExpiredIngressIgnored(t *testing.T) {
	path := writeFile(t, "ingress.json", `{"access_token":"old","expires_at":`+itoa(testNow.Add(-time.Hour).Unix())+`}`)

	set, err := Resolve(context.Background(), Options{
		IngressTokenFile: path,
		Getenv:           env(nil),
		Now:              func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.GatewayToken != "" {
		t.Errorf("GatewayToken = %q, expired token should be ignored", set.GatewayToken)
	}
	if w := set.Warnings(); len(w) != 1 || !strings.Contains(w[0], "expired") {
		t.Errorf("Warnings = %v", w)
	}
}

func TestResolve_MissingFiles(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.json")

	set, err := Resolve(context.Background(), Options{IngressTokenFile: missing, Getenv: env(nil)})
	if err != nil {
		t.Fatalf("missing ingress file should not fail: %v", err)
	}
	if got := set.Status(); len(got) != 1 || got[0] != "auth: no credentials found" {
		t.Errorf("Status = %v", got)
	}

	if _, err := Resolve(context.Background(), Options{TokenFile: missing, Getenv: env(nil)}); err == nil {
		t.Error("missing explicit token file should fail")
	}
}

func TestResolve_M2M(t *testing.T) {
	var gotPath, gotGrant, gotClient string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotPath = r.URL.Path
		gotGrant = r.Form.Get("grant_type")
		gotClient = r.Form.Get("client_id")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"m2m-token","token_type":"Bearer","expires_in":300}`))
	}))
	defer srv.Close()

	set, err := Resolve(context.Background(), Options{
		Getenv: env(map[string]string{
			EnvClientID:      "agent-bot",
			EnvClientSecret:  "s3cret",
			EnvKeycloakURL:   srv.URL,
			EnvKeycloakRealm: "mcp-gateway",
		}),
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.BackendToken != "m2m-token" {
		t.Errorf("BackendToken = %q", set.BackendToken)
	}
	if gotPath != "/realms/mcp-gateway/protocol/openid-connect/token" {
		t.Errorf("token path = %q", gotPath)
	}
	if gotGrant != "client_credentials" || gotClient != "agent-bot" {
		t.Errorf("grant = %q client = %q", gotGrant, gotClient)
	}
	if set.Inspections[0].ExpiresAt == nil {
		t.Error("expected expiry from expires_in")
	}
}

func TestResolve_M2MFailureIsWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized_client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	set, err := Resolve(context.Background(), Options{
		Getenv: env(map[string]string{
			EnvClientID:      "agent-bot",
			EnvClientSecret:  "wrong",
			EnvKeycloakURL:   srv.URL,
			EnvKeycloakRealm: "mcp-gateway",
		}),
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.BackendToken != "" {
		t.Errorf("BackendToken = %q, want empty", set.BackendToken)
	}
	if w := set.Warnings(); len(w) != 1 || !strings.Contains(w[0], "M2M token request failed") {
		t.Errorf("Warnings = %v", w)
	}
}

func TestSet_Status(t *testing.T) {
	exp := testNow.Add(time.Hour)
	set := &Set{
		Sources: []string{"gateway token from $MCP_AUTH_TOKEN"},
		Inspections: []Inspection{
			{Label: "gateway token", ExpiresAt: &exp},
			{Label: "backend token", Warning: "token expired at x"},
		},
	}
	want := []string{
		"auth: gateway token from $MCP_AUTH_TOKEN",
		"gateway token: valid until 2026-03-01T13:00:00Z",
		"backend token: warning: token expired at x",
	}
	got := set.Status()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("Status =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestKeycloakTokenURL(t *testing.T) {
	if got := KeycloakTokenURL("https://kc.example/", "r"); got != "https://kc.example/realms/r/protocol/openid-connect/token" {
		t.Errorf("KeycloakTokenURL = %q", got)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
