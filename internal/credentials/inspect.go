package credentials

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTExpiry returns the exp claim of a JWT without verifying its
// signature. ok is false for tokens that are not JWTs or carry no exp.
func JWTExpiry(token string) (exp time.Time, ok bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	date, err := parsed.Claims.GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}
	return date.Time, true
}

// inspect checks a token's expiry. A JWT exp claim takes precedence
// over fileExpiry.
func inspect(label, token string, fileExpiry *time.Time, now time.Time) Inspection {
	in := Inspection{Label: label}

	if exp, ok := JWTExpiry(token); ok {
		in.ExpiresAt = &exp
	} else if fileExpiry != nil {
		exp := *fileExpiry
		in.ExpiresAt = &exp
	}
	if in.ExpiresAt == nil {
		return in
	}

	exp := in.ExpiresAt.UTC().Format(time.RFC3339)
	switch remaining := in.ExpiresAt.Sub(now); {
	case remaining <= 0:
		in.Warning = fmt.Sprintf("token expired at %s", exp)
	case remaining < expiryWarningWindow:
		in.Warning = fmt.Sprintf("token expires in %ds at %s", int(remaining.Seconds()), exp)
	}
	return in
}
