package zhipu

import (
	"strings"
	"time"

	"github.com/amul-dhungel/Deepwork/types"
	"github.com/golang-jwt/jwt/v5"
)

// SignToken builds the short-lived credential Zhipu requires in place of the
// raw API key. The key has the form "<id>.<secret>"; the token is an HS256
// compact token signed with the secret half, carrying the id and a
// millisecond-precision expiry. Zhipu's scheme replaces the standard "typ"
// header with "sign_type": "SIGN".
//
// Tokens embed the signing timestamp, so each call signs a fresh one.
func SignToken(apiKey string, ttl time.Duration) (string, error) {
	return signTokenAt(apiKey, ttl, time.Now())
}

func signTokenAt(apiKey string, ttl time.Duration, now time.Time) (string, error) {
	parts := strings.Split(apiKey, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", types.NewError(types.ErrInvalidRequest, "invalid API key format").WithProvider("zhipu")
	}
	id, secret := parts[0], parts[1]

	nowMs := now.UnixMilli()
	claims := jwt.MapClaims{
		"api_key":   id,
		"exp":       nowMs + ttl.Milliseconds(),
		"timestamp": nowMs,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["sign_type"] = "SIGN"
	delete(token.Header, "typ")

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", types.NewError(types.ErrInternalError, "token signing failed").
			WithCause(err).WithProvider("zhipu")
	}
	return signed, nil
}
