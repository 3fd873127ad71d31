package client

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// decodeExpiry reads the exp claim out of a JWT without verifying the
// signature. The client never holds signing secrets; it only needs the
// token's own opinion of when it dies.
func decodeExpiry(tokenString string) (time.Time, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return time.Time{}, errors.New("not a JWT")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, err
	}

	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.Exp == 0 {
		return time.Time{}, errors.New("token has no exp claim")
	}

	return time.Unix(claims.Exp, 0), nil
}

// tokenExpired treats absent, unparseable, and past expirations all as
// expired, so a doomed call is dropped locally instead of sent.
func tokenExpired(tokenString string) bool {
	if tokenString == "" {
		return true
	}

	exp, err := decodeExpiry(tokenString)
	if err != nil {
		return true
	}

	return !exp.After(time.Now())
}
