// Package token decodes CodeCompass access tokens into their claim set.
//
// Decoding is a pure projection of the payload segment: the client never
// verifies signatures, that is the issuer's job. A decoded claim set is
// only trusted after checking its embedded expiry against the clock.
package token

import (
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Role values carried in the access token.
const (
	RoleStudent = "student"
	RoleMentor  = "mentor"
	RoleAdmin   = "admin"
)

// Claims is the identity asserted by the access token payload.
type Claims struct {
	SubjectID   string `json:"user_id"`
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	Role        string `json:"role"`
	IsOnboarded bool   `json:"is_onboarded"`
	ExpiresAt   int64  `json:"exp"`
}

// Decode extracts the claim set from a raw access token without verifying
// its signature. It returns nil for anything malformed: wrong segment
// count, bad base64url, or a payload that is not a JSON object.
func Decode(rawToken string) *Claims {
	unverified, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil
	}

	mapClaims, ok := unverified.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil
	}

	claims := &Claims{}
	claims.SubjectID = subjectString(mapClaims["user_id"])
	claims.Email, _ = mapClaims["email"].(string)
	claims.FullName, _ = mapClaims["full_name"].(string)
	claims.Role, _ = mapClaims["role"].(string)
	claims.IsOnboarded, _ = mapClaims["is_onboarded"].(bool)

	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = int64(exp)
	}

	return claims
}

// subjectString normalises the user_id claim, which some issuers emit as a
// JSON number rather than a string.
func subjectString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	}
	return ""
}

// Expired reports whether the claim set's embedded expiry has passed.
// A zero expiry counts as expired: a token without an exp claim is never
// trusted.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt == 0 || c.ExpiresAt*1000 <= now.UnixMilli()
}
