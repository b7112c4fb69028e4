package token_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/codecompass/compass-go/token"
	"github.com/stretchr/testify/require"
)

// signedToken builds a structurally valid three-segment token around the
// given payload. The signature segment is junk, which is fine: the codec
// never verifies it.
func signedToken(t *testing.T, payload map[string]any) string {
	t.Helper()

	header, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	require.NoError(t, err)

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(body) + "." + enc.EncodeToString([]byte("sig"))
}

func TestDecodePopulatesClaims(t *testing.T) {
	raw := signedToken(t, map[string]any{
		"user_id":      "user-1",
		"email":        "john.doe@example.com",
		"full_name":    "John Doe",
		"role":         token.RoleStudent,
		"is_onboarded": true,
		"exp":          1893456000,
	})

	claims := token.Decode(raw)
	require.NotNil(t, claims)
	require.Equal(t, "user-1", claims.SubjectID)
	require.Equal(t, "john.doe@example.com", claims.Email)
	require.Equal(t, "John Doe", claims.FullName)
	require.Equal(t, token.RoleStudent, claims.Role)
	require.True(t, claims.IsOnboarded)
	require.Equal(t, int64(1893456000), claims.ExpiresAt)
}

func TestDecodeNumericSubject(t *testing.T) {
	raw := signedToken(t, map[string]any{"user_id": 42, "exp": 1893456000})

	claims := token.Decode(raw)
	require.NotNil(t, claims)
	require.Equal(t, "42", claims.SubjectID)
}

func TestDecodeMalformedTokens(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"one segment", "justonesegment"},
		{"two segments", "part1.part2"},
		{"bad base64 payload", "eyJhbGciOiJIUzI1NiJ9.!!!notbase64!!!.sig"},
		{"payload not json", "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte("plain text")) + ".sig"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Nil(t, token.Decode(tc.raw))
		})
	}
}

func TestExpired(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	past := &token.Claims{ExpiresAt: now.Add(-time.Minute).Unix()}
	require.True(t, past.Expired(now))

	future := &token.Claims{ExpiresAt: now.Add(time.Minute).Unix()}
	require.False(t, future.Expired(now))

	missing := &token.Claims{}
	require.True(t, missing.Expired(now))
}
