package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-32-bytes-long-xxxxxx"

func makeToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestNewHS256Validator(t *testing.T) {
	_, err := NewHS256Validator("")
	require.Error(t, err)

	v, err := NewHS256Validator("s")
	require.NoError(t, err)
	assert.Equal(t, []byte("s"), v.secret)
}

func TestHS256Validator_Validate(t *testing.T) {
	v, err := NewHS256Validator(testSecret)
	require.NoError(t, err)
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name        string
		token       string
		wantErr     bool
		wantSub     string
		wantProject string
	}{
		{
			name: "valid",
			token: makeToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
				"sub": "alice", "iss": "dev", "project_id": "p1", "exp": future,
			}),
			wantSub:     "alice",
			wantProject: "p1",
		},
		{
			name: "no expiry",
			token: makeToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
				"sub": "bob",
			}),
			wantSub: "bob",
		},
		{
			name: "expired",
			token: makeToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
				"sub": "alice", "exp": time.Now().Add(-time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "wrong secret",
			token: makeToken(t, jwt.SigningMethodHS256, []byte("other-secret"), jwt.MapClaims{
				"sub": "alice",
			}),
			wantErr: true,
		},
		{
			name: "wrong algorithm",
			token: makeToken(t, jwt.SigningMethodHS384, []byte(testSecret), jwt.MapClaims{
				"sub": "alice",
			}),
			wantErr: true,
		},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.Validate(context.Background(), tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSub, claims.Subject)
			assert.Equal(t, tt.wantProject, claims.String("project_id"))
		})
	}
}

func TestClaims_String(t *testing.T) {
	var nilClaims *Claims
	assert.Empty(t, nilClaims.String("x"))

	c := &Claims{Raw: map[string]any{"tenant": "t1", "n": 3.0}}
	assert.Equal(t, "t1", c.String("tenant"))
	assert.Empty(t, c.String("n"))
	assert.Empty(t, c.String("missing"))
}
