package cli

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthTokenCmd(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantSub     string
		wantProject any
		wantErr     string
	}{
		{
			name:    "subject only",
			args:    []string{"--subject", "alice", "--secret", "test-secret"},
			wantSub: "alice",
		},
		{
			name:        "with project",
			args:        []string{"--subject", "bob", "--secret", "test-secret", "--project", "proj-1"},
			wantSub:     "bob",
			wantProject: "proj-1",
		},
		{
			name:    "missing subject",
			args:    []string{"--secret", "test-secret"},
			wantErr: "required",
		},
		{
			name:    "missing secret",
			args:    []string{"--subject", "alice"},
			wantErr: "required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())

			cmd := newAuthTokenCmd()
			cmd.SetArgs(tt.args)
			done := captureStdout(t)
			err := cmd.Execute()
			out := done()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			cfg, err := LoadUserConfig()
			require.NoError(t, err)
			p := cfg.Profiles["default"]
			require.NotEmpty(t, p.Token)
			assert.Contains(t, out, p.Token)

			parsed, err := jwt.Parse(p.Token, func(*jwt.Token) (any, error) {
				return []byte("test-secret"), nil
			})
			require.NoError(t, err)
			claims, ok := parsed.Claims.(jwt.MapClaims)
			require.True(t, ok)
			assert.Equal(t, tt.wantSub, claims["sub"])
			assert.Equal(t, tt.wantProject, claims["project_id"])
			assert.NotNil(t, claims["exp"])
		})
	}
}

func TestAuthTokenCmd_SaveToExistingProfile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	require.NoError(t, SaveUserConfig(&UserConfig{
		CurrentProfile: "dev",
		Profiles:       map[string]Profile{"dev": {Host: "http://localhost:8080", Output: "json"}},
	}))

	cmd := newAuthTokenCmd()
	cmd.SetArgs([]string{"--subject", "carol", "--secret", "my-secret"})
	done := captureStdout(t)
	require.NoError(t, cmd.Execute())
	_ = done()

	loaded, err := LoadUserConfig()
	require.NoError(t, err)
	p := loaded.Profiles["dev"]
	assert.Equal(t, "http://localhost:8080", p.Host, "host should be preserved")
	assert.Equal(t, "json", p.Output, "output should be preserved")
	assert.NotEmpty(t, p.Token)
}
