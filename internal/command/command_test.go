package command

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lborres/whisper/internal/config"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("WHISPER_SECRET", "01234567890123456789012345678901")
	t.Setenv("WHISPER_SQLITE_PATH", filepath.Join(t.TempDir(), "whisper.db"))
	t.Setenv("WHISPER_LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := RootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestMigrateCommand(t *testing.T) {
	execute(t, "migrate")
}

func TestSweepCommand(t *testing.T) {
	out := execute(t, "sweep")
	assert.Equal(t, "deleted 0 expired sessions\n", out)
}

func TestRevokeCommand(t *testing.T) {
	out := execute(t, "revoke", "a1")
	assert.Equal(t, "revoked 0 sessions for a1\n", out)
}

func TestRootCommand_RequiresSecret(t *testing.T) {
	t.Setenv("WHISPER_SECRET", "")

	cmd := RootCommand()
	cmd.SetArgs([]string{"sweep"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, config.ErrSecretMissing)
}

func TestEnabledProviders(t *testing.T) {
	cfg := &config.Config{
		BaseURL:            "http://localhost:3000",
		GoogleClientID:     "gid",
		GoogleClientSecret: "gsecret",
		FacebookAppID:      "fid",
	}

	ps := enabledProviders(cfg)

	require.Len(t, ps, 1)
	assert.Equal(t, "google", ps[0].Name())
}
