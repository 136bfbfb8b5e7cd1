package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/config"
	"github.com/goliatone/go-identity/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
signing_key: from-file
issuer: identity.example.com
audience: [web, mobile]
access_ttl: 30m
pin_ttl: 5m
impersonation:
  mode: permission
  scope: admin
  actions: [impersonate]
database:
  driver: postgres
  dsn: postgres://localhost/identity
smtp:
  host: smtp.example.com
  from: no-reply@example.com
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromYAML(t *testing.T) {
	cfg, err := config.Load(writeFile(t, "identity.yaml", sampleYAML), "")
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.SigningKey)
	assert.Equal(t, []string{"web", "mobile"}, cfg.Audience)
	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr, "defaults survive a partial file")

	idCfg, err := cfg.Identity()
	require.NoError(t, err)
	assert.Equal(t, []byte("from-file"), idCfg.SigningKey)
	assert.Equal(t, 5*time.Minute, idCfg.PinTTL)
	assert.Equal(t, identity.DefaultRefreshTTL, idCfg.RefreshTTL)
	assert.Equal(t, identity.ImpersonationPermission, idCfg.Impersonation.Mode)

	assert.True(t, idCfg.Impersonation.Permits(permissions.Map{"admin": permissions.NewSet("impersonate")}))
	assert.False(t, idCfg.Impersonation.Permits(permissions.Map{"admin": permissions.NewSet("read")}))
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("IDENTITY_SIGNING_KEY", "from-env")
	t.Setenv("IDENTITY_ACCESS_TTL", "2h")
	t.Setenv("IDENTITY_SMTP_HOST", "mail.internal")
	t.Setenv("IDENTITY_IMPERSONATION_MODE", "allowed")

	cfg, err := config.Load(writeFile(t, "identity.yaml", sampleYAML), "")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.SigningKey)
	assert.Equal(t, 2*time.Hour, cfg.AccessTTL)
	assert.Equal(t, "mail.internal", cfg.SMTP.Host)
	assert.Equal(t, identity.ImpersonationAllowed, cfg.Impersonation.Policy().Mode)
}

func TestDotEnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "IDENTITY_ISSUER=dotenv-issuer\n")
	t.Cleanup(func() { _ = os.Unsetenv("IDENTITY_ISSUER") })

	cfg, err := config.Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-issuer", cfg.Issuer)
}

func TestMissingDotEnvIsIgnored(t *testing.T) {
	_, err := config.Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}

func TestMissingConfigFileFails(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.Error(t, err)
}

func TestIdentityRequiresSigningKey(t *testing.T) {
	cfg := config.Defaults()

	_, err := cfg.Identity()
	require.Error(t, err)

	fields, ok := identity.ValidationFields(err)
	require.True(t, ok)
	assert.Equal(t, []string{identity.MessageRequired}, fields["signing_key"])
}

func TestPreviousIdentity(t *testing.T) {
	cfg := config.Defaults()
	cfg.SigningKey = "current"

	_, ok := cfg.PreviousIdentity()
	assert.False(t, ok)

	cfg.PreviousSigningKey = "old"
	prev, ok := cfg.PreviousIdentity()
	require.True(t, ok)
	assert.Equal(t, []byte("old"), prev.SigningKey)
}

func TestNewHasher(t *testing.T) {
	cfg := config.Defaults()
	assert.IsType(t, &identity.BcryptHasher{}, cfg.NewHasher())

	cfg.Hasher = "argon2"
	assert.IsType(t, &identity.Argon2Hasher{}, cfg.NewHasher())
}
