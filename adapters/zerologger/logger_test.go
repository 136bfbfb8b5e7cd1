package zerologger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/goliatone/go-identity/adapters/zerologger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerologger.New(zerolog.New(&buf))

	logger.Error("revoke failed", "token_id", "abc", "error", errors.New("boom"), "dangling")

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	assert.Equal(t, "error", out["level"])
	assert.Equal(t, "revoke failed", out["message"])
	assert.Equal(t, "identity", out["component"])
	assert.Equal(t, "abc", out["token_id"])
	assert.Equal(t, "boom", out["error"])
	assert.Equal(t, "dangling", out["!BADKEY"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := zerologger.New(zerolog.New(&buf).Level(zerolog.InfoLevel))

	logger.Debug("hidden")
	assert.Zero(t, buf.Len())

	logger.Info("shown")
	assert.NotZero(t, buf.Len())
}
