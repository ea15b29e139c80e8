package common

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "idscan.db", cfg.Store.DSN)
	assert.Equal(t, 0.6, cfg.Review.MinConfidence)
	assert.True(t, cfg.Review.ReloadAfter)
	assert.Equal(t, 2, cfg.Daemon.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Daemon.Debounce)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateDaemon())
}

func TestLoadConfig_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: http://files.example:9000
  timeout: 5s
store:
  dsn: postgres://u:p@db:5432/idscan
review:
  min_confidence: 0.8
daemon:
  workers: 4
`), 0o644))

	t.Setenv("IDSCAN_DAEMON_QUEUE_SIZE", "99")
	t.Setenv("IDSCAN_LOG_FORMAT", "json")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("api-url", "", "")
	flags.Int("workers", 0, "")
	require.NoError(t, flags.Parse([]string{"--api-url", "https://flag.example"}))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "https://flag.example", cfg.API.BaseURL, "a set flag beats the file")
	assert.Equal(t, 4, cfg.Daemon.Workers, "an unset flag does not")
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, "postgres://u:p@db:5432/idscan", cfg.Store.DSN)
	assert.Equal(t, 0.8, cfg.Review.MinConfidence)
	assert.Equal(t, 99, cfg.Daemon.QueueSize)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, CodeConfig, appErr.Code)
}

func TestConfigValidate(t *testing.T) {
	base, err := LoadConfig("", nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative url", func(c *Config) { c.API.BaseURL = "localhost:8000" }},
		{"empty url", func(c *Config) { c.API.BaseURL = "" }},
		{"no timeout", func(c *Config) { c.API.Timeout = 0 }},
		{"no dsn", func(c *Config) { c.Store.DSN = "" }},
		{"confidence", func(c *Config) { c.Review.MinConfidence = 1.5 }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidInput)
		})
	}

	cfg := *base
	cfg.Daemon.Workers = 0
	require.ErrorIs(t, cfg.ValidateDaemon(), ErrInvalidInput)
}

func TestNewKindError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewKindError(CodeUploadFailed, ErrUploadFailed, "File too large", cause)
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "File too large", UserMessage(fmt.Errorf("scan: %w", err)))

	bare := NewKindError(CodeOCRTimeout, ErrOCRTimeout, "", nil)
	assert.ErrorIs(t, bare, ErrOCRTimeout)
	assert.Equal(t, "Text recognition took too long. Please scan again.", UserMessage(bare))
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, `Có giá trị đến: "15.03.2035" is not a DD/MM/YYYY date`,
		UserMessage(&DateFormatError{Field: "Có giá trị đến", Input: "15.03.2035", Reason: "expected 3 parts"}))
	assert.Equal(t, "Not signed in. Run 'idscan login' first.", UserMessage(ErrNotAuthenticated))
	assert.Equal(t, "Both the front and the back of the card are required", UserMessage(ErrMissingSide))
	assert.Equal(t, "boom", UserMessage(errors.New("boom")))

	var dateErr error = &DateFormatError{Input: "x"}
	assert.ErrorIs(t, dateErr, ErrDateFormat)
}

func TestValidateCredentials(t *testing.T) {
	require.NoError(t, ValidateCredentials("alice_01", "alice@example.com", "secret1"))
	require.NoError(t, ValidateCredentials("alice", "", "secret1"))

	err := ValidateCredentials("al", "not-an-email", "123")
	require.ErrorIs(t, err, ErrValidation)
	msg := UserMessage(err)
	assert.Contains(t, msg, "'username'")
	assert.Contains(t, msg, "'email'")
	assert.Contains(t, msg, "'password'")
}

func TestValidatorRules(t *testing.T) {
	v := NewValidator().
		Field("so_cccd", "001234567890", Required, CitizenNumber).
		Field("name", "Nguy\u1ec5n", MinLength(6), MaxLength(6))
	assert.False(t, v.HasErrors(), v.ErrorMessage())

	v = NewValidator().
		Field("so_cccd", "00123", CitizenNumber).
		Field("note", nil, Required).
		Field("blank", "  ", Required)
	require.Len(t, v.Errors(), 3)
	assert.Error(t, v.Error())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("api.http.request", "req_id", "r-1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"req_id":"r-1"`)

	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}
