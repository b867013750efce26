package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http://localhost:11434/v1", cfg.Host)
	assert.Equal(t, "embeddinggemma", cfg.Model)
	assert.True(t, cfg.Truncate)
	assert.Equal(t, DefaultMaxInputChars, cfg.MaxInputChars)
}

func TestNewConfig_Options(t *testing.T) {
	cfg := NewConfig(
		WithHost("http://remote:9100/v1"),
		WithModel("text-embedding-3-small"),
		WithToken("sk-test"),
		WithTruncate(false),
		WithMaxInputChars(1024),
	)

	assert.Equal(t, "http://remote:9100/v1", cfg.Host)
	assert.Equal(t, "text-embedding-3-small", cfg.Model)
	assert.Equal(t, "sk-test", cfg.Token)
	assert.False(t, cfg.Truncate)
	assert.Equal(t, 1024, cfg.MaxInputChars)
}

func TestConfig_Normalize_AddsV1Suffix(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"bare host", "http://localhost:11434", "http://localhost:11434/v1"},
		{"trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"already normalized", "http://localhost:11434/v1", "http://localhost:11434/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(WithHost(tt.host))
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.Host)
		})
	}
}

func TestConfig_Normalize_MaxInputChars(t *testing.T) {
	cfg := NewConfig(WithMaxInputChars(-1))
	cfg.Normalize()
	assert.Equal(t, DefaultMaxInputChars, cfg.MaxInputChars)
}

func TestConfig_Validate(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	cfg = NewConfig(WithHost(""))
	assert.Error(t, cfg.Validate())

	cfg = NewConfig(WithModel(""))
	assert.Error(t, cfg.Validate())

	cfg = NewConfig(WithToken(""))
	assert.Error(t, cfg.Validate())
}
