package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ValidateConfig(t *testing.T) {
	t.Parallel()

	testTable := []struct {
		name        string
		config      *Config
		expectedErr error
	}{
		{
			name:        "default config",
			config:      DefaultConfig(),
			expectedErr: nil,
		},
		{
			name: "invalid listen address",
			config: &Config{
				ListenAddress: "localhost:8645",
			},
			expectedErr: ErrInvalidListenAddress,
		},
		{
			name: "missing port",
			config: &Config{
				ListenAddress: "0.0.0.0",
			},
			expectedErr: ErrInvalidListenAddress,
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.ErrorIs(
				t,
				ValidateConfig(testCase.config),
				testCase.expectedErr,
			)
		})
	}
}

func TestConfig_Read(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		cfg, err := Read(filepath.Join(t.TempDir(), "nonexistent.toml"))

		assert.Nil(t, cfg)
		assert.Error(t, err)
	})

	t.Run("valid file", func(t *testing.T) {
		t.Parallel()

		content := `listen_address = "127.0.0.1:9000"

[cors_config]
allowed_origins = ["https://example.com"]
`

		path := filepath.Join(t.TempDir(), "server.toml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Read(path)
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)

		require.NotNil(t, cfg.CORSConfig)
		assert.Equal(t, []string{"https://example.com"}, cfg.CORSConfig.AllowedOrigins)
	})
}
