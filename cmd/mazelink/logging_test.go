package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/mazelink/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Bool("verbose", false, "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestConfigureLogger(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogLevel = "warn"

	tests := []struct {
		name     string
		args     []string
		fromFile bool
		want     logrus.Level
	}{
		{"silent by default", nil, false, logrus.PanicLevel},
		{"config file level", nil, true, logrus.WarnLevel},
		{"verbose beats config file", []string{"--verbose"}, true, logrus.DebugLevel},
		{"log-level beats verbose", []string{"--verbose", "--log-level", "error"}, true, logrus.ErrorLevel},
		{"info", []string{"--log-level", "info"}, false, logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := configureLogger(newFlagCommand(t, tt.args...), cfg, tt.fromFile)
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := configureLogger(newFlagCommand(t, "--log-level", "trace"), cfg, false)
		assert.EqualError(t, err, "invalid log level: trace (must be debug, info, warn, or error)")
	})
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
