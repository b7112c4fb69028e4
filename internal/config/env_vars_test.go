package config_test

import (
	"testing"

	"github.com/codecompass/compass-go/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := config.New()
	require.Equal(t, "CodeCompass", c.GetAppName())
	require.Equal(t, "http://localhost:8000/api", c.GetAPIBaseURL())
	require.Equal(t, "ws://localhost:8000", c.GetWSBaseURL())
	require.Equal(t, "./data", c.GetDataFolder())
	require.Equal(t, "DEV", c.GetEnv())
}

func TestWSBaseURLDerivedFromAPIHost(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://app.codecompass.ph/")

	c := config.New()
	require.Equal(t, "https://app.codecompass.ph/api", c.GetAPIBaseURL())
	require.Equal(t, "wss://app.codecompass.ph", c.GetWSBaseURL())
}

func TestWSBaseURLOverride(t *testing.T) {
	t.Setenv("WS_BASE_URL", "wss://stream.codecompass.ph/")

	c := config.New()
	require.Equal(t, "wss://stream.codecompass.ph", c.GetWSBaseURL())
}
