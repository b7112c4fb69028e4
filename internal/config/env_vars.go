package config

import (
	"os"
	"strings"
)

const (
	appNameVar    = "APP_NAME"
	apiBaseURLVar = "API_BASE_URL"
	wsBaseURLVar  = "WS_BASE_URL"
	folderEnvVar  = "DATA_FOLDER"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "CodeCompass")
}

// GetAPIBaseURL returns the REST collaborator root including the /api
// prefix, e.g. "https://app.codecompass.ph/api".
func (EnvVars) GetAPIBaseURL() string {
	return strings.TrimRight(GetEnv(apiBaseURLVar, "http://localhost:8000"), "/") + "/api"
}

// GetWSBaseURL returns the streaming collaborator root,
// e.g. "wss://app.codecompass.ph".
func (EnvVars) GetWSBaseURL() string {
	if url := os.Getenv(wsBaseURLVar); url != "" {
		return strings.TrimRight(url, "/")
	}
	// Derive from the API host when not set explicitly.
	api := GetEnv(apiBaseURLVar, "http://localhost:8000")
	api = strings.TrimRight(api, "/")
	api = strings.Replace(api, "https://", "wss://", 1)
	return strings.Replace(api, "http://", "ws://", 1)
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
