package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	clearEnvVars(t)
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Host != DefaultHost {
		t.Errorf("Host = %v, want %v", cfg.Host, DefaultHost)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %v, want %v", cfg.Port, DefaultPort)
	}
	if cfg.DatabasePath != DefaultDatabasePath {
		t.Errorf("DatabasePath = %v, want %v", cfg.DatabasePath, DefaultDatabasePath)
	}
	if cfg.ClientVersion != DefaultClientVersion {
		t.Errorf("ClientVersion = %v, want %v", cfg.ClientVersion, DefaultClientVersion)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, DefaultLogLevel)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnvVars(t)
	setRequiredEnvVars(t)

	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_URL", "/data/gateway.db")
	t.Setenv("CLIENT_VERSION", "2.3.0")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %v, want 127.0.0.1", cfg.Host)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %v, want 9000", cfg.Port)
	}
	if cfg.DatabasePath != "/data/gateway.db" {
		t.Errorf("DatabasePath = %v, want /data/gateway.db", cfg.DatabasePath)
	}
	if cfg.ClientVersion != "2.3.0" {
		t.Errorf("ClientVersion = %v, want 2.3.0", cfg.ClientVersion)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
}

func TestLoad_AllEnvVars(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "3000")
	t.Setenv("DATABASE_URL", "/tmp/test.db")
	t.Setenv("TWITCH_CLIENT", "twitch-client-id")
	t.Setenv("TWITCH_SECRET", "twitch-client-secret")
	t.Setenv("TWITCH_REDIRECT", "https://example.com/twitch/callback")
	t.Setenv("TWITCH_SCOPES", "channel:read:redemptions bits:read")
	t.Setenv("STREAMLABS_CLIENT", "sl-client-id")
	t.Setenv("STREAMLABS_SECRET", "sl-client-secret")
	t.Setenv("STREAMLABS_REDIRECT", "https://example.com/streamlabs/callback")
	t.Setenv("STREAMLABS_SCOPES", "donations.read socket.token")
	t.Setenv("CLIENT_VERSION", "9.9.9")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 3000 {
		t.Errorf("Port = %v, want 3000", cfg.Port)
	}
	if cfg.DatabasePath != "/tmp/test.db" {
		t.Errorf("DatabasePath = %v, want /tmp/test.db", cfg.DatabasePath)
	}
	if cfg.TwitchClientID != "twitch-client-id" {
		t.Errorf("TwitchClientID = %v, want twitch-client-id", cfg.TwitchClientID)
	}
	if cfg.TwitchClientSecret != "twitch-client-secret" {
		t.Errorf("TwitchClientSecret = %v, want twitch-client-secret", cfg.TwitchClientSecret)
	}
	if cfg.TwitchRedirectURL != "https://example.com/twitch/callback" {
		t.Errorf("TwitchRedirectURL = %v, want https://example.com/twitch/callback", cfg.TwitchRedirectURL)
	}
	if cfg.TwitchScopes != "channel:read:redemptions bits:read" {
		t.Errorf("TwitchScopes = %v, want channel:read:redemptions bits:read", cfg.TwitchScopes)
	}
	if cfg.StreamlabsClientID != "sl-client-id" {
		t.Errorf("StreamlabsClientID = %v, want sl-client-id", cfg.StreamlabsClientID)
	}
	if cfg.StreamlabsClientSecret != "sl-client-secret" {
		t.Errorf("StreamlabsClientSecret = %v, want sl-client-secret", cfg.StreamlabsClientSecret)
	}
	if cfg.StreamlabsRedirectURL != "https://example.com/streamlabs/callback" {
		t.Errorf("StreamlabsRedirectURL = %v, want https://example.com/streamlabs/callback", cfg.StreamlabsRedirectURL)
	}
	if cfg.StreamlabsScopes != "donations.read socket.token" {
		t.Errorf("StreamlabsScopes = %v, want donations.read socket.token", cfg.StreamlabsScopes)
	}
	if cfg.ClientVersion != "9.9.9" {
		t.Errorf("ClientVersion = %v, want 9.9.9", cfg.ClientVersion)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %v, want warn", cfg.LogLevel)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	clearEnvVars(t)
	setRequiredEnvVars(t)

	t.Setenv("PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid port")
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	clearEnvVars(t)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when required OAuth fields are missing")
	}

	errStr := err.Error()
	for _, field := range []string{"TWITCH_CLIENT", "TWITCH_SECRET", "TWITCH_REDIRECT", "STREAMLABS_CLIENT", "STREAMLABS_SECRET", "STREAMLABS_REDIRECT"} {
		if !strings.Contains(errStr, field) {
			t.Errorf("error should mention %s: %s", field, errStr)
		}
	}
}

func TestValidate_PortRange(t *testing.T) {
	tests := []struct {
		port    int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{8080, false},
		{65535, false},
		{65536, true},
		{-1, true},
	}

	for _, tt := range tests {
		cfg := validConfig()
		cfg.Port = tt.port

		errs := cfg.Validate()
		gotErr := len(errs) > 0

		if gotErr != tt.wantErr {
			t.Errorf("Validate() port=%d, gotErr=%v, wantErr=%v", tt.port, gotErr, tt.wantErr)
		}
	}
}

func TestValidate_EmptyDatabasePath(t *testing.T) {
	cfg := validConfig()
	cfg.DatabasePath = ""

	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Error("Validate() expected error for empty database path")
	}

	found := false
	for _, e := range errs {
		if e.Field == "DATABASE_URL" {
			found = true
			break
		}
	}
	if !found {
		t.Error("Validate() expected DATABASE_URL in validation errors")
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Port:         0,
		DatabasePath: "",
	}

	errs := cfg.Validate()
	if len(errs) < 7 {
		t.Errorf("Validate() expected at least 7 errors, got %d: %v", len(errs), errs)
	}
}

func TestAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 9000

	if got := cfg.Addr(); got != "127.0.0.1:9000" {
		t.Errorf("Addr() = %v, want 127.0.0.1:9000", got)
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "TEST_FIELD", Message: "something went wrong"}
	got := err.Error()
	want := "TEST_FIELD: something went wrong"
	if got != want {
		t.Errorf("ValidationError.Error() = %q, want %q", got, want)
	}
}

func TestValidationErrors_String(t *testing.T) {
	errs := ValidationErrors{
		{Field: "FIELD1", Message: "error 1"},
		{Field: "FIELD2", Message: "error 2"},
	}

	s := errs.Error()
	if !strings.Contains(s, "FIELD1") || !strings.Contains(s, "error 1") {
		t.Errorf("ValidationErrors.Error() missing first error: %s", s)
	}
	if !strings.Contains(s, "FIELD2") || !strings.Contains(s, "error 2") {
		t.Errorf("ValidationErrors.Error() missing second error: %s", s)
	}
	if !strings.Contains(s, "configuration errors:") {
		t.Errorf("ValidationErrors.Error() missing prefix: %s", s)
	}
}

func TestValidationErrors_Empty(t *testing.T) {
	errs := ValidationErrors{}
	s := errs.Error()
	if s != "" {
		t.Errorf("ValidationErrors.Error() for empty = %q, want empty string", s)
	}
}

func validConfig() *Config {
	return &Config{
		Host:                   DefaultHost,
		Port:                   DefaultPort,
		DatabasePath:           DefaultDatabasePath,
		TwitchClientID:         "id",
		TwitchClientSecret:     "secret",
		TwitchRedirectURL:      "https://example.com/twitch/callback",
		StreamlabsClientID:     "id",
		StreamlabsClientSecret: "secret",
		StreamlabsRedirectURL:  "https://example.com/streamlabs/callback",
		ClientVersion:          DefaultClientVersion,
	}
}

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("TWITCH_CLIENT", "id")
	t.Setenv("TWITCH_SECRET", "secret")
	t.Setenv("TWITCH_REDIRECT", "https://example.com/twitch/callback")
	t.Setenv("STREAMLABS_CLIENT", "id")
	t.Setenv("STREAMLABS_SECRET", "secret")
	t.Setenv("STREAMLABS_REDIRECT", "https://example.com/streamlabs/callback")
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	envVars := []string{
		"HOST",
		"PORT",
		"DATABASE_URL",
		"TWITCH_CLIENT",
		"TWITCH_SECRET",
		"TWITCH_REDIRECT",
		"TWITCH_SCOPES",
		"STREAMLABS_CLIENT",
		"STREAMLABS_SECRET",
		"STREAMLABS_REDIRECT",
		"STREAMLABS_SCOPES",
		"CLIENT_VERSION",
		"LOG_LEVEL",
	}
	for _, env := range envVars {
		os.Unsetenv(env)
	}
}
