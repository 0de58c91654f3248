package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal string
		envValue   string
		want       string
	}{
		{
			name:       "Environment variable exists",
			key:        "TEST_KEY_EXISTS",
			defaultVal: "default",
			envValue:   "custom_value",
			want:       "custom_value",
		},
		{
			name:       "Environment variable does not exist",
			key:        "TEST_KEY_NOT_EXISTS",
			defaultVal: "default_value",
			envValue:   "",
			want:       "default_value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultVal)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt64(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal int64
		envValue   string
		want       int64
	}{
		{
			name:       "Valid integer",
			key:        "TEST_INT64_VALID",
			defaultVal: 0,
			envValue:   "5000",
			want:       5000,
		},
		{
			name:       "Invalid integer",
			key:        "TEST_INT64_INVALID",
			defaultVal: 10,
			envValue:   "not_a_number",
			want:       10,
		},
		{
			name:       "Empty value",
			key:        "TEST_INT64_EMPTY",
			defaultVal: 5,
			envValue:   "",
			want:       5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvAsInt64(tt.key, tt.defaultVal)
			if got != tt.want {
				t.Errorf("getEnvAsInt64() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal time.Duration
		envValue   string
		want       time.Duration
	}{
		{
			name:       "Valid duration",
			key:        "TEST_DUR_VALID",
			defaultVal: time.Second,
			envValue:   "2500ms",
			want:       2500 * time.Millisecond,
		},
		{
			name:       "Invalid duration",
			key:        "TEST_DUR_INVALID",
			defaultVal: 3 * time.Second,
			envValue:   "soon",
			want:       3 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvAsDuration(tt.key, tt.defaultVal)
			if got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.MinBet != 10 {
		t.Errorf("MinBet = %d, want 10", cfg.MinBet)
	}
	if cfg.MaxBet != 10000 {
		t.Errorf("MaxBet = %d, want 10000", cfg.MaxBet)
	}
	if cfg.MinBet >= cfg.MaxBet {
		t.Errorf("MinBet %d not below MaxBet %d", cfg.MinBet, cfg.MaxBet)
	}
	if cfg.ConfirmPolicy != "timed" {
		t.Errorf("ConfirmPolicy = %q, want %q", cfg.ConfirmPolicy, "timed")
	}
	if cfg.CapFraction <= 0 || cfg.CapFraction > 1 {
		t.Errorf("CapFraction = %v, want a fraction in (0, 1]", cfg.CapFraction)
	}
}

func TestLoadOverrides(t *testing.T) {
	os.Setenv("CROUPIER_MIN_BET", "25")
	os.Setenv("CROUPIER_BETTING_DURATION", "45s")
	defer os.Unsetenv("CROUPIER_MIN_BET")
	defer os.Unsetenv("CROUPIER_BETTING_DURATION")

	cfg := Load()
	if cfg.MinBet != 25 {
		t.Errorf("MinBet = %d, want 25", cfg.MinBet)
	}
	if cfg.BettingDuration != 45*time.Second {
		t.Errorf("BettingDuration = %v, want 45s", cfg.BettingDuration)
	}
}
