package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if config.Date != "tomorrow" {
		t.Errorf("Expected Date to be 'tomorrow', got '%s'", config.Date)
	}

	if config.WaitTimeoutSeconds != 1.5 {
		t.Errorf("Expected WaitTimeoutSeconds to be 1.5, got %v", config.WaitTimeoutSeconds)
	}

	if config.MaxPollAttempts != 100 {
		t.Errorf("Expected MaxPollAttempts to be 100, got %d", config.MaxPollAttempts)
	}

	if config.PageLoadTimeout != 30 {
		t.Errorf("Expected PageLoadTimeout to be 30, got %d", config.PageLoadTimeout)
	}

	if config.Headless != false {
		t.Error("Expected Headless to be false")
	}

	if config.SessionDir == "" {
		t.Error("Expected SessionDir to be set")
	}

	// Check selectors are set
	if config.Selectors.PortalURL == "" {
		t.Error("Expected PortalURL selector to be set")
	}
	if config.Selectors.CampusButton == "" {
		t.Error("Expected CampusButton selector to be set")
	}
	if config.Selectors.KeypadKey == "" {
		t.Error("Expected KeypadKey selector to be set")
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test-config.yaml")

	config := DefaultConfig()
	config.Username = "2022280001"
	config.Date = "today"
	config.TimeSlot = "14:00-15:00"
	config.Venue = "basketball"
	config.Court = "out"
	config.MaxPollAttempts = 10
	config.Headless = true
	config.BrowserProfilePath = filepath.Join(tempDir, "profile")

	if err := config.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loadedConfig, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loadedConfig.Username != config.Username {
		t.Errorf("Expected Username to be '%s', got '%s'", config.Username, loadedConfig.Username)
	}
	if loadedConfig.TimeSlot != config.TimeSlot {
		t.Errorf("Expected TimeSlot to be '%s', got '%s'", config.TimeSlot, loadedConfig.TimeSlot)
	}
	if loadedConfig.MaxPollAttempts != config.MaxPollAttempts {
		t.Errorf("Expected MaxPollAttempts to be %d, got %d", config.MaxPollAttempts, loadedConfig.MaxPollAttempts)
	}
	if loadedConfig.Headless != config.Headless {
		t.Errorf("Expected Headless to be %v, got %v", config.Headless, loadedConfig.Headless)
	}
}

func TestLoadConfigCreatesDefaultIfMissing(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "new-config.yaml")

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config == nil {
		t.Fatal("LoadConfig returned nil")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file was not created automatically")
	}

	if config.Date != "tomorrow" {
		t.Errorf("Expected default Date to be 'tomorrow', got '%s'", config.Date)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "invalid-config.yaml")

	invalidYAML := "invalid: yaml: content: [unclosed"
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("Failed to write invalid YAML: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("Expected error when loading invalid YAML, got nil")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.Username = "2022280001"
		c.Password = "secret"
		c.PayPass = "123456"
		return c
	}

	tests := []struct {
		name    string
		mode    runMode
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid book config", mode: modeBook, mutate: func(c *Config) {}},
		{name: "valid login config", mode: modeLogin, mutate: func(c *Config) {}},
		{name: "valid leftover config", mode: modeLeftover, mutate: func(c *Config) {}},
		{name: "missing username", mode: modeBook, mutate: func(c *Config) { c.Username = "" }, wantErr: true},
		{name: "missing password", mode: modeLogin, mutate: func(c *Config) { c.Password = "" }, wantErr: true},
		{name: "unknown venue", mode: modeBook, mutate: func(c *Config) { c.Venue = "tennis" }, wantErr: true},
		{name: "unknown date spec", mode: modeLeftover, mutate: func(c *Config) { c.Date = "someday" }, wantErr: true},
		{name: "zero poll timeout", mode: modeBook, mutate: func(c *Config) { c.WaitTimeoutSeconds = 0 }, wantErr: true},
		{name: "zero poll attempts", mode: modeBook, mutate: func(c *Config) { c.MaxPollAttempts = 0 }, wantErr: true},
		{name: "missing time slot", mode: modeBook, mutate: func(c *Config) { c.TimeSlot = "" }, wantErr: true},
		{name: "bad court", mode: modeBook, mutate: func(c *Config) { c.Court = "middle" }, wantErr: true},
		{name: "bad release time", mode: modeBook, mutate: func(c *Config) { c.ReleaseTime = "9pm" }, wantErr: true},
		{name: "good release time", mode: modeBook, mutate: func(c *Config) { c.ReleaseTime = "21:00" }},
		{name: "login ignores venue", mode: modeLogin, mutate: func(c *Config) { c.Venue = "tennis" }},
		{name: "leftover ignores time slot", mode: modeLeftover, mutate: func(c *Config) { c.TimeSlot = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)

			err := config.Validate(tt.mode)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected validation error, got nil")
				}
				if !errors.Is(err, ErrConfig) {
					t.Errorf("Expected error to wrap ErrConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestWaitTimeoutConversion(t *testing.T) {
	config := DefaultConfig()
	config.WaitTimeoutSeconds = 1.5

	if got := config.waitTimeout().Milliseconds(); got != 1500 {
		t.Errorf("waitTimeout() = %dms, expected 1500ms", got)
	}

	config.PageLoadTimeout = 0
	if got := config.pageTimeout().Seconds(); got != 30 {
		t.Errorf("pageTimeout() with zero config = %vs, expected 30s fallback", got)
	}
}
