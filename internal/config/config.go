package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	Alerts   AlertConfig   `mapstructure:"alerts"`
	Polling  PollingConfig `mapstructure:"polling"`
	Channels ChannelConfig `mapstructure:"channels"`
}

type AlertConfig struct {
	ThresholdMinutes       int `mapstructure:"threshold_minutes"`
	LookaheadWindowMinutes int `mapstructure:"lookahead_window_minutes"`
	NearDeltaMinutes       int `mapstructure:"near_delta_minutes"`
	DedupHighWater         int `mapstructure:"dedup_high_water"`
}

type PollingConfig struct {
	ResyncIntervalMinutes     int `mapstructure:"resync_interval_minutes"`
	AlertCheckIntervalSeconds int `mapstructure:"alert_check_interval_seconds"`
	StalenessBoundHours       int `mapstructure:"staleness_bound_hours"`
}

type ChannelConfig struct {
	Banner    bool   `mapstructure:"banner"`
	Sound     bool   `mapstructure:"sound"`
	Tray      bool   `mapstructure:"tray"`
	Flash     bool   `mapstructure:"flash"`
	SoundFile string `mapstructure:"sound_file"`
}

var defaultConfig = Config{
	Alerts: AlertConfig{
		ThresholdMinutes:       5,
		LookaheadWindowMinutes: 30,
		NearDeltaMinutes:       2,
		DedupHighWater:         100,
	},
	Polling: PollingConfig{
		ResyncIntervalMinutes:     30,
		AlertCheckIntervalSeconds: 30,
		StalenessBoundHours:       4,
	},
	Channels: ChannelConfig{
		Banner:    true,
		Sound:     true,
		Tray:      true,
		Flash:     false,
		SoundFile: "",
	},
}

// Load reads the TOML config, creating one with defaults on first run.
// Callers re-read at the start of each cycle; changes take effect on the
// next scheduled run.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigName("config")

	if configPath == "" {
		configDir, err := getDefaultConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		configPath = configDir
	}

	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := createDefaultConfig(configPath); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
			if err := v.ReadInConfig(); err != nil {
				// If it still fails, just use defaults
				cfg := defaultConfig
				return &cfg, nil
			}
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("alerts.threshold_minutes", defaultConfig.Alerts.ThresholdMinutes)
	v.SetDefault("alerts.lookahead_window_minutes", defaultConfig.Alerts.LookaheadWindowMinutes)
	v.SetDefault("alerts.near_delta_minutes", defaultConfig.Alerts.NearDeltaMinutes)
	v.SetDefault("alerts.dedup_high_water", defaultConfig.Alerts.DedupHighWater)

	v.SetDefault("polling.resync_interval_minutes", defaultConfig.Polling.ResyncIntervalMinutes)
	v.SetDefault("polling.alert_check_interval_seconds", defaultConfig.Polling.AlertCheckIntervalSeconds)
	v.SetDefault("polling.staleness_bound_hours", defaultConfig.Polling.StalenessBoundHours)

	v.SetDefault("channels.banner", defaultConfig.Channels.Banner)
	v.SetDefault("channels.sound", defaultConfig.Channels.Sound)
	v.SetDefault("channels.tray", defaultConfig.Channels.Tray)
	v.SetDefault("channels.flash", defaultConfig.Channels.Flash)
	v.SetDefault("channels.sound_file", defaultConfig.Channels.SoundFile)
}

func createDefaultConfig(configPath string) error {
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configPath, "config.toml")

	if _, err := os.Stat(configFile); err == nil {
		return nil // Already exists
	}

	configContent := `# meeting-alertd configuration

[alerts]
threshold_minutes = 5         # alert when an event starts within this many minutes
lookahead_window_minutes = 30 # "next meetings" window
near_delta_minutes = 2        # group meetings starting near the earliest one
dedup_high_water = 100        # clear the alerted set past this size

[polling]
resync_interval_minutes = 30     # full calendar fetch cadence
alert_check_interval_seconds = 30 # alert evaluation cadence
staleness_bound_hours = 4        # force a refetch past this snapshot age

[channels]
banner = true
sound = true
tray = true
flash = false
sound_file = "" # empty uses the platform default alert sound
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func getDefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "meeting-alertd"), nil
}

func GetDefaultConfigDir() (string, error) {
	return getDefaultConfigDir()
}

// GetDefaultStateDir returns where the credential and salt live.
func GetDefaultStateDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cache", "meeting-alertd"), nil
}
