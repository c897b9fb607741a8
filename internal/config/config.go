package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"speakclock/internal/battery"
	"speakclock/internal/calendar"
	"speakclock/internal/localize"
	"speakclock/internal/model"
	"speakclock/internal/player"
	"speakclock/internal/rtc"
	"speakclock/internal/speech"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// TimezoneConfig describes how RTC readings become local time.
type TimezoneConfig struct {
	// RTCIsUTC is true when the RTC keeps UTC.
	RTCIsUTC bool `yaml:"rtc_is_utc" json:"rtc_is_utc"`
	// Posix is a POSIX TZ string ("CET-1CEST,M3.5.0/02,M10.5.0/03") or an
	// IANA name. Empty selects the fixed offset + EU DST rule.
	Posix string `yaml:"posix" json:"posix"`
	// OffsetMinutes is the fixed offset east of UTC used without Posix.
	OffsetMinutes int `yaml:"offset_minutes" json:"offset_minutes"`
	// EUDST enables the EU summer time rule for the fixed-offset and local paths.
	EUDST bool `yaml:"eu_dst" json:"eu_dst"`
}

// AudioConfig locates clips and the decoder.
type AudioConfig struct {
	BaseDE string `yaml:"base_de" json:"base_de"`
	BaseEN string `yaml:"base_en" json:"base_en"`
	Ext    string `yaml:"ext" json:"ext"`
	// Root is the directory clip ids are resolved against.
	Root string `yaml:"root" json:"root"`
	// PlayerCmd is the decoder executable; PlayerArgs may use {file} and {scale}.
	PlayerCmd  string   `yaml:"player_cmd" json:"player_cmd"`
	PlayerArgs []string `yaml:"player_args" json:"player_args"`
	// Gain is the fixed output gain, and the fallback while the volume
	// knob cannot be read.
	Gain   float64      `yaml:"gain" json:"gain"`
	Volume VolumeConfig `yaml:"volume" json:"volume"`
}

// VolumeConfig reads the volume potentiometer on an input of the battery
// ADC. The gain is sampled before every clip.
type VolumeConfig struct {
	// Driver is "" (fixed gain), "i2c" or "mock".
	Driver  string `yaml:"driver" json:"driver"`
	Channel int    `yaml:"channel" json:"channel"`
	// MaxVolts is the knob voltage at full volume.
	MaxVolts float64 `yaml:"max_volts" json:"max_volts"`
}

// TimingConfig holds the pauses and the repeat window, in ms / seconds.
type TimingConfig struct {
	EnglishPauseMs  int `yaml:"english_pause_ms" json:"english_pause_ms"`
	DateGapMs       int `yaml:"date_gap_ms" json:"date_gap_ms"`
	RepeatWindowSec int `yaml:"repeat_window_sec" json:"repeat_window_sec"`
}

// RTCConfig selects the clock source.
type RTCConfig struct {
	// Driver is "ds3231" (default), "soft" or "system".
	Driver  string `yaml:"driver" json:"driver"`
	I2CBus  string `yaml:"i2c_bus" json:"i2c_bus"`
	I2CAddr uint16 `yaml:"i2c_addr" json:"i2c_addr"`
	// SoftStart seeds the software clock, "YYYY-MM-DD HH:MM:SS".
	SoftStart string `yaml:"soft_start" json:"soft_start"`
}

// BatteryConfig configures the ADC reader.
type BatteryConfig struct {
	// Driver is "i2c" (default) or "mock".
	Driver       string  `yaml:"driver" json:"driver"`
	I2CBus       string  `yaml:"i2c_bus" json:"i2c_bus"`
	I2CAddr      uint16  `yaml:"i2c_addr" json:"i2c_addr"`
	Channel      int     `yaml:"channel" json:"channel"`
	ADCFullScale float64 `yaml:"adc_full_scale" json:"adc_full_scale"`
	EmptyVolts   float64 `yaml:"empty_volts" json:"empty_volts"`
	FullVolts    float64 `yaml:"full_volts" json:"full_volts"`
}

// ButtonConfig configures the trigger button.
type ButtonConfig struct {
	// Pin is the periph GPIO name (e.g. "GPIO17"). Empty disables the button.
	Pin        string `yaml:"pin" json:"pin"`
	DebounceMs int    `yaml:"debounce_ms" json:"debounce_ms"`
}

// AnnounceConfig configures scheduled announcements.
type AnnounceConfig struct {
	// Cron is a cron-style schedule string (e.g. "0 * * * *") or an
	// "RRULE:" recurrence. Empty disables. Times are read in the clock's
	// zone: timezone.posix when set, else offset_minutes with the EU rule.
	Cron string `yaml:"cron" json:"cron"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is "debug", "info" or "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Language is the initial spoken language; the persisted state wins
	// once it exists.
	Language model.Language `yaml:"language" json:"language"`

	Timezone TimezoneConfig `yaml:"timezone" json:"timezone"`
	Audio    AudioConfig    `yaml:"audio" json:"audio"`
	Timing   TimingConfig   `yaml:"timing" json:"timing"`
	RTC      RTCConfig      `yaml:"rtc" json:"rtc"`
	Battery  BatteryConfig  `yaml:"battery" json:"battery"`
	Button   ButtonConfig   `yaml:"button" json:"button"`
	Announce AnnounceConfig `yaml:"announce" json:"announce"`

	// StateDir holds state.yaml.
	StateDir string `yaml:"state_dir" json:"state_dir"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen    = "127.0.0.1:8080"
	defaultPosix     = "CET-1CEST,M3.5.0/02,M10.5.0/03"
	defaultSoftStart = "2026-01-29 13:58:00"
	defaultStateDir  = "/var/lib/speakclock"
	defaultAudioRoot = "/usr/share/speakclock"
	defaultPlayerCmd = "mpg123"
	softStartLayout  = "2006-01-02 15:04:05"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cat := speech.DefaultCatalog()
	return &Config{
		Listen:   defaultListen,
		LogLevel: "info",
		Language: model.German,
		Timezone: TimezoneConfig{
			RTCIsUTC:      true,
			Posix:         defaultPosix,
			OffsetMinutes: 60,
			EUDST:         true,
		},
		Audio: AudioConfig{
			BaseDE:     cat.GermanBase,
			BaseEN:     cat.EnglishBase,
			Ext:        cat.Ext,
			Root:       defaultAudioRoot,
			PlayerCmd:  defaultPlayerCmd,
			PlayerArgs: []string{"-q", "-f", "{scale}", "{file}"},
			Gain:       1.0,
			Volume:     VolumeConfig{Channel: 1, MaxVolts: 3.3},
		},
		Timing: TimingConfig{
			EnglishPauseMs:  100,
			DateGapMs:       500,
			RepeatWindowSec: 20,
		},
		RTC: RTCConfig{
			Driver:    "ds3231",
			I2CAddr:   rtc.DefaultDS3231Addr,
			SoftStart: defaultSoftStart,
		},
		Battery: BatteryConfig{
			Driver:       "i2c",
			I2CAddr:      battery.DefaultADCAddr,
			ADCFullScale: 4.096,
			EmptyVolts:   3.3,
			FullVolts:    4.2,
		},
		Button:    ButtonConfig{DebounceMs: 50},
		Announce:  AnnounceConfig{},
		StateDir:  defaultStateDir,
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = d.LogLevel
	}

	if c.Audio.BaseDE == "" {
		c.Audio.BaseDE = d.Audio.BaseDE
	}
	if c.Audio.BaseEN == "" {
		c.Audio.BaseEN = d.Audio.BaseEN
	}
	if c.Audio.Ext == "" {
		c.Audio.Ext = d.Audio.Ext
	}
	if c.Audio.Root == "" {
		c.Audio.Root = d.Audio.Root
	}
	if c.Audio.PlayerCmd == "" {
		c.Audio.PlayerCmd = d.Audio.PlayerCmd
		if len(c.Audio.PlayerArgs) == 0 {
			c.Audio.PlayerArgs = d.Audio.PlayerArgs
		}
	}
	if c.Audio.Gain <= 0 {
		c.Audio.Gain = d.Audio.Gain
	}
	c.Audio.Gain = player.ClampGain(c.Audio.Gain)

	c.Audio.Volume.Driver = strings.ToLower(strings.TrimSpace(c.Audio.Volume.Driver))
	switch c.Audio.Volume.Driver {
	case "", "i2c", "mock":
	default:
		c.Audio.Volume.Driver = d.Audio.Volume.Driver
	}
	if c.Audio.Volume.Channel < 0 || c.Audio.Volume.Channel > 3 {
		c.Audio.Volume.Channel = d.Audio.Volume.Channel
	}
	if c.Audio.Volume.MaxVolts <= 0 {
		c.Audio.Volume.MaxVolts = d.Audio.Volume.MaxVolts
	}

	// Negative timings fall back; zero is a valid "no pause".
	if c.Timing.EnglishPauseMs < 0 {
		c.Timing.EnglishPauseMs = d.Timing.EnglishPauseMs
	}
	if c.Timing.DateGapMs < 0 {
		c.Timing.DateGapMs = d.Timing.DateGapMs
	}
	if c.Timing.RepeatWindowSec < 0 {
		c.Timing.RepeatWindowSec = d.Timing.RepeatWindowSec
	}

	c.RTC.Driver = strings.ToLower(strings.TrimSpace(c.RTC.Driver))
	switch c.RTC.Driver {
	case "ds3231", "soft", "system":
		// ok
	default:
		// Unknown value; fall back to the hardware clock with soft fallback.
		c.RTC.Driver = d.RTC.Driver
	}
	if c.RTC.I2CAddr == 0 {
		c.RTC.I2CAddr = d.RTC.I2CAddr
	}
	if _, err := parseSoftStart(c.RTC.SoftStart); err != nil {
		c.RTC.SoftStart = d.RTC.SoftStart
	}

	c.Battery.Driver = strings.ToLower(strings.TrimSpace(c.Battery.Driver))
	if c.Battery.Driver != "i2c" && c.Battery.Driver != "mock" {
		c.Battery.Driver = d.Battery.Driver
	}
	if c.Battery.I2CAddr == 0 {
		c.Battery.I2CAddr = d.Battery.I2CAddr
	}
	if c.Battery.Channel < 0 || c.Battery.Channel > 3 {
		c.Battery.Channel = d.Battery.Channel
	}
	if c.Battery.ADCFullScale <= 0 {
		c.Battery.ADCFullScale = d.Battery.ADCFullScale
	}
	if c.Battery.EmptyVolts <= 0 {
		c.Battery.EmptyVolts = d.Battery.EmptyVolts
	}
	if c.Battery.FullVolts <= c.Battery.EmptyVolts {
		c.Battery.FullVolts = d.Battery.FullVolts
	}

	c.Button.Pin = strings.TrimSpace(c.Button.Pin)
	if c.Button.DebounceMs <= 0 {
		c.Button.DebounceMs = d.Button.DebounceMs
	}

	if c.StateDir == "" {
		c.StateDir = d.StateDir
	}
}

// Rule converts the timezone section into a localization rule.
func (c *Config) Rule() localize.Rule {
	return localize.Rule{
		SourceIsUTC:         c.Timezone.RTCIsUTC,
		PosixTZ:             strings.TrimSpace(c.Timezone.Posix),
		ManualOffsetMinutes: c.Timezone.OffsetMinutes,
		DSTEnabled:          c.Timezone.EUDST,
	}
}

// Catalog returns the clip catalog.
func (c *Config) Catalog() speech.Catalog {
	return speech.Catalog{GermanBase: c.Audio.BaseDE, EnglishBase: c.Audio.BaseEN, Ext: c.Audio.Ext}
}

// PlayerArgv returns the decoder command line template.
func (c *Config) PlayerArgv() []string {
	return append([]string{c.Audio.PlayerCmd}, c.Audio.PlayerArgs...)
}

// RTCOptions returns the clock options.
func (c *Config) RTCOptions() rtc.Options {
	start, err := parseSoftStart(c.RTC.SoftStart)
	if err != nil {
		start, _ = parseSoftStart(defaultSoftStart)
	}
	return rtc.Options{
		Driver:    c.RTC.Driver,
		I2CBus:    c.RTC.I2CBus,
		I2CAddr:   c.RTC.I2CAddr,
		SoftStart: start,
	}
}

// BatteryOptions returns the ADC reader options without a calibration source.
func (c *Config) BatteryOptions() battery.Options {
	return battery.Options{
		I2CBus:     c.Battery.I2CBus,
		I2CAddr:    c.Battery.I2CAddr,
		Channel:    c.Battery.Channel,
		FullScale:  c.Battery.ADCFullScale,
		EmptyVolts: c.Battery.EmptyVolts,
		FullVolts:  c.Battery.FullVolts,
	}
}

// VolumeOptions returns the ADC options for the volume knob: the battery
// converter, sampled on the knob's input.
func (c *Config) VolumeOptions() battery.Options {
	opts := c.BatteryOptions()
	opts.Channel = c.Audio.Volume.Channel
	return opts
}

func parseSoftStart(s string) (calendar.DateTime, error) {
	var y, mo, d, h, mi, sec int
	n, err := fmt.Sscanf(strings.TrimSpace(s), "%d-%d-%d %d:%d:%d", &y, &mo, &d, &h, &mi, &sec)
	if err != nil || n != 6 {
		return calendar.DateTime{}, fmt.Errorf("soft_start %q: want %q", s, softStartLayout)
	}
	if y < 1970 || h < 0 || h > 23 || mi < 0 || mi > 59 || sec < 0 || sec > 59 {
		return calendar.DateTime{}, fmt.Errorf("soft_start %q out of range", s)
	}
	// Month and day are clamped like a freshly seeded software clock.
	return calendar.New(y, mo, d, h, mi, sec), nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	// Start from defaults so booleans missing from older files keep their
	// default value instead of false.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".speakclock-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
