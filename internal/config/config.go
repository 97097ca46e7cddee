// Package config loads beatcue settings from a CUE file validated against
// an embedded schema, then applies BEATCUE_* environment overrides.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/caarlos0/env/v11"
)

//go:embed schema.cue
var schemaSrc string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BEATCUE_"

// Config holds runtime settings.
type Config struct {
	MIDIOutput             string        `env:"MIDI_OUTPUT"`
	OSCListen              string        `env:"OSC_LISTEN"`
	AnimationInterval      time.Duration `env:"ANIMATION_INTERVAL"`
	SimulationActiveTick   time.Duration `env:"SIMULATION_ACTIVE_TICK"`
	SimulationIdleTick     time.Duration `env:"SIMULATION_IDLE_TICK"`
	StatusInterval         time.Duration `env:"STATUS_INTERVAL"`
	AlertOnExpressionError bool          `env:"ALERT_ON_EXPRESSION_ERROR"`
	Database               string        `env:"DATABASE"`
	LogLevel               string        `env:"LOG_LEVEL"`
}

// fileConfig mirrors #Config.
type fileConfig struct {
	MIDIOutput             string `json:"midi_output"`
	OSCListen              string `json:"osc_listen"`
	AnimationIntervalMs    int    `json:"animation_interval_ms"`
	SimulationActiveTickMs int    `json:"simulation_active_tick_ms"`
	SimulationIdleTickMs   int    `json:"simulation_idle_tick_ms"`
	StatusIntervalMs       int    `json:"status_interval_ms"`
	AlertOnExpressionError bool   `json:"alert_on_expression_error"`
	Database               string `json:"database"`
	LogLevel               string `json:"log_level"`
}

func (f fileConfig) config() Config {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return Config{
		MIDIOutput:             f.MIDIOutput,
		OSCListen:              f.OSCListen,
		AnimationInterval:      ms(f.AnimationIntervalMs),
		SimulationActiveTick:   ms(f.SimulationActiveTickMs),
		SimulationIdleTick:     ms(f.SimulationIdleTickMs),
		StatusInterval:         ms(f.StatusIntervalMs),
		AlertOnExpressionError: f.AlertOnExpressionError,
		Database:               f.Database,
		LogLevel:               f.LogLevel,
	}
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := decode(nil, "")
	if err != nil {
		// The embedded schema and its defaults always decode.
		panic(fmt.Sprintf("config schema: %v", err))
	}
	return cfg
}

// Load reads path (skipped when empty), validates it against the schema and
// applies environment overrides.
func Load(path string) (Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := decode(data, path)
	if err != nil {
		return Config{}, err
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, filename string) (Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))

	if len(data) > 0 {
		file := ctx.CompileBytes(data, cue.Filename(filename))
		if err := file.Err(); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", filename, err)
		}
		v = v.Unify(file)
	}

	if err := v.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	var fc fileConfig
	if err := v.Decode(&fc); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return fc.config(), nil
}

// validate re-checks bounds the environment may have broken.
func (c Config) validate() error {
	for name, d := range map[string]time.Duration{
		"animation interval":     c.AnimationInterval,
		"simulation active tick": c.SimulationActiveTick,
		"simulation idle tick":   c.SimulationIdleTick,
		"status interval":        c.StatusInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %s", name, d)
		}
	}
	if c.Database == "" {
		return fmt.Errorf("invalid config: database must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid config: unknown log level %q", c.LogLevel)
	}
	return nil
}
