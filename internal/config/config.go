// Package config loads analyzer settings from an optional YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults for every tunable.
const (
	DefaultDisassembler    = "arm-none-eabi-objdump"
	DefaultCallOverhead    = 4
	DefaultInterruptPrefix = "__vector_"
)

// Config holds every option the analyzer recognizes.
type Config struct {
	DisassemblerPath string   `yaml:"disassembler-path"`
	CallOverhead     int      `yaml:"call-overhead"`
	LogAmbiguous     bool     `yaml:"log-ambiguous-resolutions"`
	Allowlist        []string `yaml:"function-allowlist"`
	InterruptPrefix  string   `yaml:"interrupt-prefix"`
	Native           bool     `yaml:"native"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DisassemblerPath: DefaultDisassembler,
		CallOverhead:     DefaultCallOverhead,
		LogAmbiguous:     true,
		InterruptPrefix:  DefaultInterruptPrefix,
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. An empty path skips the file. A .env file in the
// working directory is honored when present.
func Load(path string) (Config, error) {
	cfg := Default()

	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("STACKCHECK_OBJDUMP"); v != "" {
		c.DisassemblerPath = v
	}
	if v := os.Getenv("STACKCHECK_CALL_OVERHEAD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.CallOverhead = n
		}
	}
}
