// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds guardctl's configuration, read from an optional TOML
// file and overridden by command line flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gvisor.dev/stackguard/pkg/log"
	"gvisor.dev/stackguard/pkg/stackguard"
)

// Config is the configuration of a guardctl invocation.
type Config struct {
	// Platform selects the platform conventions by name. Empty means the
	// platform is detected.
	Platform string `toml:"platform"`

	// Chain installs the fault handler in front of existing handlers.
	Chain bool `toml:"chain"`

	// Debug enables debug logging.
	Debug bool `toml:"debug"`

	// LogFormat is the log format, "text" or "json".
	LogFormat string `toml:"log_format"`

	// LogFilename is the file to log to. Empty means stderr. "%PID%" is
	// replaced with the process id.
	LogFilename string `toml:"log"`

	// Threads is the default number of threads the probe command starts.
	Threads int `toml:"threads"`
}

// flagNames maps flag names to their TOML keys. Flags and file keys cover
// the same settings.
var flagNames = map[string]string{
	"platform":   "platform",
	"chain":      "chain",
	"debug":      "debug",
	"log-format": "log_format",
	"log":        "log",
	"threads":    "threads",
}

// Default returns the configuration used when neither a file nor flags say
// otherwise.
func Default() *Config {
	return &Config{
		LogFormat: "text",
		Threads:   4,
	}
}

// RegisterFlags registers the configuration flags with f, plus "config",
// which names the TOML file to read first.
func RegisterFlags(f *flag.FlagSet) {
	d := Default()
	f.String("config", "", "TOML configuration file. Flags override its settings.")
	f.String("platform", d.Platform, "platform conventions to apply, see the platforms command. Empty detects the platform.")
	f.Bool("chain", d.Chain, "install the fault handler in front of existing SIGSEGV and SIGBUS handlers.")
	f.Bool("debug", d.Debug, "enable debug logging.")
	f.String("log-format", d.LogFormat, "log format: text (default) or json.")
	f.String("log", d.LogFilename, "file path where logs are written. %PID% is replaced with the process id.")
	f.Int("threads", d.Threads, "default number of threads started by probe.")
}

// NewFromFlags builds a Config from the file named by the "config" flag, if
// any, and the flags explicitly set in f.
func NewFromFlags(f *flag.FlagSet) (*Config, error) {
	conf := Default()
	if path := f.Lookup("config").Value.String(); path != "" {
		var err error
		if conf, err = Load(path); err != nil {
			return nil, err
		}
	}

	var err error
	f.Visit(func(fl *flag.Flag) {
		if err != nil {
			return
		}
		if _, ok := flagNames[fl.Name]; ok {
			err = conf.set(fl.Name, fl.Value.String())
		}
	})
	if err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Load reads a Config from the TOML file at path. Settings missing from the
// file keep their default values. Unknown keys are an error.
func Load(path string) (*Config, error) {
	conf := Default()
	md, err := toml.DecodeFile(path, conf)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("config file %q: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return conf, nil
}

func (c *Config) set(name, value string) error {
	switch name {
	case "platform":
		c.Platform = value
	case "log-format":
		c.LogFormat = value
	case "log":
		c.LogFilename = value
	case "chain", "debug":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value %q for flag %q: %w", value, name, err)
		}
		if name == "chain" {
			c.Chain = b
		} else {
			c.Debug = b
		}
	case "threads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value %q for flag %q: %w", value, name, err)
		}
		c.Threads = n
	default:
		return fmt.Errorf("unknown flag %q", name)
	}
	return nil
}

// Validate checks that c describes a usable configuration.
func (c *Config) Validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if c.Platform != "" {
		if _, err := stackguard.LookupPlatform(c.Platform); err != nil {
			return err
		}
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must not be negative: %d", c.Threads)
	}
	return nil
}

// StackGuard returns the stackguard configuration described by c.
func (c *Config) StackGuard() stackguard.Config {
	return stackguard.Config{
		Platform: c.Platform,
		Chain:    c.Chain,
	}
}

// Log writes the configuration to the debug log.
func (c *Config) Log() {
	log.Debugf("Config: platform %q, chain %t, debug %t, log format %q, log %q, threads %d",
		c.Platform, c.Chain, c.Debug, c.LogFormat, c.LogFilename, c.Threads)
}

// LogPattern implements log.FileOpts for LogFilename.
type LogPattern struct {
	// PID replaces %PID% in the pattern.
	PID int
}

// Build implements log.FileOpts.Build.
func (p LogPattern) Build(pattern string) string {
	return strings.ReplaceAll(pattern, "%PID%", strconv.Itoa(p.PID))
}

// OpenLog opens the log file named by c, or returns nil if c logs to stderr.
func (c *Config) OpenLog() (*os.File, error) {
	return log.OpenFile(c.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, LogPattern{PID: os.Getpid()})
}
