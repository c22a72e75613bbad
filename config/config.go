// Package config loads the scheduler/tunnel YAML configuration file and
// layers command-line flags over it, per SPEC_FULL.md §A.3.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ControllerEndpoint is one upstream controller the scheduler dials.
type ControllerEndpoint struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the endpoint as a dial-ready "host:port" string.
func (c ControllerEndpoint) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Config is the decoded shape of the YAML configuration file.
type Config struct {
	ListenAddr      string               `yaml:"listenAddr"`
	Controllers     []ControllerEndpoint `yaml:"controllers"`
	TunnelAddr      string               `yaml:"tunnelAddr"`
	SchedulerPolicy string               `yaml:"schedulerPolicy"`
	CaptureFile     string               `yaml:"captureFile"`
	FatalOnDesync   bool                 `yaml:"fatalOnDesync"`
}

// Default returns a Config with spec.md §6's documented defaults.
func Default() Config {
	return Config{
		ListenAddr:      ":6633",
		SchedulerPolicy: "round-robin",
	}
}

// Load reads and decodes the YAML file at path. A missing path is not
// an error: callers are expected to run entirely from flags in that case.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return cfg, nil
}

// FlagSet describes the CLI overrides a binary accepts, registered on
// fs by BindFlags and applied to a base Config by Apply.
type FlagSet struct {
	ConfigPath  string
	Listen      string
	Controllers []string
	TunnelAddr  string
	Policy      string
	Capture     string
	Fatal       bool
}

// BindFlags registers the scheduler/tunnel flags on fs.
func BindFlags(fs *pflag.FlagSet) *FlagSet {
	f := &FlagSet{}
	fs.StringVar(&f.ConfigPath, "config", "", "path to a YAML configuration file")
	fs.StringVar(&f.Listen, "listen", "", "override listenAddr")
	fs.StringArrayVar(&f.Controllers, "controller", nil, "controller address host:port (repeatable)")
	fs.StringVar(&f.TunnelAddr, "tunnel-addr", "", "override tunnelAddr")
	fs.StringVar(&f.Policy, "policy", "", "override schedulerPolicy")
	fs.StringVar(&f.Capture, "capture", "", "override captureFile")
	fs.BoolVar(&f.Fatal, "fatal-on-desync", false, "exit the process on desynchronisation instead of terminating only the affected session")
	return f
}

// Apply layers f's non-zero fields over base, returning the effective
// configuration. Flags always win over the file.
func Apply(base Config, f *FlagSet) (Config, error) {
	cfg := base
	if f.Listen != "" {
		cfg.ListenAddr = f.Listen
	}
	if f.TunnelAddr != "" {
		cfg.TunnelAddr = f.TunnelAddr
	}
	if f.Policy != "" {
		cfg.SchedulerPolicy = f.Policy
	}
	if f.Capture != "" {
		cfg.CaptureFile = f.Capture
	}
	if f.Fatal {
		cfg.FatalOnDesync = true
	}
	if len(f.Controllers) > 0 {
		cfg.Controllers = nil
		for _, addr := range f.Controllers {
			host, port, err := splitHostPort(addr)
			if err != nil {
				return cfg, fmt.Errorf("config: --controller %q: %w", addr, err)
			}
			cfg.Controllers = append(cfg.Controllers, ControllerEndpoint{Host: host, Port: port})
		}
	}
	return cfg, nil
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}

// ControllerAddrs returns every configured controller as a dial-ready
// "host:port" string, in configuration order.
func (c Config) ControllerAddrs() []string {
	addrs := make([]string, len(c.Controllers))
	for i, e := range c.Controllers {
		addrs[i] = e.Addr()
	}
	return addrs
}
