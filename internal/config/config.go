// Package config provides the viper-backed configuration layer for the
// server: remote listener bind address, framing limits, and the
// global/per-source-type open-option override chain used by the source
// tracker (spec §4.7, default_open_options).
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "KISMET"

// Config is the resolved, read-only view of server configuration. Load()
// populates it from (in increasing precedence) defaults, a config file and
// environment variables; no CLI flags are bound into it.
type Config struct {
	v *viper.Viper
}

func defaults(v *viper.Viper) {
	v.SetDefault("server.remote_listen_addr", ":3501")
	v.SetDefault("server.http_listen_addr", ":3502")
	v.SetDefault("server.remote_ws_path", "/datasource/remote/ws")
	v.SetDefault("server.remote_token", "")
	v.SetDefault("framing.max_frame_bytes", 8*1024*1024)
	v.SetDefault("framing.read_queue_depth", 64)
	v.SetDefault("hop.max_tick_hz", 100.0)
	v.SetDefault("hop.ack_slow_threshold", 100*time.Millisecond)
	v.SetDefault("fanin.buffer_while_opening_bytes", 4*1024*1024)
	v.SetDefault("source.command_timeout", 30*time.Second)
	v.SetDefault("source.ping_interval", 5*time.Second)
	v.SetDefault("source.pong_timeout", 15*time.Second)
}

// Load reads configuration from the named file (if non-empty and present),
// then overlays environment variables of the form KISMET_SERVER_HTTP_LISTEN_ADDR.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	return &Config{v: v}, nil
}

func (c *Config) RemoteListenAddr() string { return c.v.GetString("server.remote_listen_addr") }
func (c *Config) HTTPListenAddr() string   { return c.v.GetString("server.http_listen_addr") }
func (c *Config) RemoteWSPath() string     { return c.v.GetString("server.remote_ws_path") }
func (c *Config) RemoteToken() string      { return c.v.GetString("server.remote_token") }
func (c *Config) MaxFrameBytes() int       { return c.v.GetInt("framing.max_frame_bytes") }
func (c *Config) ReadQueueDepth() int      { return c.v.GetInt("framing.read_queue_depth") }
func (c *Config) MaxHopTickHz() float64    { return c.v.GetFloat64("hop.max_tick_hz") }
func (c *Config) HopAckSlowThreshold() time.Duration {
	return c.v.GetDuration("hop.ack_slow_threshold")
}
func (c *Config) FaninBufferWhileOpeningBytes() int {
	return c.v.GetInt("fanin.buffer_while_opening_bytes")
}
func (c *Config) CommandTimeout() time.Duration { return c.v.GetDuration("source.command_timeout") }
func (c *Config) PingInterval() time.Duration   { return c.v.GetDuration("source.ping_interval") }
func (c *Config) PongTimeout() time.Duration    { return c.v.GetDuration("source.pong_timeout") }

// OpenOptions returns the per-source-type option overrides configured under
// source_types.<type>.options, used by the tracker's default_open_options
// precedence chain (global -> per-type -> per-definition).
func (c *Config) OpenOptions(driverType string) map[string]string {
	key := "source_types." + driverType + ".options"
	raw := c.v.GetStringMapString(key)
	if raw == nil {
		return map[string]string{}
	}
	return raw
}

// GlobalOpenOptions returns the overrides applied to every source
// regardless of driver type.
func (c *Config) GlobalOpenOptions() map[string]string {
	raw := c.v.GetStringMapString("source_defaults.options")
	if raw == nil {
		return map[string]string{}
	}
	return raw
}
