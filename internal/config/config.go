// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for server, network and simulation
// settings.
//
// Values are layered: the Default*() constructors below, then an optional
// config file (yaml or json), then VESSEL_* environment variables, e.g.
// VESSEL_SERVER_PORT=25565 or VESSEL_NETWORK_SERVER_URL=ws://host:25565/ws.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VESSEL"

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds the game server settings.
type ServerConfig struct {
	Port       int
	TickRate   int // simulation ticks per second
	MaxClients int
	// LocalVessel spawns a vessel owned by the server process itself.
	LocalVessel bool
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:       25565,
		TickRate:   60,
		MaxClients: 10,
	}
}

// =============================================================================
// NETWORK CONFIGURATION
// =============================================================================

// NetworkConfig holds protocol and transport settings shared by both ends.
type NetworkConfig struct {
	ServerURL         string
	ProtocolID        uint64
	MaxPerIP          int
	OutboundQueue     int
	CompressThreshold int     // payload bytes above which zstd is used
	ControlRate       float64 // inbound messages per second per client
	ControlBurst      int
	HandshakeTimeout  time.Duration
}

// DefaultNetwork returns the default network configuration.
func DefaultNetwork() NetworkConfig {
	return NetworkConfig{
		ServerURL:         "ws://127.0.0.1:25565/ws",
		ProtocolID:        0,
		MaxPerIP:          4,
		OutboundQueue:     256,
		CompressThreshold: 1024,
		ControlRate:       120,
		ControlBurst:      240,
		HandshakeTimeout:  5 * time.Second,
	}
}

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SpawnConfig tunes the spawn pipeline.
type SpawnConfig struct {
	// PendingTimeoutTicks bounds how long an entity waits for its vessel
	// definition before it is abandoned. Zero waits forever.
	PendingTimeoutTicks uint64
}

// DefaultSpawn returns the default spawn configuration.
func DefaultSpawn() SpawnConfig {
	return SpawnConfig{
		PendingTimeoutTicks: 600, // 10s at 60 ticks/s
	}
}

// PhysicsConfig tunes the integrator.
type PhysicsConfig struct {
	Gravity      float32
	GroundHeight float32
	Ground       bool
}

// DefaultPhysics returns the default physics configuration.
func DefaultPhysics() PhysicsConfig {
	return PhysicsConfig{
		Gravity:      -15,
		GroundHeight: 0,
		Ground:       true,
	}
}

// =============================================================================
// CONTENT CONFIGURATION
// =============================================================================

// ContentConfig points at the element catalogue and the player's creation.
type ContentConfig struct {
	CatalogueFile string // empty uses the built-in catalogue
	CreationFile  string // empty uses the built-in demo vessel
	InputScript   string // headless client key script
}

// DefaultContent returns the default content configuration.
func DefaultContent() ContentConfig {
	return ContentConfig{
		InputScript: "W:120,WD:60,W:60,WA:60",
	}
}

// =============================================================================
// OBSERVABILITY CONFIGURATION
// =============================================================================

// DebugConfig configures the debug (pprof + metrics) server.
type DebugConfig struct {
	Enabled    bool
	ListenAddr string // localhost only unless AllowExternal
	// AllowExternal permits binding the debug server to a non-local address.
	AllowExternal bool
}

// DefaultDebug returns safe defaults.
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// EventLogConfig configures the protocol event log.
type EventLogConfig struct {
	Path         string // empty keeps events in memory only
	MaxPerSecond int
}

// DefaultEventLog returns the default event log configuration.
func DefaultEventLog() EventLogConfig {
	return EventLogConfig{
		MaxPerSecond: 100,
	}
}

// ArchiveConfig configures the vessel archive.
type ArchiveConfig struct {
	Path string // empty disables the archive
}

// DefaultArchive returns the default archive configuration.
func DefaultArchive() ArchiveConfig {
	return ArchiveConfig{}
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string
	Pretty bool
}

// DefaultLog returns the default log configuration.
func DefaultLog() LogConfig {
	return LogConfig{
		Level:  "info",
		Pretty: true,
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server   ServerConfig
	Network  NetworkConfig
	Spawn    SpawnConfig
	Physics  PhysicsConfig
	Content  ContentConfig
	Debug    DebugConfig
	EventLog EventLogConfig
	Archive  ArchiveConfig
	Log      LogConfig
}

// Default returns the configuration with no overrides.
func Default() AppConfig {
	return AppConfig{
		Server:   DefaultServer(),
		Network:  DefaultNetwork(),
		Spawn:    DefaultSpawn(),
		Physics:  DefaultPhysics(),
		Content:  DefaultContent(),
		Debug:    DefaultDebug(),
		EventLog: DefaultEventLog(),
		Archive:  DefaultArchive(),
		Log:      DefaultLog(),
	}
}

// Load returns the complete configuration. path names an optional config
// file; when empty, VESSEL_CONFIG is consulted.
func Load(path string) (AppConfig, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || os.IsNotExist(err) {
				return AppConfig{}, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c AppConfig) Validate() error {
	switch {
	case c.Server.TickRate <= 0:
		return fmt.Errorf("config: server.tick_rate must be positive, got %d", c.Server.TickRate)
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("config: server.port out of range: %d", c.Server.Port)
	case c.Network.OutboundQueue <= 0:
		return fmt.Errorf("config: network.outbound_queue must be positive, got %d", c.Network.OutboundQueue)
	case c.Network.ControlRate < float64(c.Server.TickRate) || c.Network.ControlBurst < 1:
		// clients send up to one message per tick and are disconnected above the rate
		return fmt.Errorf("config: network.control_rate %v must be at least server.tick_rate %d with a positive burst",
			c.Network.ControlRate, c.Server.TickRate)
	}
	return nil
}

// TickInterval returns the duration of one tick.
func (c ServerConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

func setDefaults(v *viper.Viper, d AppConfig) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.tick_rate", d.Server.TickRate)
	v.SetDefault("server.max_clients", d.Server.MaxClients)
	v.SetDefault("server.local_vessel", d.Server.LocalVessel)

	v.SetDefault("network.server_url", d.Network.ServerURL)
	v.SetDefault("network.protocol_id", d.Network.ProtocolID)
	v.SetDefault("network.max_per_ip", d.Network.MaxPerIP)
	v.SetDefault("network.outbound_queue", d.Network.OutboundQueue)
	v.SetDefault("network.compress_threshold", d.Network.CompressThreshold)
	v.SetDefault("network.control_rate", d.Network.ControlRate)
	v.SetDefault("network.control_burst", d.Network.ControlBurst)
	v.SetDefault("network.handshake_timeout", d.Network.HandshakeTimeout)

	v.SetDefault("spawn.pending_timeout_ticks", d.Spawn.PendingTimeoutTicks)

	v.SetDefault("physics.gravity", d.Physics.Gravity)
	v.SetDefault("physics.ground_height", d.Physics.GroundHeight)
	v.SetDefault("physics.ground", d.Physics.Ground)

	v.SetDefault("content.catalogue_file", d.Content.CatalogueFile)
	v.SetDefault("content.creation_file", d.Content.CreationFile)
	v.SetDefault("content.input_script", d.Content.InputScript)

	v.SetDefault("debug.enabled", d.Debug.Enabled)
	v.SetDefault("debug.listen_addr", d.Debug.ListenAddr)
	v.SetDefault("debug.allow_external", d.Debug.AllowExternal)

	v.SetDefault("event_log.path", d.EventLog.Path)
	v.SetDefault("event_log.max_per_second", d.EventLog.MaxPerSecond)

	v.SetDefault("archive.path", d.Archive.Path)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
}

func fromViper(v *viper.Viper) AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Port:        v.GetInt("server.port"),
			TickRate:    v.GetInt("server.tick_rate"),
			MaxClients:  v.GetInt("server.max_clients"),
			LocalVessel: v.GetBool("server.local_vessel"),
		},
		Network: NetworkConfig{
			ServerURL:         v.GetString("network.server_url"),
			ProtocolID:        v.GetUint64("network.protocol_id"),
			MaxPerIP:          v.GetInt("network.max_per_ip"),
			OutboundQueue:     v.GetInt("network.outbound_queue"),
			CompressThreshold: v.GetInt("network.compress_threshold"),
			ControlRate:       v.GetFloat64("network.control_rate"),
			ControlBurst:      v.GetInt("network.control_burst"),
			HandshakeTimeout:  v.GetDuration("network.handshake_timeout"),
		},
		Spawn: SpawnConfig{
			PendingTimeoutTicks: v.GetUint64("spawn.pending_timeout_ticks"),
		},
		Physics: PhysicsConfig{
			Gravity:      float32(v.GetFloat64("physics.gravity")),
			GroundHeight: float32(v.GetFloat64("physics.ground_height")),
			Ground:       v.GetBool("physics.ground"),
		},
		Content: ContentConfig{
			CatalogueFile: v.GetString("content.catalogue_file"),
			CreationFile:  v.GetString("content.creation_file"),
			InputScript:   v.GetString("content.input_script"),
		},
		Debug: DebugConfig{
			Enabled:       v.GetBool("debug.enabled"),
			ListenAddr:    v.GetString("debug.listen_addr"),
			AllowExternal: v.GetBool("debug.allow_external"),
		},
		EventLog: EventLogConfig{
			Path:         v.GetString("event_log.path"),
			MaxPerSecond: v.GetInt("event_log.max_per_second"),
		},
		Archive: ArchiveConfig{
			Path: v.GetString("archive.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},
	}
}
