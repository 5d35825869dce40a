package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord        DiscordConfig        `yaml:"discord"`
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
	Pug            PugConfig            `yaml:"pug"`
	GameServer     GameServerConfig     `yaml:"gameserver"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
	// AdminRole may run pug admin commands in addition to guild administrators.
	AdminRole string `yaml:"admin_role"`
}

// DatabaseConfig holds rating store settings.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "file" or "sqlx"

	// Path is the ratings file used by the file driver. Events are written
	// next to it.
	Path string `yaml:"path"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// PugConfig holds the defaults for each pug channel.
type PugConfig struct {
	// Channels lists the channel ids the bot runs pugs in. Pugs may also be
	// enabled at runtime with the enable command.
	Channels      []string      `yaml:"channels"`
	Mode          string        `yaml:"mode"`
	Players       int           `yaml:"players"`
	Maps          int           `yaml:"maps"`
	PickModeTeams int           `yaml:"pick_mode_teams"`
	PickModeMaps  int           `yaml:"pick_mode_maps"`
	MapList       []string      `yaml:"map_list"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Cooldown      time.Duration `yaml:"cooldown"`
	SetupAttempts int           `yaml:"setup_attempts"`
	SetupDelay    time.Duration `yaml:"setup_delay"`
}

// GameServerConfig holds the match setup API and the known game servers.
type GameServerConfig struct {
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	StatusFloor    time.Duration `yaml:"status_floor"`
	QueryTimeout   time.Duration `yaml:"query_timeout"`
	Default        string        `yaml:"default"`
	List           []ServerEntry `yaml:"servers"`
	// Rotation holds 1-based indexes into List, cycled weekly.
	Rotation []int `yaml:"rotation"`
}

// ServerEntry is one configured game server.
type ServerEntry struct {
	Ref      string `yaml:"ref"`
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	OnDemand bool   `yaml:"on_demand"`
}

// DefaultMapList returns the League Assault maps used when no map list is
// configured.
func DefaultMapList() []string {
	return []string{
		"AS-AsthenosphereSE", "AS-AutoRip", "AS-Ballistic", "AS-Bridge",
		"AS-Desertstorm", "AS-Desolate][", "AS-Frigate", "AS-GolgothaAL",
		"AS-Golgotha][AL", "AS-Guardia", "AS-GuardiaAL", "AS-HiSpeed",
		"AS-Mazon", "AS-OceanFloor", "AS-OceanFloorAL", "AS-Overlord",
		"AS-RiverbedSE", "AS-Riverbed]l[AL", "AS-Rook", "AS-Siege][",
		"AS-Submarinebase][", "AS-TheDungeon]l[AL",
	}
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:  "file",
			Path:    "players/ratings.json",
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "pugbot",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "pugbot-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
		Pug: PugConfig{
			Mode:          "stdAS",
			Players:       12,
			Maps:          7,
			PickModeTeams: 1,
			PickModeMaps:  3,
			PollInterval:  60 * time.Second,
			Cooldown:      60 * time.Second,
			SetupAttempts: 5,
			SetupDelay:    5 * time.Second,
			MapList:       DefaultMapList(),
		},
		GameServer: GameServerConfig{
			URL:            "https://utassault.net",
			Token:          "NoToken",
			RequestTimeout: 10 * time.Second,
			StatusFloor:    5 * time.Second,
			QueryTimeout:   3 * time.Second,
			Default:        "pugs1",
			List: []ServerEntry{
				{Ref: "pugs1", Name: "UTA Pug Server 1.uk", URL: "unreal://pug1.utassault.net:7777"},
			},
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "file", "sqlx":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"file\" or \"sqlx\"", c.Database.Driver)
	}
	if c.Database.Driver == "file" && c.Database.Path == "" {
		return fmt.Errorf("database path is required for the file driver")
	}
	if c.Pug.Players < 2 || c.Pug.Players%2 != 0 {
		return fmt.Errorf("pug players must be a positive even number, got %d", c.Pug.Players)
	}
	if c.Pug.Maps < 1 || c.Pug.Maps > len(c.Pug.MapList) {
		return fmt.Errorf("pug maps must be between 1 and the map list length, got %d", c.Pug.Maps)
	}
	for _, mode := range []int{c.Pug.PickModeTeams, c.Pug.PickModeMaps} {
		if mode < 0 || mode > 3 {
			return fmt.Errorf("pick mode %d out of range 0-3", mode)
		}
	}
	if c.Pug.SetupAttempts < 1 {
		return fmt.Errorf("pug setup_attempts must be at least 1")
	}
	if len(c.GameServer.List) == 0 {
		return fmt.Errorf("at least one game server is required")
	}
	for _, r := range c.GameServer.Rotation {
		if r < 1 || r > len(c.GameServer.List) {
			return fmt.Errorf("server rotation entry %d out of range 1-%d", r, len(c.GameServer.List))
		}
	}
	return nil
}
