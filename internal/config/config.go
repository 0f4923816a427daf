// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/warden/internal/logger"
	"github.com/woozymasta/warden/internal/vars"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Server      Server        `group:"Server Options" env-namespace:"WARDEN"`
	Storage     Storage       `group:"Storage Options" namespace:"db" env-namespace:"WARDEN_DB"`
	Maintenance Maintenance   `group:"Maintenance Options"`
	Directory   Directory     `group:"Directory Options" namespace:"directory" env-namespace:"WARDEN_DIRECTORY"`
	Sweep       Sweep         `group:"Sweep Options" namespace:"sweep" env-namespace:"WARDEN_SWEEP"`
	GeoIP       GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"WARDEN_GEOIP"`
	RateLimit   RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"WARDEN_RATE_LIMIT"`
	Logger      logger.Config `group:"Logger Options" namespace:"log" env-namespace:"WARDEN_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Server holds listener and peer connection configuration.
type Server struct {
	// betteralign:ignore

	Address            string `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":7000"`
	PublicAddress      string `long:"public-address" env:"PUBLIC_ADDRESS" description:"Address stamped as SenderAddress on replies (defaults to listen address)"`
	ConnectionKey      string `short:"k" long:"connection-key" env:"CONNECTION_KEY" description:"Shared key peers present on connect; generated when empty"`
	KeyFile            string `long:"key-file" env:"KEY_FILE" description:"Where a generated connection key is written" default:"warden.key"`
	AuthToken          string `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin API authentication token"`
	MaxFrameSize       int64  `long:"max-frame-size" env:"MAX_FRAME_SIZE" description:"Max size of one inbound frame in bytes" default:"65536"`
	TrustProxy         bool   `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
	TrustSenderAddress bool   `long:"trust-sender-address" env:"TRUST_SENDER_ADDRESS" description:"Take peer IP from the SenderAddress packet header"`
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path          string `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"warden.db"`
	GenerateCount int    `long:"gen-fake-data" hidden:"true"`
}

// Maintenance holds out-of-band administration actions. Any of them runs instead of the service.
type Maintenance struct {
	// betteralign:ignore

	VerifyServer   string `long:"verify-server" description:"Mark server ID as verified and exit"`
	UnverifyServer string `long:"unverify-server" description:"Clear the verified flag of server ID and exit"`
	Grant          string `long:"grant" description:"Grant a capability, HWID=capability, and exit"`
	Revoke         string `long:"revoke" description:"Revoke a capability, HWID=capability, and exit"`
	ListServers    bool   `long:"list-servers" description:"Print known servers and exit"`
}

// Directory holds the published server list configuration.
type Directory struct {
	// betteralign:ignore

	Path string `long:"path" env:"PATH" description:"JSON file the server directory is published to (empty disables)" default:"servers.json"`
}

// Sweep holds the expiry sweeper configuration.
type Sweep struct {
	// betteralign:ignore

	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Expiry sweep period" default:"1s"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file" default:"warden.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
}

// RateLimit holds connection and packet rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	HardLimitCount int           `long:"hard-count" env:"HARD_COUNT" description:"Hard IP limit: connection attempts count" default:"8"`
	HardLimitWin   time.Duration `long:"hard-window" env:"HARD_WINDOW" description:"Hard IP limit: window duration" default:"1m"`
	PacketRate     float64       `long:"packet-rate" env:"PACKET_RATE" description:"Packets per second allowed per connection (0 disables)" default:"20"`
	PacketBurst    int           `long:"packet-burst" env:"PACKET_BURST" description:"Packet burst allowed per connection" default:"40"`
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	return cfg
}

// ParseArgs parses args and the environment without exiting.
func ParseArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.Server.PublicAddress == "" {
		cfg.Server.PublicAddress = cfg.Server.Address
	}

	return &cfg, nil
}

// Validate checks values flags cannot express.
func (c *Config) Validate() error {
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.Sweep.Interval)
	}
	if c.RateLimit.HardLimitCount <= 0 || c.RateLimit.HardLimitWin <= 0 {
		return fmt.Errorf("rate limit hard count and window must be positive")
	}
	if c.Server.MaxFrameSize <= 0 {
		return fmt.Errorf("max frame size must be positive, got %d", c.Server.MaxFrameSize)
	}

	return nil
}

// Maintaining reports whether an administration action was requested.
func (c *Config) Maintaining() bool {
	m := c.Maintenance
	return m.VerifyServer != "" || m.UnverifyServer != "" || m.Grant != "" || m.Revoke != "" || m.ListServers
}
