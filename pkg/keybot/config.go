package keybot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/jessevdk/go-flags"

	"github.com/sadbox/keybot/pkg/relay"
)

var ErrMissingToken = errors.New("DISCORD_BOT_TOKEN environment variable is not set")

type Config struct {
	Token               string        `long:"token" env:"DISCORD_BOT_TOKEN" description:"Discord bot token"`
	Prefix              string        `long:"prefix" env:"KEYBOT_PREFIX" default:"!" description:"Prefix for text commands"`
	RequiredRole        string        `long:"required-role" env:"KEYBOT_REQUIRED_ROLE" default:"🎓〡Staff" description:"Role name allowed to use the key command"`
	TargetChannel       string        `long:"target-channel" env:"KEYBOT_TARGET_CHANNEL" default:"🔑〡mod-key" description:"Name of the channel whose latest message is relayed"`
	GuildIDs            []string      `long:"guild" env:"KEYBOT_GUILD_IDS" env-delim:"," description:"Register the slash command in these guilds only (repeatable)"`
	Env                 string        `long:"env" env:"KEYBOT_ENV" default:"dev" choice:"dev" choice:"prod" description:"Deployment environment"`
	HealthcheckEndpoint string        `long:"healthcheck-endpoint" env:"KEYBOT_HEALTHCHECK_ENDPOINT" description:"URL pinged every 30s in prod"`
	Port                string        `long:"port" env:"PORT" default:"8080" description:"Keep-alive HTTP port"`
	NoKeepAlive         bool          `long:"no-keepalive" env:"KEYBOT_NO_KEEPALIVE" description:"Do not start the keep-alive HTTP server"`
	Workers             int           `long:"workers" env:"KEYBOT_WORKERS" default:"4" description:"Maximum concurrent command invocations"`
	CacheTTL            time.Duration `long:"cache-ttl" env:"KEYBOT_CACHE_TTL" default:"5m" description:"How long guild roles and channels are cached"`
	LogLevel            string        `long:"log-level" env:"KEYBOT_LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Minimum log level"`

	guildIDs []snowflake.ID
}

// LoadConfig parses args (without the program name) and the environment.
// Help requests come back as a *flags.Error of type flags.ErrHelp.
func LoadConfig(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "keybot"
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Token = strings.TrimSpace(c.Token)
	if c.Token == "" {
		return ErrMissingToken
	}
	if c.Prefix == "" {
		return errors.New("prefix must not be empty")
	}
	if c.RequiredRole == "" || c.TargetChannel == "" {
		return errors.New("required role and target channel must not be empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", c.CacheTTL)
	}
	c.guildIDs = c.guildIDs[:0]
	for _, raw := range c.GuildIDs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := snowflake.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid guild ID %q: %w", raw, err)
		}
		c.guildIDs = append(c.guildIDs, id)
	}
	return nil
}

func (c *Config) Settings() relay.Settings {
	return relay.Settings{
		RequiredRole:  c.RequiredRole,
		TargetChannel: c.TargetChannel,
	}
}

// SlashGuildIDs lists the guilds the slash command is registered in; empty
// means global registration.
func (c *Config) SlashGuildIDs() []snowflake.ID {
	return c.guildIDs
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) ListenAddr() string {
	return ":" + c.Port
}
