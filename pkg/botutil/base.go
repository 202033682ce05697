package botutil

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

// BaseBot holds the gateway client and the state every bot needs before and
// after it is ready.
type BaseBot struct {
	Client              *bot.Client
	Env                 string
	Log                 *slog.Logger
	Ready               atomic.Bool
	selfID              atomic.Uint64
	healthcheckEndpoint string
	httpClient          *http.Client
}

// NewBaseBot creates a BaseBot for the given env ("prod" or "dev"). An empty
// healthcheckEndpoint disables healthcheck pings.
func NewBaseBot(env, healthcheckEndpoint string, log *slog.Logger) *BaseBot {
	if log == nil {
		log = slog.Default()
	}
	return &BaseBot{
		Env:                 env,
		Log:                 log,
		healthcheckEndpoint: healthcheckEndpoint,
		httpClient:          &http.Client{Timeout: 10 * time.Second},
	}
}

// SelfID is the bot's own user ID, or 0 before the gateway is ready.
func (b *BaseBot) SelfID() snowflake.ID {
	return snowflake.ID(b.selfID.Load())
}

// PingHealthcheck sends a GET to the configured healthcheck endpoint.
// It is a no-op in dev or if no endpoint is configured.
func (b *BaseBot) PingHealthcheck() {
	if b.Env != "prod" || b.healthcheckEndpoint == "" {
		return
	}
	resp, err := b.httpClient.Get(b.healthcheckEndpoint)
	if err != nil {
		b.Log.Info("Healthcheck ping failed", "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		b.Log.Info("Healthcheck ping rejected", "status", resp.StatusCode)
	}
}

// OnReady is the shared ready handler.
func (b *BaseBot) OnReady(e *events.Ready) {
	b.markReady(e.User.ID, len(e.Guilds), e.User.Username)
}

func (b *BaseBot) markReady(selfID snowflake.ID, guilds int, username string) {
	b.selfID.Store(uint64(selfID))
	b.Ready.Store(true)
	b.Log.Info(username+" has connected to Discord!", "user_id", selfID)
	b.Log.Info("Bot is in guilds", "guilds", guilds)
}
