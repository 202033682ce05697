// Package keybot runs the Discord bot that serves the key command over both
// the prefix and slash command surfaces.
package keybot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/gateway"
	"github.com/gammazero/workerpool"

	"github.com/sadbox/keybot/pkg/botutil"
	"github.com/sadbox/keybot/pkg/relay"
)

const healthcheckInterval = 30 * time.Second

type Bot struct {
	*botutil.BaseBot
	cfg     *Config
	dir     *directory
	handler *relay.Handler
	pool    *workerpool.WorkerPool
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(cfg *Config, log *slog.Logger) (*Bot, error) {
	base := botutil.NewBaseBot(cfg.Env, cfg.HealthcheckEndpoint, log)
	ctx, cancel := context.WithCancel(context.Background())

	b := &Bot{
		BaseBot: base,
		cfg:     cfg,
		pool:    workerpool.New(cfg.Workers),
		ctx:     ctx,
		cancel:  cancel,
	}

	client, err := disgo.New(cfg.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentDirectMessages,
				gateway.IntentMessageContent,
			),
		),
		bot.WithEventListenerFunc(b.OnReady),
		bot.WithEventListenerFunc(b.onMessage),
		bot.WithEventListenerFunc(b.onCommand),
		bot.WithEventListenerFunc(b.onRoleCreate),
		bot.WithEventListenerFunc(b.onRoleUpdate),
		bot.WithEventListenerFunc(b.onRoleDelete),
		bot.WithEventListenerFunc(b.onChannelCreate),
		bot.WithEventListenerFunc(b.onChannelUpdate),
		bot.WithEventListenerFunc(b.onChannelDelete),
		bot.WithEventListenerFunc(b.onMemberUpdate),
		bot.WithEventListenerFunc(b.onGuildUpdate),
		bot.WithEventListenerFunc(b.onGuildLeave),
	)
	if err != nil {
		cancel()
		b.pool.Stop()
		return nil, fmt.Errorf("creating client: %w", err)
	}

	b.Client = client
	b.dir = newDirectory(client.Rest, b.SelfID, cfg.CacheTTL, b.Log)
	b.handler = relay.NewHandler(b.dir, cfg.Settings(), b.Log)
	return b, nil
}

// Run connects to the gateway and blocks until SIGINT/SIGTERM or until ctx
// is done. In-flight invocations are cancelled and drained before it returns.
func (b *Bot) Run(ctx context.Context) error {
	defer func() {
		b.cancel()
		b.pool.StopWait()
	}()

	if err := b.Client.OpenGateway(b.ctx); err != nil {
		return fmt.Errorf("opening gateway: %w", err)
	}
	defer b.Client.Close(context.Background())

	if err := b.registerAllCommands(); err != nil {
		return fmt.Errorf("registering commands: %w", err)
	}
	go botutil.Every(b.ctx, b.Log, "healthcheck", b.Ready.Load, healthcheckInterval, b.PingHealthcheck)

	b.Log.Info(fmt.Sprintf("Invite: https://discord.com/oauth2/authorize?client_id=%d&scope=bot%%20applications.commands&permissions=68608", b.Client.ApplicationID))
	botutil.WaitForShutdown(ctx, b.Log, "Keybot")
	return nil
}
