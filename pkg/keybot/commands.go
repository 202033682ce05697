package keybot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
	"github.com/oklog/ulid/v2"

	"github.com/sadbox/keybot/pkg/botutil"
	"github.com/sadbox/keybot/pkg/dispatch"
	"github.com/sadbox/keybot/pkg/relay"
)

// messageSender is the subset of rest.Rest used to post replies.
type messageSender interface {
	CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
}

// followupSender is the subset of rest.Rest used to answer deferred
// interactions.
type followupSender interface {
	CreateFollowupMessage(applicationID snowflake.ID, interactionToken string, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
}

func (b *Bot) registerAllCommands() error {
	perm := discord.PermissionSendMessages

	commands := []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:                     dispatch.Key.Name,
			Description:              slashDescription(b.handler.Settings().TargetChannel),
			DefaultMemberPermissions: omit.NewPtr(perm),
		},
	}

	return botutil.RegisterCommands(b.Client, b.cfg.SlashGuildIDs(), commands, b.Log)
}

func slashDescription(target string) string {
	d := fmt.Sprintf("Post the latest message from %s", target)
	if r := []rune(d); len(r) > 100 {
		d = string(r[:97]) + "..."
	}
	return d
}

func newInvocationID() string {
	return "inv_" + ulid.Make().String()
}

func messageInvocation(msg discord.Message, guildID *snowflake.ID) relay.Invocation {
	inv := relay.Invocation{
		ID:        newInvocationID(),
		GuildID:   guildID,
		ChannelID: msg.ChannelID,
		UserID:    msg.Author.ID,
		Username:  msg.Author.Username,
	}
	if msg.Member != nil {
		inv.UserRoleIDs = msg.Member.RoleIDs
	}
	return inv
}

func (b *Bot) onMessage(e *events.MessageCreate) {
	if e.Message.Author.Bot || e.Message.Author.System {
		return
	}
	name, args, ok := dispatch.Parse(b.cfg.Prefix, e.Message.Content)
	if !ok {
		return
	}

	if b.pool.Stopped() {
		return
	}
	inv := messageInvocation(e.Message, e.GuildID)
	b.pool.Submit(func() {
		b.runPrefixCommand(inv, name, args)
	})
}

func (b *Bot) runPrefixCommand(inv relay.Invocation, name string, args []string) {
	log := b.Log.With("invocation_id", inv.ID, "channel_id", inv.ChannelID, "user_id", inv.UserID)

	dctx := dispatch.Context{InGuild: inv.GuildID != nil}
	if inv.GuildID != nil {
		guildID := *inv.GuildID
		dctx.BotPermissions = func() (discord.Permissions, bool) {
			return b.botPermissionsIn(guildID, inv.ChannelID)
		}
	}
	if err := dispatch.Key.Check(name, args, dctx); err != nil {
		if reply, send := dispatch.Reply(err, log); send {
			if err := sendReply(b.ctx, b.Client.Rest, inv.ChannelID, reply); err != nil {
				log.Error("Failed to send dispatch error reply", "error", err)
			}
		}
		return
	}

	log.Info("Running key command", "username", inv.Username)
	out := b.handler.Relay(b.ctx, inv)
	deliver(func(content string) error {
		return sendReply(b.ctx, b.Client.Rest, inv.ChannelID, content)
	}, out, log)
}

// botPermissionsIn reports the bot's permissions in a channel of the cached
// guild snapshot. ok is false when the channel is not a known text channel.
func (b *Bot) botPermissionsIn(guildID, channelID snowflake.ID) (discord.Permissions, bool) {
	g, err := b.dir.Guild(b.ctx, guildID)
	if err != nil {
		b.Log.Debug("Guild lookup for permission check failed", "guild_id", guildID, "error", err)
		return 0, false
	}
	ch, ok := g.ChannelByID(channelID)
	if !ok {
		return 0, false
	}
	return relay.EffectivePermissions(g, ch, g.Self), true
}

// deliver posts out through send. A relayed message that cannot be posted
// is replaced by the fetch error reply.
func deliver(send func(content string) error, out relay.Outcome, log *slog.Logger) {
	err := send(out.Reply)
	if err == nil {
		return
	}
	log.Error("Failed to send reply", "kind", out.Kind.String(), "error", err)
	if out.Kind.Failed() {
		return
	}
	if err := send(relay.FetchFailedReply); err != nil {
		log.Error("Failed to send fallback reply", "error", err)
	}
}

// sendReply posts content with all mentions suppressed.
func sendReply(ctx context.Context, sender messageSender, channelID snowflake.ID, content string) error {
	_, err := sender.CreateMessage(channelID, discord.MessageCreate{
		Content:         content,
		AllowedMentions: &discord.AllowedMentions{},
	}, rest.WithCtx(ctx))
	return err
}

func (b *Bot) onCommand(e *events.ApplicationCommandInteractionCreate) {
	d, ok := e.Data.(discord.SlashCommandInteractionData)
	if !ok || d.CommandName() != dispatch.Key.Name {
		return
	}

	inv := relay.Invocation{
		ID:        newInvocationID(),
		GuildID:   e.GuildID(),
		ChannelID: e.Channel().ID(),
		UserID:    e.User().ID,
		Username:  e.User().Username,
	}
	if m := e.Member(); m != nil {
		inv.UserRoleIDs = m.RoleIDs
	}
	log := b.Log.With("invocation_id", inv.ID, "channel_id", inv.ChannelID, "user_id", inv.UserID)

	// Outside a guild the handler answers without any I/O.
	if inv.GuildID == nil {
		out := b.handler.Relay(b.ctx, inv)
		botutil.RespondEphemeral(e, out.Reply, log)
		return
	}

	// Guild lookups and the history fetch can outlast the interaction
	// deadline, so acknowledge first and follow up from the pool.
	if err := e.DeferCreateMessage(false); err != nil {
		log.Error("Failed to defer key command response", "error", err)
		return
	}
	token := e.Token()
	b.pool.Submit(func() {
		log.Info("Running key command", "username", inv.Username, "surface", "slash")
		out := b.handler.Relay(b.ctx, inv)
		deliver(func(content string) error {
			return sendFollowup(b.ctx, b.Client.Rest, b.Client.ApplicationID, token, content)
		}, out, log)
	})
}

// sendFollowup answers a deferred interaction with all mentions suppressed.
func sendFollowup(ctx context.Context, sender followupSender, appID snowflake.ID, token, content string) error {
	_, err := sender.CreateFollowupMessage(appID, token, discord.MessageCreate{
		Content:         content,
		AllowedMentions: &discord.AllowedMentions{},
	}, rest.WithCtx(ctx))
	return err
}
