package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

type Kind int

const (
	KindRelayed Kind = iota
	KindNotInGuild
	KindMissingRole
	KindChannelNotFound
	KindNoReadPermission
	KindNoMessages
	KindEmptyMessage
	KindHistoryForbidden
	KindFetchFailed
	KindUnexpected
)

var kindNames = map[Kind]string{
	KindRelayed:          "relayed",
	KindNotInGuild:       "not_in_guild",
	KindMissingRole:      "missing_role",
	KindChannelNotFound:  "channel_not_found",
	KindNoReadPermission: "no_read_permission",
	KindNoMessages:       "no_messages",
	KindEmptyMessage:     "empty_message",
	KindHistoryForbidden: "history_forbidden",
	KindFetchFailed:      "fetch_failed",
	KindUnexpected:       "unexpected",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Failed reports whether the outcome is anything other than a relayed message.
func (k Kind) Failed() bool {
	return k != KindRelayed
}

const (
	NotInGuildReply  = "❌ This command can only be used in a server."
	FetchFailedReply = "❌ An error occurred while fetching messages."
	UnexpectedReply  = "❌ An unexpected error occurred while processing the command."
)

// Outcome is the single reply an invocation produces.
type Outcome struct {
	Kind  Kind
	Reply string
}

type Handler struct {
	dir      Directory
	settings Settings
	log      *slog.Logger
}

func NewHandler(dir Directory, settings Settings, log *slog.Logger) *Handler {
	return &Handler{
		dir:      dir,
		settings: settings.withDefaults(),
		log:      log,
	}
}

func (h *Handler) Settings() Settings {
	return h.settings
}

// Relay runs the key command for inv. It never panics and always returns an
// outcome with a reply; the caller is responsible for sending it.
func (h *Handler) Relay(ctx context.Context, inv Invocation) (out Outcome) {
	log := h.log.With("invocation_id", inv.ID, "user_id", inv.UserID, "channel_id", inv.ChannelID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Unexpected error in key command", "error", r)
			out = Outcome{Kind: KindUnexpected, Reply: UnexpectedReply}
		}
	}()

	if inv.GuildID == nil {
		return Outcome{Kind: KindNotInGuild, Reply: NotInGuildReply}
	}
	guildID := *inv.GuildID
	log = log.With("guild_id", guildID)

	guild, err := h.dir.Guild(ctx, guildID)
	if err != nil {
		log.Error("Unexpected error in key command", "error", err)
		return Outcome{Kind: KindUnexpected, Reply: UnexpectedReply}
	}

	role := h.settings.RequiredRole
	if !slices.Contains(guild.RoleNames(inv.UserRoleIDs), role) {
		log.Info("User attempted to use key command without required role", "username", inv.Username, "role", role)
		return Outcome{
			Kind:  KindMissingRole,
			Reply: fmt.Sprintf("❌ You need the '%s' role to use this command.", role),
		}
	}

	name := h.settings.TargetChannel
	target, ok := guild.FindChannel(name)
	if !ok {
		log.Warn("Target channel not found", "channel_name", name, "guild_name", guild.Name)
		return Outcome{
			Kind:  KindChannelNotFound,
			Reply: fmt.Sprintf("❌ Channel '%s' not found in this server.", name),
		}
	}

	if !CanRead(guild, target, guild.Self) {
		log.Warn("No read permission for target channel", "channel_name", name, "guild_name", guild.Name)
		return Outcome{
			Kind:  KindNoReadPermission,
			Reply: fmt.Sprintf("❌ I don't have permission to read messages from '%s'.", name),
		}
	}

	return h.relayLatest(ctx, log, target)
}

func (h *Handler) relayLatest(ctx context.Context, log *slog.Logger, target Channel) Outcome {
	latest, err := h.dir.LatestMessage(ctx, target.ID)
	if errors.Is(err, ErrForbidden) {
		log.Warn("No history permission for target channel", "channel_name", target.Name, "error", err)
		return Outcome{
			Kind:  KindHistoryForbidden,
			Reply: fmt.Sprintf("❌ I don't have permission to read message history from '%s'.", target.Name),
		}
	}
	if err != nil {
		log.Error("Failed to fetch messages", "channel_id", target.ID, "error", err)
		return Outcome{Kind: KindFetchFailed, Reply: FetchFailedReply}
	}

	msg, ok := latest.Get()
	if !ok {
		log.Info("No messages found in target channel", "channel_name", target.Name)
		return Outcome{
			Kind:  KindNoMessages,
			Reply: fmt.Sprintf("❌ No messages found in '%s'.", target.Name),
		}
	}
	if strings.TrimSpace(msg.Content) == "" {
		log.Info("Latest message in target channel is empty", "channel_name", target.Name, "message_id", msg.ID)
		return Outcome{
			Kind:  KindEmptyMessage,
			Reply: fmt.Sprintf("❌ The latest message in '%s' is empty or contains no text.", target.Name),
		}
	}

	log.Info("Relayed latest message", "source_channel", target.Name, "source_channel_id", target.ID, "message_id", msg.ID)
	return Outcome{Kind: KindRelayed, Reply: FormatRelay(target.Name, msg.Content)}
}

// FormatRelay renders the relayed message with its source label.
func FormatRelay(channelName, content string) string {
	return fmt.Sprintf("📋 **Message from %s:**\n%s", channelName, content)
}
