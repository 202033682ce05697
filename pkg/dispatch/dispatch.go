// Package dispatch turns prefixed chat messages into command invocations and
// maps the failures that happen before a command runs to chat replies.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/disgoorg/disgo/discord"
)

var (
	ErrCommandNotFound       = errors.New("command not found")
	ErrMissingArgument       = errors.New("missing required argument")
	ErrBotMissingPermissions = errors.New("bot is missing permissions")
	ErrNoPrivateMessage      = errors.New("command cannot be used in private messages")
)

type Command struct {
	Name string
	// Args is the number of required positional arguments. Extra arguments
	// are ignored.
	Args      int
	GuildOnly bool
	// BotPermissions must be held by the bot in the invoking channel.
	BotPermissions discord.Permissions
}

// Key copies the latest message of the target channel. It handles DMs
// itself, so it is not guild-only here.
var Key = Command{
	Name:           "key",
	BotPermissions: discord.PermissionSendMessages,
}

// Context is what is known about where a command was invoked.
type Context struct {
	InGuild bool
	// BotPermissions looks up the bot's permissions in the invoking channel.
	// It is only called for a known command. A nil func or a false result
	// skips the permission check.
	BotPermissions func() (discord.Permissions, bool)
}

// Parse splits a message into a command name and arguments. ok is false when
// content does not start with prefix. The name must follow the prefix
// directly.
func Parse(prefix, content string) (name string, args []string, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	rest := content[len(prefix):]
	if rest == "" || unicode.IsSpace([]rune(rest)[0]) {
		return "", nil, true
	}
	fields := strings.Fields(rest)
	return fields[0], fields[1:], true
}

// Check validates an invocation of name with args against c.
func (c Command) Check(name string, args []string, ctx Context) error {
	if name != c.Name {
		return fmt.Errorf("%w: %q", ErrCommandNotFound, name)
	}
	if c.GuildOnly && !ctx.InGuild {
		return fmt.Errorf("%s: %w", c.Name, ErrNoPrivateMessage)
	}
	if c.BotPermissions != 0 && ctx.BotPermissions != nil {
		if perms, ok := ctx.BotPermissions(); ok && perms&c.BotPermissions != c.BotPermissions {
			missing := c.BotPermissions &^ perms
			return fmt.Errorf("%s: %w: %d", c.Name, ErrBotMissingPermissions, missing)
		}
	}
	if len(args) < c.Args {
		return fmt.Errorf("%s: %w: want %d, got %d", c.Name, ErrMissingArgument, c.Args, len(args))
	}
	return nil
}

// Reply maps a dispatch error to its chat reply. send is false when the
// error should produce no reply at all. Unrecognized errors are logged.
func Reply(err error, log *slog.Logger) (reply string, send bool) {
	switch {
	case err == nil:
		return "", false
	case errors.Is(err, ErrCommandNotFound):
		log.Debug("Ignoring unknown command", "error", err)
		return "", false
	case errors.Is(err, ErrMissingArgument):
		return "❌ Missing required arguments for this command.", true
	case errors.Is(err, ErrBotMissingPermissions):
		return "❌ I don't have the required permissions to execute this command.", true
	case errors.Is(err, ErrNoPrivateMessage):
		return "❌ This command cannot be used in direct messages.", true
	default:
		log.Error("Command error", "error", err)
		return "❌ An error occurred while executing the command.", true
	}
}
