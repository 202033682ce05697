package botutil

import (
	"fmt"
	"log/slog"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

type MessageResponder interface {
	CreateMessage(discord.MessageCreate, ...rest.RequestOpt) error
}

func RespondEphemeral(e MessageResponder, content string, log *slog.Logger) {
	if err := e.CreateMessage(discord.MessageCreate{
		Content:         content,
		Flags:           discord.MessageFlagEphemeral,
		AllowedMentions: &discord.AllowedMentions{},
	}); err != nil {
		log.Error("Failed to send ephemeral response", "error", err)
	}
}

// RegisterCommands registers commands for each of guildIDs, or globally when
// guildIDs is empty.
func RegisterCommands(client *bot.Client, guildIDs []snowflake.ID, commands []discord.ApplicationCommandCreate, log *slog.Logger) error {
	if len(guildIDs) == 0 {
		if _, err := client.Rest.SetGlobalCommands(client.ApplicationID, commands); err != nil {
			return fmt.Errorf("registering global commands: %w", err)
		}
		log.Info("Registered global commands", "count", len(commands))
		return nil
	}
	for _, guildID := range guildIDs {
		if _, err := client.Rest.SetGuildCommands(client.ApplicationID, guildID, commands); err != nil {
			return fmt.Errorf("registering guild commands for %d: %w", guildID, err)
		}
		log.Info("Registered guild commands", "guild_id", guildID, "count", len(commands))
	}
	return nil
}
