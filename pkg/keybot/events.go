package keybot

import "github.com/disgoorg/disgo/events"

// Role, channel and own-member changes can alter role names, the target
// channel or the bot's permissions, so they drop the guild's snapshot.

func (b *Bot) onRoleCreate(e *events.RoleCreate) {
	b.dir.Invalidate(e.GuildID)
}

func (b *Bot) onRoleUpdate(e *events.RoleUpdate) {
	b.dir.Invalidate(e.GuildID)
}

func (b *Bot) onRoleDelete(e *events.RoleDelete) {
	b.dir.Invalidate(e.GuildID)
}

func (b *Bot) onChannelCreate(e *events.GuildChannelCreate) {
	b.dir.Invalidate(e.GuildID)
}

func (b *Bot) onChannelUpdate(e *events.GuildChannelUpdate) {
	b.dir.Invalidate(e.GuildID)
}

func (b *Bot) onChannelDelete(e *events.GuildChannelDelete) {
	b.dir.Invalidate(e.GuildID)
}

func (b *Bot) onMemberUpdate(e *events.GuildMemberUpdate) {
	if e.Member.User.ID == b.SelfID() {
		b.dir.Invalidate(e.GuildID)
	}
}

func (b *Bot) onGuildUpdate(e *events.GuildUpdate) {
	b.dir.Invalidate(e.GuildID)
}

func (b *Bot) onGuildLeave(e *events.GuildLeave) {
	b.Log.Info("Left guild", "guild_id", e.GuildID)
	b.dir.Invalidate(e.GuildID)
}
