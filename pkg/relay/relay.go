// Package relay implements the key command: it copies the newest message of a
// designated channel into the channel the command was invoked from, for
// members holding a designated role.
package relay

import (
	"context"
	"errors"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/samber/mo"
)

const (
	DefaultRequiredRole  = "🎓〡Staff"
	DefaultTargetChannel = "🔑〡mod-key"
)

// ErrForbidden marks platform errors caused by the bot being refused access.
var ErrForbidden = errors.New("forbidden")

type Role struct {
	ID          snowflake.ID
	Name        string
	Permissions discord.Permissions
}

// Overwrite is a channel permission overwrite for a role (Member false) or a
// single member (Member true).
type Overwrite struct {
	ID     snowflake.ID
	Member bool
	Allow  discord.Permissions
	Deny   discord.Permissions
}

type Channel struct {
	ID         snowflake.ID
	Name       string
	Type       discord.ChannelType
	Position   int
	Overwrites []Overwrite
}

type Member struct {
	UserID  snowflake.ID
	RoleIDs []snowflake.ID
}

// Guild is a read-only snapshot of the parts of a guild the key command
// looks at. Channels holds text and announcement channels only, in sidebar
// order.
type Guild struct {
	ID       snowflake.ID
	Name     string
	OwnerID  snowflake.ID
	Roles    map[snowflake.ID]Role
	Channels []Channel
	Self     Member
}

// Directory is the read side of the chat platform.
type Directory interface {
	Guild(ctx context.Context, guildID snowflake.ID) (*Guild, error)
	// LatestMessage returns the newest message in the channel, or None when
	// the channel has no messages.
	LatestMessage(ctx context.Context, channelID snowflake.ID) (mo.Option[discord.Message], error)
}

// Invocation is one run of the key command.
type Invocation struct {
	ID          string
	GuildID     *snowflake.ID
	ChannelID   snowflake.ID
	UserID      snowflake.ID
	Username    string
	UserRoleIDs []snowflake.ID
}

type Settings struct {
	RequiredRole  string
	TargetChannel string
}

func (s Settings) withDefaults() Settings {
	if s.RequiredRole == "" {
		s.RequiredRole = DefaultRequiredRole
	}
	if s.TargetChannel == "" {
		s.TargetChannel = DefaultTargetChannel
	}
	return s
}

// IsTextChannel reports whether messages of this channel type can be relayed.
func IsTextChannel(t discord.ChannelType) bool {
	return t == discord.ChannelTypeGuildText || t == discord.ChannelTypeGuildNews
}

// FindChannel returns the first channel in snapshot order whose name equals
// name exactly.
func (g *Guild) FindChannel(name string) (Channel, bool) {
	for _, ch := range g.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return Channel{}, false
}

// ChannelByID returns the channel with the given ID, if it is in the snapshot.
func (g *Guild) ChannelByID(id snowflake.ID) (Channel, bool) {
	for _, ch := range g.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return Channel{}, false
}

// RoleNames resolves role IDs to names. Unknown IDs are skipped.
func (g *Guild) RoleNames(ids []snowflake.ID) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if r, ok := g.Roles[id]; ok {
			names = append(names, r.Name)
		}
	}
	return names
}
