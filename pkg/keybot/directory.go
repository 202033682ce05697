package keybot

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/samber/mo"

	"github.com/sadbox/keybot/pkg/relay"
)

const guildCacheSize = 256

var errNotReady = errors.New("own user ID unknown: gateway not ready")

// restSource is the subset of rest.Rest the directory reads from.
type restSource interface {
	GetGuild(guildID snowflake.ID, withCounts bool, opts ...rest.RequestOpt) (*discord.RestGuild, error)
	GetRoles(guildID snowflake.ID, opts ...rest.RequestOpt) ([]discord.Role, error)
	GetGuildChannels(guildID snowflake.ID, opts ...rest.RequestOpt) ([]discord.GuildChannel, error)
	GetMember(guildID snowflake.ID, userID snowflake.ID, opts ...rest.RequestOpt) (*discord.Member, error)
	GetMessages(channelID snowflake.ID, around snowflake.ID, before snowflake.ID, after snowflake.ID, limit int, opts ...rest.RequestOpt) ([]discord.Message, error)
}

// directory implements relay.Directory over the REST API. Guild snapshots are
// cached until they expire or a gateway event invalidates them; message
// history is never cached.
type directory struct {
	rest   restSource
	selfID func() snowflake.ID
	guilds *expirable.LRU[snowflake.ID, *relay.Guild]
	log    *slog.Logger
}

var _ relay.Directory = (*directory)(nil)

func newDirectory(src restSource, selfID func() snowflake.ID, ttl time.Duration, log *slog.Logger) *directory {
	return &directory{
		rest:   src,
		selfID: selfID,
		guilds: expirable.NewLRU[snowflake.ID, *relay.Guild](guildCacheSize, nil, ttl),
		log:    log,
	}
}

func (d *directory) Guild(ctx context.Context, guildID snowflake.ID) (*relay.Guild, error) {
	if g, ok := d.guilds.Get(guildID); ok {
		return g, nil
	}
	g, err := d.fetchGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	d.guilds.Add(guildID, g)
	d.log.Debug("Cached guild snapshot", "guild_id", guildID, "roles", len(g.Roles), "channels", len(g.Channels))
	return g, nil
}

func (d *directory) fetchGuild(ctx context.Context, guildID snowflake.ID) (*relay.Guild, error) {
	self := d.selfID()
	if self == 0 {
		return nil, errNotReady
	}
	opt := rest.WithCtx(ctx)

	rg, err := d.rest.GetGuild(guildID, false, opt)
	if err != nil {
		return nil, fmt.Errorf("fetching guild %d: %w", guildID, classify(err))
	}
	roles, err := d.rest.GetRoles(guildID, opt)
	if err != nil {
		return nil, fmt.Errorf("fetching roles for guild %d: %w", guildID, classify(err))
	}
	channels, err := d.rest.GetGuildChannels(guildID, opt)
	if err != nil {
		return nil, fmt.Errorf("fetching channels for guild %d: %w", guildID, classify(err))
	}
	member, err := d.rest.GetMember(guildID, self, opt)
	if err != nil {
		return nil, fmt.Errorf("fetching own member in guild %d: %w", guildID, classify(err))
	}

	g := &relay.Guild{
		ID:      guildID,
		Name:    rg.Name,
		OwnerID: rg.OwnerID,
		Roles:   make(map[snowflake.ID]relay.Role, len(roles)),
		Self:    relay.Member{UserID: self, RoleIDs: member.RoleIDs},
	}
	for _, r := range roles {
		g.Roles[r.ID] = relay.Role{ID: r.ID, Name: r.Name, Permissions: r.Permissions}
	}
	for _, ch := range channels {
		if !relay.IsTextChannel(ch.Type()) {
			continue
		}
		g.Channels = append(g.Channels, relay.Channel{
			ID:         ch.ID(),
			Name:       ch.Name(),
			Type:       ch.Type(),
			Position:   ch.Position(),
			Overwrites: convertOverwrites(ch.PermissionOverwrites()),
		})
	}
	// Sidebar order, so duplicate names resolve to the topmost channel.
	slices.SortStableFunc(g.Channels, func(a, b relay.Channel) int {
		return cmp.Or(cmp.Compare(a.Position, b.Position), cmp.Compare(a.ID, b.ID))
	})
	return g, nil
}

func (d *directory) LatestMessage(ctx context.Context, channelID snowflake.ID) (mo.Option[discord.Message], error) {
	msgs, err := d.rest.GetMessages(channelID, 0, 0, 0, 1, rest.WithCtx(ctx))
	if err != nil {
		return mo.None[discord.Message](), fmt.Errorf("fetching latest message in %d: %w", channelID, classify(err))
	}
	if len(msgs) == 0 {
		return mo.None[discord.Message](), nil
	}
	return mo.Some(msgs[0]), nil
}

// Invalidate drops the cached snapshot of a guild.
func (d *directory) Invalidate(guildID snowflake.ID) {
	if d.guilds.Remove(guildID) {
		d.log.Debug("Invalidated guild snapshot", "guild_id", guildID)
	}
}

func convertOverwrites(overwrites discord.PermissionOverwrites) []relay.Overwrite {
	out := make([]relay.Overwrite, 0, len(overwrites))
	for _, ow := range overwrites {
		switch o := ow.(type) {
		case discord.RolePermissionOverwrite:
			out = append(out, relay.Overwrite{ID: o.RoleID, Allow: o.Allow, Deny: o.Deny})
		case discord.MemberPermissionOverwrite:
			out = append(out, relay.Overwrite{ID: o.UserID, Member: true, Allow: o.Allow, Deny: o.Deny})
		}
	}
	return out
}

// classify tags HTTP 403 responses with relay.ErrForbidden.
func classify(err error) error {
	var restErr *rest.Error
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %w", relay.ErrForbidden, err)
	}
	return err
}
