package relay

import "github.com/disgoorg/disgo/discord"

// EffectivePermissions computes m's permissions in ch: guild-wide role
// permissions first, then the @everyone, role and member overwrites in that
// order. Owners and administrators get everything.
func EffectivePermissions(g *Guild, ch Channel, m Member) discord.Permissions {
	if g.OwnerID != 0 && g.OwnerID == m.UserID {
		return discord.PermissionsAll
	}

	// The @everyone role shares the guild's ID.
	var perms discord.Permissions
	if everyone, ok := g.Roles[g.ID]; ok {
		perms = everyone.Permissions
	}
	for _, id := range m.RoleIDs {
		if r, ok := g.Roles[id]; ok {
			perms |= r.Permissions
		}
	}
	if perms&discord.PermissionAdministrator != 0 {
		return discord.PermissionsAll
	}

	for _, ow := range ch.Overwrites {
		if !ow.Member && ow.ID == g.ID {
			perms &^= ow.Deny
			perms |= ow.Allow
			break
		}
	}

	var allow, deny discord.Permissions
	for _, ow := range ch.Overwrites {
		if ow.Member || ow.ID == g.ID {
			continue
		}
		for _, id := range m.RoleIDs {
			if id == ow.ID {
				allow |= ow.Allow
				deny |= ow.Deny
				break
			}
		}
	}
	perms &^= deny
	perms |= allow

	for _, ow := range ch.Overwrites {
		if ow.Member && ow.ID == m.UserID {
			perms &^= ow.Deny
			perms |= ow.Allow
			break
		}
	}
	return perms
}

// CanRead reports whether m can view ch.
func CanRead(g *Guild, ch Channel, m Member) bool {
	return EffectivePermissions(g, ch, m)&discord.PermissionViewChannel != 0
}
