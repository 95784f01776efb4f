package domain

// RoleWildcard in AllowedRoles opens a channel to every role.
const RoleWildcard = "*"

// ChannelFeatures flags optional capabilities of a channel.
type ChannelFeatures struct {
	Attachments bool `yaml:"attachments" json:"attachments"`
	Reactions   bool `yaml:"reactions" json:"reactions"`
	Voice       bool `yaml:"voice" json:"voice"`
}

// ChannelDefinition is a static channel entry. Loaded at startup, never
// mutated at runtime.
type ChannelDefinition struct {
	Slug                string
	AllowedRoles        StringSet
	RequiredPermissions StringSet
	RetentionDays       int
	Features            ChannelFeatures
	Privileged          bool
}

// CanAccess evaluates role and permission gates for an actor. Roles are
// any-of (empty or wildcard passes); permissions are any-of within the
// required set (empty passes). Both gates must pass.
func (c *ChannelDefinition) CanAccess(actor *Actor) bool {
	if actor == nil {
		return false
	}

	roleOK := c.AllowedRoles.Len() == 0 ||
		c.AllowedRoles.Contains(RoleWildcard) ||
		actor.Roles.Intersects(c.AllowedRoles)
	if !roleOK {
		return false
	}

	permOK := c.RequiredPermissions.Len() == 0 ||
		actor.Permissions.Intersects(c.RequiredPermissions)
	return permOK
}

// RoomDefinition is a static voice room entry, linked to a channel and
// sharing its lifecycle with ChannelDefinition.
type RoomDefinition struct {
	Slug                string
	LinkedChannel       string
	AllowedRoles        StringSet
	RequiredPermissions StringSet
	MaxParticipants     int
	RecordSessions      bool
}

// CanAccess applies the same any-of role/permission algebra as channels.
func (r *RoomDefinition) CanAccess(actor *Actor) bool {
	if actor == nil {
		return false
	}

	roleOK := r.AllowedRoles.Len() == 0 ||
		r.AllowedRoles.Contains(RoleWildcard) ||
		actor.Roles.Intersects(r.AllowedRoles)
	if !roleOK {
		return false
	}

	permOK := r.RequiredPermissions.Len() == 0 ||
		actor.Permissions.Intersects(r.RequiredPermissions)
	return permOK
}

// Moderation gate membership: any of these roles or permissions grants
// access to the moderation namespace.
var (
	ModerationRoles       = NewStringSet("admin", "moderator", "community_manager")
	ModerationPermissions = NewStringSet("community:moderate", "community:admin")
)

// CanModerate reports whether an actor may enter the moderation namespace.
func CanModerate(actor *Actor) bool {
	if actor == nil {
		return false
	}
	return actor.Roles.Intersects(ModerationRoles) ||
		actor.Permissions.Intersects(ModerationPermissions)
}
