package services

import (
	"fmt"
	"os"
	"sort"

	"relaygate/internal/core/domain"

	"gopkg.in/yaml.v2"
)

// Catalog is the static registry of channel and room definitions. Loaded at
// startup and read-only afterwards, so concurrent reads need no locking.
type Catalog struct {
	channels       map[string]*domain.ChannelDefinition
	rooms          map[string]*domain.RoomDefinition
	defaultChannel string
}

type catalogFile struct {
	DefaultChannel string `yaml:"default_channel"`

	Channels []struct {
		Slug                string                 `yaml:"slug"`
		AllowedRoles        []string               `yaml:"allowed_roles"`
		RequiredPermissions []string               `yaml:"required_permissions"`
		RetentionDays       int                    `yaml:"retention_days"`
		Features            domain.ChannelFeatures `yaml:"features"`
		Privileged          bool                   `yaml:"privileged"`
	} `yaml:"channels"`

	Rooms []struct {
		Slug                string   `yaml:"slug"`
		LinkedChannel       string   `yaml:"linked_channel"`
		AllowedRoles        []string `yaml:"allowed_roles"`
		RequiredPermissions []string `yaml:"required_permissions"`
		MaxParticipants     int      `yaml:"max_participants"`
		RecordSessions      bool     `yaml:"record_sessions"`
	} `yaml:"rooms"`
}

// LoadCatalog reads channel/room definitions from a YAML file. A missing file
// yields the built-in default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog yaml: %w", err)
	}

	return buildCatalog(&file)
}

func buildCatalog(file *catalogFile) (*Catalog, error) {
	c := &Catalog{
		channels:       make(map[string]*domain.ChannelDefinition, len(file.Channels)),
		rooms:          make(map[string]*domain.RoomDefinition, len(file.Rooms)),
		defaultChannel: file.DefaultChannel,
	}

	for _, raw := range file.Channels {
		if raw.Slug == "" {
			return nil, fmt.Errorf("catalog channel with empty slug")
		}
		if _, dup := c.channels[raw.Slug]; dup {
			return nil, fmt.Errorf("duplicate channel slug %q", raw.Slug)
		}
		c.channels[raw.Slug] = &domain.ChannelDefinition{
			Slug:                raw.Slug,
			AllowedRoles:        domain.NewStringSet(raw.AllowedRoles...),
			RequiredPermissions: domain.NewStringSet(raw.RequiredPermissions...),
			RetentionDays:       raw.RetentionDays,
			Features:            raw.Features,
			Privileged:          raw.Privileged,
		}
	}

	for _, raw := range file.Rooms {
		if raw.Slug == "" {
			return nil, fmt.Errorf("catalog room with empty slug")
		}
		if _, dup := c.rooms[raw.Slug]; dup {
			return nil, fmt.Errorf("duplicate room slug %q", raw.Slug)
		}
		if raw.LinkedChannel != "" {
			if _, ok := c.channels[raw.LinkedChannel]; !ok {
				return nil, fmt.Errorf("room %q links unknown channel %q", raw.Slug, raw.LinkedChannel)
			}
		}
		if raw.MaxParticipants <= 0 {
			return nil, fmt.Errorf("room %q must have max_participants > 0", raw.Slug)
		}
		c.rooms[raw.Slug] = &domain.RoomDefinition{
			Slug:                raw.Slug,
			LinkedChannel:       raw.LinkedChannel,
			AllowedRoles:        domain.NewStringSet(raw.AllowedRoles...),
			RequiredPermissions: domain.NewStringSet(raw.RequiredPermissions...),
			MaxParticipants:     raw.MaxParticipants,
			RecordSessions:      raw.RecordSessions,
		}
	}

	if c.defaultChannel == "" && len(c.channels) > 0 {
		return nil, fmt.Errorf("catalog default_channel must be set")
	}
	if c.defaultChannel != "" {
		if _, ok := c.channels[c.defaultChannel]; !ok {
			return nil, fmt.Errorf("default_channel %q not in catalog", c.defaultChannel)
		}
	}

	return c, nil
}

// DefaultCatalog returns the built-in community catalog used when no file is
// configured.
func DefaultCatalog() *Catalog {
	file := &catalogFile{DefaultChannel: "general"}

	file.Channels = []struct {
		Slug                string                 `yaml:"slug"`
		AllowedRoles        []string               `yaml:"allowed_roles"`
		RequiredPermissions []string               `yaml:"required_permissions"`
		RetentionDays       int                    `yaml:"retention_days"`
		Features            domain.ChannelFeatures `yaml:"features"`
		Privileged          bool                   `yaml:"privileged"`
	}{
		{
			Slug:          "general",
			AllowedRoles:  []string{domain.RoleWildcard},
			RetentionDays: 90,
			Features:      domain.ChannelFeatures{Attachments: true, Reactions: true},
		},
		{
			Slug:          "announcements",
			AllowedRoles:  []string{domain.RoleWildcard},
			RetentionDays: 365,
			Features:      domain.ChannelFeatures{Reactions: true},
		},
		{
			Slug:          "project-ops",
			AllowedRoles:  []string{"company", "agency", "admin", "provider_admin"},
			RetentionDays: 180,
			Features:      domain.ChannelFeatures{Attachments: true, Reactions: true},
		},
		{
			Slug:                "mod-queue",
			AllowedRoles:        []string{"admin", "moderator", "community_manager"},
			RequiredPermissions: []string{"community:moderate", "community:admin"},
			RetentionDays:       30,
			Privileged:          true,
		},
		{
			Slug:          "lounge",
			AllowedRoles:  []string{domain.RoleWildcard},
			RetentionDays: 30,
			Features:      domain.ChannelFeatures{Attachments: true, Reactions: true, Voice: true},
		},
	}

	file.Rooms = []struct {
		Slug                string   `yaml:"slug"`
		LinkedChannel       string   `yaml:"linked_channel"`
		AllowedRoles        []string `yaml:"allowed_roles"`
		RequiredPermissions []string `yaml:"required_permissions"`
		MaxParticipants     int      `yaml:"max_participants"`
		RecordSessions      bool     `yaml:"record_sessions"`
	}{
		{
			Slug:            "lounge-voice",
			LinkedChannel:   "lounge",
			AllowedRoles:    []string{domain.RoleWildcard},
			MaxParticipants: 24,
		},
	}

	c, err := buildCatalog(file)
	if err != nil {
		// The built-in catalog is validated by tests; a failure here is a
		// programming error.
		panic(err)
	}
	return c
}

// Channel returns a channel definition by slug.
func (c *Catalog) Channel(slug string) (*domain.ChannelDefinition, error) {
	ch, ok := c.channels[slug]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	return ch, nil
}

// Room returns a voice room definition by slug.
func (c *Catalog) Room(slug string) (*domain.RoomDefinition, error) {
	room, ok := c.rooms[slug]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

// DefaultChannel returns the catalog's default channel slug.
func (c *Catalog) DefaultChannel() string {
	return c.defaultChannel
}

// ChannelsFor filters the catalog by access, independently per channel.
func (c *Catalog) ChannelsFor(actor *domain.Actor) []*domain.ChannelDefinition {
	var out []*domain.ChannelDefinition
	for _, ch := range c.channels {
		if ch.CanAccess(actor) {
			out = append(out, ch)
		}
	}
	sortChannels(out)
	return out
}

// ModerationChannelsFor restricts the listing to privileged channels plus the
// default channel, and only for actors passing the moderation gate.
func (c *Catalog) ModerationChannelsFor(actor *domain.Actor) []*domain.ChannelDefinition {
	if !domain.CanModerate(actor) {
		return nil
	}

	var out []*domain.ChannelDefinition
	for _, ch := range c.channels {
		if !ch.Privileged && ch.Slug != c.defaultChannel {
			continue
		}
		if ch.CanAccess(actor) {
			out = append(out, ch)
		}
	}
	sortChannels(out)
	return out
}

// RoomsFor filters voice rooms by access.
func (c *Catalog) RoomsFor(actor *domain.Actor) []*domain.RoomDefinition {
	var out []*domain.RoomDefinition
	for _, room := range c.rooms {
		if room.CanAccess(actor) {
			out = append(out, room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

func sortChannels(chs []*domain.ChannelDefinition) {
	sort.Slice(chs, func(i, j int) bool { return chs[i].Slug < chs[j].Slug })
}
