package gateway

import (
	"fmt"

	"relaygate/internal/core/domain"
)

// Client-to-server command actions.
const (
	ActionListChannels  = "list_channels"
	ActionJoin          = "join"
	ActionLeave         = "leave"
	ActionPublish       = "publish"
	ActionAck           = "ack"
	ActionHistory       = "history"
	ActionTyping        = "typing"
	ActionMute          = "mute"
	ActionRemoveMessage = "remove_message"
	ActionVoiceJoin     = "voice_join"
	ActionVoiceLeave    = "voice_leave"
)

// ClientCommand is the single inbound frame shape. Action selects the
// operation; the remaining fields are per-action.
type ClientCommand struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
	Room    string `json:"room,omitempty"`

	// publish
	Body     string                 `json:"body,omitempty"`
	Type     string                 `json:"type,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// history
	Limit int `json:"limit,omitempty"`

	// typing
	IsTyping bool `json:"is_typing,omitempty"`

	// moderation
	Target          string `json:"target,omitempty"`
	MuteDurationSec int    `json:"mute_duration_sec,omitempty"`
	MessageID       string `json:"message_id,omitempty"`
	Reason          string `json:"reason,omitempty"`

	// voice
	Role   string `json:"role,omitempty"`
	TTLSec int    `json:"ttl_sec,omitempty"`
}

// ParseNamespace validates the namespace requested at handshake time.
func ParseNamespace(raw string) (domain.Namespace, error) {
	switch domain.Namespace(raw) {
	case domain.NamespaceChat, domain.NamespaceVoice, domain.NamespaceEvents, domain.NamespaceModeration:
		return domain.Namespace(raw), nil
	case "":
		return domain.NamespaceChat, nil
	default:
		return "", fmt.Errorf("unknown namespace: %s", raw)
	}
}
