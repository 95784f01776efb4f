package domain

import "time"

type MessageID string
type ThreadID string

// MessageType is clamped to an allow-list during normalization; anything
// else becomes text.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeFile  MessageType = "file"
	MessageTypeEvent MessageType = "event"
)

// MaxMessageBodyRunes is the post-normalization body cap.
const MaxMessageBodyRunes = 5000

// MessageStatus reflects the moderation outcome carried on a persisted row.
type MessageStatus string

const (
	MessageStatusApproved      MessageStatus = "approved"
	MessageStatusPendingReview MessageStatus = "pending_review"
)

// Message is a persisted chat message. The pipeline holds only a transient
// draft until the store accepts it.
type Message struct {
	ID          MessageID              `json:"id"`
	ThreadID    ThreadID               `json:"thread_id"`
	ChannelSlug string                 `json:"channel_slug"`
	SenderID    ActorID                `json:"sender_id"`
	SenderRoles []string               `json:"sender_roles,omitempty"`
	Body        string                 `json:"body"`
	Type        MessageType            `json:"type"`
	Status      MessageStatus          `json:"status"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// ModerationVerdict is the tagged outcome of a content evaluation.
type ModerationVerdict string

const (
	VerdictAllow  ModerationVerdict = "allow"
	VerdictReview ModerationVerdict = "review"
	VerdictBlock  ModerationVerdict = "block"
)

// ModerationDecision is produced once per publish attempt and never retried.
type ModerationDecision struct {
	Verdict  ModerationVerdict `json:"verdict"`
	Severity float64           `json:"severity,omitempty"`
	Signals  []string          `json:"signals,omitempty"`
}

// AuditEvent records a moderation outcome or administrative action.
type AuditEvent struct {
	ID          string    `json:"id"`
	ChannelSlug string    `json:"channel_slug"`
	ActorID     ActorID   `json:"actor_id"`
	Action      string    `json:"action"` // "blocked", "flagged", "muted", "message_removed"
	TargetID    string    `json:"target_id,omitempty"`
	Severity    float64   `json:"severity,omitempty"`
	Signals     []string  `json:"signals,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Thread groups messages inside a channel.
type Thread struct {
	ID                 ThreadID  `json:"id"`
	ChannelSlug        string    `json:"channel_slug"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
	LastMessageAt      time.Time `json:"last_message_at"`
	CreatedAt          time.Time `json:"created_at"`
}

// Participant tracks per-channel participant state, including mutes and the
// last acknowledged read position.
type Participant struct {
	ActorID     ActorID    `json:"actor_id"`
	ChannelSlug string     `json:"channel_slug"`
	MutedUntil  *time.Time `json:"muted_until,omitempty"`
	LastReadAt  *time.Time `json:"last_read_at,omitempty"`
}

// MutedAt reports whether the participant is muted at the given instant.
func (p *Participant) MutedAt(now time.Time) bool {
	return p != nil && p.MutedUntil != nil && p.MutedUntil.After(now)
}

// MediaCredential is a short-lived token for a media session leg.
type MediaCredential struct {
	Kind      string    `json:"kind"` // "transport" or "messaging"
	Token     string    `json:"token"`
	Room      string    `json:"room"`
	Identity  ActorID   `json:"identity"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}
