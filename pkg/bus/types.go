package bus

import "time"

// Origin says how a message reached the moderator.
type Origin string

const (
	OriginLive Origin = "live"
	OriginScan Origin = "scan"
)

// ObservedMessage is a chat message picked up by a channel, either from the
// live gateway or from a history scan.
type ObservedMessage struct {
	Channel     string
	Origin      Origin
	MessageID   string
	CommunityID string
	ChannelID   string
	AuthorID    string
	AuthorName  string
	Content     string
	Timestamp   time.Time
}

// EnforcementKind selects what a channel does with an Enforcement.
type EnforcementKind string

const (
	// EnforceDelete removes MessageID from ChannelID.
	EnforceDelete EnforcementKind = "delete"
	// EnforceNotice posts Content to ChannelID.
	EnforceNotice EnforcementKind = "notice"
	// EnforceEmbed posts Embed to ChannelID.
	EnforceEmbed EnforcementKind = "embed"
)

type Enforcement struct {
	Channel   string
	Kind      EnforcementKind
	ChannelID string
	MessageID string
	Content   string
	Embed     *Embed
	// DecisionID ties the enforcement back to the audit log.
	DecisionID string
}

// Embed is a platform-neutral rich message.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Timestamp   time.Time
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}
