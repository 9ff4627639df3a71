package moderator

import (
	"fmt"
	"strings"
	"time"

	"github.com/dotsetgreg/dotmod/pkg/bus"
	"github.com/dotsetgreg/dotmod/pkg/moderation"
)

const (
	colorAction     = 0xEF4444
	colorEscalation = 0xE11D48
	colorScan       = 0xF97316

	escalationDescription = "Automated moderation flagged this message for manual review."
)

// Routing holds the destination channels for moderator output.
type Routing struct {
	ModLogChannelID     string
	EscalationChannelID string
}

// Enforcements turns a live decision into the actions a channel must carry
// out. Allow produces nothing.
func Enforcements(msg bus.ObservedMessage, d moderation.Decision, r Routing, now time.Time) []bus.Enforcement {
	base := bus.Enforcement{Channel: msg.Channel, DecisionID: d.ID}
	var out []bus.Enforcement

	switch d.Action {
	case moderation.ActionDelete:
		del := base
		del.Kind = bus.EnforceDelete
		del.ChannelID = msg.ChannelID
		del.MessageID = msg.MessageID
		out = append(out, del)

		notice := base
		notice.Kind = bus.EnforceNotice
		notice.ChannelID = msg.ChannelID
		notice.Content = deleteNotice(msg.AuthorID, d.Context)
		out = append(out, notice)

		out = appendEmbed(out, base, r.ModLogChannelID, actionEmbed(msg, d, now))

	case moderation.ActionWarn:
		warn := base
		warn.Kind = bus.EnforceNotice
		warn.ChannelID = msg.ChannelID
		warn.Content = warning(msg.AuthorID, d.Context)
		out = append(out, warn)

		out = appendEmbed(out, base, r.ModLogChannelID, actionEmbed(msg, d, now))

	case moderation.ActionEscalate:
		embed := escalationEmbed(msg, d, now)
		out = appendEmbed(out, base, r.ModLogChannelID, embed)
		if r.EscalationChannelID != r.ModLogChannelID {
			out = appendEmbed(out, base, r.EscalationChannelID, embed)
		}
	}
	return out
}

// ScanEnforcements reports a flagged backfill message to the mod log without
// touching the message itself.
func ScanEnforcements(msg bus.ObservedMessage, d moderation.Decision, r Routing, now time.Time) []bus.Enforcement {
	if d.Action == moderation.ActionAllow {
		return nil
	}
	base := bus.Enforcement{Channel: msg.Channel, DecisionID: d.ID}
	return appendEmbed(nil, base, r.ModLogChannelID, scanEmbed(msg, d, now))
}

func appendEmbed(out []bus.Enforcement, base bus.Enforcement, channelID string, embed *bus.Embed) []bus.Enforcement {
	if channelID == "" {
		return out
	}
	e := base
	e.Kind = bus.EnforceEmbed
	e.ChannelID = channelID
	e.Embed = embed
	return append(out, e)
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func channelMention(channelID string) string {
	return "<#" + channelID + ">"
}

func deleteNotice(authorID string, c moderation.DecisionContext) string {
	if c.BlockedPattern != "" {
		return mention(authorID) + " please avoid posting invite or scam links."
	}
	return mention(authorID) + " your message was removed for moderation review."
}

func warning(authorID string, c moderation.DecisionContext) string {
	if c.MatchedKeyword != "" {
		return mention(authorID) + " please avoid discussing or sharing content related to **" + c.MatchedKeyword + "**."
	}
	return mention(authorID) + " please keep messages appropriate for this channel."
}

func actionEmbed(msg bus.ObservedMessage, d moderation.Decision, now time.Time) *bus.Embed {
	return &bus.Embed{
		Title:     "Auto-moderation action: " + string(d.Action),
		Color:     colorAction,
		Fields:    decisionFields(msg, d.Context),
		Timestamp: now,
	}
}

func escalationEmbed(msg bus.ObservedMessage, d moderation.Decision, now time.Time) *bus.Embed {
	return &bus.Embed{
		Title:       "Escalation needed: " + string(d.Action),
		Description: escalationDescription,
		Color:       colorEscalation,
		Fields:      decisionFields(msg, d.Context),
		Timestamp:   now,
	}
}

func scanEmbed(msg bus.ObservedMessage, d moderation.Decision, now time.Time) *bus.Embed {
	c := d.Context
	desc := "Action: **" + string(d.Action) + "**"
	switch {
	case c.MatchedKeyword != "":
		desc = "Keyword match: **" + c.MatchedKeyword + "**"
	case c.BlockedPattern != "":
		desc = "Blocked pattern: `" + c.BlockedPattern + "`"
	}
	return &bus.Embed{
		Title:       "Flagged message scan",
		Description: desc,
		Color:       colorScan,
		Fields: []bus.EmbedField{
			{Name: "Member", Value: member(msg), Inline: true},
			{Name: "Channel", Value: channelMention(msg.ChannelID), Inline: true},
			{Name: "Content", Value: orNone(msg.Content)},
			{Name: "Action", Value: string(d.Action), Inline: true},
			{Name: "Recent matches (30d)", Value: fmt.Sprintf("%d", c.RecentKeywordMatches), Inline: true},
		},
		Timestamp: now,
	}
}

func decisionFields(msg bus.ObservedMessage, c moderation.DecisionContext) []bus.EmbedField {
	return []bus.EmbedField{
		{Name: "Member", Value: member(msg), Inline: true},
		{Name: "Channel", Value: channelMention(msg.ChannelID), Inline: true},
		{Name: "Content", Value: orNone(c.Content)},
		{Name: "Matched keyword", Value: orNone(c.MatchedKeyword), Inline: true},
		{Name: "Blocked pattern", Value: orNone(c.BlockedPattern), Inline: true},
		{Name: "LLM risk", Value: orNone(string(c.RiskLevel)), Inline: true},
		{Name: "LLM rationale", Value: orNone(c.RiskRationale)},
		{Name: "Scores (base/format/history/channel/total)", Value: fmt.Sprintf("%d / %d / %d / %d / %d",
			c.BaseScore, c.FormatScore, c.HistoryScore, c.ChannelScore, c.TotalScore)},
		{Name: "LLM score floor", Value: fmt.Sprintf("%d", c.ClassifierFloor), Inline: true},
		{Name: "Thresholds (warn/delete/escalate)", Value: fmt.Sprintf("%d / %d / %d",
			c.Thresholds.Warn, c.Thresholds.Delete, c.Thresholds.Escalate), Inline: true},
		{Name: "Message stats (len/links/uppercase%)", Value: fmt.Sprintf("%d / %d / %.0f%%",
			c.MessageLength, c.LinkCount, c.UppercaseRatio*100), Inline: true},
		{Name: "History (recent matches/total tokens)", Value: fmt.Sprintf("%d / %d",
			c.RecentKeywordMatches, c.TotalRecentTokens), Inline: true},
	}
}

func member(msg bus.ObservedMessage) string {
	if msg.AuthorName != "" {
		return msg.AuthorName
	}
	return mention(msg.AuthorID)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None"
	}
	return s
}
