package domain

import "time"

// ChannelType represents a notification delivery channel.
type ChannelType string

// Channel types.
const (
	ChannelTypeEmail ChannelType = "email"
	ChannelTypeSMS   ChannelType = "sms"
	ChannelTypeChat  ChannelType = "chat"
)

// IsValid checks if the channel type is known.
func (t ChannelType) IsValid() bool {
	return t == ChannelTypeEmail || t == ChannelTypeSMS || t == ChannelTypeChat
}

// Authority represents a stakeholder's decision power during a crisis.
type Authority string

// Authority levels.
const (
	AuthorityDecisionMaker Authority = "decision-maker"
	AuthorityCoordinator   Authority = "coordinator"
	AuthorityAdvisor       Authority = "advisor"
)

// ContactPoint is one reachable endpoint for a stakeholder.
type ContactPoint struct {
	Channel ChannelType `json:"channel"`
	Target  string      `json:"target"`
}

// Stakeholder is a person notified and consulted during crisis response.
// The authoritative record lives in the external directory; the core only
// caches resolved entries keyed by id.
type Stakeholder struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Role         string         `json:"role"`
	Department   string         `json:"department,omitempty"`
	ContactInfo  []ContactPoint `json:"contact_info"`
	Authority    Authority      `json:"authority"`
	Availability string         `json:"availability,omitempty"`
	CachedAt     time.Time      `json:"cached_at,omitempty"`
}

// ContactFor returns the stakeholder's endpoint for the given channel, if any.
func (s *Stakeholder) ContactFor(channel ChannelType) (string, bool) {
	for _, cp := range s.ContactInfo {
		if cp.Channel == channel {
			return cp.Target, true
		}
	}
	return "", false
}
