package plan

import (
	"time"

	"github.com/bissquit/crisis-command/internal/domain"
)

// actionTemplate is a catalogue entry expanded into a concrete action at
// plan-build time. Offset is relative to the plan start.
type actionTemplate struct {
	Title       string
	Description string
	Priority    domain.ActionPriority
	Offset      time.Duration
}

// baselineActions open every plan regardless of crisis type.
var baselineActions = []actionTemplate{
	{
		Title:       "activate crisis team",
		Description: "Assemble the crisis response team and open a coordination bridge",
		Priority:    domain.ActionPriorityUrgent,
		Offset:      30 * time.Minute,
	},
	{
		Title:       "assess immediate safety",
		Description: "Verify personnel safety and identify any immediate physical risk",
		Priority:    domain.ActionPriorityUrgent,
		Offset:      60 * time.Minute,
	},
}

// typeActions holds the type-specific action catalogue appended after the
// baseline pair.
var typeActions = map[domain.CrisisType][]actionTemplate{
	domain.CrisisTypeCyberAttack: {
		{
			Title:       "isolate affected systems",
			Description: "Disconnect compromised hosts from the network and preserve forensic state",
			Priority:    domain.ActionPriorityUrgent,
			Offset:      15 * time.Minute,
		},
		{
			Title:       "rotate exposed credentials",
			Description: "Revoke and reissue credentials with possible exposure",
			Priority:    domain.ActionPriorityHigh,
			Offset:      2 * time.Hour,
		},
	},
	domain.CrisisTypeNaturalDisaster: {
		{
			Title:       "activate emergency procedures",
			Description: "Execute the site emergency plan and account for all personnel",
			Priority:    domain.ActionPriorityUrgent,
			Offset:      45 * time.Minute,
		},
		{
			Title:       "assess facility damage",
			Description: "Survey affected facilities and document structural damage",
			Priority:    domain.ActionPriorityHigh,
			Offset:      4 * time.Hour,
		},
	},
	domain.CrisisTypeFinancial: {
		{
			Title:       "freeze discretionary spending",
			Description: "Suspend non-essential outgoing payments pending review",
			Priority:    domain.ActionPriorityHigh,
			Offset:      2 * time.Hour,
		},
	},
	domain.CrisisTypeMarketCrash: {
		{
			Title:       "review exposure positions",
			Description: "Quantify exposure to affected markets and report to treasury",
			Priority:    domain.ActionPriorityUrgent,
			Offset:      time.Hour,
		},
	},
	domain.CrisisTypeRegulatory: {
		{
			Title:       "notify legal counsel",
			Description: "Brief legal counsel and prepare the regulator response",
			Priority:    domain.ActionPriorityHigh,
			Offset:      2 * time.Hour,
		},
	},
	domain.CrisisTypeHealth: {
		{
			Title:       "implement health protocols",
			Description: "Apply containment protocols and notify health authorities as required",
			Priority:    domain.ActionPriorityUrgent,
			Offset:      time.Hour,
		},
	},
	domain.CrisisTypeReputation: {
		{
			Title:       "prepare holding statement",
			Description: "Draft an initial public statement for communications review",
			Priority:    domain.ActionPriorityHigh,
			Offset:      90 * time.Minute,
		},
	},
	domain.CrisisTypeOperational: {
		{
			Title:       "activate service failover",
			Description: "Shift load to standby capacity and confirm service recovery",
			Priority:    domain.ActionPriorityHigh,
			Offset:      time.Hour,
		},
	},
}

// typeResources maps a crisis type to the external resources the response is
// expected to require.
var typeResources = map[domain.CrisisType][]domain.ResourceItem{
	domain.CrisisTypeCyberAttack: {
		{Name: "cybersecurity-firm", Kind: "contract", Description: "External incident response retainer"},
	},
	domain.CrisisTypeNaturalDisaster: {
		{Name: "emergency-services", Kind: "coordination", Description: "Local emergency services liaison"},
		{Name: "alternate-site", Kind: "facility", Description: "Standby work location for displaced staff"},
	},
	domain.CrisisTypeRegulatory: {
		{Name: "outside-counsel", Kind: "contract", Description: "Specialist regulatory counsel"},
	},
	domain.CrisisTypeReputation: {
		{Name: "pr-agency", Kind: "contract", Description: "External communications support"},
	},
	domain.CrisisTypeHealth: {
		{Name: "medical-advisor", Kind: "contract", Description: "Occupational health advisory"},
	},
}

// baseDurations gives the expected response duration per crisis type before
// severity scaling.
var baseDurations = map[domain.CrisisType]time.Duration{
	domain.CrisisTypeOperational:     8 * time.Hour,
	domain.CrisisTypeCyberAttack:     24 * time.Hour,
	domain.CrisisTypeFinancial:       48 * time.Hour,
	domain.CrisisTypeRegulatory:      72 * time.Hour,
	domain.CrisisTypeNaturalDisaster: 72 * time.Hour,
	domain.CrisisTypeMarketCrash:     24 * time.Hour,
	domain.CrisisTypeHealth:          48 * time.Hour,
	domain.CrisisTypeReputation:      24 * time.Hour,
}

const defaultBaseDuration = 24 * time.Hour

// estimateDuration scales the type's base duration by severity. Critical
// responses run longest because executive involvement and external parties
// stretch the effort.
func estimateDuration(crisisType domain.CrisisType, severity domain.Severity) time.Duration {
	base, ok := baseDurations[crisisType]
	if !ok {
		base = defaultBaseDuration
	}
	switch severity {
	case domain.SeverityCritical:
		return time.Duration(float64(base) * 1.5)
	case domain.SeverityHigh:
		return time.Duration(float64(base) * 1.2)
	default:
		return base
	}
}
