package escalation

import (
	"time"

	"github.com/bissquit/crisis-command/internal/domain"
)

// Procedure is the per-severity escalation configuration: how long a crisis
// may sit at one escalation level, and who hears about the next one.
type Procedure struct {
	TimeoutBeforeEscalation time.Duration
	RolesToNotify           []string
	Channels                []domain.ChannelType
}

// defaultProcedures gives every severity a procedure. Severe crises escalate
// faster and reach further up.
var defaultProcedures = map[domain.Severity]Procedure{
	domain.SeverityLow: {
		TimeoutBeforeEscalation: 24 * time.Hour,
		RolesToNotify:           []string{"crisis-coordinator"},
		Channels:                []domain.ChannelType{domain.ChannelTypeEmail},
	},
	domain.SeverityMedium: {
		TimeoutBeforeEscalation: 8 * time.Hour,
		RolesToNotify:           []string{"crisis-coordinator"},
		Channels:                []domain.ChannelType{domain.ChannelTypeEmail, domain.ChannelTypeChat},
	},
	domain.SeverityHigh: {
		TimeoutBeforeEscalation: 2 * time.Hour,
		RolesToNotify:           []string{"crisis-coordinator", "operations-lead"},
		Channels:                []domain.ChannelType{domain.ChannelTypeEmail, domain.ChannelTypeChat},
	},
	domain.SeverityCritical: {
		TimeoutBeforeEscalation: 30 * time.Minute,
		RolesToNotify:           []string{"crisis-coordinator", "operations-lead", "ceo"},
		Channels:                []domain.ChannelType{domain.ChannelTypeEmail, domain.ChannelTypeSMS, domain.ChannelTypeChat},
	},
}

// ProcedureFor returns the escalation procedure for a severity, falling back
// to the medium procedure for anything unknown.
func ProcedureFor(severity domain.Severity, overrides map[domain.Severity]time.Duration) Procedure {
	p, ok := defaultProcedures[severity]
	if !ok {
		p = defaultProcedures[domain.SeverityMedium]
	}
	if timeout, ok := overrides[severity]; ok && timeout > 0 {
		p.TimeoutBeforeEscalation = timeout
	}
	return p
}
