package domain

import "time"

// CrisisType represents the category of a detected crisis.
type CrisisType string

// Crisis types.
const (
	CrisisTypeOperational     CrisisType = "operational"
	CrisisTypeCyberAttack     CrisisType = "cyber-attack"
	CrisisTypeFinancial       CrisisType = "financial"
	CrisisTypeRegulatory      CrisisType = "regulatory"
	CrisisTypeNaturalDisaster CrisisType = "natural-disaster"
	CrisisTypeMarketCrash     CrisisType = "market-crash"
	CrisisTypeHealth          CrisisType = "health"
	CrisisTypeReputation      CrisisType = "reputation"
)

// CrisisStatus represents the lifecycle state of a crisis.
type CrisisStatus string

// Crisis statuses.
const (
	CrisisStatusDetected  CrisisStatus = "detected"
	CrisisStatusConfirmed CrisisStatus = "confirmed"
	CrisisStatusMitigated CrisisStatus = "mitigated"
	CrisisStatusResolved  CrisisStatus = "resolved"
	CrisisStatusCancelled CrisisStatus = "cancelled"
)

// Severity represents the severity level of a crisis.
type Severity string

// Severity levels, ordered low < medium < high < critical.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// EscalationLevel represents how far a crisis has been escalated.
type EscalationLevel string

// Escalation levels, ordered operational < senior-management < executive.
const (
	EscalationOperational EscalationLevel = "operational"
	EscalationSeniorMgmt  EscalationLevel = "senior-management"
	EscalationExecutive   EscalationLevel = "executive"
)

// ImpactScope represents the geographic reach of a crisis.
type ImpactScope string

// Impact scopes.
const (
	ScopeLocal    ImpactScope = "local"
	ScopeRegional ImpactScope = "regional"
	ScopeNational ImpactScope = "national"
	ScopeGlobal   ImpactScope = "global"
)

// ImpactCategory represents an affected business dimension.
type ImpactCategory string

// Impact categories.
const (
	ImpactSafety      ImpactCategory = "safety"
	ImpactOperational ImpactCategory = "operational"
	ImpactFinancial   ImpactCategory = "financial"
	ImpactReputation  ImpactCategory = "reputation"
)

// Impact describes the assessed blast radius of a crisis.
type Impact struct {
	Scope         ImpactScope      `json:"scope"`
	Categories    []ImpactCategory `json:"categories"`
	EstimatedLoss float64          `json:"estimated_loss"`
}

// TimelineEntry is a single append-only audit record on a crisis.
type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
}

// Crisis represents a detected adverse event and its lifecycle state.
type Crisis struct {
	ID              string          `json:"id"`
	Type            CrisisType      `json:"type"`
	Severity        Severity        `json:"severity"`
	Priority        int             `json:"priority"`
	Status          CrisisStatus    `json:"status"`
	Description     string          `json:"description"`
	Location        string          `json:"location,omitempty"`
	AffectedSystems []string        `json:"affected_systems,omitempty"`
	Source          string          `json:"source,omitempty"`
	Impact          Impact          `json:"impact"`
	EscalationLevel EscalationLevel `json:"escalation_level"`
	DetectedAt      time.Time       `json:"detected_at"`
	ConfirmedAt     *time.Time      `json:"confirmed_at,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	LastEscalatedAt time.Time       `json:"last_escalated_at"`
	Timeline        []TimelineEntry `json:"timeline"`
	Monitoring      bool            `json:"monitoring"`
	FailedActions   int             `json:"failed_actions"`
	Resolution      *Resolution     `json:"resolution,omitempty"`
	Mitigation      *Mitigation     `json:"mitigation,omitempty"`
}

// Resolution records how a crisis was closed out.
type Resolution struct {
	Summary    string `json:"summary"`
	RootCause  string `json:"root_cause"`
	ResolvedBy string `json:"resolved_by"`
}

// Mitigation records a partial resolution: impact contained, root cause outstanding.
type Mitigation struct {
	Steps           []string   `json:"steps"`
	RemainingIssues []string   `json:"remaining_issues,omitempty"`
	EstimatedFullAt *time.Time `json:"estimated_full_at,omitempty"`
	RecordedBy      string     `json:"recorded_by"`
	RecordedAt      time.Time  `json:"recorded_at"`
}

// IsValid checks if the crisis type is a known category.
func (t CrisisType) IsValid() bool {
	switch t {
	case CrisisTypeOperational, CrisisTypeCyberAttack, CrisisTypeFinancial,
		CrisisTypeRegulatory, CrisisTypeNaturalDisaster, CrisisTypeMarketCrash,
		CrisisTypeHealth, CrisisTypeReputation:
		return true
	}
	return false
}

// IsValid checks if the severity is a known level.
func (s Severity) IsValid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh || s == SeverityCritical
}

// Rank returns the numeric order of a severity, higher = more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// Rank returns the numeric order of an escalation level.
func (l EscalationLevel) Rank() int {
	switch l {
	case EscalationOperational:
		return 0
	case EscalationSeniorMgmt:
		return 1
	case EscalationExecutive:
		return 2
	}
	return -1
}

// Next returns the level one step up, or the same level if already at the top.
func (l EscalationLevel) Next() EscalationLevel {
	switch l {
	case EscalationOperational:
		return EscalationSeniorMgmt
	case EscalationSeniorMgmt:
		return EscalationExecutive
	}
	return l
}

// IsTerminal reports whether a crisis in this status can no longer change.
func (s CrisisStatus) IsTerminal() bool {
	return s == CrisisStatusResolved || s == CrisisStatusCancelled
}

// CanTransitionTo reports whether the lifecycle permits moving to the target status.
// Cancellation is reachable from any non-resolved state.
func (s CrisisStatus) CanTransitionTo(target CrisisStatus) bool {
	if target == CrisisStatusCancelled {
		return !s.IsTerminal()
	}
	switch s {
	case CrisisStatusDetected:
		return target == CrisisStatusConfirmed
	case CrisisStatusConfirmed:
		return target == CrisisStatusMitigated || target == CrisisStatusResolved
	case CrisisStatusMitigated:
		return target == CrisisStatusResolved
	}
	return false
}
