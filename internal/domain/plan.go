package domain

import "time"

// PlanPhase represents the response phase a plan covers.
type PlanPhase string

// Plan phases.
const (
	PhaseImmediate PlanPhase = "immediate"
	PhaseShortTerm PlanPhase = "short-term"
	PhaseRecovery  PlanPhase = "recovery"
)

// PlanStatus represents the state of a response plan.
type PlanStatus string

// Plan statuses.
const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusCompleted PlanStatus = "completed"
)

// ActionStatus represents the execution state of a response action.
type ActionStatus string

// Action statuses.
const (
	ActionStatusPending    ActionStatus = "pending"
	ActionStatusInProgress ActionStatus = "in-progress"
	ActionStatusCompleted  ActionStatus = "completed"
	ActionStatusBlocked    ActionStatus = "blocked"
)

// ActionPriority represents the urgency of a response action.
type ActionPriority string

// Action priorities.
const (
	ActionPriorityUrgent ActionPriority = "urgent"
	ActionPriorityHigh   ActionPriority = "high"
	ActionPriorityNormal ActionPriority = "normal"
)

// Action is a unit of response work within a plan.
type Action struct {
	ID           string         `json:"id"`
	PlanID       string         `json:"plan_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Priority     ActionPriority `json:"priority"`
	Status       ActionStatus   `json:"status"`
	Assignee     string         `json:"assignee,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Deadline     time.Time      `json:"deadline"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Notes        string         `json:"notes,omitempty"`
}

// CommunicationStatus represents the state of a communication item.
type CommunicationStatus string

// Communication statuses.
const (
	CommunicationPending CommunicationStatus = "pending"
	CommunicationSent    CommunicationStatus = "sent"
)

// CommunicationItem is a planned outbound communication for a crisis.
type CommunicationItem struct {
	ID          string              `json:"id"`
	Audience    string              `json:"audience"`
	Channel     ChannelType         `json:"channel"`
	Template    string              `json:"template"`
	Responsible string              `json:"responsible"`
	Approver    string              `json:"approver,omitempty"`
	Status      CommunicationStatus `json:"status"`
}

// Milestone is a named checkpoint in a plan's timeline.
type Milestone struct {
	Name      string    `json:"name"`
	ActionIDs []string  `json:"action_ids"`
	TargetAt  time.Time `json:"target_at"`
}

// ResourceItem is an estimated resource required by the response.
type ResourceItem struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
}

// PlanTimeline describes the expected shape of the response effort.
type PlanTimeline struct {
	StartTime         time.Time     `json:"start_time"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	Milestones        []Milestone   `json:"milestones"`
}

// ResponsePlan is the orchestration artifact for one crisis.
type ResponsePlan struct {
	ID             string              `json:"id"`
	CrisisID       string              `json:"crisis_id"`
	Phase          PlanPhase           `json:"phase"`
	Actions        []Action            `json:"actions"`
	StakeholderIDs []string            `json:"stakeholder_ids"`
	Communications []CommunicationItem `json:"communications"`
	Resources      []ResourceItem      `json:"resources"`
	Timeline       PlanTimeline        `json:"timeline"`
	Status         PlanStatus          `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// ActionByID returns a pointer to the action with the given id, or nil.
func (p *ResponsePlan) ActionByID(id string) *Action {
	for i := range p.Actions {
		if p.Actions[i].ID == id {
			return &p.Actions[i]
		}
	}
	return nil
}

// AllActionsCompleted reports whether every action in the plan is completed.
func (p *ResponsePlan) AllActionsCompleted() bool {
	for i := range p.Actions {
		if p.Actions[i].Status != ActionStatusCompleted {
			return false
		}
	}
	return true
}
