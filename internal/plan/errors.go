package plan

import "errors"

// Service errors.
var (
	ErrPlanNotFound      = errors.New("response plan not found")
	ErrActionNotFound    = errors.New("action not found")
	ErrPlanAlreadyActive = errors.New("crisis already has an active response plan")
	ErrPlanCompleted     = errors.New("response plan is already completed")
	ErrActionBlocked     = errors.New("blocked by incomplete dependencies")
	ErrActionNotStarted  = errors.New("action has not been started")
	ErrActionCompleted   = errors.New("action is already completed")
	ErrMissingAssignee   = errors.New("assignee is required")
	ErrCrisisTerminal    = errors.New("crisis is in a terminal state")
)
