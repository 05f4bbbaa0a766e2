package notify

import "errors"

// Service errors.
var (
	ErrStakeholderNotFound = errors.New("stakeholder not found")
	ErrNoChannels          = errors.New("no notification channels requested")
	ErrNoRecipients        = errors.New("no stakeholders resolved for requested roles")
	ErrUnknownChannel      = errors.New("unknown notification channel")
)
