// Package notify implements stakeholder notification fan-out. Roles are
// resolved through the external stakeholder directory, then one send is
// attempted per (stakeholder, channel) pair; failures on one pair never
// block the others.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bissquit/crisis-command/internal/bus"
	"github.com/bissquit/crisis-command/internal/domain"
)

// Sender delivers one message to one contact endpoint. Implemented per
// channel type by the email, sms and chat subpackages.
type Sender interface {
	Send(ctx context.Context, target, subject, message string) error
}

// Input describes one notification batch.
type Input struct {
	CrisisID string
	Severity domain.Severity
	Message  string
	Roles    []string
	Channels []domain.ChannelType
	Urgency  string
}

// ChannelTally is the per-channel delivery outcome.
type ChannelTally struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Result is the per-channel success/failure tally for one batch.
type Result struct {
	Recipients int                                 `json:"recipients"`
	Delivered  int                                 `json:"delivered"`
	Failed     int                                 `json:"failed"`
	ByChannel  map[domain.ChannelType]ChannelTally `json:"by_channel"`
}

// Notifier fans notifications out across channel senders.
type Notifier struct {
	directory Directory
	senders   map[domain.ChannelType]Sender
	publisher bus.Publisher
}

// NewNotifier creates a notifier over the given directory and channel
// senders.
func NewNotifier(directory Directory, senders map[domain.ChannelType]Sender, publisher bus.Publisher) *Notifier {
	return &Notifier{
		directory: directory,
		senders:   senders,
		publisher: publisher,
	}
}

// NotifyStakeholders resolves the requested roles and sends the message once
// per (stakeholder, channel) pair. Stakeholders without an endpoint for a
// channel are skipped silently on that channel. The returned tally is
// populated even when every delivery fails; only directory resolution
// failures abort the batch.
func (n *Notifier) NotifyStakeholders(ctx context.Context, input Input) (*Result, error) {
	if len(input.Channels) == 0 {
		return nil, ErrNoChannels
	}
	for _, channel := range input.Channels {
		if !channel.IsValid() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
		}
	}

	stakeholders, err := n.directory.ResolveStakeholders(ctx, input.Roles)
	if err != nil {
		return nil, fmt.Errorf("resolve stakeholders: %w", err)
	}
	if len(stakeholders) == 0 {
		return nil, ErrNoRecipients
	}

	subject := fmt.Sprintf("[%s] crisis notification %s", input.Severity, input.CrisisID)
	result := &Result{
		Recipients: len(stakeholders),
		ByChannel:  make(map[domain.ChannelType]ChannelTally),
	}

	for _, channel := range input.Channels {
		sender, ok := n.senders[channel]
		if !ok {
			slog.Warn("no sender configured for channel", "channel", channel)
			continue
		}

		tally := result.ByChannel[channel]
		for _, s := range stakeholders {
			target, ok := s.ContactFor(channel)
			if !ok {
				continue
			}

			if err := sender.Send(ctx, target, subject, input.Message); err != nil {
				tally.Failed++
				result.Failed++
				recordDelivery(string(channel), "failed")
				slog.Error("notification delivery failed",
					"crisis_id", input.CrisisID,
					"channel", channel,
					"stakeholder_id", s.ID,
					"error", err,
				)
				continue
			}

			tally.Delivered++
			result.Delivered++
			recordDelivery(string(channel), "delivered")
		}
		result.ByChannel[channel] = tally
	}

	n.publisher.Publish(ctx, bus.New(bus.EventNotificationSent, input.CrisisID, map[string]any{
		"severity":   input.Severity,
		"urgency":    input.Urgency,
		"recipients": result.Recipients,
		"delivered":  result.Delivered,
		"failed":     result.Failed,
	}))

	return result, nil
}
