package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSender_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "enabled without smtp host",
			config: Config{
				Enabled:     true,
				FromAddress: "alerts@example.com",
			},
			wantErr: "SMTP host is required",
		},
		{
			name: "enabled without from address",
			config: Config{
				Enabled:  true,
				SMTPHost: "smtp.example.com",
			},
			wantErr: "from address is required",
		},
		{
			name: "disabled - no validation",
			config: Config{
				Enabled: false,
			},
			wantErr: "",
		},
		{
			name: "valid config",
			config: Config{
				Enabled:     true,
				SMTPHost:    "smtp.example.com",
				FromAddress: "alerts@example.com",
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := NewSender(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, sender)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, sender)
			}
		})
	}
}

func TestNewSender_Defaults(t *testing.T) {
	sender, err := NewSender(Config{
		Enabled:     true,
		SMTPHost:    "smtp.example.com",
		FromAddress: "alerts@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, 587, sender.config.SMTPPort)
	assert.Nil(t, sender.auth)
}

func TestNewSender_AuthSetup(t *testing.T) {
	sender, err := NewSender(Config{
		Enabled:      true,
		SMTPHost:     "smtp.example.com",
		FromAddress:  "alerts@example.com",
		SMTPUser:     "user",
		SMTPPassword: "pass",
	})
	require.NoError(t, err)

	assert.NotNil(t, sender.auth)
}

func TestSender_Send_DisabledIsNoop(t *testing.T) {
	sender, err := NewSender(Config{Enabled: false})
	require.NoError(t, err)

	err = sender.Send(context.Background(), "someone@example.com", "subject", "body")
	assert.NoError(t, err)
}

func TestBuildMessage(t *testing.T) {
	sender, err := NewSender(Config{
		Enabled:     true,
		SMTPHost:    "smtp.example.com",
		FromAddress: "Crisis Command <alerts@example.com>",
	})
	require.NoError(t, err)

	msg := string(sender.buildMessage("ceo@example.com", "[critical] crisis notification", "data center offline"))

	assert.Contains(t, msg, "From: Crisis Command <alerts@example.com>\r\n")
	assert.Contains(t, msg, "To: ceo@example.com\r\n")
	assert.Contains(t, msg, "Subject: [critical] crisis notification\r\n")
	assert.Contains(t, msg, "MIME-Version: 1.0\r\n")
	assert.Contains(t, msg, "\r\n\r\ndata center offline")
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain address",
			input:    "alerts@example.com",
			expected: "alerts@example.com",
		},
		{
			name:     "display name format",
			input:    "Crisis Command <alerts@example.com>",
			expected: "alerts@example.com",
		},
		{
			name:     "malformed brackets",
			input:    "Crisis Command <alerts@example.com",
			expected: "Crisis Command <alerts@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractEmail(tt.input))
		})
	}
}
