package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderVerificationTemplate(t *testing.T) {
	data := VerificationData{
		AppName:         "Tawteen",
		UserName:        "Test Investor",
		VerificationURL: "https://example.com/verify?token=abc123",
	}

	html, err := renderTemplate(verificationEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Tawteen") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Test Investor") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "https://example.com/verify?token=abc123") {
		t.Error("template should contain verification URL")
	}
}

func TestRenderPasswordResetTemplate(t *testing.T) {
	data := PasswordResetData{
		AppName:  "Tawteen",
		UserName: "Test Investor",
		ResetURL: "https://example.com/reset?token=xyz789",
	}

	html, err := renderTemplate(passwordResetEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Tawteen") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Test Investor") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "https://example.com/reset?token=xyz789") {
		t.Error("template should contain reset URL")
	}
	if !strings.Contains(html, "1 hour") {
		t.Error("template should mention expiration time")
	}
}

func TestRenderDecisionTemplate(t *testing.T) {
	data := DecisionData{
		AppName:      "Tawteen",
		UserName:     "Test Investor",
		PlanTitle:    "Localization of widget assembly",
		Outcome:      "sent back",
		Note:         "Please revise the flagged fields.",
		CommentCount: 3,
	}

	html, err := renderTemplate(decisionEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Localization of widget assembly") {
		t.Error("template should contain plan title")
	}
	if !strings.Contains(html, "sent back") {
		t.Error("template should contain the outcome")
	}
	if !strings.Contains(html, "Please revise the flagged fields.") {
		t.Error("template should contain the note")
	}
	if !strings.Contains(html, "3 comment(s)") {
		t.Error("template should mention the comment count")
	}
}

func TestRenderDecisionTemplateWithoutNote(t *testing.T) {
	data := DecisionData{
		AppName:   "Tawteen",
		UserName:  "Test Investor",
		PlanTitle: "Service plan",
		Outcome:   "approved",
	}

	html, err := renderTemplate(decisionEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if strings.Contains(html, `class="note"`) {
		t.Error("empty note should not render a note block")
	}
	if strings.Contains(html, "comment(s)") {
		t.Error("zero comments should not render the comment hint")
	}
}
