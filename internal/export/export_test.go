package export

import (
	"strings"
	"testing"
	"time"

	"tawteen/api/internal/planrepo"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Plan v1.2", "My-Plan-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "plan"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},       // Spaces encoded as %20, not +
		{"test+sign", "test%2Bsign"},           // + signs are encoded
		{"special<>", "special%3C%3E"},         // Special chars encoded
		{"normal-text.txt", "normal-text.txt"}, // Unreserved chars pass through
		{"", ""},                               // Empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderPlanHTML(t *testing.T) {
	data := TemplateData{
		Title:        "Widget assembly localization",
		PlanType:     "PRODUCT",
		Status:       "UNDER_REVIEW",
		InvestorName: "Acme Industrial",
		Pass:         2,
		UpdatedAt:    time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Sections: []TemplateSection{
			{
				Name:   "generalInfo",
				Fields: []TemplateField{{Key: "companyName", Value: "Acme Industrial"}},
			},
			{
				Name: "valueChain",
				Rows: []TemplateRow{
					{ID: "row-1", Fields: []TemplateField{{Key: "activity", Value: "Casting"}}},
				},
			},
		},
		Comments: []TemplateComment{
			{
				PageTitle: "General Information",
				Text:      "Please correct the registered company name.",
				Author:    "Reviewer One",
				Fields: []TemplateFlagged{
					{Label: "Company name", Section: "generalInfo", InputKey: "companyName", Value: "Acme"},
				},
			},
		},
		Decisions: []TemplateDecision{
			{Action: "SENT_BACK", Note: "See comments", DecidedBy: "Reviewer One", DecidedAt: time.Now(), Pass: 1},
		},
	}

	html, err := RenderPlanHTML(data)
	if err != nil {
		t.Fatalf("RenderPlanHTML() error = %v", err)
	}

	for _, want := range []string{
		"Widget assembly localization",
		"Acme Industrial",
		"review pass 2",
		"generalInfo",
		"companyName",
		"Row row-1",
		"Casting",
		"Review comments",
		"Please correct the registered company name.",
		"Company name",
		"Decision log",
		"SENT_BACK",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestRenderPlanHTMLEscapesValues(t *testing.T) {
	data := TemplateData{
		Title: "Plan <script>alert(1)</script>",
		Sections: []TemplateSection{
			{Name: "s", Fields: []TemplateField{{Key: "k", Value: "<b>bold</b>"}}},
		},
	}

	html, err := RenderPlanHTML(data)
	if err != nil {
		t.Fatalf("RenderPlanHTML() error = %v", err)
	}

	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("title should be HTML-escaped")
	}
	if strings.Contains(html, "<b>bold</b>") {
		t.Error("field values should be HTML-escaped")
	}
}

func TestContentSectionsDeterministicOrder(t *testing.T) {
	content := planrepo.Content{
		Sections: map[string]planrepo.Section{
			"zeta":  {Fields: map[string]string{"b": "2", "a": "1"}},
			"alpha": {Fields: map[string]string{"x": "9"}},
		},
	}

	sections := contentSections(content)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].Name != "alpha" || sections[1].Name != "zeta" {
		t.Errorf("sections not sorted: %s, %s", sections[0].Name, sections[1].Name)
	}
	if sections[1].Fields[0].Key != "a" || sections[1].Fields[1].Key != "b" {
		t.Error("fields not sorted by key")
	}
}
