package export

import (
	"context"
	"fmt"
	"sort"

	"tawteen/api/internal/planrepo"
	"tawteen/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetPlan(ctx context.Context, id string) (store.Plan, error)
	ListReviewComments(ctx context.Context, planID string, pass int) ([]store.ReviewComment, error)
	ListDecisionLog(ctx context.Context, planID string, limit int) ([]store.DecisionLogEntry, error)
}

// ContentSource reads plan content, normally from the plan's git repository.
type ContentSource interface {
	HeadContent(planID string) (planrepo.Content, store.CommitInfo, error)
}

// Service renders a plan review summary and converts it to PDF.
type Service struct {
	store   DataStore
	content ContentSource
}

// NewService creates a new export service
func NewService(store DataStore, content ContentSource) *Service {
	return &Service{store: store, content: content}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	plan, err := s.store.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}

	content, _, err := s.content.HeadContent(req.PlanID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	pass := req.Pass
	if pass == 0 {
		pass = plan.ReviewPass
	}

	comments, err := s.store.ListReviewComments(ctx, req.PlanID, pass)
	if err != nil {
		return nil, fmt.Errorf("list review comments: %w", err)
	}

	data := TemplateData{
		Title:        plan.Title,
		PlanType:     plan.PlanType,
		Status:       plan.Status,
		InvestorName: plan.InvestorName,
		Pass:         pass,
		UpdatedAt:    plan.UpdatedAt,
		Sections:     contentSections(content),
	}

	for _, c := range comments {
		tc := TemplateComment{
			PageTitle: c.PageTitle,
			Text:      c.Comment,
			Author:    c.Author,
		}
		for _, f := range c.Fields {
			tc.Fields = append(tc.Fields, TemplateFlagged{
				Label:    f.Label,
				Section:  f.Section,
				InputKey: f.InputKey,
				RowID:    f.RowID,
				Value:    f.Value,
			})
		}
		data.Comments = append(data.Comments, tc)
	}

	if req.IncludeDecisions {
		decisions, err := s.store.ListDecisionLog(ctx, req.PlanID, 0)
		if err != nil {
			return nil, fmt.Errorf("list decision log: %w", err)
		}
		for _, d := range decisions {
			data.Decisions = append(data.Decisions, TemplateDecision{
				Action:    d.Action,
				Note:      d.Note,
				DecidedBy: d.DecidedBy,
				DecidedAt: d.DecidedAt,
				Pass:      d.Pass,
			})
		}
	}

	html, err := RenderPlanHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF, "":
		return exportPDF(html, plan.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

// contentSections flattens plan content into template sections with a
// deterministic order.
func contentSections(content planrepo.Content) []TemplateSection {
	names := make([]string, 0, len(content.Sections))
	for name := range content.Sections {
		names = append(names, name)
	}
	sort.Strings(names)

	sections := make([]TemplateSection, 0, len(names))
	for _, name := range names {
		src := content.Sections[name]
		ts := TemplateSection{Name: name}

		keys := make([]string, 0, len(src.Fields))
		for key := range src.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			ts.Fields = append(ts.Fields, TemplateField{Key: key, Value: src.Fields[key]})
		}

		for _, row := range src.Rows {
			tr := TemplateRow{ID: row.ID}
			rowKeys := make([]string, 0, len(row.Fields))
			for key := range row.Fields {
				rowKeys = append(rowKeys, key)
			}
			sort.Strings(rowKeys)
			for _, key := range rowKeys {
				tr.Fields = append(tr.Fields, TemplateField{Key: key, Value: row.Fields[key]})
			}
			ts.Rows = append(ts.Rows, tr)
		}

		sections = append(sections, ts)
	}
	return sections
}
