package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tawteen/api/internal/attach"
	"tawteen/api/internal/auth"
	"tawteen/api/internal/authpw"
	"tawteen/api/internal/config"
	"tawteen/api/internal/export"
	"tawteen/api/internal/planrepo"
	"tawteen/api/internal/rbac"
	"tawteen/api/internal/review"
	"tawteen/api/internal/search"
	"tawteen/api/internal/store"
	"tawteen/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// Plan lifecycle statuses.
const (
	StatusDraft       = "DRAFT"
	StatusSubmitted   = "SUBMITTED"
	StatusUnderReview = "UNDER_REVIEW"
	StatusSentBack    = "SENT_BACK"
	StatusResubmitted = "RESUBMITTED"
	StatusApproved    = "APPROVED"
	StatusRejected    = "REJECTED"
)

// Decision log actions.
const (
	ActionSubmitted   = "SUBMITTED"
	ActionSentBack    = "SENT_BACK"
	ActionResubmitted = "RESUBMITTED"
	ActionApproved    = "APPROVED"
	ActionRejected    = "REJECTED"
)

var allowedPlanTypes = map[string]struct{}{
	"PRODUCT": {},
	"SERVICE": {},
}

// planTransitions maps each status to the statuses it may move to. Every
// lifecycle change is checked against this table before it touches the
// database.
var planTransitions = map[string][]string{
	StatusDraft:       {StatusSubmitted},
	StatusSubmitted:   {StatusUnderReview},
	StatusUnderReview: {StatusSentBack, StatusApproved, StatusRejected},
	StatusSentBack:    {StatusResubmitted},
	StatusResubmitted: {StatusUnderReview},
	StatusApproved:    {},
	StatusRejected:    {},
}

func canTransition(from, to string) bool {
	for _, next := range planTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// editableStatuses are the statuses in which the investor may change plan
// content.
var editableStatuses = map[string]struct{}{
	StatusDraft:    {},
	StatusSentBack: {},
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	InsertPlan(context.Context, store.Plan) error
	GetPlan(context.Context, string) (store.Plan, error)
	ListPlans(context.Context, string) ([]store.Plan, error)
	UpdatePlanStatus(context.Context, string, string, string) error
	MarkPlanSubmitted(context.Context, string, string, string, string) (int, error)
	ReplaceReviewComments(context.Context, string, int, []store.ReviewComment) error
	ListReviewComments(context.Context, string, int) ([]store.ReviewComment, error)
	InsertDecisionLog(context.Context, store.DecisionLogEntry) error
	ListDecisionLog(context.Context, string, int) ([]store.DecisionLogEntry, error)
	InsertAttachment(context.Context, store.Attachment) error
	GetAttachment(context.Context, string, string) (store.Attachment, error)
	ListAttachments(context.Context, string) ([]store.Attachment, error)
	DeleteAttachment(context.Context, string, string) error
	Ping(ctx context.Context) error
}

// sessionStore keeps refresh sessions. Backed by Redis when configured,
// otherwise by Postgres through pgSessionStore.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// pgSessionStore adapts the Postgres store to the sessionStore interface.
type pgSessionStore struct {
	store *store.PostgresStore
}

func (p pgSessionStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p pgSessionStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.store.LookupRefreshSession(ctx, tokenHash)
}

func (p pgSessionStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

type planRepoService interface {
	EnsurePlanRepo(planID string, initial planrepo.Content, author string) error
	CommitContent(planID string, content planrepo.Content, author, message string) (store.CommitInfo, error)
	HeadContent(planID string) (planrepo.Content, store.CommitInfo, error)
	ContentAt(planID, rev string) (planrepo.Content, error)
	TagSubmission(planID, hash string, pass int) error
	History(planID string, limit int) ([]store.CommitInfo, error)
}

type searcher interface {
	Search(q search.Query) search.Response
	IndexPlan(p search.PlanRecord)
	IndexComment(c search.CommentRecord)
	IndexDecision(d search.DecisionRecord)
	DeleteComment(id string)
}

type mailer interface {
	IsConfigured() bool
	SendDecisionEmail(to, userName, planTitle, outcome, note string, commentCount int) error
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type objectStore interface {
	Upload(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) error
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, objectKey string) error
	PresignDownload(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	plans    planRepoService
	authpw   *authpw.Service
	search   searcher
	mail     mailer
	export   exporter
	attach   objectStore
}

func New(cfg config.Config, dataStore *store.PostgresStore, plans *planrepo.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: pgSessionStore{store: dataStore},
		plans:    plans,
		authpw:   authpw.NewService(dataStore),
	}
}

// WithSessionStore swaps refresh session storage, normally to Redis.
func (s *Service) WithSessionStore(sessions sessionStore) *Service {
	s.sessions = sessions
	return s
}

func (s *Service) WithSearch(search searcher) *Service {
	s.search = search
	return s
}

func (s *Service) WithMailer(mail mailer) *Service {
	s.mail = mail
	return s
}

func (s *Service) WithExporter(export exporter) *Service {
	s.export = export
	return s
}

func (s *Service) WithAttachments(objects objectStore) *Service {
	s.attach = objects
	return s
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds a development database with one user per role and a draft
// plan. Skipped when any plan already exists.
func (s *Service) Bootstrap(ctx context.Context) error {
	plans, err := s.store.ListPlans(ctx, "")
	if err != nil {
		return err
	}
	if len(plans) > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("tawteen-dev"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	seeds := []store.User{
		{ID: util.NewID("usr"), DisplayName: "Layla Haddad", Email: "layla@tawteen.local", Role: string(rbac.RoleInvestor)},
		{ID: util.NewID("usr"), DisplayName: "Omar Nasser", Email: "omar@tawteen.local", Role: string(rbac.RoleReviewer)},
		{ID: util.NewID("usr"), DisplayName: "Huda Salem", Email: "huda@tawteen.local", Role: string(rbac.RoleApprover)},
		{ID: util.NewID("usr"), DisplayName: "Tawteen Admin", Email: "admin@tawteen.local", Role: string(rbac.RoleAdmin)},
	}
	for i := range seeds {
		seeds[i].PasswordHash = string(hash)
		seeds[i].IsEmailVerified = true
		if err := s.store.CreateUser(ctx, seeds[i]); err != nil {
			return err
		}
	}

	investor := seeds[0]
	plan := store.Plan{
		ID:           util.NewID("pln"),
		PlanType:     "PRODUCT",
		Title:        "Solar panel assembly line",
		Status:       StatusDraft,
		InvestorID:   investor.ID,
		InvestorName: investor.DisplayName,
		UpdatedBy:    investor.DisplayName,
	}
	if err := s.store.InsertPlan(ctx, plan); err != nil {
		return err
	}

	content := planrepo.Content{Sections: map[string]planrepo.Section{
		"general": {Fields: map[string]string{
			"companyName": "Haddad Renewables",
			"summary":     "Local assembly of photovoltaic panels for utility projects.",
		}},
		"valueChain": {Rows: []planrepo.Row{
			{ID: "vc-1", Fields: map[string]string{"activity": "Cell sourcing", "localShare": "20"}},
			{ID: "vc-2", Fields: map[string]string{"activity": "Module assembly", "localShare": "80"}},
		}},
	}}
	if err := s.plans.EnsurePlanRepo(plan.ID, content, investor.DisplayName); err != nil {
		return err
	}

	s.indexPlan(plan)
	return nil
}

// --- sessions ---

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      string(rbac.Normalize(claims.Role)),
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// --- plans ---

func (s *Service) ListPlans(ctx context.Context, session Session) ([]map[string]any, error) {
	investorID := ""
	if rbac.Normalize(session.Role) == rbac.RoleInvestor {
		investorID = session.UserID
	}
	plans, err := s.store.ListPlans(ctx, investorID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(plans))
	for _, plan := range plans {
		items = append(items, planPayload(plan))
	}
	return items, nil
}

func (s *Service) CreatePlan(ctx context.Context, planType, title string, session Session) (map[string]any, error) {
	planType = strings.ToUpper(strings.TrimSpace(planType))
	if _, ok := allowedPlanTypes[planType]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "planType must be PRODUCT or SERVICE", nil)
	}
	planTitle := strings.TrimSpace(title)
	if planTitle == "" {
		planTitle = "Untitled plan"
	}

	plan := store.Plan{
		ID:           util.NewID("pln"),
		PlanType:     planType,
		Title:        planTitle,
		Status:       StatusDraft,
		InvestorID:   session.UserID,
		InvestorName: session.UserName,
		UpdatedBy:    session.UserName,
	}
	if err := s.store.InsertPlan(ctx, plan); err != nil {
		return nil, err
	}
	if err := s.plans.EnsurePlanRepo(plan.ID, planrepo.Content{Sections: map[string]planrepo.Section{}}, session.UserName); err != nil {
		return nil, err
	}

	s.indexPlan(plan)
	return planPayload(plan), nil
}

func (s *Service) GetPlanDetail(ctx context.Context, planID string, session Session) (map[string]any, error) {
	plan, err := s.loadPlanForViewer(ctx, planID, session)
	if err != nil {
		return nil, err
	}
	content, head, err := s.plans.HeadContent(planID)
	if err != nil {
		return nil, err
	}
	payload := planPayload(plan)
	payload["content"] = content
	payload["headCommit"] = commitPayload(head)
	return payload, nil
}

func (s *Service) SavePlanContent(ctx context.Context, planID string, content planrepo.Content, session Session) (map[string]any, error) {
	plan, err := s.loadPlanForViewer(ctx, planID, session)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(plan, session); err != nil {
		return nil, err
	}
	if _, ok := editableStatuses[plan.Status]; !ok {
		return nil, domainError(http.StatusConflict, "PLAN_NOT_EDITABLE",
			fmt.Sprintf("Plan content cannot be edited while the plan is %s", plan.Status), nil)
	}

	current, _, err := s.plans.HeadContent(planID)
	if err != nil {
		return nil, err
	}
	if planrepo.Equal(current, content) {
		return planPayload(plan), nil
	}

	commit, err := s.plans.CommitContent(planID, content, session.UserName, "Update plan content")
	if err != nil {
		return nil, err
	}
	payload := planPayload(plan)
	payload["headCommit"] = commitPayload(commit)
	return payload, nil
}

// SubmitPlan moves a draft into the review queue: pins the submitted commit,
// bumps the pass counter, and tags the submission in the plan's repository.
func (s *Service) SubmitPlan(ctx context.Context, planID string, session Session) (map[string]any, error) {
	plan, err := s.loadPlanForViewer(ctx, planID, session)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(plan, session); err != nil {
		return nil, err
	}
	if !canTransition(plan.Status, StatusSubmitted) {
		return nil, transitionError(plan.Status, StatusSubmitted)
	}

	_, head, err := s.plans.HeadContent(planID)
	if err != nil {
		return nil, err
	}
	pass, err := s.store.MarkPlanSubmitted(ctx, planID, StatusSubmitted, head.Hash, session.UserName)
	if err != nil {
		return nil, err
	}
	if err := s.plans.TagSubmission(planID, head.Hash, pass); err != nil {
		return nil, err
	}

	s.recordDecision(ctx, plan, pass, ActionSubmitted, "", session.UserName, head.Hash)

	plan.Status = StatusSubmitted
	plan.ReviewPass = pass
	plan.LastSubmittedHash = head.Hash
	s.indexPlan(plan)
	return planPayload(plan), nil
}

func (s *Service) StartReview(ctx context.Context, planID string, session Session) (map[string]any, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !canTransition(plan.Status, StatusUnderReview) {
		return nil, transitionError(plan.Status, StatusUnderReview)
	}
	if err := s.store.UpdatePlanStatus(ctx, planID, StatusUnderReview, session.UserName); err != nil {
		return nil, err
	}
	plan.Status = StatusUnderReview
	s.indexPlan(plan)
	return planPayload(plan), nil
}

// --- review comments ---

// SaveReviewComments replaces the reviewer's comment batch for the current
// pass. Validation mirrors the wizard rules: every comment needs text within
// the length cap and at least one flagged field.
func (s *Service) SaveReviewComments(ctx context.Context, planID string, comments []review.PageComment, session Session) (map[string]any, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != StatusUnderReview {
		return nil, domainError(http.StatusConflict, "PLAN_NOT_UNDER_REVIEW",
			"Comments can only be saved while the plan is under review", nil)
	}
	if err := validateCommentBatch(comments); err != nil {
		return nil, err
	}

	// Replaced rows must also leave the search index.
	previous, err := s.store.ListReviewComments(ctx, planID, plan.ReviewPass)
	if err != nil {
		return nil, err
	}

	rows := make([]store.ReviewComment, 0, len(comments))
	for _, comment := range comments {
		row := store.ReviewComment{
			ID:        util.NewID("cmt"),
			PlanID:    planID,
			Pass:      plan.ReviewPass,
			PageTitle: comment.PageTitle,
			Comment:   comment.Text,
			Author:    session.UserName,
		}
		for _, field := range comment.Fields {
			row.Fields = append(row.Fields, store.FlaggedField{
				Section:  field.Section,
				InputKey: field.InputKey,
				RowID:    field.RowID,
				Label:    field.Label,
				Value:    field.Value,
			})
		}
		rows = append(rows, row)
	}

	if err := s.store.ReplaceReviewComments(ctx, planID, plan.ReviewPass, rows); err != nil {
		return nil, err
	}

	if s.search != nil {
		for _, old := range previous {
			s.search.DeleteComment(old.ID)
		}
		for _, row := range rows {
			s.search.IndexComment(search.CommentRecord{
				ID:         row.ID,
				Body:       row.Comment,
				PageTitle:  row.PageTitle,
				PlanID:     planID,
				InvestorID: plan.InvestorID,
				Author:     row.Author,
				Pass:       row.Pass,
			})
		}
	}

	return map[string]any{"saved": len(rows), "pass": plan.ReviewPass}, nil
}

func (s *Service) ListPlanComments(ctx context.Context, planID string, pass int, session Session) ([]store.ReviewComment, error) {
	plan, err := s.loadPlanForViewer(ctx, planID, session)
	if err != nil {
		return nil, err
	}
	if pass <= 0 {
		pass = plan.ReviewPass
	}
	return s.store.ListReviewComments(ctx, planID, pass)
}

// validateCommentBatch enforces the comment rules server side, independent
// of any client wizard.
func validateCommentBatch(comments []review.PageComment) error {
	if len(comments) == 0 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "at least one comment is required", nil)
	}
	for i, comment := range comments {
		text := strings.TrimSpace(comment.Text)
		if text == "" {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
				review.ErrEmptyComment.Error(), map[string]any{"index": i})
		}
		if len([]rune(text)) > review.MaxCommentLen {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
				review.ErrCommentTooLong.Error(), map[string]any{"index": i})
		}
		if len(comment.Fields) == 0 {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
				review.ErrNoFieldsSelected.Error(), map[string]any{"index": i})
		}
	}
	return nil
}

// --- decisions ---

// SendBack returns the plan to the investor. At least one saved comment for
// the current pass is required so the investor always knows what to fix.
func (s *Service) SendBack(ctx context.Context, planID, note string, session Session) (map[string]any, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !canTransition(plan.Status, StatusSentBack) {
		return nil, transitionError(plan.Status, StatusSentBack)
	}

	comments, err := s.store.ListReviewComments(ctx, planID, plan.ReviewPass)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "NO_COMMENTS",
			"Sending back requires at least one saved comment", nil)
	}

	note = strings.TrimSpace(note)
	if len([]rune(note)) > review.MaxCommentLen {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			review.ErrCommentTooLong.Error(), nil)
	}

	if err := s.store.UpdatePlanStatus(ctx, planID, StatusSentBack, session.UserName); err != nil {
		return nil, err
	}
	s.recordDecision(ctx, plan, plan.ReviewPass, ActionSentBack, note, session.UserName, plan.LastSubmittedHash)
	s.notifyDecision(ctx, plan, "sent back", note, len(comments))

	plan.Status = StatusSentBack
	s.indexPlan(plan)
	return planPayload(plan), nil
}

func (s *Service) Approve(ctx context.Context, planID, note string, session Session) (map[string]any, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !canTransition(plan.Status, StatusApproved) {
		return nil, transitionError(plan.Status, StatusApproved)
	}
	note = strings.TrimSpace(note)
	if len([]rune(note)) > review.MaxCommentLen {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			review.ErrCommentTooLong.Error(), nil)
	}

	if err := s.store.UpdatePlanStatus(ctx, planID, StatusApproved, session.UserName); err != nil {
		return nil, err
	}
	s.recordDecision(ctx, plan, plan.ReviewPass, ActionApproved, note, session.UserName, plan.LastSubmittedHash)
	s.notifyDecision(ctx, plan, "approved", note, 0)

	plan.Status = StatusApproved
	s.indexPlan(plan)
	return planPayload(plan), nil
}

func (s *Service) Reject(ctx context.Context, planID, reason string, session Session) (map[string]any, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !canTransition(plan.Status, StatusRejected) {
		return nil, transitionError(plan.Status, StatusRejected)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			review.ErrNoRejectReason.Error(), nil)
	}
	if len([]rune(reason)) > review.MaxCommentLen {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			review.ErrRejectTooLong.Error(), nil)
	}

	if err := s.store.UpdatePlanStatus(ctx, planID, StatusRejected, session.UserName); err != nil {
		return nil, err
	}
	s.recordDecision(ctx, plan, plan.ReviewPass, ActionRejected, reason, session.UserName, plan.LastSubmittedHash)
	s.notifyDecision(ctx, plan, "rejected", reason, 0)

	plan.Status = StatusRejected
	s.indexPlan(plan)
	return planPayload(plan), nil
}

// --- resubmission ---

// contentDiffSource resolves flagged fields against the investor's current
// draft and the content pinned at the last submission.
type contentDiffSource struct {
	current  planrepo.Content
	original planrepo.Content
}

func (c contentDiffSource) Value(ref review.FieldRef) (string, bool) {
	return c.current.Resolve(ref)
}

func (c contentDiffSource) OriginalValue(ref review.FieldRef) (string, bool) {
	return c.original.Resolve(ref)
}

// Resubmit puts a sent-back plan back under review. Every field flagged in
// the current pass must have been edited since the last submission; the
// response echoes the comment batch with the corrected values filled in.
func (s *Service) Resubmit(ctx context.Context, planID string, responses map[string]string, session Session) (map[string]any, error) {
	plan, err := s.loadPlanForViewer(ctx, planID, session)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(plan, session); err != nil {
		return nil, err
	}
	if !canTransition(plan.Status, StatusResubmitted) {
		return nil, transitionError(plan.Status, StatusResubmitted)
	}

	rows, err := s.store.ListReviewComments(ctx, planID, plan.ReviewPass)
	if err != nil {
		return nil, err
	}
	flagged := toPageComments(rows)

	current, head, err := s.plans.HeadContent(planID)
	if err != nil {
		return nil, err
	}
	original, err := s.plans.ContentAt(planID, plan.LastSubmittedHash)
	if err != nil {
		return nil, err
	}

	engine := review.NewDiffEngine(review.ModeResubmit, flagged, contentDiffSource{
		current:  current,
		original: original,
	})
	if remaining := engine.RemainingFieldsRequiringUpdate(); remaining > 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "FIELDS_NOT_UPDATED",
			"All flagged fields must be updated before resubmitting", map[string]any{
				"remaining": remaining,
			})
	}

	echo := engine.BuildResubmissionComments(responses)

	pass, err := s.store.MarkPlanSubmitted(ctx, planID, StatusResubmitted, head.Hash, session.UserName)
	if err != nil {
		return nil, err
	}
	if err := s.plans.TagSubmission(planID, head.Hash, pass); err != nil {
		return nil, err
	}
	s.recordDecision(ctx, plan, pass, ActionResubmitted, "", session.UserName, head.Hash)

	plan.Status = StatusResubmitted
	plan.ReviewPass = pass
	plan.LastSubmittedHash = head.Hash
	s.indexPlan(plan)

	payload := planPayload(plan)
	payload["comments"] = review.FlattenComments(echo)
	return payload, nil
}

// --- history, decision log, search, export ---

func (s *Service) PlanHistory(ctx context.Context, planID string, limit int, session Session) ([]map[string]any, error) {
	if _, err := s.loadPlanForViewer(ctx, planID, session); err != nil {
		return nil, err
	}
	commits, err := s.plans.History(planID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		items = append(items, commitPayload(commit))
	}
	return items, nil
}

func (s *Service) DecisionLog(ctx context.Context, planID string, limit int, session Session) ([]map[string]any, error) {
	if _, err := s.loadPlanForViewer(ctx, planID, session); err != nil {
		return nil, err
	}
	entries, err := s.store.ListDecisionLog(ctx, planID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, map[string]any{
			"id":         entry.ID,
			"planId":     entry.PlanID,
			"pass":       entry.Pass,
			"action":     entry.Action,
			"note":       entry.Note,
			"decidedBy":  entry.DecidedBy,
			"decidedAt":  entry.DecidedAt,
			"commitHash": entry.CommitHash,
		})
	}
	return items, nil
}

func (s *Service) Search(ctx context.Context, text, filterType, planID string, limit, offset int, session Session) (search.Response, error) {
	query := search.Query{
		Text:       text,
		FilterType: search.ResultType(filterType),
		PlanID:     planID,
		Limit:      limit,
		Offset:     offset,
	}
	if rbac.Normalize(session.Role) == rbac.RoleInvestor {
		query.InvestorID = session.UserID
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(query), nil
}

func (s *Service) ExportPlan(ctx context.Context, req export.Request, session Session) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export service not configured", nil)
	}
	if _, err := s.loadPlanForViewer(ctx, req.PlanID, session); err != nil {
		return nil, err
	}
	return s.export.Export(ctx, req)
}

// --- attachments ---

func (s *Service) UploadAttachment(ctx context.Context, planID, fileName, contentType string, size int64, r io.Reader, session Session) (map[string]any, error) {
	if s.attach == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	plan, err := s.loadPlanForViewer(ctx, planID, session)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(plan, session); err != nil {
		return nil, err
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "fileName is required", nil)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	attachment := store.Attachment{
		ID:          util.NewID("att"),
		PlanID:      planID,
		FileName:    fileName,
		ContentType: contentType,
		Size:        size,
		UploadedBy:  session.UserName,
	}
	attachment.ObjectKey = attach.ObjectKey(planID, attachment.ID, fileName)

	if err := s.attach.Upload(ctx, attachment.ObjectKey, r, size, contentType); err != nil {
		return nil, err
	}
	if err := s.store.InsertAttachment(ctx, attachment); err != nil {
		// Orphaned object; remove it so storage does not leak.
		_ = s.attach.Delete(ctx, attachment.ObjectKey)
		return nil, err
	}
	return attachmentPayload(attachment), nil
}

func (s *Service) ListPlanAttachments(ctx context.Context, planID string, session Session) ([]map[string]any, error) {
	if _, err := s.loadPlanForViewer(ctx, planID, session); err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachments(ctx, planID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(attachments))
	for _, attachment := range attachments {
		items = append(items, attachmentPayload(attachment))
	}
	return items, nil
}

func (s *Service) OpenAttachment(ctx context.Context, planID, attachmentID string, session Session) (store.Attachment, io.ReadCloser, error) {
	if s.attach == nil {
		return store.Attachment{}, nil, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	if _, err := s.loadPlanForViewer(ctx, planID, session); err != nil {
		return store.Attachment{}, nil, err
	}
	attachment, err := s.store.GetAttachment(ctx, planID, attachmentID)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	body, err := s.attach.Download(ctx, attachment.ObjectKey)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	return attachment, body, nil
}

// presignExpiry bounds how long a direct download link stays valid.
const presignExpiry = 15 * time.Minute

// PresignAttachment returns a short-lived direct download URL so large files
// are served by the object store instead of streaming through the API.
func (s *Service) PresignAttachment(ctx context.Context, planID, attachmentID string, session Session) (map[string]any, error) {
	if s.attach == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	if _, err := s.loadPlanForViewer(ctx, planID, session); err != nil {
		return nil, err
	}
	attachment, err := s.store.GetAttachment(ctx, planID, attachmentID)
	if err != nil {
		return nil, err
	}
	url, err := s.attach.PresignDownload(ctx, attachment.ObjectKey, presignExpiry)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"url":       url,
		"fileName":  attachment.FileName,
		"expiresIn": int(presignExpiry.Seconds()),
	}, nil
}

func (s *Service) DeleteAttachment(ctx context.Context, planID, attachmentID string, session Session) error {
	if s.attach == nil {
		return domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	plan, err := s.loadPlanForViewer(ctx, planID, session)
	if err != nil {
		return err
	}
	if err := s.requireOwner(plan, session); err != nil {
		return err
	}
	attachment, err := s.store.GetAttachment(ctx, planID, attachmentID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAttachment(ctx, planID, attachmentID); err != nil {
		return err
	}
	_ = s.attach.Delete(ctx, attachment.ObjectKey)
	return nil
}

// --- helpers ---

// loadPlanForViewer fetches a plan and hides other investors' plans behind a
// not-found, so plan IDs cannot be probed.
func (s *Service) loadPlanForViewer(ctx context.Context, planID string, session Session) (store.Plan, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return store.Plan{}, err
	}
	if rbac.Normalize(session.Role) == rbac.RoleInvestor && plan.InvestorID != session.UserID {
		return store.Plan{}, sql.ErrNoRows
	}
	return plan, nil
}

func (s *Service) requireOwner(plan store.Plan, session Session) error {
	if rbac.Normalize(session.Role) == rbac.RoleAdmin {
		return nil
	}
	if plan.InvestorID != session.UserID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the plan owner may do this", nil)
	}
	return nil
}

func (s *Service) recordDecision(ctx context.Context, plan store.Plan, pass int, action, note, decidedBy, commitHash string) {
	entry := store.DecisionLogEntry{
		PlanID:     plan.ID,
		Pass:       pass,
		Action:     action,
		Note:       note,
		DecidedBy:  decidedBy,
		CommitHash: commitHash,
	}
	if err := s.store.InsertDecisionLog(ctx, entry); err != nil {
		log.Printf("app: record decision %s for plan %s: %v", action, plan.ID, err)
		return
	}
	if s.search != nil {
		s.search.IndexDecision(search.DecisionRecord{
			ID:         fmt.Sprintf("%s-%s-%d", plan.ID, action, pass),
			Note:       note,
			Action:     action,
			PlanID:     plan.ID,
			InvestorID: plan.InvestorID,
		})
	}
}

// notifyDecision emails the investor about a decision. Best effort in the
// background; the decision stands whether or not the mail goes out.
func (s *Service) notifyDecision(ctx context.Context, plan store.Plan, outcome, note string, commentCount int) {
	if s.mail == nil || !s.mail.IsConfigured() {
		return
	}
	investor, err := s.store.GetUserByID(ctx, plan.InvestorID)
	if err != nil {
		log.Printf("app: notify decision for plan %s: %v", plan.ID, err)
		return
	}
	go func() {
		if err := s.mail.SendDecisionEmail(investor.Email, investor.DisplayName, plan.Title, outcome, note, commentCount); err != nil {
			log.Printf("app: decision email for plan %s: %v", plan.ID, err)
		}
	}()
}

func (s *Service) indexPlan(plan store.Plan) {
	if s.search == nil {
		return
	}
	s.search.IndexPlan(search.PlanRecord{
		ID:           plan.ID,
		Title:        plan.Title,
		PlanType:     plan.PlanType,
		Status:       plan.Status,
		InvestorID:   plan.InvestorID,
		InvestorName: plan.InvestorName,
	})
}

func toPageComments(rows []store.ReviewComment) []review.PageComment {
	comments := make([]review.PageComment, 0, len(rows))
	for _, row := range rows {
		comment := review.PageComment{
			PageTitle: row.PageTitle,
			Text:      row.Comment,
		}
		for _, field := range row.Fields {
			comment.Fields = append(comment.Fields, review.FieldRef{
				Section:  field.Section,
				InputKey: field.InputKey,
				RowID:    field.RowID,
				Label:    field.Label,
				Value:    field.Value,
			})
		}
		comments = append(comments, comment)
	}
	return comments
}

func transitionError(from, to string) *DomainError {
	return domainError(http.StatusConflict, "INVALID_TRANSITION",
		fmt.Sprintf("Plan cannot move from %s to %s", from, to), map[string]any{
			"from": from,
			"to":   to,
		})
}

func planPayload(plan store.Plan) map[string]any {
	return map[string]any{
		"id":                plan.ID,
		"planType":          plan.PlanType,
		"title":             plan.Title,
		"status":            plan.Status,
		"investorId":        plan.InvestorID,
		"investorName":      plan.InvestorName,
		"reviewPass":        plan.ReviewPass,
		"lastSubmittedHash": plan.LastSubmittedHash,
		"updatedBy":         plan.UpdatedBy,
		"updatedAt":         plan.UpdatedAt,
	}
}

func commitPayload(commit store.CommitInfo) map[string]any {
	return map[string]any{
		"hash":      commit.Hash,
		"message":   commit.Message,
		"author":    commit.Author,
		"createdAt": commit.CreatedAt,
	}
}

func attachmentPayload(attachment store.Attachment) map[string]any {
	return map[string]any{
		"id":          attachment.ID,
		"planId":      attachment.PlanID,
		"fileName":    attachment.FileName,
		"contentType": attachment.ContentType,
		"size":        attachment.Size,
		"uploadedBy":  attachment.UploadedBy,
		"createdAt":   attachment.CreatedAt,
	}
}
