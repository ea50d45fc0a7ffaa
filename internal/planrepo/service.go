// Package planrepo versions localization-plan content with git. Each plan
// owns one repository; every draft save is a commit and every submission
// pass is tagged, so the review workflow can read the exact values the
// reviewer saw when diffing an investor's corrections.
package planrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"tawteen/api/internal/review"
	"tawteen/api/internal/store"
)

// Row is one entry of a repeated table structure (a value-chain line item,
// a shareholder row). Its ID is the rowId carried by flagged fields.
type Row struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Section is one wizard step's data: scalar fields plus optional repeated
// rows.
type Section struct {
	Fields map[string]string `json:"fields,omitempty"`
	Rows   []Row             `json:"rows,omitempty"`
}

// Content is the full plan document keyed by section name.
type Content struct {
	Sections map[string]Section `json:"sections"`
}

// Resolve looks up the current value of one flagged field. Fields with a
// row id resolve inside the matching row only; a missing section, key, or
// row reports false.
func (c Content) Resolve(ref review.FieldRef) (string, bool) {
	section, ok := c.Sections[ref.Section]
	if !ok {
		return "", false
	}
	if ref.RowID == "" {
		value, ok := section.Fields[ref.InputKey]
		return value, ok
	}
	for _, row := range section.Rows {
		if row.ID != ref.RowID {
			continue
		}
		value, ok := row.Fields[ref.InputKey]
		return value, ok
	}
	return "", false
}

// Equal reports whether two contents serialize identically.
func Equal(a, b Content) bool {
	left, errA := json.Marshal(a)
	right, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(left) == string(right)
}

// Service stores plan repositories under a base directory, one per plan,
// serialized per plan by an in-process lock.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsurePlanRepo initializes the repository for a plan with its first draft.
// Existing repositories are left untouched.
func (s *Service) EnsurePlanRepo(planID string, initial Content, author string) error {
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(planID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal initial content: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "plan.json"), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write initial content: %w", err)
	}
	if _, err := worktree.Add("plan.json"); err != nil {
		return fmt.Errorf("git add initial content: %w", err)
	}
	hash, err := worktree.Commit("Start plan draft", &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return fmt.Errorf("commit initial content: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// CommitContent records a draft save as a commit on the plan's main branch.
func (s *Service) CommitContent(planID string, content Content, author, message string) (store.CommitInfo, error) {
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(planID))
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("marshal content: %w", err)
	}
	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, "plan.json"), append(payload, '\n'), 0o644); err != nil {
		return store.CommitInfo{}, fmt.Errorf("write plan.json: %w", err)
	}
	if _, err := worktree.Add("plan.json"); err != nil {
		return store.CommitInfo{}, fmt.Errorf("git add content: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(author),
	})
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("commit content: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// HeadContent reads the latest draft and its commit.
func (s *Service) HeadContent(planID string) (Content, store.CommitInfo, error) {
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(planID))
	if err != nil {
		return Content{}, store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return Content{}, store.CommitInfo{}, fmt.Errorf("resolve main: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Content{}, store.CommitInfo{}, fmt.Errorf("load commit object: %w", err)
	}
	content, err := readContentFromCommit(commitObj)
	if err != nil {
		return Content{}, store.CommitInfo{}, err
	}
	return content, toCommitInfo(commitObj), nil
}

// ContentAt reads the plan content at a specific commit or tag, typically
// the last submission tag when diffing a resubmission.
func (s *Service) ContentAt(planID, rev string) (Content, error) {
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(planID))
	if err != nil {
		return Content{}, fmt.Errorf("open repo: %w", err)
	}
	resolvedHash, err := resolveHash(repo, rev)
	if err != nil {
		return Content{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Content{}, fmt.Errorf("read commit %s: %w", rev, err)
	}
	return readContentFromCommit(commitObj)
}

// TagSubmission marks a commit as submission pass n (`submission-n`).
func (s *Service) TagSubmission(planID, hash string, pass int) error {
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(planID))
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return err
	}

	name := SubmissionTag(pass)
	_, err = repo.CreateTag(name, resolvedHash, &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  "Tawteen",
			Email: "tawteen@localhost",
			When:  time.Now(),
		},
		Message: name,
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// SubmissionTag names the tag for submission pass n.
func SubmissionTag(pass int) string {
	return fmt.Sprintf("submission-%d", pass)
}

// History lists the newest commits on the plan, newest first.
func (s *Service) History(planID string, limit int) ([]store.CommitInfo, error) {
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(planID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (s *Service) repoPath(planID string) string {
	return filepath.Join(s.baseDir, planID)
}

func (s *Service) planLock(planID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[planID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[planID] = lock
	return lock
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.tawteen.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func readContentFromCommit(commitObj *object.Commit) (Content, error) {
	file, err := commitObj.File("plan.json")
	if err != nil {
		return Content{}, fmt.Errorf("load plan.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Content{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Content{}, fmt.Errorf("read content bytes: %w", err)
	}

	var content Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return Content{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String(),
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
