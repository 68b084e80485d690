// Package registry keeps the solved-problem registry in step with its sources.
// A source is a local directory or a git repository laid out as
// <root>/<user>/**/*.md, where each file holds solved-problem blocks.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/revisit/internal/clock"
	"github.com/conorfennell/revisit/internal/domain"
	"github.com/conorfennell/revisit/internal/gitsource"
	"github.com/conorfennell/revisit/internal/parser"
	"github.com/conorfennell/revisit/internal/storage"
)

// Store is the persistence the syncer needs.
type Store interface {
	InsertSource(ctx context.Context, path, sourceType string) (int64, error)
	FindSourceByPath(ctx context.Context, path string) (*storage.Source, error)
	GetAllSources(ctx context.Context) ([]storage.Source, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error
	ReplaceSolvedProblems(ctx context.Context, sourceID int64, problems []domain.SolvedProblem) error
	DeleteSource(ctx context.Context, sourceID int64) error
}

// GitSyncFunc clones or pulls a repository into a local path.
type GitSyncFunc func(ctx context.Context, url, localPath string, progress io.Writer) error

// Syncer reconciles registry sources into the store.
type Syncer struct {
	store    Store
	clock    clock.Clock
	logger   *slog.Logger
	reposDir string
	gitSync  GitSyncFunc
	progress io.Writer
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithGitSync replaces the git clone/pull step.
func WithGitSync(fn GitSyncFunc) Option {
	return func(s *Syncer) { s.gitSync = fn }
}

// WithProgress sends git progress output to w.
func WithProgress(w io.Writer) Option {
	return func(s *Syncer) { s.progress = w }
}

// NewSyncer returns a Syncer that clones git sources under reposDir.
func NewSyncer(store Store, clk clock.Clock, logger *slog.Logger, reposDir string, opts ...Option) *Syncer {
	s := &Syncer{
		store:    store,
		clock:    clk,
		logger:   logger,
		reposDir: reposDir,
		gitSync:  gitsource.Sync,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result summarizes the reconciliation of one source.
type Result struct {
	Source   storage.Source
	Problems int
	Err      error
}

// SourceType guesses whether path names a git repository or a local directory.
func SourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return storage.SourceGit
	}
	return storage.SourceLocal
}

// sourcePath validates path and makes local directories absolute, so a
// source is stored and looked up under one spelling.
func sourcePath(path string) (string, string, error) {
	if path == "" {
		return "", "", fmt.Errorf("%w: empty source path", domain.ErrInvalidInput)
	}
	sourceType := SourceType(path)
	if sourceType == storage.SourceLocal {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", "", fmt.Errorf("resolve source path %s: %w", path, err)
		}
		path = abs
	}
	return path, sourceType, nil
}

// AddSource registers path as a source unless it already is one.
func (s *Syncer) AddSource(ctx context.Context, path string) (int64, error) {
	path, sourceType, err := sourcePath(path)
	if err != nil {
		return 0, err
	}
	existing, err := s.store.FindSourceByPath(ctx, path)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}
	id, err := s.store.InsertSource(ctx, path, sourceType)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Source added", "id", id, "type", sourceType, "path", path)
	return id, nil
}

// RemoveSource unregisters path. The solved problems read from it leave the
// registry with it; review records already imported are kept.
func (s *Syncer) RemoveSource(ctx context.Context, path string) error {
	path, _, err := sourcePath(path)
	if err != nil {
		return err
	}
	existing, err := s.store.FindSourceByPath(ctx, path)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, path)
	}
	if err := s.store.DeleteSource(ctx, existing.ID); err != nil {
		return err
	}
	s.logger.Info("Source removed", "id", existing.ID, "path", path)
	return nil
}

// RunSync iterates over all sources and reconciles them. A failing source is
// reported in its Result and does not stop the others.
func (s *Syncer) RunSync(ctx context.Context) ([]Result, error) {
	s.logger.Info("Starting sync process for all sources...")
	sources, err := s.store.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("get sources: %w", err)
	}

	if len(sources) == 0 {
		s.logger.Info("No sources configured. Add one with: revisit source add <path/or/url.git>")
		return nil, nil
	}

	results := make([]Result, 0, len(sources))
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		s.logger.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)
		n, err := s.syncSource(ctx, source)
		if err != nil {
			s.logger.Error("Error syncing source", "id", source.ID, "path", source.Path, "error", err)
		}
		results = append(results, Result{Source: source, Problems: n, Err: err})
	}
	s.logger.Info("Sync process complete.", "sources", len(results))
	return results, nil
}

func (s *Syncer) syncSource(ctx context.Context, source storage.Source) (int, error) {
	root := source.Path
	if source.Type == storage.SourceGit {
		localRepoPath, err := gitURLToLocalPath(s.reposDir, source.Path)
		if err != nil {
			return 0, err
		}
		if err := os.MkdirAll(filepath.Dir(localRepoPath), 0o755); err != nil {
			return 0, fmt.Errorf("create repos directory: %w", err)
		}
		if err := s.gitSync(ctx, source.Path, localRepoPath, s.progress); err != nil {
			return 0, err
		}
		root = localRepoPath
	}

	problems, parseErrs, err := scan(root)
	if err != nil {
		return 0, err
	}
	if len(parseErrs) > 0 {
		// Bad blocks are skipped; the rest of the source still syncs.
		s.logger.Warn("Some registry entries could not be parsed", "path", root, "error", errors.Join(parseErrs...))
	}
	if err := s.store.ReplaceSolvedProblems(ctx, source.ID, problems); err != nil {
		return 0, err
	}
	if err := s.store.UpdateSourceLastScanned(ctx, source.ID, s.clock.Now()); err != nil {
		s.logger.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	s.logger.Info("reconciliation complete",
		"path", root,
		"solved_problems", len(problems),
	)
	return len(problems), nil
}

// scan walks root and parses every markdown file below a user directory.
// Parse failures are returned separately from walk failures so that a bad
// block never empties a source.
func scan(root string) ([]domain.SolvedProblem, []error, error) {
	var problems []domain.SolvedProblem
	var parseErrs []error

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 2 {
			return nil // files at the root belong to no user
		}
		userID := parts[0]

		fileProblems, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			parseErrs = append(parseErrs, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, p := range fileProblems {
			p.UserID = userID
			problems = append(problems, p)
		}
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", root, walkErr)
	}
	return problems, parseErrs, nil
}

func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("%w: could not parse git URL: %s", domain.ErrInvalidInput, repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
