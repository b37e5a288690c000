// ABOUTME: Working-directory resolution with allow-list containment checks.
// ABOUTME: Every path a conversation binds to must live under a configured root.

package workdir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/coven-connect/internal/store"
)

// Validation errors. Callers match with errors.Is to shape user-facing
// messages without parsing strings.
var (
	ErrOutsideRoots = errors.New("path is outside the allowed workspace roots")
	ErrNotDirectory = errors.New("path is not a directory")
	ErrNoRoots      = errors.New("no workspace roots configured")
)

// Manager validates and persists conversation workdir bindings. Paths are
// only accepted when they resolve, after cleaning, to a directory under
// one of the allow-listed roots.
type Manager struct {
	roots  []string
	assoc  store.Associations
	logger *slog.Logger
}

// New builds a Manager. Roots are expanded (leading ~) and absolutized
// once; a root that cannot be resolved is rejected here rather than at
// first use.
func New(roots []string, assoc store.Associations, logger *slog.Logger) (*Manager, error) {
	if len(roots) == 0 {
		return nil, ErrNoRoots
	}
	if logger == nil {
		logger = slog.Default()
	}

	resolved := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := normalize(r)
		if err != nil {
			return nil, fmt.Errorf("workspace root %q: %w", r, err)
		}
		resolved = append(resolved, abs)
	}

	return &Manager{
		roots:  resolved,
		assoc:  assoc,
		logger: logger.With("component", "workdir"),
	}, nil
}

// Roots returns the resolved allow-list.
func (m *Manager) Roots() []string {
	out := make([]string, len(m.roots))
	copy(out, m.roots)
	return out
}

// Validate checks that path names an existing directory inside the
// allow-list. Returns the cleaned absolute path.
func (m *Manager) Validate(path string) (string, error) {
	abs, err := normalize(path)
	if err != nil {
		return "", err
	}

	if !m.contained(abs) {
		return "", fmt.Errorf("%q: %w", path, ErrOutsideRoots)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("checking %q: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%q: %w", path, ErrNotDirectory)
	}
	return abs, nil
}

// Bind validates path and persists it as the conversation's working
// directory.
func (m *Manager) Bind(ctx context.Context, a store.Association) (string, error) {
	abs, err := m.Validate(a.WorkingDir)
	if err != nil {
		return "", err
	}
	a.WorkingDir = abs
	if err := m.assoc.Associate(ctx, a); err != nil {
		return "", err
	}
	m.logger.Info("bound working directory", "conversation", a.ConversationID, "dir", abs)
	return abs, nil
}

// Resolve returns the conversation's bound working directory, or the
// first allow-list root when nothing is bound. Stale bindings whose
// directory no longer passes validation fall back the same way.
func (m *Manager) Resolve(ctx context.Context, conversationID string) string {
	a, err := m.assoc.Lookup(ctx, conversationID)
	if err == nil {
		if abs, verr := m.Validate(a.WorkingDir); verr == nil {
			return abs
		}
		m.logger.Warn("stored working directory no longer valid",
			"conversation", conversationID, "dir", a.WorkingDir)
	} else if !errors.Is(err, store.ErrNotFound) {
		m.logger.Warn("could not look up working directory",
			"conversation", conversationID, "error", err)
	}
	return m.roots[0]
}

// Unbind removes the conversation's binding.
func (m *Manager) Unbind(ctx context.Context, conversationID string) error {
	return m.assoc.Remove(ctx, conversationID)
}

// contained reports whether abs (already cleaned and absolute) is one of
// the roots or inside one.
func (m *Manager) contained(abs string) bool {
	for _, root := range m.roots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// normalize expands a leading ~, absolutizes, and cleans. The result has
// no "." or ".." elements, so prefix checks against it are meaningful.
func normalize(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", path, err)
	}
	return filepath.Clean(abs), nil
}
