// ABOUTME: Tests for workdir containment, traversal rejection, and binding fallback.

package workdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-connect/internal/store"
)

// memAssoc is an in-memory store.Associations.
type memAssoc struct {
	byID map[string]store.Association
}

func newMemAssoc() *memAssoc {
	return &memAssoc{byID: make(map[string]store.Association)}
}

func (m *memAssoc) Associate(ctx context.Context, a store.Association) error {
	m.byID[a.ConversationID] = a
	return nil
}

func (m *memAssoc) Lookup(ctx context.Context, conversationID string) (store.Association, error) {
	a, ok := m.byID[conversationID]
	if !ok {
		return store.Association{}, store.ErrNotFound
	}
	return a, nil
}

func (m *memAssoc) Remove(ctx context.Context, conversationID string) error {
	delete(m.byID, conversationID)
	return nil
}

func (m *memAssoc) List(ctx context.Context) ([]store.Association, error) {
	out := make([]store.Association, 0, len(m.byID))
	for _, a := range m.byID {
		out = append(out, a)
	}
	return out, nil
}

func testManager(t *testing.T) (*Manager, string, *memAssoc) {
	t.Helper()
	root := t.TempDir()
	assoc := newMemAssoc()
	m, err := New([]string{root}, assoc, nil)
	require.NoError(t, err)
	return m, root, assoc
}

func TestValidate_AcceptsDirUnderRoot(t *testing.T) {
	m, root, _ := testManager(t)
	proj := filepath.Join(root, "proj1")
	require.NoError(t, os.Mkdir(proj, 0o755))

	abs, err := m.Validate(proj)
	require.NoError(t, err)
	assert.Equal(t, proj, abs)

	// The root itself is allowed.
	abs, err = m.Validate(root)
	require.NoError(t, err)
	assert.Equal(t, root, abs)
}

func TestValidate_RejectsOutsideRoots(t *testing.T) {
	m, root, _ := testManager(t)

	cases := []string{
		"/etc/passwd",
		"/tmp",
		filepath.Join(root, "..", "elsewhere"),
		filepath.Join(root, "proj", "..", "..", "escape"),
	}
	for _, path := range cases {
		_, err := m.Validate(path)
		assert.ErrorIs(t, err, ErrOutsideRoots, "path %q", path)
	}
}

func TestValidate_PrefixSiblingIsOutside(t *testing.T) {
	// /tmp/xyz-evil must not pass containment for root /tmp/xyz.
	base := t.TempDir()
	root := filepath.Join(base, "work")
	evil := filepath.Join(base, "work-evil")
	require.NoError(t, os.Mkdir(root, 0o755))
	require.NoError(t, os.Mkdir(evil, 0o755))

	m, err := New([]string{root}, newMemAssoc(), nil)
	require.NoError(t, err)

	_, err = m.Validate(evil)
	assert.ErrorIs(t, err, ErrOutsideRoots)
}

func TestValidate_RejectsMissingAndNonDir(t *testing.T) {
	m, root, _ := testManager(t)

	_, err := m.Validate(filepath.Join(root, "does-not-exist"))
	assert.Error(t, err)

	file := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = m.Validate(file)
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestValidate_TraversalInsideRootIsCleaned(t *testing.T) {
	m, root, _ := testManager(t)
	proj := filepath.Join(root, "proj1")
	require.NoError(t, os.Mkdir(proj, 0o755))

	// Cleans to proj1, which is inside the root.
	abs, err := m.Validate(filepath.Join(root, "other", "..", "proj1"))
	require.NoError(t, err)
	assert.Equal(t, proj, abs)
}

func TestBind_PersistsCleanedPath(t *testing.T) {
	m, root, assoc := testManager(t)
	proj := filepath.Join(root, "proj1")
	require.NoError(t, os.Mkdir(proj, 0o755))

	abs, err := m.Bind(context.Background(), store.Association{
		ConversationID: "slack-C1",
		Platform:       "slack",
		ChannelID:      "C1",
		WorkingDir:     filepath.Join(root, ".", "proj1"),
	})
	require.NoError(t, err)
	assert.Equal(t, proj, abs)
	assert.Equal(t, proj, assoc.byID["slack-C1"].WorkingDir)
}

func TestBind_RejectionDoesNotPersist(t *testing.T) {
	m, _, assoc := testManager(t)

	_, err := m.Bind(context.Background(), store.Association{
		ConversationID: "slack-C1",
		WorkingDir:     "/etc",
	})
	require.ErrorIs(t, err, ErrOutsideRoots)
	assert.Empty(t, assoc.byID)
}

func TestResolve_FallsBackToFirstRoot(t *testing.T) {
	m, root, assoc := testManager(t)
	ctx := context.Background()

	// Nothing bound.
	assert.Equal(t, root, m.Resolve(ctx, "slack-C1"))

	// Bound and valid.
	proj := filepath.Join(root, "proj1")
	require.NoError(t, os.Mkdir(proj, 0o755))
	_, err := m.Bind(ctx, store.Association{ConversationID: "slack-C1", WorkingDir: proj})
	require.NoError(t, err)
	assert.Equal(t, proj, m.Resolve(ctx, "slack-C1"))

	// Binding goes stale: directory removed.
	require.NoError(t, os.Remove(proj))
	assert.Equal(t, root, m.Resolve(ctx, "slack-C1"))

	// Binding present but no longer under any root (roots reconfigured).
	assoc.byID["slack-C2"] = store.Association{ConversationID: "slack-C2", WorkingDir: "/somewhere/else"}
	assert.Equal(t, root, m.Resolve(ctx, "slack-C2"))
}

func TestNew_RequiresRoots(t *testing.T) {
	_, err := New(nil, newMemAssoc(), nil)
	assert.ErrorIs(t, err, ErrNoRoots)
}

func TestNew_ExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	m, err := New([]string{"~/workspace"}, newMemAssoc(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(home, "workspace")}, m.Roots())
}
