package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockFileLister struct {
	referenced map[string]struct{}
	err        error
}

func (m *mockFileLister) ListReferencedFilePaths(ctx context.Context) (map[string]struct{}, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.referenced, nil
}

type mockCleanableStore struct {
	candidates []string
	deleted    []string
}

func (m *mockCleanableStore) CleanupOlderThan(ttl time.Duration, keep func(rel string) bool) ([]string, error) {
	deleted := []string{}
	for _, rel := range m.candidates {
		if keep != nil && keep(rel) {
			continue
		}
		deleted = append(deleted, rel)
	}
	m.deleted = deleted
	return deleted, nil
}

func TestUploadJanitorSparesReferencedFiles(t *testing.T) {
	lister := &mockFileLister{referenced: map[string]struct{}{
		"submissions/live.pdf": {},
	}}
	store := &mockCleanableStore{candidates: []string{"submissions/live.pdf", "submissions/orphan.pdf"}}
	janitor := NewUploadJanitor(lister, store, 24*time.Hour, zap.NewNop())

	require.NoError(t, janitor.Run(context.Background()))
	assert.Equal(t, []string{"submissions/orphan.pdf"}, store.deleted)
}

func TestUploadJanitorPropagatesListerError(t *testing.T) {
	lister := &mockFileLister{err: errors.New("db down")}
	store := &mockCleanableStore{candidates: []string{"submissions/orphan.pdf"}}
	janitor := NewUploadJanitor(lister, store, 24*time.Hour, zap.NewNop())

	require.Error(t, janitor.Run(context.Background()))
	assert.Empty(t, store.deleted)
}
