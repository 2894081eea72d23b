package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type referencedFileLister interface {
	ListReferencedFilePaths(ctx context.Context) (map[string]struct{}, error)
}

type cleanableStore interface {
	CleanupOlderThan(ttl time.Duration, keep func(rel string) bool) ([]string, error)
}

// UploadJanitor sweeps the upload store, removing stale files that no
// submission references (crashed uploads, files left behind by cascade
// deletes).
type UploadJanitor struct {
	submissions referencedFileLister
	uploads     cleanableStore
	ttl         time.Duration
	logger      *zap.Logger
}

// NewUploadJanitor constructs an UploadJanitor.
func NewUploadJanitor(submissions referencedFileLister, uploads cleanableStore, ttl time.Duration, logger *zap.Logger) *UploadJanitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadJanitor{submissions: submissions, uploads: uploads, ttl: ttl, logger: logger}
}

// Run performs one sweep. It is designed to be scheduled periodically.
func (j *UploadJanitor) Run(ctx context.Context) error {
	referenced, err := j.submissions.ListReferencedFilePaths(ctx)
	if err != nil {
		return err
	}

	deleted, err := j.uploads.CleanupOlderThan(j.ttl, func(rel string) bool {
		_, ok := referenced[rel]
		return ok
	})
	if err != nil {
		return err
	}

	if len(deleted) > 0 {
		j.logger.Info("removed orphaned upload files",
			zap.Int("count", len(deleted)),
			zap.Strings("files", deleted),
		)
	}
	return nil
}
