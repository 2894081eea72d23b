package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SubmissionStatus enumerates the lifecycle states of a submission.
type SubmissionStatus string

const (
	StatusSubmitted SubmissionStatus = "submitted"
	StatusLate      SubmissionStatus = "late"
	StatusGraded    SubmissionStatus = "graded"
)

// SubmissionFile references an uploaded file by metadata only; the bytes
// live in the upload store.
type SubmissionFile struct {
	Filename    string `json:"filename"`
	StoragePath string `json:"storage_path"`
	Size        int64  `json:"size"`
	MimeType    string `json:"mime_type"`
}

// SubmissionFiles is an ordered file list persisted as a JSONB column.
type SubmissionFiles []SubmissionFile

// Value implements driver.Valuer.
func (f SubmissionFiles) Value() (driver.Value, error) {
	if f == nil {
		f = SubmissionFiles{}
	}
	return json.Marshal(f)
}

// Scan implements sql.Scanner.
func (f *SubmissionFiles) Scan(src interface{}) error {
	if src == nil {
		*f = SubmissionFiles{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("unsupported submission files type %T", src)
	}
}

// Submission represents one student's delivery for an assignment. At most
// one submission exists per (assignment, student) pair; the store enforces
// this with a unique index.
type Submission struct {
	ID           string           `db:"id" json:"id"`
	AssignmentID string           `db:"assignment_id" json:"assignment_id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	Files        SubmissionFiles  `db:"files" json:"files"`
	Comment      *string          `db:"comment" json:"comment,omitempty"`
	SubmittedAt  time.Time        `db:"submitted_at" json:"submitted_at"`
	Grade        *float64         `db:"grade" json:"grade,omitempty"`
	Feedback     *string          `db:"feedback" json:"feedback,omitempty"`
	GradedAt     *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
	Status       SubmissionStatus `db:"status" json:"status"`
}

// IsGraded reports whether a grade has been assigned.
func (s *Submission) IsGraded() bool {
	return s.Grade != nil
}
