package models

import "time"

// Assignment represents a task published by a teacher for students to
// submit against.
type Assignment struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	Instructions *string   `db:"instructions" json:"instructions,omitempty"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	DueDate      time.Time `db:"due_date" json:"due_date"`
	MaxPoints    int       `db:"max_points" json:"max_points"`
	IsPublished  bool      `db:"is_published" json:"is_published"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// IsOverdue reports whether the due date has passed. Derived, never stored.
func (a *Assignment) IsOverdue(now time.Time) bool {
	return now.After(a.DueDate)
}

// SubmissionStats aggregates submission counts for one assignment.
type SubmissionStats struct {
	Total   int `db:"total" json:"total_submissions"`
	Graded  int `db:"graded" json:"graded_submissions"`
	Pending int `db:"pending" json:"pending_submissions"`
}

// VisibleAssignment is an assignment as seen by a requester; for students
// it carries their own submission state.
type VisibleAssignment struct {
	Assignment
	Submitted  *bool       `json:"submitted,omitempty"`
	Submission *Submission `json:"submission,omitempty"`
}

// OwnedAssignment is an assignment annotated with submission stats for its
// owning teacher.
type OwnedAssignment struct {
	Assignment
	Stats SubmissionStats `json:"stats"`
}
