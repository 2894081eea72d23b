package models

import "time"

// PerformanceSnapshot caches the derived per-teacher metrics for one
// period, keyed uniquely by (teacher_id, period). It is recomputed and
// overwritten on every performance query; never a source of truth.
type PerformanceSnapshot struct {
	ID                      string    `db:"id" json:"id"`
	TeacherID               string    `db:"teacher_id" json:"teacher_id"`
	Period                  string    `db:"period" json:"period"`
	AssignmentsCreated      int       `db:"assignments_created" json:"assignments_created"`
	TotalSubmissions        int       `db:"total_submissions" json:"total_submissions"`
	GradedSubmissions       int       `db:"graded_submissions" json:"graded_submissions"`
	GradingRate             float64   `db:"grading_rate" json:"grading_rate"`
	AverageGradingTimeHours float64   `db:"average_grading_time_hours" json:"average_grading_time_hours"`
	AverageGrade            float64   `db:"average_grade" json:"average_grade"`
	FeedbackQualityScore    float64   `db:"feedback_quality_score" json:"feedback_quality_score"`
	CreatedAt               time.Time `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time `db:"updated_at" json:"updated_at"`
}

// PeriodWindow is the resolved [start, end] interval a snapshot covers.
type PeriodWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// PerformanceMetrics carries the derived metric values for one window.
type PerformanceMetrics struct {
	AssignmentsCreated      int     `json:"assignments_created"`
	TotalSubmissions        int     `json:"total_submissions"`
	GradedSubmissions       int     `json:"graded_submissions"`
	GradingRate             float64 `json:"grading_rate"`
	AverageGradingTimeHours float64 `json:"average_grading_time_hours"`
	AverageGrade            float64 `json:"average_grade"`
	FeedbackQualityScore    float64 `json:"feedback_quality_score"`
}

// AssignmentActivity summarizes one assignment inside a performance report.
type AssignmentActivity struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	DueDate     time.Time `json:"due_date"`
	Submissions int       `json:"submissions"`
}

// TeacherPerformance is the full report served for one teacher and period.
type TeacherPerformance struct {
	Teacher     UserInfo             `json:"teacher"`
	Period      PeriodWindow         `json:"period"`
	Metrics     PerformanceMetrics   `json:"metrics"`
	Assignments []AssignmentActivity `json:"assignments"`
}

// TeacherTotals carries lifetime counters for the all-teachers overview.
type TeacherTotals struct {
	TotalAssignments int `json:"total_assignments"`
	TotalSubmissions int `json:"total_submissions"`
}

// TeacherOverview pairs a teacher with lifetime totals and the most recent
// stored snapshot (not recomputed).
type TeacherOverview struct {
	Teacher        UserInfo             `json:"teacher"`
	Overview       TeacherTotals        `json:"overview"`
	RecentSnapshot *PerformanceSnapshot `json:"recent_performance"`
}
