package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/aulago/classroom-api/internal/models"
	appErrors "github.com/aulago/classroom-api/pkg/errors"
	"github.com/aulago/classroom-api/pkg/export"
)

const periodCurrent = "current"

var monthPeriodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

type performanceUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListActiveTeachers(ctx context.Context) ([]models.User, error)
}

type performanceAssignmentRepository interface {
	ListByTeacherCreatedBetween(ctx context.Context, teacherID string, start, end time.Time) ([]models.Assignment, error)
	CountByTeacher(ctx context.Context, teacherID string) (int, error)
}

type performanceSubmissionRepository interface {
	ListByAssignmentIDs(ctx context.Context, assignmentIDs []string) ([]models.Submission, error)
	CountByTeacher(ctx context.Context, teacherID string) (int, error)
}

type snapshotRepository interface {
	Upsert(ctx context.Context, snapshot *models.PerformanceSnapshot) error
	FindLatestByTeacher(ctx context.Context, teacherID string) (*models.PerformanceSnapshot, error)
}

// ExportFormat selects the rendering for performance exports.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ExportResult carries a rendered export document.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// PerformanceService derives per-teacher grading metrics for a period,
// persists them as snapshots, and serves director-facing overviews.
type PerformanceService struct {
	users       performanceUserRepository
	assignments performanceAssignmentRepository
	submissions performanceSubmissionRepository
	snapshots   snapshotRepository
	cache       *CacheService
	metrics     *MetricsService
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewPerformanceService constructs a PerformanceService.
func NewPerformanceService(
	users performanceUserRepository,
	assignments performanceAssignmentRepository,
	submissions performanceSubmissionRepository,
	snapshots snapshotRepository,
	cache *CacheService,
	metrics *MetricsService,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *PerformanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PerformanceService{
		users:       users,
		assignments: assignments,
		submissions: submissions,
		snapshots:   snapshots,
		cache:       cache,
		metrics:     metrics,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		cacheTTL:    cacheTTL,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// resolvePeriod normalizes the requested period and computes its half-open
// [start, end) window. "current" (or empty) covers the trailing 30 days;
// "YYYY-MM" covers that calendar month in UTC.
func resolvePeriod(period string, now time.Time) (string, models.PeriodWindow, error) {
	if period == "" || period == periodCurrent {
		return periodCurrent, models.PeriodWindow{Start: now.Add(-30 * 24 * time.Hour), End: now}, nil
	}
	if !monthPeriodPattern.MatchString(period) {
		return "", models.PeriodWindow{}, appErrors.Clone(appErrors.ErrValidation, "period must be \"current\" or YYYY-MM")
	}
	start, err := time.ParseInLocation("2006-01", period, time.UTC)
	if err != nil {
		return "", models.PeriodWindow{}, appErrors.Clone(appErrors.ErrValidation, "period must be \"current\" or YYYY-MM")
	}
	return period, models.PeriodWindow{Start: start, End: start.AddDate(0, 1, 0)}, nil
}

// feedbackQuality scores one graded submission on a 2..5 scale: longer
// feedback and non-integer grades count as signals of careful grading.
func feedbackQuality(submission models.Submission) float64 {
	score := 2.0
	if submission.Feedback != nil {
		length := len(*submission.Feedback)
		if length > 50 {
			score++
		}
		if length > 100 {
			score++
		}
	}
	if submission.Grade != nil && *submission.Grade != math.Trunc(*submission.Grade) {
		score++
	}
	return math.Min(score, 5)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// computeMetrics derives the metric block from a window's assignments and
// their submissions.
func computeMetrics(assignments []models.Assignment, submissions []models.Submission) models.PerformanceMetrics {
	metrics := models.PerformanceMetrics{
		AssignmentsCreated: len(assignments),
		TotalSubmissions:   len(submissions),
	}

	var gradeSum, gradingHours, qualitySum float64
	var timedCount int
	for _, sub := range submissions {
		if !sub.IsGraded() {
			continue
		}
		metrics.GradedSubmissions++
		gradeSum += *sub.Grade
		qualitySum += feedbackQuality(sub)
		if sub.GradedAt != nil {
			gradingHours += sub.GradedAt.Sub(sub.SubmittedAt).Hours()
			timedCount++
		}
	}

	if metrics.TotalSubmissions > 0 {
		metrics.GradingRate = round2(float64(metrics.GradedSubmissions) / float64(metrics.TotalSubmissions) * 100)
	}
	if metrics.GradedSubmissions > 0 {
		metrics.AverageGrade = round2(gradeSum / float64(metrics.GradedSubmissions))
		metrics.FeedbackQualityScore = round2(qualitySum / float64(metrics.GradedSubmissions))
	}
	if timedCount > 0 {
		metrics.AverageGradingTimeHours = round2(gradingHours / float64(timedCount))
	}
	return metrics
}

// GetTeacherPerformance computes (or serves from cache) the performance
// report for one teacher and period, refreshing the stored snapshot.
func (s *PerformanceService) GetTeacherPerformance(ctx context.Context, teacherID, period string) (*models.TeacherPerformance, error) {
	teacher, err := s.resolveTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	normalized, window, err := resolvePeriod(period, s.now())
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("performance:%s:%s", teacher.ID, normalized)
	var cached models.TeacherPerformance
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	report, err := s.compute(ctx, teacher, normalized, window)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cacheKey, report, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache performance report", zap.String("teacher_id", teacher.ID), zap.Error(err))
	}
	return report, nil
}

func (s *PerformanceService) compute(ctx context.Context, teacher *models.User, period string, window models.PeriodWindow) (*models.TeacherPerformance, error) {
	start := time.Now()

	assignments, err := s.assignments.ListByTeacherCreatedBetween(ctx, teacher.ID, window.Start, window.End)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load window assignments")
	}

	ids := make([]string, len(assignments))
	for i, assignment := range assignments {
		ids[i] = assignment.ID
	}
	submissions, err := s.submissions.ListByAssignmentIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load window submissions")
	}
	s.metrics.ObserveDBQuery("performance_window", time.Since(start))

	metrics := computeMetrics(assignments, submissions)

	perAssignment := make(map[string]int, len(assignments))
	for _, sub := range submissions {
		perAssignment[sub.AssignmentID]++
	}
	activity := make([]models.AssignmentActivity, 0, len(assignments))
	for _, assignment := range assignments {
		activity = append(activity, models.AssignmentActivity{
			ID:          assignment.ID,
			Title:       assignment.Title,
			DueDate:     assignment.DueDate,
			Submissions: perAssignment[assignment.ID],
		})
	}

	// Rolling-window requests are stored under the window's end month so
	// stored periods stay uniform YYYY-MM keys and sort chronologically.
	snapshotPeriod := period
	if snapshotPeriod == periodCurrent {
		snapshotPeriod = window.End.UTC().Format("2006-01")
	}

	snapshot := &models.PerformanceSnapshot{
		TeacherID:               teacher.ID,
		Period:                  snapshotPeriod,
		AssignmentsCreated:      metrics.AssignmentsCreated,
		TotalSubmissions:        metrics.TotalSubmissions,
		GradedSubmissions:       metrics.GradedSubmissions,
		GradingRate:             metrics.GradingRate,
		AverageGradingTimeHours: metrics.AverageGradingTimeHours,
		AverageGrade:            metrics.AverageGrade,
		FeedbackQualityScore:    metrics.FeedbackQualityScore,
	}
	if err := s.snapshots.Upsert(ctx, snapshot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store performance snapshot")
	}

	return &models.TeacherPerformance{
		Teacher:     teacher.Info(),
		Period:      window,
		Metrics:     metrics,
		Assignments: activity,
	}, nil
}

// ComputeAllTeachers refreshes the period snapshot for every active
// teacher. Failures for individual teachers are logged and skipped.
func (s *PerformanceService) ComputeAllTeachers(ctx context.Context, period string) (int, error) {
	normalized, window, err := resolvePeriod(period, s.now())
	if err != nil {
		return 0, err
	}

	teachers, err := s.users.ListActiveTeachers(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}

	computed := 0
	for i := range teachers {
		teacher := teachers[i]
		if _, err := s.compute(ctx, &teacher, normalized, window); err != nil {
			s.logger.Warn("failed to compute teacher performance",
				zap.String("teacher_id", teacher.ID),
				zap.Error(err),
			)
			continue
		}
		computed++
	}
	return computed, nil
}

// ListTeacherOverviews returns the director's all-teachers view: lifetime
// totals plus each teacher's most recent stored snapshot.
func (s *PerformanceService) ListTeacherOverviews(ctx context.Context) ([]models.TeacherOverview, error) {
	teachers, err := s.users.ListActiveTeachers(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}

	overviews := make([]models.TeacherOverview, 0, len(teachers))
	for i := range teachers {
		teacher := teachers[i]

		totalAssignments, err := s.assignments.CountByTeacher(ctx, teacher.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count assignments")
		}
		totalSubmissions, err := s.submissions.CountByTeacher(ctx, teacher.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count submissions")
		}

		snapshot, err := s.snapshots.FindLatestByTeacher(ctx, teacher.ID)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load snapshot")
			}
			snapshot = nil
		}

		overviews = append(overviews, models.TeacherOverview{
			Teacher: teacher.Info(),
			Overview: models.TeacherTotals{
				TotalAssignments: totalAssignments,
				TotalSubmissions: totalSubmissions,
			},
			RecentSnapshot: snapshot,
		})
	}
	return overviews, nil
}

// Export renders a teacher's performance report as CSV or PDF.
func (s *PerformanceService) Export(ctx context.Context, teacherID, period string, format ExportFormat) (*ExportResult, error) {
	report, err := s.GetTeacherPerformance(ctx, teacherID, period)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Metric", "Value"},
		Rows: []map[string]string{
			{"Metric": "Teacher", "Value": report.Teacher.FullName},
			{"Metric": "Period start", "Value": report.Period.Start.Format(time.RFC3339)},
			{"Metric": "Period end", "Value": report.Period.End.Format(time.RFC3339)},
			{"Metric": "Assignments created", "Value": fmt.Sprintf("%d", report.Metrics.AssignmentsCreated)},
			{"Metric": "Total submissions", "Value": fmt.Sprintf("%d", report.Metrics.TotalSubmissions)},
			{"Metric": "Graded submissions", "Value": fmt.Sprintf("%d", report.Metrics.GradedSubmissions)},
			{"Metric": "Grading rate (%)", "Value": fmt.Sprintf("%.2f", report.Metrics.GradingRate)},
			{"Metric": "Average grading time (h)", "Value": fmt.Sprintf("%.2f", report.Metrics.AverageGradingTimeHours)},
			{"Metric": "Average grade", "Value": fmt.Sprintf("%.2f", report.Metrics.AverageGrade)},
			{"Metric": "Feedback quality score", "Value": fmt.Sprintf("%.2f", report.Metrics.FeedbackQualityScore)},
		},
	}

	base := fmt.Sprintf("performance_%s_%s", report.Teacher.ID, s.now().Format("20060102"))
	switch format {
	case ExportCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportResult{Content: content, ContentType: "text/csv", Filename: base + ".csv"}, nil
	case ExportPDF:
		content, err := s.pdf.Render(dataset, "Teacher Performance Report")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportResult{Content: content, ContentType: "application/pdf", Filename: base + ".pdf"}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func (s *PerformanceService) resolveTeacher(ctx context.Context, teacherID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if user.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return user, nil
}
