package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/submission"
)

const (
	submissionsTable       = "project_submissions"
	groupMilestonesTable   = "group_milestones"
	milestoneCommentsTable = "group_milestone_comments"
	milestoneGradesTable   = "group_milestone_grades"
)

var (
	submissionColumns = []string{
		"id", "group_id", "milestone_id", "content", "description", "file_path",
		"submitted_by", "submitted_at", "grade", "feedback", "graded_by", "graded_at",
	}
	groupMilestoneColumns = []string{
		"id", "group_id", "title", "description", "deadline", "is_completed", "created_by", "created_at",
		"assigned_to", "submitted_by", "submission_content", "submission_path", "submitted_at",
	}
	milestoneCommentColumns = []string{"id", "group_milestone_id", "author_id", "author_name", "author_role", "content", "created_at"}
	milestoneGradeColumns   = []string{"id", "group_milestone_id", "graded_by", "grader_name", "grader_role", "score", "feedback", "graded_at"}
)

type (
	submissionRow struct {
		ID          string       `db:"id"`
		GroupID     string       `db:"group_id"`
		MilestoneID string       `db:"milestone_id"`
		Content     string       `db:"content"`
		Description string       `db:"description"`
		FilePath    string       `db:"file_path"`
		SubmittedBy string       `db:"submitted_by"`
		SubmittedAt time.Time    `db:"submitted_at"`
		Grade       null.Float64 `db:"grade"`
		Feedback    string       `db:"feedback"`
		GradedBy    string       `db:"graded_by"`
		GradedAt    null.Time    `db:"graded_at"`
	}

	groupMilestoneRow struct {
		ID                string    `db:"id"`
		GroupID           string    `db:"group_id"`
		Title             string    `db:"title"`
		Description       string    `db:"description"`
		Deadline          null.Time `db:"deadline"`
		IsCompleted       bool      `db:"is_completed"`
		CreatedBy         string    `db:"created_by"`
		CreatedAt         time.Time `db:"created_at"`
		AssignedTo        string    `db:"assigned_to"`
		SubmittedBy       string    `db:"submitted_by"`
		SubmissionContent string    `db:"submission_content"`
		SubmissionPath    string    `db:"submission_path"`
		SubmittedAt       null.Time `db:"submitted_at"`
	}

	milestoneCommentRow struct {
		ID               string    `db:"id"`
		GroupMilestoneID string    `db:"group_milestone_id"`
		AuthorID         string    `db:"author_id"`
		AuthorName       string    `db:"author_name"`
		AuthorRole       string    `db:"author_role"`
		Content          string    `db:"content"`
		CreatedAt        time.Time `db:"created_at"`
	}

	milestoneGradeRow struct {
		ID               string    `db:"id"`
		GroupMilestoneID string    `db:"group_milestone_id"`
		GradedBy         string    `db:"graded_by"`
		GraderName       string    `db:"grader_name"`
		GraderRole       string    `db:"grader_role"`
		Score            float64   `db:"score"`
		Feedback         string    `db:"feedback"`
		GradedAt         time.Time `db:"graded_at"`
	}
)

type submissionRepository struct {
	baseRepo
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *sqlx.DB) *submissionRepository {
	return &submissionRepository{baseRepo{db: db}}
}

func (submissionRepository) unboil(row submissionRow) submission.Submission {
	return submission.Submission{
		ID:          row.ID,
		GroupID:     row.GroupID,
		MilestoneID: row.MilestoneID,
		Content:     row.Content,
		Description: row.Description,
		FilePath:    row.FilePath,
		SubmittedBy: row.SubmittedBy,
		SubmittedAt: row.SubmittedAt,
		Grade:       row.Grade.Ptr(),
		Feedback:    row.Feedback,
		GradedBy:    row.GradedBy,
		GradedAt:    row.GradedAt.Ptr(),
	}
}

func (submissionRepository) unboilMilestone(row groupMilestoneRow) submission.GroupMilestone {
	return submission.GroupMilestone{
		ID:                row.ID,
		GroupID:           row.GroupID,
		Title:             row.Title,
		Description:       row.Description,
		Deadline:          row.Deadline.Ptr(),
		IsCompleted:       row.IsCompleted,
		CreatedBy:         row.CreatedBy,
		CreatedAt:         row.CreatedAt,
		AssignedTo:        row.AssignedTo,
		SubmittedBy:       row.SubmittedBy,
		SubmissionContent: row.SubmissionContent,
		SubmissionPath:    row.SubmissionPath,
		SubmittedAt:       row.SubmittedAt.Ptr(),
	}
}

// excluded renders "col = EXCLUDED.col" for an ON CONFLICT update.
func excluded(cols ...string) string {
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		sets = append(sets, c+" = EXCLUDED."+c)
	}
	return strings.Join(sets, ", ")
}

func (repo submissionRepository) getSubmission(ctx context.Context, exec core.DBExecutor, where sq.Eq) (submission.Submission, error) {
	q, args, err := toSql(psql.Select(submissionColumns...).From(submissionsTable).Where(where))
	if err != nil {
		return submission.Submission{}, err
	}
	var row submissionRow
	if err = sqlx.GetContext(ctx, exec, &row, q, args...); err != nil {
		return submission.Submission{}, trapNoRowsErr(err, submission.ErrNotFound, "selecting submission")
	}
	return repo.unboil(row), nil
}

func (repo submissionRepository) GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (submission.Submission, error) {
	return repo.getSubmission(ctx, repo.getExec(exec), sq.Eq{"id": id})
}

func (repo submissionRepository) FindSubmission(ctx context.Context, groupID, milestoneID string, exec ...core.DBExecutor) (submission.Submission, error) {
	return repo.getSubmission(ctx, repo.getExec(exec), sq.Eq{"group_id": groupID, "milestone_id": milestoneID})
}

// UpsertSubmission relies on the (group_id, milestone_id) unique constraint, so racing submitters end up on one row.
func (repo submissionRepository) UpsertSubmission(ctx context.Context, s submission.Submission, exec ...core.DBExecutor) (submission.Submission, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	q, args, err := toSql(psql.Insert(submissionsTable).Columns(submissionColumns...).Values(
		s.ID, s.GroupID, s.MilestoneID, s.Content, s.Description, s.FilePath,
		s.SubmittedBy, s.SubmittedAt, null.Float64FromPtr(s.Grade), s.Feedback, s.GradedBy, nullTime(s.GradedAt),
	).Suffix(
		"ON CONFLICT (group_id, milestone_id) DO UPDATE SET " +
			excluded("content", "description", "file_path", "submitted_by", "submitted_at", "grade", "feedback", "graded_by", "graded_at") +
			" RETURNING id",
	))
	if err != nil {
		return submission.Submission{}, err
	}
	if err = repo.getExec(exec).QueryRowxContext(ctx, q, args...).Scan(&s.ID); err != nil {
		return submission.Submission{}, errors.Wrap(err, "upserting submission")
	}
	return s, nil
}

func (repo submissionRepository) UpdateSubmission(ctx context.Context, s submission.Submission, exec ...core.DBExecutor) (submission.Submission, error) {
	q, args, err := toSql(psql.Update(submissionsTable).SetMap(map[string]interface{}{
		"grade":     null.Float64FromPtr(s.Grade),
		"feedback":  s.Feedback,
		"graded_by": s.GradedBy,
		"graded_at": nullTime(s.GradedAt),
	}).Where(sq.Eq{"id": s.ID}))
	if err != nil {
		return submission.Submission{}, err
	}
	res, err := repo.getExec(exec).ExecContext(ctx, q, args...)
	if err != nil {
		return submission.Submission{}, errors.Wrap(err, "updating submission")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return submission.Submission{}, submission.ErrNotFound
	}
	return s, nil
}

func (repo submissionRepository) QuerySubmissions(ctx context.Context, groupID string, exec ...core.DBExecutor) ([]submission.Submission, error) {
	q, args, err := toSql(psql.Select(submissionColumns...).
		From(submissionsTable).
		Where(sq.Eq{"group_id": groupID}).
		OrderBy("submitted_at", "id"))
	if err != nil {
		return nil, err
	}
	var rows []submissionRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting submissions")
	}
	subs := make([]submission.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, repo.unboil(row))
	}
	return subs, nil
}

func (repo submissionRepository) CreateGroupMilestone(ctx context.Context, gm submission.GroupMilestone, exec ...core.DBExecutor) (submission.GroupMilestone, error) {
	gm.ID = uuid.New().String()
	q, args, err := toSql(psql.Insert(groupMilestonesTable).Columns(groupMilestoneColumns...).Values(
		gm.ID, gm.GroupID, gm.Title, gm.Description, nullTime(gm.Deadline), gm.IsCompleted, gm.CreatedBy, gm.CreatedAt,
		gm.AssignedTo, gm.SubmittedBy, gm.SubmissionContent, gm.SubmissionPath, nullTime(gm.SubmittedAt),
	))
	if err != nil {
		return submission.GroupMilestone{}, err
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, q, args...); err != nil {
		return submission.GroupMilestone{}, errors.Wrap(err, "inserting group milestone")
	}
	return gm, nil
}

func (repo submissionRepository) GetGroupMilestone(ctx context.Context, id string, exec ...core.DBExecutor) (submission.GroupMilestone, error) {
	q, args, err := toSql(psql.Select(groupMilestoneColumns...).From(groupMilestonesTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return submission.GroupMilestone{}, err
	}
	var row groupMilestoneRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, q, args...); err != nil {
		return submission.GroupMilestone{}, trapNoRowsErr(err, submission.ErrGroupMilestoneNotFound, "selecting group milestone")
	}
	return repo.unboilMilestone(row), nil
}

func (repo submissionRepository) UpdateGroupMilestone(ctx context.Context, gm submission.GroupMilestone, exec ...core.DBExecutor) (submission.GroupMilestone, error) {
	q, args, err := toSql(psql.Update(groupMilestonesTable).SetMap(map[string]interface{}{
		"title":              gm.Title,
		"description":        gm.Description,
		"deadline":           nullTime(gm.Deadline),
		"is_completed":       gm.IsCompleted,
		"assigned_to":        gm.AssignedTo,
		"submitted_by":       gm.SubmittedBy,
		"submission_content": gm.SubmissionContent,
		"submission_path":    gm.SubmissionPath,
		"submitted_at":       nullTime(gm.SubmittedAt),
	}).Where(sq.Eq{"id": gm.ID}))
	if err != nil {
		return submission.GroupMilestone{}, err
	}
	res, err := repo.getExec(exec).ExecContext(ctx, q, args...)
	if err != nil {
		return submission.GroupMilestone{}, errors.Wrap(err, "updating group milestone")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return submission.GroupMilestone{}, submission.ErrGroupMilestoneNotFound
	}
	return gm, nil
}

func (repo submissionRepository) QueryGroupMilestones(ctx context.Context, filter submission.MilestoneFilter, exec ...core.DBExecutor) ([]submission.GroupMilestone, error) {
	b := psql.Select(groupMilestoneColumns...).From(groupMilestonesTable)
	if filter.GroupID != "" {
		b = b.Where(sq.Eq{"group_id": filter.GroupID})
	}
	if filter.IsCompleted != nil {
		b = b.Where(sq.Eq{"is_completed": *filter.IsCompleted})
	}
	if filter.DueFrom != nil {
		b = b.Where(sq.GtOrEq{"deadline": filter.DueFrom.UTC()})
	}
	if filter.DueTo != nil {
		b = b.Where(sq.LtOrEq{"deadline": filter.DueTo.UTC()})
	}
	q, args, err := toSql(b.OrderBy("deadline ASC NULLS LAST", "created_at", "id"))
	if err != nil {
		return nil, err
	}

	var rows []groupMilestoneRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting group milestones")
	}
	gms := make([]submission.GroupMilestone, 0, len(rows))
	for _, row := range rows {
		gms = append(gms, repo.unboilMilestone(row))
	}
	return gms, nil
}

func (repo submissionRepository) CreateMilestoneComment(ctx context.Context, c submission.MilestoneComment, exec ...core.DBExecutor) (submission.MilestoneComment, error) {
	c.ID = uuid.New().String()
	q, args, err := toSql(psql.Insert(milestoneCommentsTable).Columns(milestoneCommentColumns...).Values(
		c.ID, c.GroupMilestoneID, c.AuthorID, c.AuthorName, c.AuthorRole, c.Content, c.CreatedAt,
	))
	if err != nil {
		return submission.MilestoneComment{}, err
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, q, args...); err != nil {
		return submission.MilestoneComment{}, errors.Wrap(err, "inserting milestone comment")
	}
	return c, nil
}

func (repo submissionRepository) QueryMilestoneComments(ctx context.Context, groupMilestoneID string, exec ...core.DBExecutor) ([]submission.MilestoneComment, error) {
	q, args, err := toSql(psql.Select(milestoneCommentColumns...).
		From(milestoneCommentsTable).
		Where(sq.Eq{"group_milestone_id": groupMilestoneID}).
		OrderBy("created_at", "id"))
	if err != nil {
		return nil, err
	}
	var rows []milestoneCommentRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting milestone comments")
	}
	comments := make([]submission.MilestoneComment, 0, len(rows))
	for _, row := range rows {
		comments = append(comments, submission.MilestoneComment(row))
	}
	return comments, nil
}

// UpsertMilestoneGrade keeps one row per (group_milestone_id, graded_by).
func (repo submissionRepository) UpsertMilestoneGrade(ctx context.Context, g submission.MilestoneGrade, exec ...core.DBExecutor) (submission.MilestoneGrade, error) {
	g.ID = uuid.New().String()
	q, args, err := toSql(psql.Insert(milestoneGradesTable).Columns(milestoneGradeColumns...).Values(
		g.ID, g.GroupMilestoneID, g.GradedBy, g.GraderName, string(g.GraderRole), g.Score, g.Feedback, g.GradedAt,
	).Suffix(
		"ON CONFLICT (group_milestone_id, graded_by) DO UPDATE SET " +
			excluded("grader_name", "grader_role", "score", "feedback", "graded_at") +
			" RETURNING id",
	))
	if err != nil {
		return submission.MilestoneGrade{}, err
	}
	if err = repo.getExec(exec).QueryRowxContext(ctx, q, args...).Scan(&g.ID); err != nil {
		return submission.MilestoneGrade{}, errors.Wrap(err, "upserting milestone grade")
	}
	return g, nil
}

func (repo submissionRepository) QueryMilestoneGrades(ctx context.Context, groupMilestoneID string, exec ...core.DBExecutor) ([]submission.MilestoneGrade, error) {
	q, args, err := toSql(psql.Select(milestoneGradeColumns...).
		From(milestoneGradesTable).
		Where(sq.Eq{"group_milestone_id": groupMilestoneID}).
		OrderBy("graded_at", "id"))
	if err != nil {
		return nil, err
	}
	var rows []milestoneGradeRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting milestone grades")
	}
	grades := make([]submission.MilestoneGrade, 0, len(rows))
	for _, row := range rows {
		grades = append(grades, submission.MilestoneGrade{
			ID:               row.ID,
			GroupMilestoneID: row.GroupMilestoneID,
			GradedBy:         row.GradedBy,
			GraderName:       row.GraderName,
			GraderRole:       submission.GraderRole(row.GraderRole),
			Score:            row.Score,
			Feedback:         row.Feedback,
			GradedAt:         row.GradedAt,
		})
	}
	return grades, nil
}
