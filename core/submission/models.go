package submission

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/group"
)

var (
	ErrNotFound               = errors.New("submission not found")
	ErrGroupMilestoneNotFound = errors.New("group milestone not found")
)

type GraderRole string

const (
	GraderStudent  GraderRole = "Student"
	GraderLecturer GraderRole = "Lecturer"
)

type (
	// Submission is the single current submission of a group for a template milestone.
	// Resubmitting replaces it and clears any grade.
	Submission struct {
		ID          string     `json:"id"`
		GroupID     string     `json:"group_id"`
		MilestoneID string     `json:"milestone_id"`
		Content     string     `json:"content"`
		Description string     `json:"description"`
		FilePath    string     `json:"file_path,omitempty"`
		SubmittedBy string     `json:"submitted_by"`
		SubmittedAt time.Time  `json:"submitted_at"`
		Grade       *float64   `json:"grade"`
		Feedback    string     `json:"feedback,omitempty"`
		GradedBy    string     `json:"graded_by,omitempty"`
		GradedAt    *time.Time `json:"graded_at"`
	}

	// GroupMilestone is a milestone a group tracks for itself, with one current submission.
	GroupMilestone struct {
		ID                string     `json:"id"`
		GroupID           string     `json:"group_id"`
		Title             string     `json:"title"`
		Description       string     `json:"description"`
		Deadline          *time.Time `json:"deadline"`
		IsCompleted       bool       `json:"is_completed"`
		CreatedBy         string     `json:"created_by"`
		CreatedAt         time.Time  `json:"created_at"`
		AssignedTo        string     `json:"assigned_to,omitempty"`
		SubmittedBy       string     `json:"submitted_by,omitempty"`
		SubmissionContent string     `json:"submission_content,omitempty"`
		SubmissionPath    string     `json:"submission_path,omitempty"`
		SubmittedAt       *time.Time `json:"submitted_at"`
	}

	MilestoneComment struct {
		ID               string    `json:"id"`
		GroupMilestoneID string    `json:"group_milestone_id"`
		AuthorID         string    `json:"author_id"`
		AuthorName       string    `json:"author_name"`
		AuthorRole       string    `json:"author_role"`
		Content          string    `json:"content"`
		CreatedAt        time.Time `json:"created_at"`
	}

	// MilestoneGrade is one grader's score. There is at most one per (milestone, grader).
	MilestoneGrade struct {
		ID               string     `json:"id"`
		GroupMilestoneID string     `json:"group_milestone_id"`
		GradedBy         string     `json:"graded_by"`
		GraderName       string     `json:"grader_name"`
		GraderRole       GraderRole `json:"grader_role"`
		Score            float64    `json:"score"`
		Feedback         string     `json:"feedback"`
		GradedAt         time.Time  `json:"graded_at"`
	}

	Grades struct {
		Grades           []MilestoneGrade `json:"grades"`
		AveragePeerGrade *float64         `json:"average_peer_grade"`
		LecturerGrade    *MilestoneGrade  `json:"lecturer_grade"`
	}

	// Upload is a file attached to a submission.
	Upload struct {
		Name        string
		ContentType string
		Body        io.Reader
	}

	NewSubmission struct {
		Content     string  `json:"content" validate:"max=20000"`
		Description string  `json:"description" validate:"max=5000"`
		File        *Upload `json:"-"`
	}

	GradeInput struct {
		Grade    *float64 `json:"grade" validate:"required,gte=0,lte=100"`
		Feedback string   `json:"feedback" validate:"max=5000"`
	}

	NewGroupMilestone struct {
		Title       string     `json:"title" validate:"required,notblank,max=200"`
		Description string     `json:"description" validate:"max=5000"`
		Deadline    *time.Time `json:"deadline"`
		AssignedTo  string     `json:"assigned_to"`
	}

	NewGrade struct {
		Score    *float64 `json:"score" validate:"required,gte=0,lte=10"`
		Feedback string   `json:"feedback" validate:"max=5000"`
	}

	MilestoneFilter struct {
		GroupID     string
		DueFrom     *time.Time
		DueTo       *time.Time
		IsCompleted *bool
	}

	Repository interface {
		GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (Submission, error)
		// FindSubmission returns the current submission of a group for a milestone.
		FindSubmission(ctx context.Context, groupID, milestoneID string, exec ...core.DBExecutor) (Submission, error)
		// UpsertSubmission inserts s or replaces the row of its (group, milestone) pair.
		UpsertSubmission(ctx context.Context, s Submission, exec ...core.DBExecutor) (Submission, error)
		UpdateSubmission(ctx context.Context, s Submission, exec ...core.DBExecutor) (Submission, error)
		QuerySubmissions(ctx context.Context, groupID string, exec ...core.DBExecutor) ([]Submission, error)

		CreateGroupMilestone(ctx context.Context, gm GroupMilestone, exec ...core.DBExecutor) (GroupMilestone, error)
		GetGroupMilestone(ctx context.Context, id string, exec ...core.DBExecutor) (GroupMilestone, error)
		UpdateGroupMilestone(ctx context.Context, gm GroupMilestone, exec ...core.DBExecutor) (GroupMilestone, error)
		QueryGroupMilestones(ctx context.Context, filter MilestoneFilter, exec ...core.DBExecutor) ([]GroupMilestone, error)

		CreateMilestoneComment(ctx context.Context, c MilestoneComment, exec ...core.DBExecutor) (MilestoneComment, error)
		QueryMilestoneComments(ctx context.Context, groupMilestoneID string, exec ...core.DBExecutor) ([]MilestoneComment, error)

		// UpsertMilestoneGrade replaces the grader's previous grade for the milestone, if any.
		UpsertMilestoneGrade(ctx context.Context, g MilestoneGrade, exec ...core.DBExecutor) (MilestoneGrade, error)
		QueryMilestoneGrades(ctx context.Context, groupMilestoneID string, exec ...core.DBExecutor) ([]MilestoneGrade, error)
	}

	// Notifier is told about grades once they are committed.
	Notifier interface {
		SubmissionGraded(ctx context.Context, s Submission, g group.Group, members []group.Member)
	}
)

func (s *Submission) clearGrade() {
	s.Grade = nil
	s.Feedback = ""
	s.GradedBy = ""
	s.GradedAt = nil
}

func (ns NewSubmission) Validate(v *core.Validator) error {
	if err := v.Struct(ns); err != nil {
		return err
	}
	if core.CleanString(ns.Content) == "" && ns.File == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "content", Error: "content or a file is required"})
	}
	return nil
}

func (in GradeInput) Validate(v *core.Validator) error {
	return v.Struct(in)
}

func (ng NewGrade) Validate(v *core.Validator) error {
	return v.Struct(ng)
}

func (ngm NewGroupMilestone) Validate(v *core.Validator) error {
	return v.Struct(ngm)
}

// Aggregate averages the peer scores and picks the latest lecturer grade. Stored scores are left untouched.
func Aggregate(grades []MilestoneGrade) Grades {
	res := Grades{Grades: grades}
	if res.Grades == nil {
		res.Grades = []MilestoneGrade{}
	}

	var (
		sum   float64
		peers int
	)
	for i, g := range grades {
		switch g.GraderRole {
		case GraderStudent:
			sum += g.Score
			peers++
		case GraderLecturer:
			if res.LecturerGrade == nil || !g.GradedAt.Before(res.LecturerGrade.GradedAt) {
				res.LecturerGrade = &grades[i]
			}
		}
	}
	if peers > 0 {
		avg := sum / float64(peers)
		res.AveragePeerGrade = &avg
	}
	return res
}
