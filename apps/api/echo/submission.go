package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
	"github.com/trezcool/kazi/core/submission"
)

type submissionApi struct {
	svc *submission.Service
}

func registerSubmissionAPI(g *echo.Group, svc *submission.Service) {
	api := submissionApi{svc: svc}

	g.GET("/groups/:id/submissions", api.query)
	g.POST("/groups/:id/submissions", api.submitWork)
	g.GET("/groups/:id/milestones", api.queryMilestones)
	g.POST("/groups/:id/milestones", api.createMilestone)

	sg := g.Group("/submissions/:id")
	sg.GET("", api.retrieve)
	sg.POST("/grade", api.grade, roleMiddleware(account.Role.CanGradeSubmissions))

	mg := g.Group("/group-milestones/:id")
	mg.POST("/submit", api.submitMilestone)
	mg.POST("/complete", api.completeMilestone)
	mg.GET("/comments", api.milestoneComments)
	mg.POST("/comments", api.addMilestoneComment)
	mg.GET("/grades", api.grades)
	mg.POST("/grades", api.gradeMilestone)
}

func (api *submissionApi) query(ctx echo.Context) error {
	subs, err := api.svc.ListSubmissions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	if subs == nil {
		subs = []submission.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *submissionApi) submitWork(ctx echo.Context) error {
	data, ns, file, err := bindSubmission(ctx)
	if err != nil {
		return err
	}
	defer file.Close()

	if core.CleanString(data.MilestoneID) == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "milestone_id", Error: "this field is required"})
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.SubmitWork(ctx.Request().Context(), actor, ctx.Param("id"), core.CleanString(data.MilestoneID), ns)
	if err != nil {
		return errors.Wrap(err, "submitting work")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *submissionApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.GetSubmission(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting submission")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *submissionApi) grade(ctx echo.Context) error {
	var data submission.GradeInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeInput")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.GradeSubmission(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *submissionApi) queryMilestones(ctx echo.Context) error {
	gms, err := api.svc.ListGroupMilestones(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing group milestones")
	}
	if gms == nil {
		gms = []submission.GroupMilestone{}
	}
	return ctx.JSON(http.StatusOK, gms)
}

func (api *submissionApi) createMilestone(ctx echo.Context) error {
	var data submission.NewGroupMilestone
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroupMilestone")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	gm, err := api.svc.CreateGroupMilestone(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating group milestone")
	}
	return ctx.JSON(http.StatusCreated, gm)
}

func (api *submissionApi) submitMilestone(ctx echo.Context) error {
	_, ns, file, err := bindSubmission(ctx)
	if err != nil {
		return err
	}
	defer file.Close()

	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	gm, err := api.svc.SubmitGroupMilestone(ctx.Request().Context(), actor, ctx.Param("id"), ns)
	if err != nil {
		return errors.Wrap(err, "submitting group milestone")
	}
	return ctx.JSON(http.StatusOK, gm)
}

func (api *submissionApi) completeMilestone(ctx echo.Context) error {
	var data completedRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to completedRequest")
	}
	completed := true
	if data.Completed != nil {
		completed = *data.Completed
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	gm, err := api.svc.SetMilestoneCompleted(ctx.Request().Context(), actor, ctx.Param("id"), completed)
	if err != nil {
		return errors.Wrap(err, "completing group milestone")
	}
	return ctx.JSON(http.StatusOK, gm)
}

func (api *submissionApi) milestoneComments(ctx echo.Context) error {
	cs, err := api.svc.MilestoneComments(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing milestone comments")
	}
	if cs == nil {
		cs = []submission.MilestoneComment{}
	}
	return ctx.JSON(http.StatusOK, cs)
}

func (api *submissionApi) addMilestoneComment(ctx echo.Context) error {
	var data contentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to contentRequest")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	c, err := api.svc.AddMilestoneComment(ctx.Request().Context(), actor, ctx.Param("id"), data.Content)
	if err != nil {
		return errors.Wrap(err, "adding milestone comment")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *submissionApi) grades(ctx echo.Context) error {
	gs, err := api.svc.GetGrades(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting grades")
	}
	return ctx.JSON(http.StatusOK, gs)
}

func (api *submissionApi) gradeMilestone(ctx echo.Context) error {
	var data submission.NewGrade
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrade")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	g, err := api.svc.GradeMilestone(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "grading group milestone")
	}
	return ctx.JSON(http.StatusOK, g)
}
