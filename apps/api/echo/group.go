package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core/group"
	"github.com/trezcool/kazi/core/task"
)

type groupApi struct {
	svc     *group.Service
	taskSvc *task.Service
}

func registerGroupAPI(g *echo.Group, svc *group.Service, taskSvc *task.Service) {
	api := groupApi{svc: svc, taskSvc: taskSvc}

	gg := g.Group("/groups")
	gg.POST("", api.create)
	gg.GET("", api.query)

	dg := gg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.DELETE("", api.destroy)
	dg.PUT("/template", api.assignToTemplate)
	dg.GET("/contributions", api.contributions)

	mg := dg.Group("/members")
	mg.GET("", api.members)
	mg.POST("", api.addMember)
	mg.DELETE("/:memberId", api.removeMember)
	mg.PUT("/:memberId/role", api.updateMemberRole)
}

func (api *groupApi) create(ctx echo.Context) error {
	var data group.NewGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	g, err := api.svc.CreateGroup(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating group")
	}
	return ctx.JSON(http.StatusCreated, g)
}

func (api *groupApi) query(ctx echo.Context) error {
	var filter group.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}

	var (
		groups []group.Group
		err    error
	)
	if filter.ClassID != "" && filter.TemplateID == "" {
		groups, err = api.svc.ByClass(ctx.Request().Context(), filter.ClassID, filter.SubjectCode)
	} else {
		groups, err = api.svc.Query(ctx.Request().Context(), filter)
	}
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	if groups == nil {
		groups = []group.Group{}
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *groupApi) retrieve(ctx echo.Context) error {
	d, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting group")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *groupApi) destroy(ctx echo.Context) error {
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.SoftDelete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting group")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *groupApi) assignToTemplate(ctx echo.Context) error {
	var data templateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to templateRequest")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	g, err := api.svc.AssignToTemplate(ctx.Request().Context(), actor, ctx.Param("id"), data.TemplateID)
	if err != nil {
		return errors.Wrap(err, "assigning group to template")
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *groupApi) contributions(ctx echo.Context) error {
	cs, err := api.taskSvc.Contributions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing contributions")
	}
	if cs == nil {
		cs = []task.Contribution{}
	}
	return ctx.JSON(http.StatusOK, cs)
}

func (api *groupApi) members(ctx echo.Context) error {
	members, err := api.svc.Members(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing members")
	}
	if members == nil {
		members = []group.Member{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *groupApi) addMember(ctx echo.Context) error {
	var data group.NewMember
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMember")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	m, err := api.svc.AddMember(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding member")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *groupApi) removeMember(ctx echo.Context) error {
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.RemoveMember(ctx.Request().Context(), actor, ctx.Param("id"), ctx.Param("memberId")); err != nil {
		return errors.Wrap(err, "removing member")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *groupApi) updateMemberRole(ctx echo.Context) error {
	var data memberRoleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to memberRoleRequest")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	m, err := api.svc.UpdateMemberRole(ctx.Request().Context(), actor, ctx.Param("id"), ctx.Param("memberId"), group.MemberRole(data.Role))
	if err != nil {
		return errors.Wrap(err, "updating member role")
	}
	return ctx.JSON(http.StatusOK, m)
}
