package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core/template"
)

type templateApi struct {
	svc *template.Service
}

func registerTemplateAPI(g *echo.Group, svc *template.Service) {
	api := templateApi{svc: svc}

	tg := g.Group("/templates")
	tg.POST("", api.create)
	tg.GET("", api.query)
	tg.GET("/:id", api.retrieve)
	tg.POST("/:id/approve", api.approve)
	tg.POST("/:id/reject", api.reject)
	tg.POST("/:id/classes", api.assignToClass)
	g.GET("/milestones/:id", api.retrieveMilestone)
}

func (api *templateApi) create(ctx echo.Context) error {
	var data template.NewTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTemplate")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}

	tpl, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating template")
	}
	return ctx.JSON(http.StatusCreated, tpl)
}

func (api *templateApi) query(ctx echo.Context) error {
	var filter template.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	tpls, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying templates")
	}
	if tpls == nil {
		tpls = []template.Template{}
	}
	return ctx.JSON(http.StatusOK, tpls)
}

func (api *templateApi) retrieve(ctx echo.Context) error {
	tpl, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting template")
	}
	return ctx.JSON(http.StatusOK, tpl)
}

func (api *templateApi) retrieveMilestone(ctx echo.Context) error {
	m, err := api.svc.GetMilestone(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting milestone")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *templateApi) approve(ctx echo.Context) error {
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	tpl, err := api.svc.Approve(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving template")
	}
	return ctx.JSON(http.StatusOK, tpl)
}

func (api *templateApi) reject(ctx echo.Context) error {
	var data reasonRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to reasonRequest")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	tpl, err := api.svc.Reject(ctx.Request().Context(), actor, ctx.Param("id"), data.Reason)
	if err != nil {
		return errors.Wrap(err, "rejecting template")
	}
	return ctx.JSON(http.StatusOK, tpl)
}

func (api *templateApi) assignToClass(ctx echo.Context) error {
	var data classRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to classRequest")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	tpl, err := api.svc.AssignToClass(ctx.Request().Context(), actor, ctx.Param("id"), data.ClassID)
	if err != nil {
		return errors.Wrap(err, "assigning template to class")
	}
	return ctx.JSON(http.StatusOK, tpl)
}
