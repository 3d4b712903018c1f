package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/task"
)

type taskApi struct {
	svc *task.Service
}

func registerTaskAPI(g *echo.Group, svc *task.Service) {
	api := taskApi{svc: svc}

	g.GET("/groups/:id/tasks", api.query)
	g.POST("/groups/:id/tasks", api.create)

	tg := g.Group("/tasks/:id")
	tg.GET("", api.retrieve)
	tg.PUT("", api.update)
	tg.DELETE("", api.destroy)
	tg.PATCH("/status", api.updateStatus)
	tg.POST("/subitems", api.addSubItem)
	tg.POST("/comments", api.addComment)

	g.PATCH("/subitems/:id/toggle", api.toggleSubItem)
}

func bindTaskFilter(ctx echo.Context) (task.QueryFilter, error) {
	filter := task.QueryFilter{AssignedToUserID: core.CleanString(ctx.QueryParam("assigned_to"))}
	if s := ctx.QueryParam("status"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return filter, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "status must be an integer"})
		}
		status := task.Status(n)
		filter.Status = &status
	}
	return filter, nil
}

func (api *taskApi) query(ctx echo.Context) error {
	filter, err := bindTaskFilter(ctx)
	if err != nil {
		return err
	}
	tasks, err := api.svc.ListByGroup(ctx.Request().Context(), ctx.Param("id"), filter)
	if err != nil {
		return errors.Wrap(err, "listing tasks")
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *taskApi) create(ctx echo.Context) error {
	var data task.NewTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	t, err := api.svc.CreateTask(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *taskApi) retrieve(ctx echo.Context) error {
	d, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting task")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *taskApi) update(ctx echo.Context) error {
	var data task.UpdateTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTask")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	t, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) destroy(ctx echo.Context) error {
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteTask(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *taskApi) updateStatus(ctx echo.Context) error {
	var data statusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to statusRequest")
	}
	if data.Status == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "status", Error: "this field is required"})
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	t, err := api.svc.UpdateStatus(ctx.Request().Context(), actor, ctx.Param("id"), task.Status(*data.Status))
	if err != nil {
		return errors.Wrap(err, "updating task status")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *taskApi) addSubItem(ctx echo.Context) error {
	var data contentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to contentRequest")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	si, err := api.svc.AddSubItem(ctx.Request().Context(), actor, ctx.Param("id"), data.Content)
	if err != nil {
		return errors.Wrap(err, "adding sub-item")
	}
	return ctx.JSON(http.StatusCreated, si)
}

func (api *taskApi) toggleSubItem(ctx echo.Context) error {
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	si, err := api.svc.ToggleSubItem(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "toggling sub-item")
	}
	return ctx.JSON(http.StatusOK, si)
}

func (api *taskApi) addComment(ctx echo.Context) error {
	var data contentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to contentRequest")
	}
	actor, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	c, err := api.svc.AddComment(ctx.Request().Context(), actor, ctx.Param("id"), data.Content)
	if err != nil {
		return errors.Wrap(err, "adding comment")
	}
	return ctx.JSON(http.StatusCreated, c)
}
