package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core/account"
	"github.com/trezcool/kazi/core/audit"
)

type auditApi struct {
	svc *audit.Service
}

func registerAuditAPI(g *echo.Group, svc *audit.Service) {
	api := auditApi{svc: svc}
	g.GET("/audit", api.history, roleMiddleware(account.Role.CanReadAudit))
}

func (api *auditApi) history(ctx echo.Context) error {
	var filter audit.Filter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to Filter")
	}
	entries, err := api.svc.History(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying audit history")
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}
