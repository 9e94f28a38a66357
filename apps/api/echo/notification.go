package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tqwops/fieldops/core"
	"github.com/tqwops/fieldops/core/notification"
)

type notificationApi struct {
	opts *Options
}

func registerNotificationAPI(g *echo.Group, authed echo.MiddlewareFunc, opts *Options) {
	api := notificationApi{opts: opts}

	ng := g.Group("/notifications", authed)
	ng.GET("/user", api.queryForUser)
	ng.GET("/unread-count", api.unreadCount)
	ng.POST("/:id/read", api.markRead)
	ng.POST("/read-all", api.markAllRead)
	ng.POST("", api.create, supervisorRequired)
}

func (api notificationApi) queryForUser(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	notifs, err := api.opts.NotifSvc.QueryForUser(ctx.Request().Context(), usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api notificationApi) unreadCount(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	count, err := api.opts.NotifSvc.UnreadCount(ctx.Request().Context(), usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: count})
}

func (api notificationApi) markRead(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	if err := api.opts.NotifSvc.MarkRead(ctx.Request().Context(), id, usr); err != nil {
		if errors.Cause(err) == notification.ErrNotFound {
			return errHttpNotFound
		}
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api notificationApi) markAllRead(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err := api.opts.NotifSvc.MarkAllRead(ctx.Request().Context(), usr); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (api notificationApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data notification.NewNotification
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(core.Validate); err != nil {
		return err
	}

	notif, err := api.opts.NotifSvc.Create(ctx.Request().Context(), data, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, notif)
}
