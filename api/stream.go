package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const keepaliveInterval = 30 * time.Second

// streamBoard pushes settlements of one board as server-sent events. Browsers
// cannot set headers on EventSource, so the token may come as a query param.
func streamBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); auth == "" && token != "" {
			auth = "Bearer " + token
		}
		uid, err := d.Auth.UserIDFromAuthHeader(auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		ctx := c.Request().Context()
		boardID := c.Param("id")
		if _, err := ownedEngine(ctx, d, uid, boardID); err != nil {
			return fail(c, d, err)
		}
		events, err := d.Subscriber.Subscribe(ctx, boardID)
		if err != nil {
			return fail(c, d, err)
		}

		res := c.Response()
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.WriteHeader(http.StatusOK)
		if _, err := res.Write([]byte(":ok\n\n")); err != nil {
			return nil
		}
		flusher.Flush()

		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				data, err := sonic.Marshal(ev)
				if err != nil {
					d.Logger.WithError(err).WithField("board", boardID).Error("encode settlement")
					continue
				}
				frame := make([]byte, 0, len(data)+8)
				frame = append(frame, "data: "...)
				frame = append(frame, data...)
				frame = append(frame, "\n\n"...)
				if _, err := res.Write(frame); err != nil {
					return nil
				}
				flusher.Flush()
			case <-ticker.C:
				if _, err := res.Write([]byte(":keepalive\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case <-ctx.Done():
				return nil
			}
		}
	}
}
