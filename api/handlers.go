package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Adarsh9315/task-palette-organize/board"
	"github.com/Adarsh9315/task-palette-organize/domain"
)

const maxBodySize = 64 * 1024 // 64 KiB

// Deps are the collaborators of the HTTP handlers. Profiles, Deduper and
// Subscriber are optional.
type Deps struct {
	Boards     Boards
	Profiles   Profiles
	Auth       Authenticator
	Deduper    Deduper
	Subscriber Subscriber
	Logger     *log.Logger
	// Health reports whether the backing store is reachable.
	Health func(ctx context.Context) error
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		panic("logger is required")
	}
	g := e.Group("/api", GzipRequestMiddleware())
	g.GET("/boards", listBoards(d))
	g.POST("/boards", createBoard(d))
	g.GET("/boards/:id", getSnapshot(d))
	g.PATCH("/boards/:id", updateBoard(d))
	g.DELETE("/boards/:id", deleteBoard(d))
	g.GET("/boards/:id/counts", getCounts(d))
	g.POST("/boards/:id/commands", postCommands(d))
	if d.Subscriber != nil {
		g.GET("/boards/:id/stream", streamBoard(d))
	}
	if d.Profiles != nil {
		g.GET("/profile", getProfile(d))
		g.PUT("/profile", putProfile(d))
	}
	e.GET("/healthz", healthz(d))
}

func healthz(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		if d.Health == nil {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := d.Health(ctx); err != nil {
			d.Logger.WithError(err).Warn("health check failed")
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		}
		return c.NoContent(http.StatusOK)
	}
}

func userID(c echo.Context, d Deps) (string, error) {
	return d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
}

func fail(c echo.Context, d Deps, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		d.Logger.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

// decodeBody reads a size-limited JSON body, rejecting unknown fields.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// ownedEngine loads the board's engine and hides boards of other users.
func ownedEngine(ctx context.Context, d Deps, owner, boardID string) (*board.Engine, error) {
	eng, err := d.Boards.Get(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if b, _ := eng.Board(); b.OwnerID != owner {
		return nil, &domain.NotFoundError{Kind: "board", ID: boardID}
	}
	return eng, nil
}

func listBoards(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, err := userID(c, d)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boards, err := d.Boards.ListBoards(c.Request().Context(), uid)
		if err != nil {
			return fail(c, d, err)
		}
		return c.JSON(http.StatusOK, boards)
	}
}

type createBoardRequest struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	Theme              string `json:"theme"`
	WithDefaultColumns bool   `json:"withDefaultColumns"`
}

type createBoardResponse struct {
	Board   domain.Board    `json:"board"`
	Columns []domain.Column `json:"columns"`
}

func createBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, err := userID(c, d)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createBoardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		b := domain.Board{OwnerID: uid, Title: req.Title, Description: req.Description, Theme: req.Theme}
		created, cols, err := d.Boards.CreateBoard(c.Request().Context(), b, req.WithDefaultColumns)
		if err != nil && created.ID == "" {
			return fail(c, d, err)
		}
		if err != nil {
			d.Logger.WithError(err).WithField("board", created.ID).Warn("board created without all default columns")
		}
		if cols == nil {
			cols = []domain.Column{}
		}
		return c.JSON(http.StatusCreated, createBoardResponse{Board: created, Columns: cols})
	}
}

func getSnapshot(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newSnapshotMetrics(ctx, d.Logger)
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
		var failure error
		defer func() {
			metrics.Log(c.Response().Status, failure)
		}()

		authStart := time.Now()
		uid, authErr := userID(c, d)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			return c.String(http.StatusUnauthorized, authErr.Error())
		}

		loadStart := time.Now()
		eng, loadErr := ownedEngine(ctx, d, uid, c.Param("id"))
		metrics.ObserveLoad(time.Since(loadStart))
		if loadErr != nil {
			metrics.SetErrorStage("load")
			if statusFor(loadErr) >= http.StatusInternalServerError {
				failure = loadErr
			}
			return fail(c, d, loadErr)
		}
		snap := eng.Snapshot()
		metrics.SetBoard(snap.Board.ID, len(snap.Columns), len(snap.Tasks), snap.Pending)
		if err = c.JSON(http.StatusOK, snap); err != nil {
			metrics.SetErrorStage("encode_response")
			failure = err
		}
		return err
	}
}

func updateBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, err := userID(c, d)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var patch domain.BoardPatch
		if err := decodeBody(c, &patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		ctx := c.Request().Context()
		if _, err := ownedEngine(ctx, d, uid, c.Param("id")); err != nil {
			return fail(c, d, err)
		}
		updated, err := d.Boards.UpdateBoard(ctx, c.Param("id"), patch)
		if err != nil {
			return fail(c, d, err)
		}
		return c.JSON(http.StatusOK, updated)
	}
}

func deleteBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, err := userID(c, d)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		ctx := c.Request().Context()
		if _, err := ownedEngine(ctx, d, uid, c.Param("id")); err != nil {
			return fail(c, d, err)
		}
		if err := d.Boards.DeleteBoard(ctx, c.Param("id")); err != nil {
			return fail(c, d, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getCounts(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, err := userID(c, d)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		eng, err := ownedEngine(c.Request().Context(), d, uid, c.Param("id"))
		if err != nil {
			return fail(c, d, err)
		}
		counts := make(map[string]int)
		for _, col := range eng.Columns() {
			counts[col.Status] = eng.TaskCountByStatus(col.Status)
		}
		return c.JSON(http.StatusOK, counts)
	}
}

func getProfile(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, err := userID(c, d)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		p, err := d.Profiles.Profile(c.Request().Context(), uid)
		if err != nil {
			return fail(c, d, err)
		}
		return c.JSON(http.StatusOK, p)
	}
}

type profileRequest struct {
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl"`
}

func putProfile(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, err := userID(c, d)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req profileRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		p, err := d.Profiles.UpsertProfile(c.Request().Context(), domain.Profile{ID: uid, FullName: req.FullName, AvatarURL: req.AvatarURL})
		if err != nil {
			return fail(c, d, err)
		}
		return c.JSON(http.StatusOK, p)
	}
}
