package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"tasktracker/domain"
)

var errBadBody = errors.New("invalid body")

// Register wires up all API routes on the provided Echo instance. The
// change stream is only served when broker is non-nil.
func Register(e *echo.Echo, svc TaskService, broker *Broker, logger *log.Logger) {
	e.GET("/api/tasks", listTasks(svc, logger))
	e.GET("/api/tasks/:id", getTask(svc))
	e.POST("/api/tasks", createTask(svc))
	e.PATCH("/api/tasks/:id", updateTask(svc))
	e.POST("/api/tasks/:id/toggle", toggleTask(svc))
	e.DELETE("/api/tasks/:id", deleteTask(svc))
	e.GET("/api/stats", getStats(svc))
	e.GET("/healthz", healthz(svc))
	if broker != nil {
		e.GET("/api/stream", streamTasks(svc, broker))
	}
}

func healthz(svc TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := healthResponse{Status: "ok"}
		if err := svc.LastPersistError(); err != nil {
			resp.Status = "degraded"
			resp.PersistError = err.Error()
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func listTasks(svc TaskService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newListRequestMetrics(c.Request().Context(), logger)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		query := c.QueryParam("q")
		metrics.SetQuery(c.QueryParam("filter"), c.QueryParam("sort"), strings.TrimSpace(query) != "")

		filter, parseErr := domain.ParseFilter(c.QueryParam("filter"))
		if parseErr != nil {
			metrics.SetErrorStage("invalid_filter")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: parseErr.Error(), Field: "filter"})
		}
		sortBy, parseErr := domain.ParseSortBy(c.QueryParam("sort"))
		if parseErr != nil {
			metrics.SetErrorStage("invalid_sort")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: parseErr.Error(), Field: "sort"})
		}

		viewStart := time.Now()
		tasks := svc.View(filter, query, sortBy)
		metrics.ObserveView(time.Since(viewStart))
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks, Count: len(tasks)})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getTask(svc TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, ok := svc.Get(c.Param("id"))
		if !ok {
			return notFound(c)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func createTask(svc TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.TaskInput
		if err := decodeBody(c, &in); err != nil {
			return badBody(c, err)
		}
		t, err := svc.Create(c.Request().Context(), in)
		if err != nil {
			return validationFailed(c, err)
		}
		return c.JSON(http.StatusCreated, t)
	}
}

func updateTask(svc TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			return badBody(c, err)
		}
		t, ok, err := svc.Update(c.Request().Context(), c.Param("id"), patch)
		if !ok {
			return notFound(c)
		}
		if err != nil {
			return validationFailed(c, err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func toggleTask(svc TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, ok := svc.ToggleCompleted(c.Request().Context(), c.Param("id"))
		if !ok {
			return notFound(c)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func deleteTask(svc TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !svc.Remove(c.Request().Context(), c.Param("id")) {
			return notFound(c)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getStats(svc TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, svc.Stats())
	}
}

// decodeBody reads at most maxBodySize bytes and rejects unknown fields.
func decodeBody(c echo.Context, v any) error {
	data, err := io.ReadAll(newCapReader(c.Request().Body, maxBodySize))
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return errBodyTooLarge
		}
		return errBadBody
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errBadBody
	}
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, domain.ErrInvalidDate) {
			return &domain.ValidationError{Field: "due", Err: domain.ErrInvalidDate}
		}
		return errBadBody
	}
	return nil
}

func badBody(c echo.Context, err error) error {
	if errors.Is(err, errBodyTooLarge) {
		return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return validationFailed(c, verr)
	}
	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func validationFailed(c echo.Context, err error) error {
	resp := errorResponse{Error: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	return c.JSON(http.StatusUnprocessableEntity, resp)
}

func notFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
}
