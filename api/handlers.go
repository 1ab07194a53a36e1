package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/123123eeqweq/omocrm/domain"
	"github.com/123123eeqweq/omocrm/storage"
)

const (
	putBoardMaxSize = 5 << 20
	healthTimeout   = 3 * time.Second

	msgLoadFailed = "Failed to load board"
	msgSaveFailed = "Failed to save board"
	msgTooLarge   = "Request body too large"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, boards Boards, gate *Gate, logger *log.Logger) {
	e.GET("/health", health(boards, logger))

	auth := e.Group("/api/auth")
	auth.POST("/login", login(gate, logger))
	auth.GET("/me", me(gate, logger))
	auth.POST("/logout", logout(gate, logger))

	b := e.Group("/api/boards", gate.RequireSession(logger))
	b.GET("/:projectId", getBoard(boards, logger))
	b.PUT("/:projectId", putBoard(boards, logger))
}

func health(boards Boards, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		switch c.QueryParam("deep") {
		case "1", "true":
			ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
			defer cancel()
			if err := boards.Ping(ctx); err != nil {
				logger.WithError(err).Warn("health: repository unreachable")
				return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
			}
		}
		return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
	}
}

// projectID is the path parameter as echo decoded it, used verbatim as the key.
func projectID(c echo.Context) string {
	return c.Param("projectId")
}

func getBoard(boards Boards, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, ctx := newBoardRequestMetrics(c.Request().Context(), logger, http.MethodGet)
		c.SetRequest(c.Request().WithContext(ctx))
		var logErr error
		defer func() {
			metrics.Log(c.Response().Status, logErr)
		}()

		id := projectID(c)
		metrics.SetProject(id)

		storeStart := time.Now()
		doc, err := boards.Get(ctx, id)
		metrics.ObserveStore(time.Since(storeStart))
		if err != nil {
			logErr = err
			metrics.SetErrorStage("storage")
			logger.WithError(err).WithField("project", id).Error("load board")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgLoadFailed})
		}
		doc = doc.Normalize()
		metrics.SetDocument(doc)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, doc)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			logErr = err
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func putBoard(boards Boards, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, ctx := newBoardRequestMetrics(c.Request().Context(), logger, http.MethodPut)
		c.SetRequest(c.Request().WithContext(ctx))
		var logErr error
		defer func() {
			metrics.Log(c.Response().Status, logErr)
		}()

		id := projectID(c)
		metrics.SetProject(id)

		body, err := io.ReadAll(io.LimitReader(c.Request().Body, putBoardMaxSize+1))
		if err != nil {
			logErr = err
			metrics.SetErrorStage("read_body")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		}
		if len(body) > putBoardMaxSize {
			metrics.SetErrorStage("body_too_large")
			return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: msgTooLarge})
		}
		metrics.SetBodyBytes(len(body))

		validateStart := time.Now()
		err = domain.ValidatePayload(body)
		metrics.ObserveValidate(time.Since(validateStart))
		if err != nil {
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				metrics.SetErrorStage("validation")
				return c.JSON(http.StatusBadRequest, errorResponse{Error: ve.Error()})
			}
			logErr = err
			metrics.SetErrorStage("validation")
			logger.WithError(err).Error("validate board")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgSaveFailed})
		}

		var payload boardPayload
		if err := sonic.Unmarshal(body, &payload); err != nil {
			metrics.SetErrorStage("decode_body")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		}
		payload = payload.Normalize()
		metrics.SetDocument(payload)

		storeStart := time.Now()
		stored, err := boards.Upsert(ctx, id, payload)
		metrics.ObserveStore(time.Since(storeStart))
		if errors.Is(err, storage.ErrDocumentTooLarge) {
			metrics.SetErrorStage("body_too_large")
			return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: msgTooLarge})
		}
		if err != nil {
			logErr = err
			metrics.SetErrorStage("storage")
			logger.WithError(err).WithField("project", id).Error("save board")
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgSaveFailed})
		}

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, stored.Normalize())
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			logErr = err
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}
