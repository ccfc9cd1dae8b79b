package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/chartbridge/internal/bridge"
	"github.com/dgnsrekt/chartbridge/internal/controller"
	"github.com/dgnsrekt/chartbridge/internal/relay"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	CreateWindow(ctx context.Context, name string, opts bridge.WindowOptions) (controller.WindowInfo, error)
	ListWindows(ctx context.Context) ([]controller.WindowInfo, error)
	Evaluate(ctx context.Context, name, script string) error
	EvaluateReturn(ctx context.Context, name, script string) (json.RawMessage, error)
	Show(ctx context.Context, name string) error
	Hide(ctx context.Context, name string) error
	Start(ctx context.Context) (controller.StateInfo, error)
	Exit(ctx context.Context) (controller.StateInfo, error)
	State(ctx context.Context) (controller.StateInfo, error)
}

type windowNameInput struct {
	Name string `path:"name" doc:"Window name"`
}

type windowStatusOutput struct {
	Body struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
}

type stateOutput struct {
	Body controller.StateInfo
}

// NewServer builds the control API. Interactive docs are served by huma at
// /docs and UI events stream from broker at /api/v1/events.
func NewServer(svc Service, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("chartbridge Controller API", "1.0.0")
	cfg.Info.Description = "Create chart windows, run scripts in them and stream their UI events."
	api := humachi.New(router, cfg)

	router.Get("/api/v1/events", relay.SSEHandler(broker))

	registerWindowHandlers(api, svc)
	registerMiscHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var scriptErr *bridge.ScriptingError
	if errors.As(err, &scriptErr) {
		d := scriptErr.Diag
		return huma.Error422UnprocessableEntity(fmt.Sprintf("%s[%d:%d] %s", d.Name, d.Line, d.Column, d.Message))
	}
	var coded *bridge.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case bridge.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case bridge.CodeUnknownWindow:
			return huma.Error404NotFound(coded.Message)
		case bridge.CodeNoWindows, bridge.CodeAlreadyStarted:
			return huma.Error409Conflict(coded.Message)
		case bridge.CodeReturnTimeout, bridge.CodeStartTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case bridge.CodeQueueFull:
			return huma.Error503ServiceUnavailable(coded.Message)
		case bridge.CodeRendererExited:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
