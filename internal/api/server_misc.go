package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func registerMiscHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	// --- Renderer lifecycle ---

	huma.Register(api, huma.Operation{OperationID: "renderer-state", Method: http.MethodGet, Path: "/api/v1/renderer", Summary: "Get renderer lifecycle state", Tags: []string{"Renderer"}},
		func(ctx context.Context, input *struct{}) (*stateOutput, error) {
			state, err := svc.State(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &stateOutput{Body: state}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "renderer-start", Method: http.MethodPost, Path: "/api/v1/renderer/start", Summary: "Start the renderer with the created windows", Tags: []string{"Renderer"}},
		func(ctx context.Context, input *struct{}) (*stateOutput, error) {
			state, err := svc.Start(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &stateOutput{Body: state}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "renderer-exit", Method: http.MethodPost, Path: "/api/v1/renderer/exit", Summary: "Stop the renderer and forget its windows", Tags: []string{"Renderer"}},
		func(ctx context.Context, input *struct{}) (*stateOutput, error) {
			state, err := svc.Exit(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &stateOutput{Body: state}, nil
		})
}
