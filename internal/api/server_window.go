package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/chartbridge/internal/bridge"
	"github.com/dgnsrekt/chartbridge/internal/controller"
)

func registerWindowHandlers(api huma.API, svc Service) {
	type createWindowInput struct {
		Body struct {
			Name    string               `json:"name" doc:"Unique window name"`
			Options bridge.WindowOptions `json:"options"`
		}
	}
	type windowOutput struct {
		Body controller.WindowInfo
	}
	huma.Register(api, huma.Operation{OperationID: "create-window", Method: http.MethodPost, Path: "/api/v1/windows", Summary: "Create a chart window", Tags: []string{"Windows"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *createWindowInput) (*windowOutput, error) {
			info, err := svc.CreateWindow(ctx, input.Body.Name, input.Body.Options)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &windowOutput{}
			out.Body = info
			return out, nil
		})

	type listWindowsOutput struct {
		Body struct {
			Windows []controller.WindowInfo `json:"windows"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-windows", Method: http.MethodGet, Path: "/api/v1/windows", Summary: "List chart windows", Tags: []string{"Windows"}},
		func(ctx context.Context, input *struct{}) (*listWindowsOutput, error) {
			windows, err := svc.ListWindows(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listWindowsOutput{}
			out.Body.Windows = windows
			return out, nil
		})

	type evalInput struct {
		Name string `path:"name" doc:"Window name"`
		Body struct {
			Script string `json:"script" doc:"JavaScript to run in the window"`
			Wait   bool   `json:"wait,omitempty" doc:"Wait for and return the script result"`
		}
	}
	type evalOutput struct {
		Body struct {
			Name   string          `json:"name"`
			Status string          `json:"status"`
			Result json.RawMessage `json:"result,omitempty"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "eval-window", Method: http.MethodPost, Path: "/api/v1/windows/{name}/eval", Summary: "Evaluate a script in a window", Tags: []string{"Windows"}},
		func(ctx context.Context, input *evalInput) (*evalOutput, error) {
			out := &evalOutput{}
			out.Body.Name = input.Name
			if !input.Body.Wait {
				if err := svc.Evaluate(ctx, input.Name, input.Body.Script); err != nil {
					return nil, mapErr(err)
				}
				out.Body.Status = "queued"
				return out, nil
			}
			result, err := svc.EvaluateReturn(ctx, input.Name, input.Body.Script)
			if err != nil {
				return nil, mapErr(err)
			}
			out.Body.Status = "done"
			out.Body.Result = result
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "show-window", Method: http.MethodPost, Path: "/api/v1/windows/{name}/show", Summary: "Show a window, starting the renderer if needed", Tags: []string{"Windows"}},
		func(ctx context.Context, input *windowNameInput) (*windowStatusOutput, error) {
			if err := svc.Show(ctx, input.Name); err != nil {
				return nil, mapErr(err)
			}
			out := &windowStatusOutput{}
			out.Body.Name = input.Name
			out.Body.Status = "shown"
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "hide-window", Method: http.MethodPost, Path: "/api/v1/windows/{name}/hide", Summary: "Hide a window", Tags: []string{"Windows"}},
		func(ctx context.Context, input *windowNameInput) (*windowStatusOutput, error) {
			if err := svc.Hide(ctx, input.Name); err != nil {
				return nil, mapErr(err)
			}
			out := &windowStatusOutput{}
			out.Body.Name = input.Name
			out.Body.Status = "hidden"
			return out, nil
		})
}
