// Package router is the single entrypoint for every trigger: API Gateway
// proxy requests, MediaConvert state changes and SNS-wrapped S3
// notifications.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/tendant/simple-vod/internal/api"
	"github.com/tendant/simple-vod/internal/metrics"
	"github.com/tendant/simple-vod/internal/workflow"
	"github.com/tendant/simple-vod/pkg/schema"
)

// ErrRouteNotFound is reported for proxy requests with no matching route.
var ErrRouteNotFound = &api.Error{Status: http.StatusNotFound, Message: "Route Not Found"}

// Route answers one API Gateway resource and method. It may return an
// events.APIGatewayProxyResponse to control the response fully.
type Route func(ctx context.Context, req events.APIGatewayProxyRequest) (any, error)

// Router classifies raw events and dispatches them.
type Router struct {
	submitter *workflow.Submitter
	status    *workflow.StatusHandler
	routes    map[string]map[string]Route
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

// New builds a Router with the standard API routes bound to svc.
func New(svc *api.Service, submitter *workflow.Submitter, status *workflow.StatusHandler, rec *metrics.Recorder, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		submitter: submitter,
		status:    status,
		routes:    map[string]map[string]Route{},
		metrics:   rec,
		logger:    logger.With("component", "router"),
	}
	if svc != nil {
		r.HandleRoute(http.MethodGet, "/jobs", func(ctx context.Context, _ events.APIGatewayProxyRequest) (any, error) {
			return svc.ListJobs(ctx)
		})
		r.HandleRoute(http.MethodGet, "/jobs/{jobId}", func(ctx context.Context, req events.APIGatewayProxyRequest) (any, error) {
			return svc.GetJob(ctx, req.PathParameters["jobId"])
		})
		r.HandleRoute(http.MethodGet, "/files/{filename}", func(ctx context.Context, req events.APIGatewayProxyRequest) (any, error) {
			return svc.GetFile(ctx, req.PathParameters["filename"])
		})
		r.HandleRoute(http.MethodGet, "/signed-cookies", func(ctx context.Context, _ events.APIGatewayProxyRequest) (any, error) {
			return svc.SignedCookies(ctx)
		})
	}
	return r
}

// HandleRoute registers route for an API Gateway resource template.
func (r *Router) HandleRoute(method, resource string, route Route) {
	methods, ok := r.routes[resource]
	if !ok {
		methods = map[string]Route{}
		r.routes[resource] = methods
	}
	methods[method] = route
}

type envelope struct {
	HTTPMethod string `json:"httpMethod"`
	Resource   string `json:"resource"`
	Source     string `json:"source"`
	Records    []struct {
		SNS json.RawMessage `json:"Sns"`
	} `json:"Records"`
}

// Handle classifies payload and returns the value to hand back to the
// invoker. Only proxy requests produce a meaningful response; everything
// else returns an empty object once handled.
func (r *Router) Handle(ctx context.Context, payload json.RawMessage) (any, error) {
	var p envelope
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", workflow.ErrInvalidNotification, err)
	}

	switch {
	case p.HTTPMethod != "" && p.Resource != "":
		var req events.APIGatewayProxyRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("%w: decode proxy request: %w", workflow.ErrInvalidNotification, err)
		}
		return r.serve(ctx, req), nil

	case p.Source == schema.SourceMediaConvert:
		if r.status != nil {
			r.status.HandlePayload(ctx, payload)
		}
		return struct{}{}, nil

	case len(p.Records) > 0 && len(p.Records[0].SNS) > 0 && string(p.Records[0].SNS) != "null":
		if r.submitter != nil {
			r.submitter.HandlePayload(ctx, payload)
		}
		return struct{}{}, nil
	}

	r.metrics.Notification("unknown")
	r.logger.Warn("unknown event", "payload", string(payload))
	return struct{}{}, nil
}

func (r *Router) serve(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	r.logger.Info("api request", "method", req.HTTPMethod, "resource", req.Resource)
	r.metrics.Notification("api")

	route := r.routes[req.Resource][req.HTTPMethod]
	var (
		result any
		err    error
	)
	if route == nil {
		err = ErrRouteNotFound
	} else {
		result, err = route(ctx, req)
	}

	var resp events.APIGatewayProxyResponse
	if err != nil {
		resp = r.proxyError(req, err)
	} else {
		resp = proxySuccess(result)
	}
	r.metrics.APIRequest(req.Resource, fmt.Sprint(resp.StatusCode))
	return resp
}

func proxySuccess(result any) events.APIGatewayProxyResponse {
	switch v := result.(type) {
	case events.APIGatewayProxyResponse:
		if v.StatusCode != 0 {
			return v
		}
	case *events.APIGatewayProxyResponse:
		if v != nil && v.StatusCode != 0 {
			return *v
		}
	}
	body, err := json.Marshal(result)
	if err != nil {
		status, errBody := api.Describe(fmt.Errorf("encode response: %w", err))
		return response(status, errBody)
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Headers: api.Headers(), Body: string(body)}
}

func (r *Router) proxyError(req events.APIGatewayProxyRequest, err error) events.APIGatewayProxyResponse {
	status, body := api.Describe(err)
	if status >= http.StatusInternalServerError {
		r.logger.Error("api request failed", "method", req.HTTPMethod, "resource", req.Resource, "status", status, "err", err)
	} else {
		r.logger.Info("api request rejected", "method", req.HTTPMethod, "resource", req.Resource, "status", status, "err", err)
	}
	return response(status, body)
}

func response(status int, body api.ErrorBody) events.APIGatewayProxyResponse {
	data, _ := json.Marshal(body)
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: api.Headers(), Body: string(data)}
}
