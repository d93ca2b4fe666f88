package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"civicdesk/internal/domain"
	"civicdesk/internal/engine"
	"civicdesk/internal/engine/auth"
	"civicdesk/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// UploadDir is served read-only under the configured uploads base URL.
	UploadDir string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"precondition_failed"`
	Message string         `json:"message" example:"case ISS-0001 must be assessment_submitted"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"status\":\"assigned_to_task_force\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

var caseErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

// New returns an HTTP handler exposing the civicdesk API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are 400; 422 is reserved for workflow validation.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Auth))
	hcfg := huma.DefaultConfig("Civicdesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerUploads(router, cfg)
	registerHealth(group)
	registerSubmit(group, cfg.Engine)
	registerCaseReads(group, cfg.Engine)
	registerTriage(group, cfg.Engine)
	registerTaskForce(group, cfg.Engine)
	registerReview(group, cfg.Engine)
	registerStaff(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	if err := registerOpenAPI(router, api, basePath); err != nil {
		return nil, err
	}
	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine errors onto the HTTP error envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"field": ve.Field, "reason": ve.Reason})
	}
	var pe engine.PreconditionError
	if errors.As(err, &pe) {
		var details map[string]any
		if pe.Status != "" {
			details = map[string]any{"status": pe.Status}
		}
		return newAPIError(http.StatusConflict, "precondition_failed", err.Error(), details)
	}
	if errors.Is(err, engine.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func caseResult(d engine.CaseDetail, err error) (*caseOutput, error) {
	if err != nil {
		return nil, handleError(err)
	}
	return &caseOutput{Body: d}, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

// registerUploads serves stored files from the local upload directory.
func registerUploads(r chi.Router, cfg Config) {
	if cfg.UploadDir == "" || cfg.Engine.Config == nil {
		return
	}
	base := "/" + strings.Trim(cfg.Engine.Config.Uploads.BaseURL, "/")
	if base == "/" {
		return
	}
	fs := http.StripPrefix(base, http.FileServer(http.Dir(cfg.UploadDir)))
	r.Get(base+"/*", func(w http.ResponseWriter, req *http.Request) {
		if strings.HasSuffix(req.URL.Path, "/") {
			http.NotFound(w, req)
			return
		}
		fs.ServeHTTP(w, req)
	})
}

// registerOpenAPI serves the document with error responses and security
// schemes filled in. It must run after every operation is registered.
func registerOpenAPI(r chi.Router, api huma.API, basePath string) error {
	oas := api.OpenAPI()
	ensureDefaultErrorResponses(oas)
	applyAuthSecurity(oas, basePath)
	doc, err := json.Marshal(oas)
	if err != nil {
		return fmt.Errorf("encode openapi document: %w", err)
	}
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
	return nil
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	docURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Civicdesk API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, docURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSubmit(api huma.API, e engine.Engine) {
	routes := []struct {
		id      string
		path    string
		summary string
		channel domain.Channel
	}{
		{"submit-case", "/cases", "Report an issue", domain.ChannelPublic},
		{"agent-submit-case", "/agent/cases", "Report an issue on behalf of a citizen", domain.ChannelAgent},
		{"officer-submit-case", "/officer/cases", "Log an issue as an officer", domain.ChannelOfficer},
	}
	for _, route := range routes {
		channel := route.channel
		huma.Register(api, huma.Operation{
			OperationID:   route.id,
			Method:        http.MethodPost,
			Path:          route.path,
			Summary:       route.summary,
			DefaultStatus: http.StatusCreated,
			Errors:        caseErrors,
		}, func(ctx context.Context, input *struct {
			Body SubmitCaseRequest `json:"body"`
		}) (*caseOutput, error) {
			if len(bodyBytes(ctx)) == 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
			}
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			b := input.Body
			return caseResult(e.SubmitCase(ctx, actor, engine.SubmitOptions{
				Channel:          channel,
				Title:            b.Title,
				Description:      b.Description,
				LocationText:     stringOrEmpty(b.LocationText),
				Priority:         domain.Priority(stringOrEmpty(b.Priority)),
				ReporterName:     stringOrEmpty(b.ReporterName),
				ReporterPhone:    stringOrEmpty(b.ReporterPhone),
				Sector:           stringOrEmpty(b.Sector),
				SubSector:        stringOrEmpty(b.SubSector),
				Community:        stringOrEmpty(b.Community),
				SmallerCommunity: stringOrEmpty(b.SmallerCommunity),
				Suburb:           stringOrEmpty(b.Suburb),
				Images:           toObjects(b.Images),
			}))
		})
	}
}

func registerCaseReads(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-cases",
		Method:      http.MethodGet,
		Path:        "/cases",
		Summary:     "List cases in the caller's default view",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		Status   []string `query:"status" doc:"Explicit status filter; replaces the role's default statuses"`
		Priority string   `query:"priority" enum:"low,medium,high,urgent"`
		Limit    int      `query:"limit" default:"50"`
		Cursor   string   `query:"cursor"`
	}) (*struct {
		Body paginatedCases `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ListOptions{Priority: domain.Priority(input.Priority), Limit: input.Limit, Cursor: input.Cursor}
		for _, s := range input.Status {
			for _, part := range strings.Split(s, ",") {
				if part = strings.TrimSpace(part); part != "" {
					opts.Statuses = append(opts.Statuses, domain.Status(part))
				}
			}
		}
		items, next, err := e.ListCases(ctx, actor, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body paginatedCases `json:"body"`
		}{Body: paginatedCases{Items: items, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-case",
		Method:      http.MethodGet,
		Path:        "/cases/{id}",
		Summary:     "Get a case with its sub-reports",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id" doc:"Case id or case code"`
	}) (*caseOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return caseResult(e.GetCase(ctx, actor, input.ID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "case-history",
		Method:      http.MethodGet,
		Path:        "/cases/{id}/history",
		Summary:     "Status history of a case, oldest first",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body historyResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.History(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body historyResponse `json:"body"`
		}{Body: historyResponse{CaseID: input.ID, Items: items}}, nil
	})
}

func registerTriage(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "transition-status",
		Method:      http.MethodPatch,
		Path:        "/cases/{id}/status",
		Summary:     "Change case status (officers and admins)",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body TransitionRequest `json:"body"`
	}) (*caseOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return caseResult(e.TransitionStatus(ctx, actor, input.ID, engine.TransitionOptions{
			Status:          domain.Status(input.Body.Status),
			Note:            stringOrEmpty(input.Body.Note),
			ResolutionNotes: stringOrEmpty(input.Body.ResolutionNotes),
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID: "forward-to-admin",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/forward",
		Summary:     "Forward a case from the officer inbox to the admins",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		ID   string       `path:"id"`
		Body *NoteRequest `json:"body" required:"false"`
	}) (*caseOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		note := ""
		if input.Body != nil {
			note = stringOrEmpty(input.Body.Note)
		}
		return caseResult(e.ForwardToAdmin(ctx, actor, input.ID, note))
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-staff",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/assign",
		Summary:     "Assign an officer and/or agent",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body AssignStaffRequest `json:"body"`
	}) (*caseOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return caseResult(e.AssignStaff(ctx, actor, input.ID, engine.AssignStaffOptions{
			OfficerID: stringOrEmpty(input.Body.OfficerID),
			AgentID:   stringOrEmpty(input.Body.AgentID),
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-task-force",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/task-force",
		Summary:     "Assign a case to a task force member",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body AssignTaskForceRequest `json:"body"`
	}) (*caseOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return caseResult(e.AssignToTaskForce(ctx, actor, input.ID, input.Body.TaskForceID, stringOrEmpty(input.Body.Note)))
	})
}

func registerTaskForce(api huma.API, e engine.Engine) {
	type casePath struct {
		ID string `path:"id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "start-assessment",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/assessment/start",
		Summary:     "Begin field assessment",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *casePath) (*caseOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return caseResult(e.StartAssessment(ctx, actor, input.ID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-assessment",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/assessment",
		Summary:     "Submit the assessment report",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body SubmitAssessmentRequest `json:"body"`
	}) (*caseOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		return caseResult(e.SubmitAssessment(ctx, actor, input.ID, engine.AssessmentInput{
			Summary:           b.Summary,
			Findings:          stringOrEmpty(b.Findings),
			IssueConfirmed:    b.IssueConfirmed,
			Severity:          stringOrEmpty(b.Severity),
			EstimatedCost:     b.EstimatedCost,
			EstimatedDuration: stringOrEmpty(b.EstimatedDuration),
			RequiredResources: b.RequiredResources,
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-resolution",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/resolution/start",
		Summary:     "Begin remediation work",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *casePath) (*caseOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return caseResult(e.StartResolution(ctx, actor, input.ID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-resolution",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/resolution",
		Summary:     "Submit the resolution report",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body SubmitResolutionRequest `json:"body"`
	}) (*caseOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		return caseResult(e.SubmitResolution(ctx, actor, input.ID, engine.ResolutionInput{
			Summary:          b.Summary,
			WorkPerformed:    stringOrEmpty(b.WorkPerformed),
			ActualCost:       b.ActualCost,
			BeforeImages:     toObjects(b.BeforeImages),
			AfterImages:      toObjects(b.AfterImages),
			RequiresFollowup: b.RequiresFollowup,
			FollowupNotes:    stringOrEmpty(b.FollowupNotes),
		}))
	})
}

func registerReview(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "review-assessment",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/assessment/review",
		Summary:     "Approve, reject or request revision of an assessment",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body ReviewRequest `json:"body"`
	}) (*caseOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return caseResult(e.ReviewAssessment(ctx, actor, input.ID, domain.ReviewAction(input.Body.Action), stringOrEmpty(input.Body.Notes)))
	})

	huma.Register(api, huma.Operation{
		OperationID: "allocate-resources",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/resources",
		Summary:     "Allocate budget and resources to an assessed case",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body AllocateResourcesRequest `json:"body"`
	}) (*caseOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return caseResult(e.AllocateResources(ctx, actor, input.ID, input.Body.Budget, input.Body.Resources, stringOrEmpty(input.Body.Note)))
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-resolution",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/resolution/review",
		Summary:     "Approve, reject or request revision of a resolution",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body ReviewRequest `json:"body"`
	}) (*caseOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return caseResult(e.ReviewResolution(ctx, actor, input.ID, domain.ReviewAction(input.Body.Action), stringOrEmpty(input.Body.Notes)))
	})
}

func registerStaff(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-staff",
		Method:      http.MethodGet,
		Path:        "/staff",
		Summary:     "List staff profiles",
		Errors:      caseErrors,
	}, func(ctx context.Context, input *struct {
		Role string `query:"role" enum:"agent,officer,task_force,admin"`
	}) (*struct {
		Body staffList `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListStaff(ctx, actor, domain.Role(input.Role))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body staffList `json:"body"`
		}{Body: staffList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-staff",
		Method:        http.MethodPost,
		Path:          "/staff",
		Summary:       "Create a staff profile",
		DefaultStatus: http.StatusCreated,
		Errors:        caseErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateStaffRequest `json:"body"`
	}) (*struct {
		Body domain.StaffProfile `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateStaff(ctx, actor, engine.StaffInput{
			UserID:     input.Body.UserID,
			Role:       domain.Role(input.Body.Role),
			Name:       input.Body.Name,
			Phone:      stringOrEmpty(input.Body.Phone),
			CanAssess:  input.Body.CanAssess,
			CanResolve: input.Body.CanResolve,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.StaffProfile `json:"body"`
		}{Body: p}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit events after a cursor, oldest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if !actor.Role.IsTopLevel() {
			return nil, handleError(auth.ForbiddenError{Reason: "only admins can read audit events"})
		}
		limit := normalizeLimit(input.Limit)
		var after int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			after = parsed
		}
		items, err := e.Repo.EventsAfter(ctx, after, limit+1)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: items}
		if len(items) > limit {
			resp.Items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok || principal.UserID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		profiles := []domain.StaffProfile{}
		for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleOfficer, domain.RoleTaskForce, domain.RoleAgent} {
			p, err := e.Repo.StaffByUser(ctx, nil, principal.UserID, role)
			if err == nil {
				profiles = append(profiles, p)
			} else if !errors.Is(err, repo.ErrNotFound) {
				return nil, handleError(err)
			}
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			UserID:   principal.UserID,
			Role:     principal.Role,
			Source:   principal.Source,
			Profiles: profiles,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		user := strings.TrimSpace(input.Body.UserID)
		if user == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, user, domain.ParseRole(input.Body.Role), 12*time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
