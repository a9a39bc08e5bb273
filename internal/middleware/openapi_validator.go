package middleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	// Enabled controls whether validation is active
	Enabled bool
	// SpecPath is the path to the OpenAPI document
	SpecPath string
	// ValidateRequests rejects requests that don't match their operation
	ValidateRequests bool
	// ValidateResponses logs responses that don't match (impacts performance)
	ValidateResponses bool
	// SkipPaths are exact paths, or prefixes when they end in "/"
	SkipPaths []string
}

// DefaultOpenAPIValidatorConfig validates requests outside production.
// Only /api/v1 is described by the document; everything else is skipped.
func DefaultOpenAPIValidatorConfig(environment, specPath string) *OpenAPIValidatorConfig {
	if specPath == "" {
		specPath = "artifacts/openapi.yaml"
	}
	return &OpenAPIValidatorConfig{
		Enabled:           environment != "production" && environment != "prod",
		SpecPath:          specPath,
		ValidateRequests:  true,
		ValidateResponses: false,
		SkipPaths: []string{
			"/health",
			"/metrics",
			"/ws/",
		},
	}
}

// OpenAPIValidator checks /api/ requests against the OpenAPI document.
//
// Requests to secured operations that carry no session cookie are passed
// through untouched so the access gate answers them with 401; anonymous
// callers never see schema errors. A document that fails to load disables
// validation instead of taking the API down.
func OpenAPIValidator(config *OpenAPIValidatorConfig) func(next http.Handler) http.Handler {
	if config == nil {
		config = DefaultOpenAPIValidatorConfig("", "")
	}

	passthrough := func(next http.Handler) http.Handler { return next }

	if !config.Enabled {
		slog.Info("OpenAPI validation disabled")
		return passthrough
	}

	router, err := loadRouter(config.SpecPath)
	if err != nil {
		slog.Error("OpenAPI validation unavailable",
			slog.String("path", config.SpecPath),
			slog.String("error", err.Error()))
		return passthrough
	}

	slog.Info("OpenAPI validation enabled",
		slog.Bool("validate_requests", config.ValidateRequests),
		slog.Bool("validate_responses", config.ValidateResponses),
		slog.String("spec_path", config.SpecPath))

	options := &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") || shouldSkipPath(r.URL.Path, config.SkipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				if !config.ValidateRequests {
					next.ServeHTTP(w, r)
					return
				}
				slog.Warn("request path not found in OpenAPI spec",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				writeError(w, http.StatusNotFound, fmt.Sprintf("No operation for %s %s", r.Method, r.URL.Path))
				return
			}

			if requiresSession(route) && !hasSessionCookie(r) {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}

			if config.ValidateRequests {
				if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
					slog.Warn("request validation failed",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()))
					writeError(w, http.StatusBadRequest, fmt.Sprintf("Request validation failed: %s", err.Error()))
					return
				}
			}

			if !config.ValidateResponses {
				next.ServeHTTP(w, r)
				return
			}

			var body bytes.Buffer
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			validateResponse(r, input, ww, &body)
		})
	}
}

// loadRouter loads and validates the document and builds an operation router.
func loadRouter(specPath string) (routers.Router, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAPI router: %w", err)
	}
	return router, nil
}

// validateResponse logs mismatches only; the response is already sent.
func validateResponse(r *http.Request, input *openapi3filter.RequestValidationInput, ww chimiddleware.WrapResponseWriter, body *bytes.Buffer) {
	status := ww.Status()
	if status == 0 {
		status = http.StatusOK
	}

	err := openapi3filter.ValidateResponse(r.Context(), &openapi3filter.ResponseValidationInput{
		RequestValidationInput: input,
		Status:                 status,
		Header:                 ww.Header(),
		Body:                   io.NopCloser(bytes.NewReader(body.Bytes())),
		Options:                input.Options,
	})
	if err != nil {
		slog.Warn("response validation failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	}
}

// requiresSession reports whether the operation declares a security
// requirement, falling back to the document-wide one.
func requiresSession(route *routers.Route) bool {
	security := route.Operation.Security
	if security == nil && route.Spec != nil {
		security = &route.Spec.Security
	}
	return security != nil && len(*security) > 0
}

func hasSessionCookie(r *http.Request) bool {
	c, err := r.Cookie(SessionCookieName)
	return err == nil && c.Value != ""
}

// shouldSkipPath matches skip entries exactly, or as a prefix when the entry
// ends in a slash.
func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if path == skipPath {
			return true
		}
		if strings.HasSuffix(skipPath, "/") && strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}
