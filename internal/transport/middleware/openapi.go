package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	errors "github.com/frahmantamala/payment-gateway/internal"
)

// OpenAPIValidator checks requests against an OpenAPI 3 document before they
// reach the handlers. Routes missing from the document pass through untouched.
type OpenAPIValidator struct {
	router routers.Router
	logger *slog.Logger
}

func NewOpenAPIValidator(spec []byte, logger *slog.Logger) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, err
	}
	// servers are matched by path only
	doc.Servers = nil
	if err := doc.Validate(loader.Context); err != nil {
		return nil, err
	}
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, err
	}
	return &OpenAPIValidator{router: router, logger: logger}, nil
}

func (v *OpenAPIValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := v.router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc:  openapi3filter.NoopAuthenticationFunc,
				SkipSettingDefaults: true,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			v.logger.Debug("request rejected by openapi validation", "path", r.URL.Path, "error", err)
			status, body := errors.NewBadRequestError(validationMessage(err)).ToHTTPResponse()
			writeJSON(w, status, body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validationMessage(err error) string {
	switch e := err.(type) {
	case *openapi3filter.RequestError:
		if e.Parameter != nil {
			return "invalid parameter " + e.Parameter.Name
		}
		if e.RequestBody != nil {
			return "invalid request body"
		}
	case *openapi3filter.SecurityRequirementsError:
		return "invalid credentials"
	}
	return "invalid request"
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
