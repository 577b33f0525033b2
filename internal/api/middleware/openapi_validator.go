package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"

	"smartspray.io/notifier/internal/api/openapi"
)

// Error codes produced by the validator.
const (
	CodeOpenAPIRouteInvalid   = "OPENAPI_ROUTE_INVALID"
	CodeOpenAPIRequestInvalid = "OPENAPI_REQUEST_INVALID"
)

// MustOpenAPIValidator is NewOpenAPIValidator for router setup; it panics if
// the embedded contract is broken.
func MustOpenAPIValidator(basePath string) gin.HandlerFunc {
	mw, err := NewOpenAPIValidator(basePath)
	if err != nil {
		panic(fmt.Sprintf("init openapi validator: %v", err))
	}
	return mw
}

// NewOpenAPIValidator validates requests under basePath against the embedded
// contract, whose paths are relative to basePath. Paths the contract does
// not describe pass through. Responses are not validated: the live push
// route hijacks the connection.
func NewOpenAPIValidator(basePath string) (gin.HandlerFunc, error) {
	doc, err := openapi.Document()
	if err != nil {
		return nil, err
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create openapi router: %w", err)
	}
	basePath = normalizeBasePath(basePath)

	options := &openapi3filter.Options{
		// JWTAuth and RequireRole own authorization.
		AuthenticationFunc: func(context.Context, *openapi3filter.AuthenticationInput) error { return nil },
	}

	return func(c *gin.Context) {
		restore := rebase(c.Request, basePath)
		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			restore()
			if isPathNotFound(err) {
				c.Next()
				return
			}
			abortWithOpenAPIError(c, CodeOpenAPIRouteInvalid, err)
			return
		}

		err = openapi3filter.ValidateRequest(c.Request.Context(), &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options:    options,
		})
		restore()
		if err != nil {
			abortWithOpenAPIError(c, CodeOpenAPIRequestInvalid, err)
			return
		}
		c.Next()
	}, nil
}

func normalizeBasePath(basePath string) string {
	basePath = strings.Trim(strings.TrimSpace(basePath), "/")
	if basePath == "" {
		return ""
	}
	return "/" + basePath
}

// stripBasePath maps a request path onto the contract's relative paths.
func stripBasePath(basePath, path string) string {
	switch {
	case path == "":
		return "/"
	case basePath == "":
		return path
	case path == basePath:
		return "/"
	case strings.HasPrefix(path, basePath+"/"):
		return strings.TrimPrefix(path, basePath)
	}
	return path
}

// rebase rewrites req's path for route lookup and returns a func restoring it.
func rebase(req *http.Request, basePath string) (restore func()) {
	path, rawPath := req.URL.Path, req.URL.RawPath
	req.URL.Path = stripBasePath(basePath, path)
	if rawPath != "" {
		req.URL.RawPath = stripBasePath(basePath, rawPath)
	}
	return func() {
		req.URL.Path, req.URL.RawPath = path, rawPath
	}
}

func isPathNotFound(err error) bool {
	if errors.Is(err, routers.ErrPathNotFound) {
		return true
	}
	var routeErr *routers.RouteError
	return errors.As(err, &routeErr) && routeErr.Reason == routers.ErrPathNotFound.Error()
}

func abortWithOpenAPIError(c *gin.Context, code string, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"code":    code,
		"message": err.Error(),
	})
}
