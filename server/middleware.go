package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/devopsext/weightapi/common"
	"github.com/gin-gonic/gin"
)

const headerRequestID = "X-Request-ID"
const keyRequestID = "request_id"
const unmatchedRoute = "unmatched"

var knownMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true,
	http.MethodPut: true, http.MethodPatch: true, http.MethodDelete: true,
	http.MethodConnect: true, http.MethodOptions: true, http.MethodTrace: true,
}

func currentSpan(ctx context.Context) common.TracerSpan {

	if span := common.SpanFromContext(ctx); span != nil {
		return span
	}
	return common.NoopSpan{}
}

// routeOf limits span names and metric labels to registered routes and standard methods.
func routeOf(c *gin.Context) (string, string) {

	method := c.Request.Method
	if !knownMethods[method] {
		method = "OTHER"
	}
	route := c.FullPath()
	if route == "" {
		route = unmatchedRoute
	}
	return method, route
}

// RequestID keeps the caller's X-Request-ID or issues a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {

		id := c.GetHeader(headerRequestID)
		if common.IsEmpty(id) {
			id = common.GetGuid()
		}
		c.Set(keyRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// Tracing runs the rest of the chain inside the request interceptor. Errors pushed
// with c.Error are the unhandled errors of the request; the last one is captured on
// the request span.
func Tracing(interceptor *common.Interceptor, metrics *common.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {

		method, route := routeOf(c)
		name := fmt.Sprintf("%s %s", method, route)

		interceptor.Intercept(c.Request.Context(), name, c.Request.Header, func(ctx context.Context) error {

			c.Request = c.Request.WithContext(ctx)

			span := currentSpan(ctx)
			span.SetCarrier(c.Writer.Header())
			span.SetTag("http.method", method)
			span.SetTag("http.route", route)
			span.SetTag("http.request_id", c.GetString(keyRequestID))

			completed := false
			defer func() {
				status := c.Writer.Status()
				if !completed {
					// a panic is on its way to gin.Recovery, which answers 500
					status = http.StatusInternalServerError
				}
				span.SetTag("http.status_code", status)

				metrics.Counter("requests", "HTTP requests served", common.Labels{
					"method": method,
					"route":  route,
					"status": strconv.Itoa(status),
				}, "http").Inc()
			}()

			c.Next()
			completed = true

			if e := c.Errors.Last(); e != nil && e.Err != nil {
				return e.Err
			}
			return nil
		})
	}
}

// errorResponder answers requests that ended with an unhandled error and no response.
func errorResponder() gin.HandlerFunc {
	return func(c *gin.Context) {

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		span := currentSpan(c.Request.Context())
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    http.StatusText(http.StatusInternalServerError),
			"trace_id": span.GetContext().GetTraceID(),
		})
	}
}
