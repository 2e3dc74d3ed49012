package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/docrelay/docrelay/internal/tracing"
)

// TracingMiddleware creates a new span for each request and adds common tags
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(
			c.Request.Context(),
			c.Request.Method+" "+c.FullPath(),
			c.Request.Header,
		)
		defer span.Finish()

		tracing.TagComponentRest(span)

		if address := c.Param("address"); address != "" {
			tracing.TagAccount(span, address)
		}

		c.Request = c.Request.WithContext(ctx)

		c.Next()

		span.SetTag("http.status_code", c.Writer.Status())
		if c.Writer.Status() >= 400 {
			tracing.TraceErr(span, fmt.Errorf("request failed with status %d", c.Writer.Status()))
		}
	}
}
