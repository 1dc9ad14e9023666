package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		// Route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(method, path, status, duration, reqSize, respSize)
	}
}

// Timer measures evaluation duration
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer starts timing an evaluation
func NewTimer(metrics *Metrics) *Timer {
	metrics.IncActiveInvocations()
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
	}
}

// Stop records the evaluation outcome and its duration
func (t *Timer) Stop(status string) {
	t.metrics.DecActiveInvocations()
	t.metrics.RecordEvaluation(status, time.Since(t.start))
}
