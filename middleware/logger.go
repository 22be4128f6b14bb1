package middleware

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/stats"
)

const (
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

// ResponseRecorder captures the status code and body size written by a handler
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode int
	BodySize   int
}

// NewResponseRecorder wraps w. The status defaults to 200 for handlers that never call WriteHeader.
func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (r *ResponseRecorder) WriteHeader(code int) {
	r.StatusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *ResponseRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.BodySize += n
	return n, err
}

func getStatusColor(code int) string {
	switch {
	case code >= 500:
		return colorRed
	case code >= 400:
		return colorYellow
	case code >= 300:
		return colorCyan
	case code >= 200:
		return colorGreen
	default:
		return logcolors.Reset
	}
}

// LoggingMiddleware logs every request with its status and latency and feeds the request stats
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := NewResponseRecorder(w)

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		s := stats.Get()
		s.RecordRequest(r.URL.Path)
		s.RecordStatusCode(rec.StatusCode)
		s.RecordResponseTime(elapsed)

		log.Infof("%s %s %s %s%d%s %dB %v", logcolors.LogHTTP, r.Method, r.URL.Path,
			getStatusColor(rec.StatusCode), rec.StatusCode, logcolors.Reset, rec.BodySize, elapsed.Round(time.Microsecond))
	})
}
