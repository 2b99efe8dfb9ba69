package middleware

import (
	"log"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Logging writes one access log line per request, tagged with the request id
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Printf("[%s] %s %s %d %dms",
			chimw.GetReqID(r.Context()), r.Method, r.URL.Path, ww.Status(), time.Since(start).Milliseconds())
	})
}
