package controlapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/discountrules/internal/logger"
	"github.com/rafaeljc/discountrules/internal/observability"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// RequestLogger stores a request-scoped logger in the context and logs every
// completed request. 4xx log at Warn and 5xx at Error.
func (a *API) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())

		reqLog := a.logger.With(slog.String("request_id", reqID))
		r = r.WithContext(logger.WithContext(r.Context(), reqLog))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		status := ww.Status()
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}

		reqLog.Log(r.Context(), level, "HTTP request completed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("duration", time.Since(start).String()),
			slog.String("remote_ip", r.RemoteAddr),
		)
	})
}

// Metrics records request count and latency labelled by route pattern, so
// path parameters never reach label values. Unmatched paths collapse to "not_found".
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "not_found"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		observability.ControlAPIReqDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		observability.ControlAPIReqTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
	})
}

// authenticateAPIKey compares the SHA-256 of the X-API-Key header with the
// configured hash in constant time.
func (a *API) authenticateAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipAuth {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			writeError(w, r, http.StatusUnauthorized, ErrorResponse{
				Code:    "ERR_UNAUTHORIZED",
				Message: "Missing " + APIKeyHeader + " header",
			})
			return
		}

		sum := sha256.Sum256([]byte(key))
		got := hex.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.apiKeyHash)) != 1 {
			logger.FromContext(r.Context()).Warn("rejected api key", slog.String("remote_ip", r.RemoteAddr))
			writeError(w, r, http.StatusUnauthorized, ErrorResponse{
				Code:    "ERR_UNAUTHORIZED",
				Message: "Invalid API key",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	render.Status(r, status)
	render.JSON(w, r, resp)
}
