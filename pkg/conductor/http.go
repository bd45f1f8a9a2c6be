package conductor

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/agentd/internal/logger"
	"github.com/marmos91/agentd/internal/telemetry"
	"github.com/marmos91/agentd/pkg/config"
)

// healthInfo is reported by GET /health on every inbound transport.
type healthInfo struct {
	Label     string   `json:"label,omitempty"`
	Endpoints []string `json:"endpoints,omitempty"`
	NoLedger  bool     `json:"no_ledger"`
}

type healthResponse struct {
	Status string `json:"status"`
	healthInfo
}

// problem is an RFC 7807 error body.
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", logger.Err(err))
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

// newRouter returns the middleware stack shared by inbound transports.
func newRouter(kind string, info healthInfo) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(kind))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", healthInfo: info})
	})
	return r
}

func requestLogger(kind string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("Inbound request completed",
				logger.KeyTransport, kind,
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				logger.KeyBytes, ww.BytesWritten(),
				"duration", time.Since(start).String(),
			)
		})
	}
}

type httpTransport struct {
	*listener
	deliver deliverFunc
}

// newHTTPTransport accepts messages as POST / request bodies.
func newHTTPTransport(cfg config.TransportConfig, deliver deliverFunc, info healthInfo, maxBytes int64, m Metrics) *httpTransport {
	t := &httpTransport{deliver: deliver}

	r := newRouter(cfg.Type, info)
	r.Post("/", t.handleMessage)

	t.listener = newListener(cfg, r, maxBytes, m)
	return t
}

func (t *httpTransport) handleMessage(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.StartTransportSpan(r.Context(), t.kind, t.Addr())
	defer span.End()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, t.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, http.StatusRequestEntityTooLarge, "message exceeds size limit")
			return
		}
		writeProblem(w, http.StatusBadRequest, "failed to read message body")
		return
	}
	if len(body) == 0 {
		writeProblem(w, http.StatusBadRequest, "empty message")
		return
	}

	msg := newMessage(t.kind, r.RemoteAddr, body)
	telemetry.SetAttributes(ctx, telemetry.MessageID(msg.ID))
	t.metrics.MessageReceived(t.kind, len(body))

	if err := t.deliver(ctx, msg); err != nil {
		telemetry.RecordError(ctx, err)
		writeProblem(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, ack{ID: msg.ID})
}
