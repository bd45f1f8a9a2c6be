package conductor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/marmos91/agentd/internal/logger"
	"github.com/marmos91/agentd/internal/telemetry"
	"github.com/marmos91/agentd/pkg/config"
)

type wsTransport struct {
	*listener
	deliver deliverFunc
}

// newWSTransport accepts messages as WebSocket frames on /. Each frame is
// one message and is acknowledged with a JSON frame carrying its ID.
func newWSTransport(cfg config.TransportConfig, deliver deliverFunc, info healthInfo, maxBytes int64, m Metrics) *wsTransport {
	t := &wsTransport{deliver: deliver}

	r := newRouter(cfg.Type, info)
	r.Get("/", t.handleUpgrade)

	t.listener = newListener(cfg, r, maxBytes, m)
	return t
}

func (t *wsTransport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	// Registered before the connection is hijacked so Shutdown waits for it.
	t.conns.Add(1)
	defer t.conns.Done()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket accept failed", logger.Err(err))
		return
	}
	conn.SetReadLimit(t.maxBytes)

	t.metrics.ConnectionOpened(t.kind)
	defer t.metrics.ConnectionClosed(t.kind)

	t.handleConnection(r.Context(), conn, r.RemoteAddr)
}

func (t *wsTransport) handleConnection(ctx context.Context, conn *websocket.Conn, remote string) {
	status, reason := websocket.StatusNormalClosure, "connection closed"
	defer func() { _ = conn.Close(status, reason) }()

	logger.Debug("WebSocket session opened", logger.KeyTransport, t.kind, "remote", remote)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				status, reason = websocket.StatusGoingAway, "server shutting down"
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway:
				logger.Debug("WebSocket session closed by peer", "remote", remote)
			default:
				logger.Warn("WebSocket read error", "remote", remote, logger.Err(err))
			}
			return
		}

		msgCtx, span := telemetry.StartTransportSpan(ctx, t.kind, t.Addr())
		msg := newMessage(t.kind, remote, data)
		telemetry.SetAttributes(msgCtx, telemetry.MessageID(msg.ID))
		t.metrics.MessageReceived(t.kind, len(data))

		err = t.deliver(msgCtx, msg)
		if err != nil {
			telemetry.RecordError(msgCtx, err)
			span.End()
			if errors.Is(err, ErrStopping) {
				status, reason = websocket.StatusGoingAway, "server shutting down"
			} else {
				status, reason = websocket.StatusInternalError, "delivery failed"
			}
			return
		}

		err = writeAck(msgCtx, conn, msg.ID)
		span.End()
		if err != nil {
			logger.Debug("WebSocket ack failed", "remote", remote, logger.Err(err))
			return
		}
	}
}

func writeAck(ctx context.Context, conn *websocket.Conn, id string) error {
	data, err := json.Marshal(ack{ID: id})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
