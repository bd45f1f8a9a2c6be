package conductor

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/agentd/internal/logger"
	"github.com/marmos91/agentd/internal/telemetry"
	"github.com/marmos91/agentd/pkg/wallet"
)

// ErrStopping is returned to transports delivering after Stop has begun.
var ErrStopping = errors.New("conductor: stopping")

const (
	inboxSize = 64

	// drainTimeout bounds the final flush of buffered messages.
	drainTimeout = 5 * time.Second
)

// dispatcher moves received messages from the transports into the wallet.
type dispatcher struct {
	inbox      chan Message
	stopping   chan struct{}
	wallet     wallet.Wallet
	walletType string
	metrics    Metrics
}

func newDispatcher(w wallet.Wallet, walletType string, m Metrics) *dispatcher {
	return &dispatcher{
		inbox:      make(chan Message, inboxSize),
		stopping:   make(chan struct{}),
		wallet:     w,
		walletType: walletType,
		metrics:    m,
	}
}

// deliver enqueues msg, blocking while the inbox is full.
func (d *dispatcher) deliver(ctx context.Context, msg Message) error {
	select {
	case <-d.stopping:
		return ErrStopping
	default:
	}

	select {
	case d.inbox <- msg:
		return nil
	case <-d.stopping:
		return ErrStopping
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run stores messages until ctx is cancelled, then flushes what is buffered.
func (d *dispatcher) run(ctx context.Context) error {
	for {
		select {
		case msg := <-d.inbox:
			d.store(ctx, msg)
		case <-ctx.Done():
			d.drain(ctx)
			return nil
		}
	}
}

func (d *dispatcher) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	flushed := 0
	for {
		select {
		case msg := <-d.inbox:
			d.store(ctx, msg)
			flushed++
		default:
			if flushed > 0 {
				logger.DebugCtx(ctx, "Flushed buffered inbound messages", logger.KeyPending, flushed)
			}
			return
		}
	}
}

func (d *dispatcher) store(ctx context.Context, msg Message) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanWalletWrite,
		trace.WithAttributes(telemetry.MessageID(msg.ID), telemetry.Wallet(d.walletType)))
	defer span.End()

	data, err := msg.encode()
	if err == nil {
		err = d.wallet.Put(ctx, msg.Key(), data)
	}
	d.metrics.MessageStored(err)

	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "Failed to store inbound message",
			logger.KeyMessageID, msg.ID, logger.KeyTransport, msg.Transport, logger.Err(err))
		return
	}
	logger.DebugCtx(ctx, "Stored inbound message",
		logger.KeyMessageID, msg.ID, logger.KeyTransport, msg.Transport, logger.KeyBytes, len(msg.Payload))
}
