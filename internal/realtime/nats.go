package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vedran77/ontomatch/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const flushTimeout = 5 * time.Second

// NATSBroker carries topics over core NATS subjects. The client reconnects
// forever and restores subscriptions on its own.
type NATSBroker struct {
	nc        *nats.Conn
	listeners stateListeners
}

func NewNATSBroker(url string) (*NATSBroker, error) {
	b := &NATSBroker{}
	nc, err := nats.Connect(url,
		nats.Name("ontomatch"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
			b.listeners.notify(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
			b.listeners.notify(true)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	b.nc = nc
	return b, nil
}

func (b *NATSBroker) Publish(ctx context.Context, subject string, data []byte) error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("publish %s: %w", subject, domain.ErrTransportUnavailable)
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if err := b.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w: %v", subject, domain.ErrTransportUnavailable, err)
	}
	return nil
}

func (b *NATSBroker) Subscribe(ctx context.Context, subject string, h Handler) (func() error, error) {
	if !b.nc.IsConnected() {
		return nil, fmt.Errorf("subscribe %s: %w", subject, domain.ErrTransportUnavailable)
	}

	tracer := otel.Tracer("realtime")
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))
		ctx, span := tracer.Start(ctx, "deliver "+msg.Subject, trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()
		h(ctx, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w: %v", subject, domain.ErrTransportUnavailable, err)
	}

	// The subscription is only guaranteed to be registered server side
	// after a round trip. FlushWithContext requires a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("confirm subscription %s: %w: %v", subject, domain.ErrTransportUnavailable, err)
	}

	return sub.Unsubscribe, nil
}

func (b *NATSBroker) Connected() bool {
	return b.nc.IsConnected()
}

func (b *NATSBroker) OnStateChange(fn func(bool)) func() {
	return b.listeners.add(fn)
}

func (b *NATSBroker) Close() error {
	return b.nc.Drain()
}
