// README: FCM push to the assigned driver when a delivery is assigned or cancelled.
package notify

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/messaging"

	"kitchenline/internal/logging"
	"kitchenline/internal/modules/order"
	"kitchenline/internal/types"
)

// Sender is satisfied by *messaging.Client.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type TokenResolver interface {
	DeviceToken(ctx context.Context, driverID types.ID) (string, error)
}

type pushJob struct {
	kind     string
	driverID types.ID
	o        *order.Order
}

// DriverPush implements order.Notifier. Sends happen on Run's goroutine.
type DriverPush struct {
	sender Sender
	tokens TokenResolver
	queue  chan pushJob
}

func NewDriverPush(sender Sender, tokens TokenResolver, buffer int) *DriverPush {
	if buffer <= 0 {
		buffer = 64
	}
	return &DriverPush{sender: sender, tokens: tokens, queue: make(chan pushJob, buffer)}
}

// SetTokens binds the token source; call before Run.
func (p *DriverPush) SetTokens(tokens TokenResolver) {
	p.tokens = tokens
}

func (p *DriverPush) OrderCreated(context.Context, *order.Order) {}

func (p *DriverPush) OrderUpdated(_ context.Context, o *order.Order) {
	if o.DriverID == nil || o.OrderType != order.TypeDelivery {
		return
	}
	switch {
	case o.DeliveryStatus == order.DeliveryAssigned && stampedNow(o.AssignedAt, o):
		p.enqueue(pushJob{kind: "delivery_assigned", driverID: *o.DriverID, o: o.Clone()})
	case o.Status == order.StatusCancelled && stampedNow(o.CancelledAt, o):
		p.enqueue(pushJob{kind: "delivery_cancelled", driverID: *o.DriverID, o: o.Clone()})
	}
}

func (p *DriverPush) OrderDeleted(context.Context, *order.Order) {}

// stampedNow reports whether the stamp was set by the change that produced o.
func stampedNow(stamp *time.Time, o *order.Order) bool {
	return stamp != nil && stamp.Equal(o.UpdatedAt)
}

func (p *DriverPush) enqueue(job pushJob) {
	select {
	case p.queue <- job:
	default:
		logging.Warn().Str("driver_id", job.driverID.String()).Msg("push queue full, dropping notification")
	}
}

func (p *DriverPush) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-p.queue:
			if err := p.send(ctx, job); err != nil {
				logging.Warn().Err(err).Str("driver_id", job.driverID.String()).Str("kind", job.kind).Msg("driver push failed")
			}
		}
	}
}

func (p *DriverPush) send(ctx context.Context, job pushJob) error {
	token, err := p.tokens.DeviceToken(ctx, job.driverID)
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	title := "New delivery assigned"
	if job.kind == "delivery_cancelled" {
		title = "Delivery cancelled"
	}
	msg := &messaging.Message{
		Token: token,
		Data: map[string]string{
			"type":         job.kind,
			"order_id":     job.o.ID.String(),
			"order_number": job.o.OrderNumber,
		},
		Notification: &messaging.Notification{
			Title: title,
			Body:  fmt.Sprintf("Order %s", job.o.OrderNumber),
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	}
	id, err := p.sender.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("fcm send for order %s: %w", job.o.ID, err)
	}
	logging.Info().Str("order_id", job.o.ID.String()).Str("message_id", id).Msg("driver push sent")
	return nil
}
