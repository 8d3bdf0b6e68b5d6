// Package supervisor is the process-wide worker registry. Workers are
// started lazily on first address request, health-checked before every
// handout, and restarted transparently when a probe fails. The supervisor
// is reachable only through its own mailbox; an address lookup is itself a
// message, which is what makes lazy start and restart possible without any
// shared lock.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/appctx"
	"github.com/corray333/backend-labs/fulfillment/internal/kafka"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/delivery"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/mailbox"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/orderworker"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/storage"
	"github.com/spf13/viper"
)

var errNotStarted = errors.New("worker not started yet")

// Request is the supervisor protocol.
type Request interface {
	isRequest()
}

// HealthRequest asks for a liveness confirmation.
type HealthRequest struct {
	Reply chan<- Response
}

// AppContextRequest returns the shared application context.
type AppContextRequest struct {
	Reply chan<- *appctx.AppContext
}

// OrderSenderRequest returns a live order worker mailbox.
type OrderSenderRequest struct {
	Reply chan<- *mailbox.Mailbox[orderworker.Request]
}

// StorageSenderRequest returns a live storage worker mailbox.
type StorageSenderRequest struct {
	Reply chan<- *mailbox.Mailbox[storage.Request]
}

// DeliverySenderRequest returns a live delivery worker mailbox.
type DeliverySenderRequest struct {
	Reply chan<- *mailbox.Mailbox[delivery.Request]
}

// KafkaProducerSenderRequest returns a live Kafka producer worker mailbox.
type KafkaProducerSenderRequest struct {
	Reply chan<- *mailbox.Mailbox[kafka.ProducerRequest]
}

func (HealthRequest) isRequest()              {}
func (AppContextRequest) isRequest()          {}
func (OrderSenderRequest) isRequest()         {}
func (StorageSenderRequest) isRequest()       {}
func (DeliverySenderRequest) isRequest()      {}
func (KafkaProducerSenderRequest) isRequest() {}

// Response is the reply to a HealthRequest.
type Response int

const HealthOK Response = iota

// Supervisor owns the stored worker mailboxes. The notify worker and the
// Kafka consumer run outside this registry; their failure is fatal to the
// run group, not self-healed.
type Supervisor struct {
	ac           *appctx.AppContext
	mb           *mailbox.Mailbox[Request]
	probeTimeout time.Duration

	orderMB    *mailbox.Mailbox[orderworker.Request]
	storageMB  *mailbox.Mailbox[storage.Request]
	deliveryMB *mailbox.Mailbox[delivery.Request]
	producerMB *mailbox.Mailbox[kafka.ProducerRequest]

	startOrder    func(ctx context.Context) *mailbox.Mailbox[orderworker.Request]
	startStorage  func(ctx context.Context) *mailbox.Mailbox[storage.Request]
	startDelivery func(ctx context.Context) *mailbox.Mailbox[delivery.Request]
	startProducer func(ctx context.Context) *mailbox.Mailbox[kafka.ProducerRequest]
}

// Start starts the supervisor and returns its mailbox.
func Start(ctx context.Context, ac *appctx.AppContext) *mailbox.Mailbox[Request] {
	s := newSupervisor(ac)
	go s.run(ctx)

	return s.mb
}

func newSupervisor(ac *appctx.AppContext) *Supervisor {
	s := &Supervisor{
		ac:           ac,
		mb:           mailbox.New[Request](mailbox.DefaultCapacity),
		probeTimeout: probeTimeout(),
	}

	// Started workers route their own downstream lookups back through the
	// supervisor mailbox, so restarts stay transparent to them.
	s.startOrder = func(ctx context.Context) *mailbox.Mailbox[orderworker.Request] {
		return orderworker.Start(ctx, orderworker.Lookups{
			Storage: func(ctx context.Context) (*mailbox.Mailbox[storage.Request], error) {
				return StorageSender(ctx, s.mb)
			},
			Delivery: func(ctx context.Context) (*mailbox.Mailbox[delivery.Request], error) {
				return DeliverySender(ctx, s.mb)
			},
		})
	}
	s.startStorage = func(ctx context.Context) *mailbox.Mailbox[storage.Request] {
		return storage.Start(ctx, s.ac)
	}
	s.startDelivery = func(ctx context.Context) *mailbox.Mailbox[delivery.Request] {
		return delivery.Start(ctx, s.ac, func(ctx context.Context) (*mailbox.Mailbox[kafka.ProducerRequest], error) {
			return KafkaProducerSender(ctx, s.mb)
		})
	}
	s.startProducer = func(ctx context.Context) *mailbox.Mailbox[kafka.ProducerRequest] {
		return kafka.StartProducer(ctx)
	}

	return s
}

func probeTimeout() time.Duration {
	seconds := viper.GetInt("supervisor.probe_timeout_seconds")
	if seconds == 0 {
		seconds = 1
	}

	return time.Duration(seconds) * time.Second
}

func (s *Supervisor) run(ctx context.Context) {
	defer s.mb.Close()

	slog.Info("Supervisor started")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Supervisor shutting down")

			return
		case req := <-s.mb.Chan():
			s.handle(ctx, req)
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, req Request) {
	switch r := req.(type) {
	case HealthRequest:
		deliver(r.Reply, HealthOK)
	case AppContextRequest:
		deliver(r.Reply, s.ac)
	case OrderSenderRequest:
		if err := probe(ctx, s.orderMB, newOrderHealth, s.probeTimeout); err != nil {
			slog.Error("Order worker failed health check, restarting", "error", err)
			s.orderMB = s.startOrder(ctx)
		}
		deliver(r.Reply, s.orderMB)
	case StorageSenderRequest:
		if err := probe(ctx, s.storageMB, newStorageHealth, s.probeTimeout); err != nil {
			slog.Error("Storage worker failed health check, restarting", "error", err)
			s.storageMB = s.startStorage(ctx)
		}
		deliver(r.Reply, s.storageMB)
	case DeliverySenderRequest:
		if err := probe(ctx, s.deliveryMB, newDeliveryHealth, s.probeTimeout); err != nil {
			slog.Error("Delivery worker failed health check, restarting", "error", err)
			s.deliveryMB = s.startDelivery(ctx)
		}
		deliver(r.Reply, s.deliveryMB)
	case KafkaProducerSenderRequest:
		if err := probe(ctx, s.producerMB, newProducerHealth, s.probeTimeout); err != nil {
			slog.Error("Kafka producer worker failed health check, restarting", "error", err)
			s.producerMB = s.startProducer(ctx)
		}
		deliver(r.Reply, s.producerMB)
	}
}

func newOrderHealth(reply chan orderworker.Response) orderworker.Request {
	return orderworker.HealthRequest{Reply: reply}
}

func newStorageHealth(reply chan storage.Response) storage.Request {
	return storage.HealthRequest{Reply: reply}
}

func newDeliveryHealth(reply chan delivery.Response) delivery.Request {
	return delivery.HealthRequest{Reply: reply}
}

func newProducerHealth(reply chan kafka.ProducerResponse) kafka.ProducerRequest {
	return kafka.ProducerHealthRequest{Reply: reply}
}

// probe sends a health request to a stored mailbox and awaits the reply
// within the probe timeout. Any failure means the worker is treated as
// dead and restarted.
func probe[Req, Resp any](
	ctx context.Context,
	mb *mailbox.Mailbox[Req],
	newHealth func(reply chan Resp) Req,
	timeout time.Duration,
) error {
	if mb == nil {
		return errNotStarted
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply := mailbox.NewReply[Resp]()
	if err := mb.Send(probeCtx, newHealth(reply)); err != nil {
		return err
	}

	_, err := mailbox.Await(probeCtx, reply, mb.Done())

	return err
}

// deliver hands a reply back to the requester. Reply slots are buffered,
// so a refusal means the slot was reused; the reply is logged and dropped.
func deliver[T any](reply chan<- T, value T) {
	select {
	case reply <- value:
	default:
		slog.Error("Failed to deliver supervisor reply, dropping")
	}
}

// Health confirms the supervisor loop is alive.
func Health(ctx context.Context, sup *mailbox.Mailbox[Request]) error {
	_, err := request(ctx, sup, func(reply chan Response) Request {
		return HealthRequest{Reply: reply}
	})

	return err
}

// AppContext fetches the shared application context.
func AppContext(ctx context.Context, sup *mailbox.Mailbox[Request]) (*appctx.AppContext, error) {
	return request(ctx, sup, func(reply chan *appctx.AppContext) Request {
		return AppContextRequest{Reply: reply}
	})
}

// OrderSender fetches a live order worker mailbox.
func OrderSender(ctx context.Context, sup *mailbox.Mailbox[Request]) (*mailbox.Mailbox[orderworker.Request], error) {
	return request(ctx, sup, func(reply chan *mailbox.Mailbox[orderworker.Request]) Request {
		return OrderSenderRequest{Reply: reply}
	})
}

// StorageSender fetches a live storage worker mailbox.
func StorageSender(ctx context.Context, sup *mailbox.Mailbox[Request]) (*mailbox.Mailbox[storage.Request], error) {
	return request(ctx, sup, func(reply chan *mailbox.Mailbox[storage.Request]) Request {
		return StorageSenderRequest{Reply: reply}
	})
}

// DeliverySender fetches a live delivery worker mailbox.
func DeliverySender(ctx context.Context, sup *mailbox.Mailbox[Request]) (*mailbox.Mailbox[delivery.Request], error) {
	return request(ctx, sup, func(reply chan *mailbox.Mailbox[delivery.Request]) Request {
		return DeliverySenderRequest{Reply: reply}
	})
}

// KafkaProducerSender fetches a live Kafka producer worker mailbox.
func KafkaProducerSender(ctx context.Context, sup *mailbox.Mailbox[Request]) (*mailbox.Mailbox[kafka.ProducerRequest], error) {
	return request(ctx, sup, func(reply chan *mailbox.Mailbox[kafka.ProducerRequest]) Request {
		return KafkaProducerSenderRequest{Reply: reply}
	})
}

func request[T any](
	ctx context.Context,
	sup *mailbox.Mailbox[Request],
	newRequest func(reply chan T) Request,
) (T, error) {
	reply := mailbox.NewReply[T]()
	if err := sup.Send(ctx, newRequest(reply)); err != nil {
		var zero T

		return zero, err
	}

	return mailbox.Await(ctx, reply, sup.Done())
}

// ProcessOrder is a convenience wrapper used by the notify worker: resolve
// the order worker and run one order through it, blocking until processed.
func ProcessOrder(ctx context.Context, sup *mailbox.Mailbox[Request], o order.Order) (orderworker.Response, error) {
	orderMB, err := OrderSender(ctx, sup)
	if err != nil {
		return orderworker.Response{}, err
	}

	reply := mailbox.NewReply[orderworker.Response]()
	if err := orderMB.Send(ctx, orderworker.ProcessOrderRequest{Order: o, Reply: reply}); err != nil {
		return orderworker.Response{}, err
	}

	return mailbox.Await(ctx, reply, orderMB.Done())
}
