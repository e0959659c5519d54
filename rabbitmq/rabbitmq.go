package rabbitmq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/oratio/bchhub.go/db/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ziflex/lecho/v3"
)

// reused encoding buffers, one per concurrently published event
var bufPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

const (
	contentTypeJSON = "application/json"

	ReconcileRequestRoutingKey = "reconcile.request"
)

type (
	SubscribeToInvoicesFunc   = func() (events chan models.InvoiceEvent, unsubscribe func())
	EncodeOutgoingInvoiceFunc = func(ctx context.Context, w io.Writer, event models.InvoiceEvent) error
)

// InvoiceReconciler handles reconcile requests coming from other services,
// e.g. a "check payment" button in the front end.
type InvoiceReconciler interface {
	Reconcile(ctx context.Context, id string) (*models.Invoice, error)
}

type Client interface {
	StartPublishInvoices(context.Context, SubscribeToInvoicesFunc, EncodeOutgoingInvoiceFunc) error
	ConsumeReconcileRequests(context.Context, InvoiceReconciler) error
	// Close will close all connections to rabbitmq
	Close() error
}

type DefaultClient struct {
	amqpClient AMQPClient
	logger     *lecho.Logger

	invoiceExchange            string
	reconcileExchange          string
	reconcileConsumerQueueName string
}

type ClientOption = func(client *DefaultClient)

func WithInvoiceExchange(exchange string) ClientOption {
	return func(client *DefaultClient) {
		client.invoiceExchange = exchange
	}
}

func WithReconcileExchange(exchange string) ClientOption {
	return func(client *DefaultClient) {
		client.reconcileExchange = exchange
	}
}

func WithReconcileConsumerQueueName(name string) ClientOption {
	return func(client *DefaultClient) {
		client.reconcileConsumerQueueName = name
	}
}

func WithLogger(logger *lecho.Logger) ClientOption {
	return func(client *DefaultClient) {
		client.logger = logger
	}
}

func NewClient(amqpClient AMQPClient, options ...ClientOption) (Client, error) {
	client := &DefaultClient{
		amqpClient: amqpClient,
		logger:     lecho.New(io.Discard),

		invoiceExchange:            "bchhub_invoice",
		reconcileExchange:          "bchhub_reconcile",
		reconcileConsumerQueueName: "bchhub_reconcile_consumer",
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

func (client *DefaultClient) Close() error { return client.amqpClient.Close() }

// InvoiceRoutingKey is invoice.<status>.
func InvoiceRoutingKey(event models.InvoiceEvent) string {
	return fmt.Sprintf("invoice.%s", event.ToStatus)
}

func (client *DefaultClient) StartPublishInvoices(ctx context.Context, subscribe SubscribeToInvoicesFunc, payloadFunc EncodeOutgoingInvoiceFunc) error {
	err := client.amqpClient.ExchangeDeclare(
		client.invoiceExchange,
		// topic exchanges route on the routing key, consumers bind to invoice.completed etc.
		"topic",
		// durable, not auto deleted
		true,
		false,
		// accepts direct publishing
		false,
		// wait for the server to confirm the declaration
		false,
		nil,
	)
	if err != nil {
		return err
	}

	client.logger.Info("Starting rabbitmq publisher")
	events, unsubscribe := subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case event, ok := <-events:
			if !ok {
				return fmt.Errorf("invoice event subscription closed")
			}
			if err := client.publishInvoiceEvent(ctx, event, payloadFunc); err != nil {
				captureErr(client.logger, err)
			}
		}
	}
}

func (client *DefaultClient) publishInvoiceEvent(ctx context.Context, event models.InvoiceEvent, payloadFunc EncodeOutgoingInvoiceFunc) error {
	payload := bufPool.Get().(*bytes.Buffer)
	payload.Reset()
	defer bufPool.Put(payload)

	if err := payloadFunc(ctx, payload, event); err != nil {
		return err
	}
	key := InvoiceRoutingKey(event)
	err := client.amqpClient.PublishWithContext(ctx,
		client.invoiceExchange,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType: contentTypeJSON,
			Body:        payload.Bytes(),
		},
	)
	if err != nil {
		return err
	}
	client.logger.Debugf("Published invoice %s to rabbitmq with key %s", event.Invoice.ID, key)
	return nil
}

type reconcileRequest struct {
	InvoiceID string `json:"invoice_id"`
}

func (client *DefaultClient) ConsumeReconcileRequests(ctx context.Context, reconciler InvoiceReconciler) error {
	deliveries, err := client.amqpClient.Listen(ctx,
		client.reconcileExchange,
		ReconcileRequestRoutingKey,
		client.reconcileConsumerQueueName,
	)
	if err != nil {
		return err
	}

	client.logger.Info("Starting reconcile request consumer loop")
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("Disconnected from RabbitMQ")
			}
			req := reconcileRequest{}
			if err := json.Unmarshal(delivery.Body, &req); err != nil || req.InvoiceID == "" {
				if err == nil {
					err = fmt.Errorf("reconcile request without invoice_id")
				}
				captureErr(client.logger, err)
				// malformed requests are dropped, not requeued
				if err := delivery.Nack(false, false); err != nil {
					captureErr(client.logger, err)
				}
				continue
			}

			invoice, err := reconciler.Reconcile(ctx, req.InvoiceID)
			if err != nil {
				captureErr(client.logger, err)
				// the scheduler retries on its next cycle anyway
				if err := delivery.Nack(false, false); err != nil {
					captureErr(client.logger, err)
				}
				continue
			}
			client.logger.Debugf("Reconciled invoice %s on request, status %s", invoice.ID, invoice.Status)
			if err := delivery.Ack(false); err != nil {
				captureErr(client.logger, err)
			}
		}
	}
}

func captureErr(logger *lecho.Logger, err error) {
	logger.Error(err)
	sentry.CaptureException(err)
}
