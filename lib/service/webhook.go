package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oratio/bchhub.go/db/models"
)

const eventBufferSize = 64

// SubscribeInvoiceEvents returns a buffered channel receiving every
// transition, and a func releasing it.
func (svc *BchhubService) SubscribeInvoiceEvents() (chan models.InvoiceEvent, func()) {
	events := make(chan models.InvoiceEvent, eventBufferSize)
	subId := svc.InvoicePubSub.Subscribe(InvoiceTopic, events)
	return events, func() { svc.InvoicePubSub.Unsubscribe(subId, InvoiceTopic) }
}

// EncodeInvoiceEventPayload is the JSON body used by the webhook and the
// rabbitmq publisher.
func (svc *BchhubService) EncodeInvoiceEventPayload(ctx context.Context, w io.Writer, event models.InvoiceEvent) error {
	return json.NewEncoder(w).Encode(event)
}

func (svc *BchhubService) StartWebhookSubscription(ctx context.Context, url string) {
	svc.Logger.Infof("Starting webhook subscription with webhook url %s", url)
	events, unsubscribe := svc.SubscribeInvoiceEvents()
	defer unsubscribe()
	client := &http.Client{Timeout: 10 * time.Second}
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			svc.postToWebhook(ctx, client, url, event)
		}
	}
}

func (svc *BchhubService) postToWebhook(ctx context.Context, client *http.Client, url string, event models.InvoiceEvent) {
	payload := new(bytes.Buffer)
	if err := svc.EncodeInvoiceEventPayload(ctx, payload, event); err != nil {
		svc.Logger.Error(err)
		return
	}
	body := payload.Bytes()

	post := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("webhook status code was %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return backoff.Permanent(fmt.Errorf("webhook status code was %d, body: %s", resp.StatusCode, msg))
		}
		return nil
	}
	policy := RetryPolicy{Retries: svc.Config.WebhookRetries, InitialInterval: time.Second}
	if err := backoff.Retry(post, policy.backOff(ctx)); err != nil {
		svc.Logger.Errorf("Webhook for invoice %s (%s) failed: %v", event.Invoice.ID, event.ToStatus, err)
	}
}
