package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"

	"hourmeter-backend/internal/logger"
	"hourmeter-backend/internal/maintenance"
	"hourmeter-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// SubscriptionStore is the subscription lookup the push sink needs.
type SubscriptionStore interface {
	SubscriptionsForMachine(ctx context.Context, machineID int64) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// WebPushSink delivers alarm triggers to the browsers subscribed to the machine.
type WebPushSink struct {
	store   SubscriptionStore
	options *webpush.Options
	sender  NotificationSender
}

// NewWebPushSink creates a sink sending with the given VAPID options.
func NewWebPushSink(store SubscriptionStore, options *webpush.Options) *WebPushSink {
	return &WebPushSink{
		store:   store,
		options: options,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

type pushMessage struct {
	Title string                    `json:"title"`
	Body  string                    `json:"body"`
	Data  maintenance.TriggerResult `json:"data"`
}

// NotifyAlarmTriggered pushes the trigger to every subscription following
// the machine. Expired subscriptions are removed. It fails when any
// delivery failed.
func (s *WebPushSink) NotifyAlarmTriggered(ctx context.Context, result maintenance.TriggerResult) error {
	subscriptions, err := s.store.SubscriptionsForMachine(ctx, result.MachineID)
	if err != nil {
		return err
	}
	if len(subscriptions) == 0 {
		return nil
	}

	payload, err := json.Marshal(pushMessage{
		Title: fmt.Sprintf("Maintenance due: %s", result.Title),
		Body:  pushBody(result),
		Data:  result,
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	logger.Debugf(ctx, "sending %d push notifications for machine %d", len(subscriptions), result.MachineID)
	var errs []error
	for _, sub := range subscriptions {
		if err := s.send(ctx, sub, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func pushBody(result maintenance.TriggerResult) string {
	body := fmt.Sprintf("Machine %d reached %.1f operating hours.", result.MachineID, result.TriggeredHours)
	if len(result.RelatedParts) > 0 {
		body += " Parts: " + strings.Join(result.RelatedParts, ", ")
	}
	return body
}

// send sends a single web push notification.
func (s *WebPushSink) send(ctx context.Context, sub model.PushSubscription, payload []byte) error {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := s.sender.Send(payload, wpSub, s.options)
	if err != nil {
		return fmt.Errorf("push to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone:
		logger.InfoKV(ctx, "push subscription expired, deleting", "endpoint", sub.Endpoint)
		if err := s.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			logger.WarnKV(ctx, "failed to delete expired subscription", "endpoint", sub.Endpoint, "error", err)
		}
		return nil
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("push to %s: status %d", sub.Endpoint, resp.StatusCode)
	}
	return nil
}
