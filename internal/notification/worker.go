package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"hostel-laundry-backend/internal/model"
	"hostel-laundry-backend/internal/store"
)

// Notifier delivers a message to a user. Delivery is at-most-once and
// best-effort: a blocked or unreachable recipient never fails the caller.
type Notifier interface {
	Notify(userID int64, message, action string)
}

// Sender defines the interface for sending a single web push message.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

type notice struct {
	UserID  int64
	Message string
	Action  string
}

// pushPayload is the JSON body delivered to the service worker.
type pushPayload struct {
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// WorkerPool fans notification jobs out to a fixed set of workers. It
// implements Notifier; Notify enqueues and returns.
type WorkerPool struct {
	size    int
	jobs    chan notice
	store   store.Store
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, st store.Store, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan notice, size*4),
		store:   st,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// SetSender swaps the delivery backend, for tests.
func (wp *WorkerPool) SetSender(s Sender) { wp.sender = s }

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("notification worker %d started", id)
	for {
		select {
		case n := <-wp.jobs:
			wp.deliver(ctx, n)
		case <-ctx.Done():
			log.Printf("notification worker %d shutting down", id)
			return
		}
	}
}

// Notify enqueues a message for a user. If the queue is full the message
// is dropped with a log line; notifications never block state changes.
func (wp *WorkerPool) Notify(userID int64, message, action string) {
	select {
	case wp.jobs <- notice{UserID: userID, Message: message, Action: action}:
	default:
		log.Printf("notification queue full, dropping message for user %d", userID)
	}
}

// deliver fans one notice out to every subscription the user holds.
func (wp *WorkerPool) deliver(ctx context.Context, n notice) {
	subs, err := wp.store.ListSubscriptions(ctx, n.UserID)
	if err != nil {
		log.Printf("error fetching subscriptions for user %d: %v", n.UserID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(pushPayload{Message: n.Message, Action: n.Action})
	if err != nil {
		log.Printf("error encoding notification payload: %v", err)
		return
	}

	for _, sub := range subs {
		wp.send(ctx, sub, payload)
	}
}

func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Expired subscriptions are pruned on the spot.
	if resp.StatusCode == http.StatusGone {
		log.Printf("subscription %s is expired, deleting", sub.Endpoint)
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}

var _ Notifier = (*WorkerPool)(nil)
