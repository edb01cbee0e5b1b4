package notification

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel-laundry-backend/internal/model"
	"hostel-laundry-backend/internal/store"
)

// mockSender is a mock implementation of the Sender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

func pushResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString("")),
	}
}

func TestWorkerPool_SendsToEverySubscription(t *testing.T) {
	mem := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, mem.SaveSubscription(ctx, &model.PushSubscription{
		Endpoint: "https://push.example/phone", P256DH: "p1", Auth: "a1", UserID: 1,
	}))
	require.NoError(t, mem.SaveSubscription(ctx, &model.PushSubscription{
		Endpoint: "https://push.example/laptop", P256DH: "p2", Auth: "a2", UserID: 1,
	}))
	require.NoError(t, mem.SaveSubscription(ctx, &model.PushSubscription{
		Endpoint: "https://push.example/other-user", P256DH: "p3", Auth: "a3", UserID: 2,
	}))

	wp := NewWorkerPool(1, mem, &webpush.Options{})

	var wg sync.WaitGroup
	wg.Add(2)
	var mu sync.Mutex
	endpoints := map[string]string{}

	wp.SetSender(&mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			mu.Lock()
			endpoints[sub.Endpoint] = string(payload)
			mu.Unlock()
			wg.Done()
			return pushResponse(http.StatusCreated), nil
		},
	})
	wp.Start(ctx)

	wp.Notify(1, "Your laundry in 9_washer_1 is done.", "9_washer_1")
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, endpoints, 2)
	assert.Contains(t, endpoints, "https://push.example/phone")
	assert.Contains(t, endpoints, "https://push.example/laptop")
	assert.JSONEq(t, `{"message":"Your laundry in 9_washer_1 is done.","action":"9_washer_1"}`,
		endpoints["https://push.example/phone"])
}

func TestWorkerPool_DeletesExpiredSubscription(t *testing.T) {
	mem := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, mem.SaveSubscription(ctx, &model.PushSubscription{
		Endpoint: "https://push.example/expired", P256DH: "p", Auth: "a", UserID: 1,
	}))

	wp := NewWorkerPool(1, mem, &webpush.Options{})

	var wg sync.WaitGroup
	wg.Add(1)
	wp.SetSender(&mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			wg.Done()
			return pushResponse(http.StatusGone), nil
		},
	})
	wp.Start(ctx)

	wp.Notify(1, "collect your laundry", "9_washer_1")
	wg.Wait()

	// The delete happens after the sender returns; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for {
		subs, err := mem.ListSubscriptions(ctx, 1)
		require.NoError(t, err)
		if len(subs) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expired subscription was not deleted, still have %d", len(subs))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWorkerPool_NotifyNeverBlocks(t *testing.T) {
	mem := store.NewMemory()
	wp := NewWorkerPool(1, mem, &webpush.Options{})

	// Workers never started, queue capacity is size*4. Overfilling must
	// drop, not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			wp.Notify(1, "msg", "")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
}
