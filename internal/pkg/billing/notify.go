package billing

import (
	"context"
	"fmt"
	"sync"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// Notifier fans out "tenant billing state changed" signals. Signals carry no
// state; receivers re-read the tenant record.
type Notifier interface {
	Publish(ctx context.Context, tenantID uint) error
	// Subscribe returns a channel that receives a value after each change for the
	// tenant, and a cancel func that must be called to release the subscription.
	Subscribe(ctx context.Context, tenantID uint) (<-chan struct{}, func(), error)
}

func tenantChannel(tenantID uint) string {
	return fmt.Sprintf("billing:tenant:%d", tenantID)
}

// RedisNotifier uses Redis pub/sub so that every app instance sees changes
// applied by the instance that received the webhook.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, tenantID uint) error {
	return n.client.Publish(ctx, tenantChannel(tenantID), "changed").Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, tenantID uint) (<-chan struct{}, func(), error) {
	sub := n.client.Subscribe(ctx, tenantChannel(tenantID))
	// Wait for the subscription confirmation so no publish is missed between
	// Subscribe returning and the caller's first read.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		msgs := sub.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			if err := sub.Close(); err != nil {
				fiberlog.Warnf("[Billing] closing subscription for tenant %d: %v", tenantID, err)
			}
		})
	}
	return out, cancel, nil
}

// LocalNotifier delivers signals within one process.
type LocalNotifier struct {
	mu   sync.Mutex
	next int
	subs map[uint]map[int]chan struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[uint]map[int]chan struct{})}
}

func (n *LocalNotifier) Publish(_ context.Context, tenantID uint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[tenantID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (n *LocalNotifier) Subscribe(_ context.Context, tenantID uint) (<-chan struct{}, func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	ch := make(chan struct{}, 1)
	if n.subs[tenantID] == nil {
		n.subs[tenantID] = make(map[int]chan struct{})
	}
	n.subs[tenantID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs[tenantID], id)
			if len(n.subs[tenantID]) == 0 {
				delete(n.subs, tenantID)
			}
		})
	}
	return ch, cancel, nil
}
