package inventory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notifier broadcasts inventory changes over redis pub/sub so every API
// replica can refresh its stream subscribers.
type Notifier struct {
	client *redis.Client
}

// NewNotifier constructs Notifier.
func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

func changeChannel(ownerID string) string {
	return fmt.Sprintf("inventory:changes:%s", ownerID)
}

// Publish signals that the owner's items changed.
func (n *Notifier) Publish(ctx context.Context, ownerID string) error {
	if n == nil || n.client == nil {
		return nil
	}
	stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	return n.client.Publish(ctx, changeChannel(ownerID), stamp).Err()
}

// Subscribe returns a channel receiving one signal per change. Bursts are
// coalesced; the channel closes when ctx ends.
func (n *Notifier) Subscribe(ctx context.Context, ownerID string) (<-chan struct{}, error) {
	pubsub := n.client.Subscribe(ctx, changeChannel(ownerID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	messages := pubsub.Channel()
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
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
	return out, nil
}
