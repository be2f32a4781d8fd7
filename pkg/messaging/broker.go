package messaging

import (
	"fmt"
	"sync"
	"time"
)

// SimpleBroker implements the Broker interface
// subscribers maps observer IDs to the channels they receive messages on
type SimpleBroker struct {
	subscribers map[string]chan<- Message
	mu          sync.RWMutex
}

// NewBroker creates a new message broker
func NewBroker() *SimpleBroker {
	return &SimpleBroker{
		subscribers: make(map[string]chan<- Message),
	}
}

// Publish sends a message to specified recipients. Sends never block: a
// full observer channel is reported as an error after the remaining
// recipients have been served.
func (b *SimpleBroker) Publish(msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	// If no recipients specified, broadcast to all subscribers
	recipients := msg.To
	if len(recipients) == 0 {
		for id := range b.subscribers {
			if id != msg.From {
				recipients = append(recipients, id)
			}
		}
	}

	var full []string
	for _, recipientID := range recipients {
		ch, ok := b.subscribers[recipientID]
		if !ok {
			continue
		}

		select {
		case ch <- msg:
		default:
			full = append(full, recipientID)
		}
	}

	if len(full) > 0 {
		return fmt.Errorf("dropped %s message for full observers %v", msg.Topic, full)
	}
	return nil
}

// Subscribe registers an observer to receive messages
func (b *SimpleBroker) Subscribe(observerID string, ch chan<- Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[observerID]; exists {
		return fmt.Errorf("observer %s is already subscribed", observerID)
	}

	b.subscribers[observerID] = ch
	return nil
}

// Unsubscribe removes an observer's subscription
func (b *SimpleBroker) Unsubscribe(observerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[observerID]; !exists {
		return fmt.Errorf("observer %s is not subscribed", observerID)
	}

	delete(b.subscribers, observerID)
	return nil
}

func (b *SimpleBroker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string]chan<- Message)
}
