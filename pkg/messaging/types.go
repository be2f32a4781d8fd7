package messaging

import (
	"time"
)

// Topics published by the environment and the experiment runner
const (
	TopicObservation = "observation"
	TopicEpisode     = "episode"
)

// Message is one event sent from an environment or runner to observers
type Message struct {
	From      string    // id of the publishing environment or run
	To        []string  // observer ids (empty means broadcast)
	Topic     string    // what Content holds
	Step      int       // simulation step the message refers to
	Content   any       // the payload, e.g. a core.Observation
	Timestamp time.Time // when the message was sent
}

// Broker handles message routing from publishers to observers
type Broker interface {
	// Publish sends a message to specified recipients
	Publish(msg Message) error
	// Subscribe registers an observer to receive messages
	Subscribe(observerID string, ch chan<- Message) error
	// Unsubscribe removes an observer's subscription
	Unsubscribe(observerID string) error
}
