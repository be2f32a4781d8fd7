// Package render turns environment and runner events into human-readable
// output: coloured console lines and HTML reward charts.
package render

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/boristopalov/ringrl/pkg/core"
	"github.com/boristopalov/ringrl/pkg/messaging"
	"github.com/logrusorgru/aurora"
)

// ConsoleObserver prints every message it receives from a broker
type ConsoleObserver struct {
	id             string
	out            io.Writer
	au             aurora.Aurora
	targetVelocity float64
	broker         messaging.Broker
	messageChan    chan messaging.Message
	mu             sync.Mutex
	wg             sync.WaitGroup
	cancel         context.CancelFunc
}

func NewConsoleObserver(id string, broker messaging.Broker, out io.Writer, colors bool, targetVelocity float64) (*ConsoleObserver, error) {
	o := &ConsoleObserver{
		id:             id,
		out:            out,
		au:             aurora.NewAurora(colors),
		targetVelocity: targetVelocity,
		broker:         broker,
		messageChan:    make(chan messaging.Message, 100),
	}
	if err := broker.Subscribe(id, o.messageChan); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *ConsoleObserver) GetID() string {
	return o.id
}

// Start handles messages in a goroutine until ctx is done or Stop is called
func (o *ConsoleObserver) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case msg := <-o.messageChan:
				o.Handle(msg)
			case <-ctx.Done():
				o.drain()
				return
			}
		}
	}()
}

// Stop unsubscribes, then flushes pending messages and waits for the
// handler started by Start
func (o *ConsoleObserver) Stop() {
	if err := o.broker.Unsubscribe(o.id); err != nil {
		log.Printf("observer %s: %v", o.id, err)
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

func (o *ConsoleObserver) drain() {
	for {
		select {
		case msg := <-o.messageChan:
			o.Handle(msg)
		default:
			return
		}
	}
}

// Handle writes one message
func (o *ConsoleObserver) Handle(msg messaging.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var line string
	switch content := msg.Content.(type) {
	case core.Observation:
		line = o.formatObservation(msg, content)
	case core.EpisodeSummary:
		line = o.formatEpisode(content)
	default:
		line = fmt.Sprintf("%s [%s] %v", msg.Topic, msg.From, msg.Content)
	}
	if _, err := fmt.Fprintln(o.out, line); err != nil {
		log.Printf("observer %s: %v", o.id, err)
	}
}

func (o *ConsoleObserver) formatObservation(msg messaging.Message, obs core.Observation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", o.au.Bold(fmt.Sprintf("step %4d", msg.Step)), o.au.Gray(12, msg.From))
	for i, id := range obs.IDs {
		var name aurora.Value = o.au.White(id)
		if strings.HasPrefix(id, "rl") {
			name = o.au.Cyan(id)
		}
		fmt.Fprintf(&b, " %s=%s", name, o.speed(obs.Speeds[i]))
	}
	return b.String()
}

func (o *ConsoleObserver) speed(v float64) aurora.Value {
	s := fmt.Sprintf("%.2f", v)
	switch {
	case v <= 0:
		return o.au.Red(s)
	case o.targetVelocity > 0 && v < 0.9*o.targetVelocity:
		return o.au.Yellow(s)
	default:
		return o.au.Green(s)
	}
}

func (o *ConsoleObserver) formatEpisode(s core.EpisodeSummary) string {
	status := o.au.Green("ok")
	if s.Failed {
		status = o.au.Red("collision")
	}
	return fmt.Sprintf("%s %d: %d steps, return %.3f, %s",
		o.au.Bold("episode"), s.Episode, s.Steps, s.Return, status)
}
