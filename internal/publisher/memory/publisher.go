// Package memory records deploy notifications in memory, encoded the same
// way the Pub/Sub backend sends them.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/JakeFAU/quantumboom/internal/digest"
)

// Message is one recorded notification.
type Message struct {
	Event string
	Data  []byte
}

// Publisher stores notifications for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
	err      error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Fail makes later publishes return err.
func (p *Publisher) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish JSON-encodes payload and records it under event.
func (p *Publisher) Publish(_ context.Context, event string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, Message{Event: event, Data: data})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of the recorded notifications.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Message(nil), p.messages...)
}

// DeployEvents decodes every recorded notification as a DeployEvent.
func (p *Publisher) DeployEvents() ([]digest.DeployEvent, error) {
	msgs := p.Messages()
	out := make([]digest.DeployEvent, 0, len(msgs))
	for i, m := range msgs {
		var ev digest.DeployEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}
