package sse

import (
	"context"
	"sync"

	"delified/internal/models"
)

const clientBuffer = 16

// RegistrationBroker fans registration events out to SSE clients watching a MUN.
type RegistrationBroker struct {
	mu      sync.RWMutex
	clients map[string][]chan models.RegistrationEvent
}

func NewRegistrationBroker() *RegistrationBroker {
	return &RegistrationBroker{
		clients: make(map[string][]chan models.RegistrationEvent),
	}
}

// Subscribe registers a client for munID. The returned channel is closed
// once ctx is done.
func (b *RegistrationBroker) Subscribe(ctx context.Context, munID string) <-chan models.RegistrationEvent {
	clientChan := make(chan models.RegistrationEvent, clientBuffer)

	b.mu.Lock()
	b.clients[munID] = append(b.clients[munID], clientChan)
	b.mu.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		b.remove(munID, clientChan)
	}()

	return clientChan
}

// Publish never blocks: a client whose buffer is full misses the event.
func (b *RegistrationBroker) Publish(event models.RegistrationEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, clientChan := range b.clients[event.MUNID] {
		select {
		case clientChan <- event:
		default:
		}
	}
}

func (b *RegistrationBroker) remove(munID string, clientChan chan models.RegistrationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients := b.clients[munID]
	for i, ch := range clients {
		if ch == clientChan {
			b.clients[munID] = append(clients[:i:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	// Clean up map entry if no more clients
	if len(b.clients[munID]) == 0 {
		delete(b.clients, munID)
	}
}

// ClientCount returns the number of clients currently watching munID.
func (b *RegistrationBroker) ClientCount(munID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[munID])
}
