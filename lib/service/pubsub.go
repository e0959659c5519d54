package service

import (
	"sync"

	"github.com/google/uuid"
	"github.com/oratio/bchhub.go/db/models"
)

const InvoiceTopic = "invoice"

type Pubsub struct {
	mu   sync.RWMutex
	subs map[string]map[string]chan models.InvoiceEvent
}

func NewPubsub() *Pubsub {
	ps := &Pubsub{}
	ps.subs = make(map[string]map[string]chan models.InvoiceEvent)
	return ps
}

func (ps *Pubsub) Subscribe(topic string, ch chan models.InvoiceEvent) (subId string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.subs[topic] == nil {
		ps.subs[topic] = make(map[string]chan models.InvoiceEvent)
	}
	subId = uuid.NewString()
	ps.subs[topic][subId] = ch
	return subId
}

func (ps *Pubsub) Unsubscribe(id string, topic string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.subs[topic] == nil {
		return
	}
	if ps.subs[topic][id] == nil {
		return
	}
	close(ps.subs[topic][id])
	delete(ps.subs[topic], id)
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
// It returns the number of subscribers that missed it.
func (ps *Pubsub) Publish(topic string, msg models.InvoiceEvent) (dropped int) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for _, ch := range ps.subs[topic] {
		select {
		case ch <- msg:
		default:
			dropped++
		}
	}
	return dropped
}
