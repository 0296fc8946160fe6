package protocol

import (
	"sync"

	"github.com/morezero/agent-coordinator/pkg/message"
)

// pendingTable maps request ids to single-use reply channels. An entry is
// removed exactly once, by whichever of response, timeout or cancellation
// comes first; later removals are no-ops.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]chan *message.Envelope
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]chan *message.Envelope)}
}

func (p *pendingTable) add(id string) chan *message.Envelope {
	ch := make(chan *message.Envelope, 1)
	p.mu.Lock()
	p.entries[id] = ch
	p.mu.Unlock()
	return ch
}

// take removes and returns the entry for id.
func (p *pendingTable) take(id string) (chan *message.Envelope, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	return ch, ok
}

func (p *pendingTable) remove(id string) bool {
	_, ok := p.take(id)
	return ok
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
