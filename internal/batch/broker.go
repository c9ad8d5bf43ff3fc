package batch

import "sync"

// subscriberBufferSize is the channel buffer for each progress subscriber.
// Messages are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Broker fans out progress messages of running jobs to subscribers.
// It is safe for concurrent use.
//
// Closed topics are kept as markers so that a subscriber arriving after a job
// finished still receives the final message. Forget drops the marker once the
// job has left the registry.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subs   map[int]chan string
	last   string
	nextID int
	closed bool
}

// NewBroker creates a new progress broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*topic),
	}
}

// Subscribe returns a channel receiving progress messages for the job and an
// unsubscribe function. The latest message, if any, is delivered first. If
// the job has already finished, or is unknown, the channel is closed.
func (b *Broker) Subscribe(jobID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan string, subscriberBufferSize)
	t, ok := b.topics[jobID]
	if !ok {
		close(ch)
		return ch, func() {}
	}

	if t.last != "" {
		ch <- t.last
	}
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends a progress message to all subscribers of the job.
func (b *Broker) Publish(jobID, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok || t.closed {
		return
	}
	t.last = msg

	for _, ch := range t.subs {
		select {
		case ch <- msg:
		default:
			// Slow subscriber; a later message supersedes this one.
		}
	}
}

// Open creates the topic of a job. Publish and Close ignore unknown jobs.
func (b *Broker) Open(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.topics[jobID]; !ok {
		b.topics[jobID] = &topic{subs: make(map[int]chan string)}
	}
}

// Close signals that the job will publish nothing more.
func (b *Broker) Close(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok {
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// Forget drops the topic of a job, closing any remaining subscribers.
func (b *Broker) Forget(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok {
		return
	}
	for _, ch := range t.subs {
		close(ch)
	}
	delete(b.topics, jobID)
}
