package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/feedsync/internal/materialize"
)

const (
	// RealtimeEventCycle is emitted after a cycle applied or evicted something.
	RealtimeEventCycle     = "cycle"
	realtimeEventHeartbeat = "heartbeat"
	realtimeEventReady     = "ready"
	realtimeSourceBackend  = "feedsync"
)

// RealtimeMessage is one event delivered to the subscribers of a group.
type RealtimeMessage struct {
	GroupID     string
	EventType   string
	ObjectIDs   []string
	Applied     int
	Pending     int64
	UnreadCount int64
	Timestamp   time.Time
}

// RealtimeDispatcher fans cycle events out to the stream subscribers of each group.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for groupID until ctx ends or cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, groupID string) (<-chan RealtimeMessage, func()) {
	if groupID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(groupID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(groupID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers message to every subscriber of its group. Slow
// subscribers miss messages rather than block the publisher.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.GroupID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.GroupID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// CycleCompleted publishes a cycle event for reports that changed the view.
func (d *RealtimeDispatcher) CycleCompleted(_ context.Context, report materialize.CycleReport) {
	if report.AppliedTotal() == 0 && report.Evicted == 0 {
		return
	}
	d.Publish(RealtimeMessage{
		GroupID:     report.GroupID,
		EventType:   RealtimeEventCycle,
		ObjectIDs:   append([]string(nil), report.NewObjectIDs...),
		Applied:     report.AppliedTotal(),
		Pending:     report.Pending,
		UnreadCount: report.Cursor.UnreadCount,
		Timestamp:   time.Now().UTC(),
	})
}

func (d *RealtimeDispatcher) subscriberCount(groupID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[groupID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(groupID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[groupID]; !ok {
		d.subscribers[groupID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[groupID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(groupID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[groupID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, groupID)
		}
	}
	d.mu.Unlock()
}
