package main

import (
	"log"
	"sync"
)

// subscriber is what the registry needs from a connection: identity
// plus a non-blocking frame sink.
type subscriber interface {
	User() (id, username string)
	enqueue(frame []byte) bool
}

// Registry tracks live connections and their channel subscriptions.
// One instance per gateway; constructed explicitly so multiple
// gateways or test harnesses never share state.
//
// Every mutation completes under a single lock with no suspension in
// between, so two back-to-back events for the same connection can
// never observe a half-applied state. Frame delivery is a buffered
// channel enqueue and never blocks the lock holder.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[subscriber]struct{}
	conns    map[subscriber]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[subscriber]struct{}),
		conns:    make(map[subscriber]map[string]struct{}),
	}
}

func (r *Registry) Subscribe(c subscriber, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channels[channelID] == nil {
		r.channels[channelID] = make(map[subscriber]struct{})
	}
	r.channels[channelID][c] = struct{}{}

	if r.conns[c] == nil {
		r.conns[c] = make(map[string]struct{})
	}
	r.conns[c][channelID] = struct{}{}
}

func (r *Registry) Unsubscribe(c subscriber, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(c, channelID)
}

func (r *Registry) IsSubscribed(c subscriber, channelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[c][channelID]
	return ok
}

// Broadcast delivers frame to every subscriber of channelID except
// exclude (pass nil to reach everyone).
func (r *Registry) Broadcast(channelID string, frame []byte, exclude subscriber) {
	if frame == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.broadcastLocked(channelID, frame, exclude)
}

// Cleanup removes the connection from every channel it was in and
// tells the remaining subscribers of each that the user went offline.
func (r *Registry) Cleanup(c subscriber) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, username := c.User()
	channels := make([]string, 0, len(r.conns[c]))
	for channelID := range r.conns[c] {
		channels = append(channels, channelID)
	}

	for _, channelID := range channels {
		r.removeLocked(c, channelID)
		r.broadcastLocked(channelID, presenceFrame(userID, username, "offline", channelID), c)
	}
	return channels
}

// SubscriberCount reports how many connections follow a channel.
func (r *Registry) SubscriberCount(channelID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channelID])
}

func (r *Registry) removeLocked(c subscriber, channelID string) {
	if subs, ok := r.channels[channelID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(r.channels, channelID)
		}
	}
	if chans, ok := r.conns[c]; ok {
		delete(chans, channelID)
		if len(chans) == 0 {
			delete(r.conns, c)
		}
	}
}

func (r *Registry) broadcastLocked(channelID string, frame []byte, exclude subscriber) {
	for sub := range r.channels[channelID] {
		if sub == exclude {
			continue
		}
		if !sub.enqueue(frame) {
			userID, _ := sub.User()
			log.Printf("gateway: dropping frame for slow client %s on %s", userID, channelID)
		}
	}
}
