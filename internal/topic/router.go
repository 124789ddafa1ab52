package topic

import "sync"

// Router tracks live subscriptions and answers publish-time matches. It
// composes a Trie for filter matching with a per-client index of each
// client's filters and QoS, which answers per-client listings and counts.
// Tearing down a client's subscriptions (on disconnect or session
// takeover) walks the whole trie.
type Router struct {
	trie          *Trie
	subscriptions map[string]map[string]int // clientID -> filter -> qos
	mu            sync.RWMutex
}

// NewRouter creates an empty subscription router.
func NewRouter() *Router {
	return &Router{
		trie:          NewTrie(),
		subscriptions: make(map[string]map[string]int),
	}
}

// Subscribe records that clientID wants delivery at filter, at most qos.
// Re-subscribing to the same filter replaces the recorded QoS.
func (r *Router) Subscribe(clientID, filter string, qos int) error {
	if err := r.trie.Subscribe(filter, Subscriber{ClientID: clientID, QoS: qos}); err != nil {
		return err
	}

	r.mu.Lock()
	if r.subscriptions[clientID] == nil {
		r.subscriptions[clientID] = make(map[string]int)
	}
	r.subscriptions[clientID][filter] = qos
	r.mu.Unlock()
	return nil
}

// Unsubscribe removes clientID's subscription at filter, reporting
// whether one existed.
func (r *Router) Unsubscribe(clientID, filter string) bool {
	found := r.trie.Unsubscribe(filter, clientID)

	r.mu.Lock()
	if clientSubs, ok := r.subscriptions[clientID]; ok {
		delete(clientSubs, filter)
		if len(clientSubs) == 0 {
			delete(r.subscriptions, clientID)
		}
	}
	r.mu.Unlock()
	return found
}

// UnsubscribeAll removes every subscription belonging to clientID,
// returning how many were removed. Used on disconnect and session
// takeover.
func (r *Router) UnsubscribeAll(clientID string) int {
	r.mu.Lock()
	clientSubs, ok := r.subscriptions[clientID]
	delete(r.subscriptions, clientID)
	r.mu.Unlock()
	if !ok {
		return 0
	}

	r.trie.UnsubscribeAll(clientID)
	return len(clientSubs)
}

// Match returns every subscriber whose filter matches topic.
func (r *Router) Match(topic string) []Subscriber {
	return r.trie.Match(topic)
}

// ClientSubscriptions lists the filters clientID currently holds, with
// their subscribed QoS, for diagnostics.
func (r *Router) ClientSubscriptions(clientID string) map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clientSubs, ok := r.subscriptions[clientID]
	if !ok {
		return nil
	}
	out := make(map[string]int, len(clientSubs))
	for filter, qos := range clientSubs {
		out[filter] = qos
	}
	return out
}

// Count returns the total number of subscriptions held across all
// clients.
func (r *Router) Count() int {
	return r.trie.Count()
}

// CountClients returns the number of distinct clients with at least one
// subscription.
func (r *Router) CountClients() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscriptions)
}

// Clear removes every subscription from the router.
func (r *Router) Clear() {
	r.mu.Lock()
	r.subscriptions = make(map[string]map[string]int)
	r.mu.Unlock()
	r.trie.Clear()
}
