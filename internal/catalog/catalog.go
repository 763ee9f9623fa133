package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/dependency"
	"github.com/giantswarm/suidriver/pkg/logging"
)

// EventType says what happened to a descriptor.
type EventType string

const (
	EventAdded   EventType = "added"
	EventRemoved EventType = "removed"
)

// Event is delivered to subscribers after a change was applied.
type Event struct {
	Type       EventType
	Descriptor *api.ProjectDescriptor
}

// Subscriber receives change events in the order the changes were applied.
// Subscribers must not write to the catalog from within the callback.
type Subscriber func(Event)

type snapshot struct {
	byID  map[string]*api.ProjectDescriptor
	order []*api.ProjectDescriptor
}

// Catalog holds the published descriptors. Reads never block: they work on an
// immutable snapshot swapped in atomically by writers. Writers are serialized.
type Catalog struct {
	current atomic.Pointer[snapshot]

	mu       sync.Mutex
	notifyMu sync.Mutex

	subsMu sync.RWMutex
	subs   map[int]Subscriber
	nextID int
}

// New returns an empty catalog.
func New() *Catalog {
	c := &Catalog{subs: make(map[int]Subscriber)}
	c.current.Store(&snapshot{byID: map[string]*api.ProjectDescriptor{}})
	return c
}

// List returns copies of all descriptors ordered by label, then id.
func (c *Catalog) List() []*api.ProjectDescriptor {
	snap := c.current.Load()
	out := make([]*api.ProjectDescriptor, len(snap.order))
	for i, d := range snap.order {
		out[i] = d.Clone()
	}
	return out
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int {
	return len(c.current.Load().order)
}

// Get returns a copy of the descriptor with the given id.
func (c *Catalog) Get(id string) (*api.ProjectDescriptor, error) {
	d, ok := c.current.Load().byID[id]
	if !ok {
		return nil, api.NewDescriptorNotFoundError(id)
	}
	return d.Clone(), nil
}

// Lookup returns copies of the known descriptors among ids, in the given
// order. Unknown ids are skipped.
func (c *Catalog) Lookup(ids []string) []*api.ProjectDescriptor {
	snap := c.current.Load()
	var out []*api.ProjectDescriptor
	for _, id := range ids {
		if d, ok := snap.byID[id]; ok {
			out = append(out, d.Clone())
		}
	}
	return out
}

// Publish adds d, superseding a descriptor with the same id. A superseded
// descriptor is reported as removed before the new one is reported as added.
func (c *Catalog) Publish(d *api.ProjectDescriptor) error {
	if d == nil || d.ID == "" {
		return errors.New("descriptor without id")
	}
	d = d.Clone()

	c.mu.Lock()
	old := c.current.Load()
	next := old.with(d)
	c.current.Store(next)

	var events []Event
	if prev, ok := old.byID[d.ID]; ok {
		events = append(events, Event{Type: EventRemoved, Descriptor: prev})
	}
	events = append(events, Event{Type: EventAdded, Descriptor: d})
	c.notifyMu.Lock()
	c.mu.Unlock()

	logging.Debug("Catalog", "Published %s (%s)", d.ID, d.Label)
	c.notify(events)
	c.notifyMu.Unlock()
	return nil
}

// Retract removes the descriptor with the given id and reports whether it
// was present.
func (c *Catalog) Retract(id string) bool {
	c.mu.Lock()
	old := c.current.Load()
	prev, ok := old.byID[id]
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.current.Store(old.without(id))
	c.notifyMu.Lock()
	c.mu.Unlock()

	logging.Debug("Catalog", "Retracted %s (%s)", id, prev.Label)
	c.notify([]Event{{Type: EventRemoved, Descriptor: prev}})
	c.notifyMu.Unlock()
	return true
}

// Subscribe registers fn for change events and returns a function that
// removes the subscription.
func (c *Catalog) Subscribe(fn Subscriber) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Catalog) notify(events []Event) {
	c.subsMu.RLock()
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]Subscriber, len(ids))
	for i, id := range ids {
		subs[i] = c.subs[id]
	}
	c.subsMu.RUnlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(Event{Type: ev.Type, Descriptor: ev.Descriptor.Clone()})
		}
	}
}

// Graph builds the dependency graph of the current descriptors.
func (c *Catalog) Graph() *dependency.Graph {
	g := dependency.New()
	for _, d := range c.current.Load().order {
		deps := make([]dependency.NodeID, len(d.DependencyIDs))
		for i, id := range d.DependencyIDs {
			deps[i] = dependency.NodeID(id)
		}
		g.AddNode(dependency.Node{ID: dependency.NodeID(d.ID), Label: d.Label, DependsOn: deps})
	}
	return g
}

// Order returns the descriptors for ids together with everything they
// depend on, dependencies first. Unknown ids and cycles are errors.
func (c *Catalog) Order(ids []string) ([]*api.ProjectDescriptor, error) {
	snap := c.current.Load()
	nodes := make([]dependency.NodeID, len(ids))
	for i, id := range ids {
		if _, ok := snap.byID[id]; !ok {
			return nil, api.NewDescriptorNotFoundError(id)
		}
		nodes[i] = dependency.NodeID(id)
	}

	order, err := c.Graph().TopologicalSort(nodes...)
	if err != nil {
		return nil, fmt.Errorf("cannot order test suites: %w", err)
	}
	out := make([]*api.ProjectDescriptor, len(order))
	for i, id := range order {
		out[i] = snap.byID[string(id)].Clone()
	}
	return out, nil
}

func (s *snapshot) with(d *api.ProjectDescriptor) *snapshot {
	next := &snapshot{byID: make(map[string]*api.ProjectDescriptor, len(s.byID)+1)}
	for id, existing := range s.byID {
		next.byID[id] = existing
	}
	next.byID[d.ID] = d
	next.sort()
	return next
}

func (s *snapshot) without(id string) *snapshot {
	next := &snapshot{byID: make(map[string]*api.ProjectDescriptor, len(s.byID))}
	for k, existing := range s.byID {
		if k != id {
			next.byID[k] = existing
		}
	}
	next.sort()
	return next
}

func (s *snapshot) sort() {
	s.order = make([]*api.ProjectDescriptor, 0, len(s.byID))
	for _, d := range s.byID {
		s.order = append(s.order, d)
	}
	sort.Slice(s.order, func(i, j int) bool {
		if s.order[i].Label != s.order[j].Label {
			return s.order[i].Label < s.order[j].Label
		}
		return s.order[i].ID < s.order[j].ID
	})
}
