package realtime

import "sync"

type Subscription struct {
	Descriptor Descriptor
	Handlers   Handlers
	Enabled    bool
}

// Group is a set of handles torn down together.
type Group struct {
	handles []*Handle
	once    sync.Once
}

// SubscribeMany opens one subscription per enabled entry. Disabled entries
// are skipped and do not appear in the group.
func (m *Manager) SubscribeMany(subs []Subscription) *Group {
	g := &Group{handles: make([]*Handle, 0, len(subs))}
	for _, s := range subs {
		if !s.Enabled {
			continue
		}
		g.handles = append(g.handles, m.Subscribe(s.Descriptor, s.Handlers, true))
	}
	return g
}

func (g *Group) Len() int { return len(g.handles) }

func (g *Group) Handles() []*Handle {
	out := make([]*Handle, len(g.handles))
	copy(out, g.handles)
	return out
}

// Unsubscribe tears down every handle in the group exactly once.
func (g *Group) Unsubscribe() {
	g.once.Do(func() {
		for _, h := range g.handles {
			h.Unsubscribe()
		}
	})
}
