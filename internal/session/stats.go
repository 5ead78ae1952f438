package session

import "sync/atomic"

// Stats is a snapshot of the session counters.
type Stats struct {
	Reads       uint64 `json:"reads"`
	Writes      uint64 `json:"writes"`
	GroupsIn    uint64 `json:"groupsIn"`
	GroupsOut   uint64 `json:"groupsOut"`
	MessagesIn  uint64 `json:"messagesIn"`
	MessagesOut uint64 `json:"messagesOut"`
	Dropped     uint64 `json:"droppedBytes"`
}

type counters struct {
	reads       atomic.Uint64
	writes      atomic.Uint64
	groupsIn    atomic.Uint64
	groupsOut   atomic.Uint64
	messagesIn  atomic.Uint64
	messagesOut atomic.Uint64
	dropped     atomic.Uint64
}

// Stats returns the current counters.
func (s *Session) Stats() Stats {
	return Stats{
		Reads:       s.stats.reads.Load(),
		Writes:      s.stats.writes.Load(),
		GroupsIn:    s.stats.groupsIn.Load(),
		GroupsOut:   s.stats.groupsOut.Load(),
		MessagesIn:  s.stats.messagesIn.Load(),
		MessagesOut: s.stats.messagesOut.Load(),
		Dropped:     s.stats.dropped.Load(),
	}
}
