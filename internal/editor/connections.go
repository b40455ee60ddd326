package editor

// Connection is a directed edge from a block's output to a named input of
// another block.
type Connection struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	InputID string `json:"inputId"`
}

type inputKey struct {
	target  string
	inputID string
}

// connectionStore keeps edges in creation order with an index on the
// (target, input) pair, which holds at most one edge.
type connectionStore struct {
	list  []Connection
	index map[inputKey]Connection
}

func newConnectionStore() *connectionStore {
	return &connectionStore{index: make(map[inputKey]Connection)}
}

// add inserts c, returning the edge it replaced on the same input, if any.
func (s *connectionStore) add(c Connection) (Connection, bool) {
	key := inputKey{c.Target, c.InputID}
	old, replaced := s.index[key]
	if replaced {
		s.filter(func(e Connection) bool { return e != old })
	}
	s.list = append(s.list, c)
	s.index[key] = c
	return old, replaced
}

// byInput returns the edge feeding target's input.
func (s *connectionStore) byInput(target, inputID string) (Connection, bool) {
	c, ok := s.index[inputKey{target, inputID}]
	return c, ok
}

// removeInput drops the edge feeding target's input.
func (s *connectionStore) removeInput(target, inputID string) (Connection, bool) {
	c, ok := s.index[inputKey{target, inputID}]
	if !ok {
		return Connection{}, false
	}
	s.filter(func(e Connection) bool { return e != c })
	return c, true
}

func (s *connectionStore) remove(c Connection) bool {
	if cur, ok := s.index[inputKey{c.Target, c.InputID}]; !ok || cur != c {
		return false
	}
	s.filter(func(e Connection) bool { return e != c })
	return true
}

// removeBlock drops every edge touching id and returns them.
func (s *connectionStore) removeBlock(id string) []Connection {
	var removed []Connection
	s.filter(func(e Connection) bool {
		if e.Source == id || e.Target == id {
			removed = append(removed, e)
			return false
		}
		return true
	})
	return removed
}

// from returns the edges leaving source, in creation order.
func (s *connectionStore) from(source string) []Connection {
	var out []Connection
	for _, c := range s.list {
		if c.Source == source {
			out = append(out, c)
		}
	}
	return out
}

func (s *connectionStore) all() []Connection {
	return append([]Connection(nil), s.list...)
}

func (s *connectionStore) len() int { return len(s.list) }

func (s *connectionStore) clear() {
	s.list = nil
	s.index = make(map[inputKey]Connection)
}

// filter keeps the edges for which keep returns true and rebuilds the index.
func (s *connectionStore) filter(keep func(Connection) bool) {
	kept := s.list[:0]
	for _, c := range s.list {
		if keep(c) {
			kept = append(kept, c)
		}
	}
	for i := len(kept); i < len(s.list); i++ {
		s.list[i] = Connection{}
	}
	s.list = kept
	s.index = make(map[inputKey]Connection, len(kept))
	for _, c := range kept {
		s.index[inputKey{c.Target, c.InputID}] = c
	}
}
