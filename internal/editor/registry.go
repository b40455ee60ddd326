package editor

import (
	"fmt"
	"strconv"
	"strings"
)

// registry is the ordered set of blocks of a session. Registration order is
// the order RunAll walks.
type registry struct {
	order  []string
	blocks map[string]*Block
	seq    map[string]int
}

func newRegistry() *registry {
	return &registry{
		blocks: make(map[string]*Block),
		seq:    make(map[string]int),
	}
}

// nextID returns the next free "<type>-<n>" id.
func (r *registry) nextID(typ string) string {
	for {
		r.seq[typ]++
		id := fmt.Sprintf("%s-%d", typ, r.seq[typ])
		if _, taken := r.blocks[id]; !taken {
			return id
		}
	}
}

// add stores b. Ids of the form "<type>-<n>" advance the counter so that
// later generated ids never collide with restored ones.
func (r *registry) add(b *Block) error {
	if b.ID == "" {
		return fmt.Errorf("block id is required")
	}
	if _, exists := r.blocks[b.ID]; exists {
		return fmt.Errorf("duplicate block id: %s", b.ID)
	}
	if i := strings.LastIndex(b.ID, "-"); i > 0 {
		if n, err := strconv.Atoi(b.ID[i+1:]); err == nil {
			prefix := b.ID[:i]
			if n > r.seq[prefix] {
				r.seq[prefix] = n
			}
		}
	}
	r.blocks[b.ID] = b
	r.order = append(r.order, b.ID)
	return nil
}

func (r *registry) get(id string) (*Block, bool) {
	b, ok := r.blocks[id]
	return b, ok
}

func (r *registry) remove(id string) bool {
	if _, ok := r.blocks[id]; !ok {
		return false
	}
	delete(r.blocks, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// list returns blocks in registration order.
func (r *registry) list() []*Block {
	out := make([]*Block, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.blocks[id])
	}
	return out
}

func (r *registry) len() int { return len(r.order) }

func (r *registry) clear() {
	r.order = nil
	r.blocks = make(map[string]*Block)
	r.seq = make(map[string]int)
}
