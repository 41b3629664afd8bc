package tsdb

import "fmt"

// ChannelDef is one channel's identity within a single file. Ids are
// file-local: the same series name may carry different ids in other files.
type ChannelDef struct {
	ID       uint16
	FormatID byte
	Name     string
}

// Registry is the in-memory channel table of one open file. It is rebuilt
// from the definition entries on every open and never persisted separately.
//
// The 8-bit id range is a dense arena: writers hand out 0, 1, 2, ... and
// only spill into the 16-bit range once all 240 slots are taken. A strict
// registry (writer path) rejects definition streams that violate density;
// readers accept any legal sequence they observe.
type Registry struct {
	dense  [MaxChannelID8 + 1]*ChannelDef
	wide   map[uint16]*ChannelDef
	byName map[string]*ChannelDef
	count8 int
	strict bool
}

func NewRegistry() *Registry {
	return &Registry{
		wide:   make(map[uint16]*ChannelDef),
		byName: make(map[string]*ChannelDef),
	}
}

// NewStrictRegistry returns a registry enforcing dense 8-bit allocation,
// used when a writer rebuilds state from an existing file.
func NewStrictRegistry() *Registry {
	r := NewRegistry()
	r.strict = true
	return r
}

// Len reports the number of defined channels.
func (r *Registry) Len() int { return r.count8 + len(r.wide) }

// Define records a channel definition decoded from the stream.
func (r *Registry) Define(id uint16, formatID byte, name string) (*ChannelDef, error) {
	def := &ChannelDef{ID: id, FormatID: formatID, Name: name}
	if id <= MaxChannelID8 {
		if r.dense[id] != nil {
			return nil, fmt.Errorf("%w: id %d", ErrDuplicateChannel, id)
		}
		if r.strict && int(id) != r.count8 {
			return nil, fmt.Errorf("%w: id %d defined with %d channels allocated", ErrDenseAllocation, id, r.count8)
		}
		r.dense[id] = def
		if int(id) >= r.count8 {
			r.count8 = int(id) + 1
		}
	} else {
		if _, ok := r.wide[id]; ok {
			return nil, fmt.Errorf("%w: id %d", ErrDuplicateChannel, id)
		}
		r.wide[id] = def
	}
	if r.byName[name] == nil {
		r.byName[name] = def
	}
	return def, nil
}

// Lookup resolves a channel id referenced by a value entry.
func (r *Registry) Lookup(id uint16) (*ChannelDef, error) {
	var def *ChannelDef
	if id <= MaxChannelID8 {
		def = r.dense[id]
	} else {
		def = r.wide[id]
	}
	if def == nil {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownChannel, id)
	}
	return def, nil
}

// LookupName resolves a series name to its first definition in this file.
func (r *Registry) LookupName(name string) (*ChannelDef, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// Allocate hands out the smallest unused id for a new series and records
// its definition. It is idempotent for a name already defined with the same
// format and fails with ErrDuplicateChannel on a format mismatch.
func (r *Registry) Allocate(name string, formatID byte) (*ChannelDef, bool, error) {
	if def, ok := r.byName[name]; ok {
		if def.FormatID != formatID {
			return nil, false, fmt.Errorf("%w: series %q uses format 0x%02x, not 0x%02x",
				ErrDuplicateChannel, name, def.FormatID, formatID)
		}
		return def, false, nil
	}

	id := uint16(0)
	found8 := false
	for candidate := 0; candidate <= MaxChannelID8; candidate++ {
		if r.dense[candidate] == nil {
			id = uint16(candidate)
			found8 = true
			break
		}
	}
	if !found8 {
		found := false
		for candidate := uint32(MaxChannelID8 + 1); candidate <= MaxChannelID; candidate++ {
			if _, ok := r.wide[uint16(candidate)]; !ok {
				id = uint16(candidate)
				found = true
				break
			}
		}
		if !found {
			return nil, false, ErrChannelExhausted
		}
	}
	def, err := r.Define(id, formatID, name)
	if err != nil {
		return nil, false, err
	}
	return def, true, nil
}

// Channels returns every definition in id order.
func (r *Registry) Channels() []*ChannelDef {
	defs := make([]*ChannelDef, 0, r.Len())
	for i := 0; i < r.count8; i++ {
		if r.dense[i] != nil {
			defs = append(defs, r.dense[i])
		}
	}
	for id := uint32(MaxChannelID8 + 1); id <= MaxChannelID; id++ {
		if def, ok := r.wide[uint16(id)]; ok {
			defs = append(defs, def)
		}
	}
	return defs
}
