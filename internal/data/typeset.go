package data

// TypeSet is a small set of entity types. Members keep insertion order so
// iteration over legal actions is deterministic; membership is a linear scan,
// which beats a map for the handful of members these sets ever hold.
type TypeSet struct {
	ids []ActionID
}

// NewTypeSet builds a set from ids, dropping duplicates.
func NewTypeSet(ids ...ActionID) TypeSet {
	var s TypeSet
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s TypeSet) Len() int { return len(s.ids) }

func (s TypeSet) IsEmpty() bool { return len(s.ids) == 0 }

// At returns the i-th member in insertion order.
func (s TypeSet) At(i int) ActionID { return s.ids[i] }

func (s TypeSet) Contains(id ActionID) bool {
	for _, m := range s.ids {
		if m == id {
			return true
		}
	}
	return false
}

// Add inserts id unless it is already a member.
func (s *TypeSet) Add(id ActionID) {
	if !s.Contains(id) {
		s.ids = append(s.ids, id)
	}
}

// AddAll inserts every member of o.
func (s *TypeSet) AddAll(o TypeSet) {
	for _, id := range o.ids {
		s.Add(id)
	}
}

// Remove deletes id, keeping the order of the remaining members.
func (s *TypeSet) Remove(id ActionID) {
	for i, m := range s.ids {
		if m == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return
		}
	}
}

func (s *TypeSet) Clear() { s.ids = s.ids[:0] }

// Union returns a new set holding the members of both sets.
func (s TypeSet) Union(o TypeSet) TypeSet {
	u := s.Clone()
	u.AddAll(o)
	return u
}

func (s TypeSet) Clone() TypeSet {
	return TypeSet{ids: append([]ActionID(nil), s.ids...)}
}

// Slice returns a copy of the members.
func (s TypeSet) Slice() []ActionID {
	return append([]ActionID(nil), s.ids...)
}
