package device

// idRing hands out IDs 1..MaxID, advancing before each draw and wrapping.
type idRing struct {
	last ID
}

// next returns the first ID after the previous one that inUse rejects.
func (r *idRing) next(inUse func(ID) bool) (ID, error) {
	for i := ID(0); i < MaxID; i++ {
		r.last++
		if r.last > MaxID {
			r.last = 1
		}
		if !inUse(r.last) {
			return r.last, nil
		}
	}
	return 0, ErrNoFreeID
}
