package permission

// Mask is a 64-bit permission set. Bit 63 is the root bit when the owning
// registry reserves it; a mask holding root has every permission.
type Mask uint64

const rootBit = 63

func (m Mask) Has(bit int, rootReserved bool) bool {
	if bit < 0 || bit >= 64 {
		return false
	}
	if rootReserved && m&(1<<rootBit) != 0 {
		return true
	}
	return m&(1<<bit) != 0
}

func (m *Mask) Set(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m |= 1 << bit
}

func (m *Mask) Clear(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m &^= 1 << bit
}

func (m Mask) Raw() uint64 {
	return uint64(m)
}
