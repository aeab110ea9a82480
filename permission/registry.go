package permission

import (
	"errors"
	"sync"
)

var (
	ErrRegistryFrozen   = errors.New("permission: registry frozen")
	ErrEmptyName        = errors.New("permission: name cannot be empty")
	ErrDuplicate        = errors.New("permission: already registered")
	ErrLimitExceeded    = errors.New("permission: limit exceeded")
	ErrUnknown          = errors.New("permission: not registered")
	ErrRoleManagerFroze = errors.New("permission: role manager frozen")
)

// Registry maps permission names to bit positions in a [Mask].
type Registry struct {
	rootReserved bool

	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry returns an empty registry. With rootReserved, bit 63 is kept
// back as the root permission and 63 names fit; otherwise 64.
func NewRegistry(rootReserved bool) *Registry {
	return &Registry{
		rootReserved: rootReserved,
		nameToBit:    make(map[string]int),
		bitToName:    make(map[int]string),
	}
}

// Register assigns the next free bit to name.
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, ErrRegistryFrozen
	}
	if name == "" {
		return -1, ErrEmptyName
	}
	if _, exists := r.nameToBit[name]; exists {
		return -1, ErrDuplicate
	}

	next := len(r.nameToBit)
	if (r.rootReserved && next >= rootBit) || next >= 64 {
		return -1, ErrLimitExceeded
	}

	r.nameToBit[name] = next
	r.bitToName[next] = name
	return next, nil
}

// Bit returns the bit index for the named permission, or false if not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission name for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

// RootBit returns the reserved root bit, or false if reservation is disabled.
func (r *Registry) RootBit() (int, bool) {
	if !r.rootReserved {
		return -1, false
	}
	return rootBit, true
}
