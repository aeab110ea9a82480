package permission

import (
	"fmt"
	"sync"

	"github.com/MrEthical07/blogauth/domain"
)

// Administrative capabilities checked by the HTTP adapter.
const (
	AccountsRead   = "accounts.read"
	AccountsUnlock = "accounts.unlock"
	SecurityReport = "security.report"
)

// RoleManager maps each account role to a permission mask. Configure it at
// startup, then Freeze; lookups are safe for concurrent use.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[domain.Role]Mask
	frozen bool
}

func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[domain.Role]Mask),
	}
}

// RegisterRole sets the permissions of role, replacing any earlier grant.
// root grants the registry's root bit and requires a root-reserving registry.
func (rm *RoleManager) RegisterRole(role domain.Role, permissions []string, root bool) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return ErrRoleManagerFroze
	}
	if !role.Valid() {
		return fmt.Errorf("permission: invalid role %q", role)
	}

	var mask Mask
	for _, name := range permissions {
		bit, ok := rm.registry.Bit(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknown, name)
		}
		mask.Set(bit)
	}
	if root {
		bit, ok := rm.registry.RootBit()
		if !ok {
			return fmt.Errorf("permission: role %s wants root but the registry reserves none", role)
		}
		mask.Set(bit)
	}

	rm.roles[role] = mask
	return nil
}

// Mask returns the mask granted to role.
func (rm *RoleManager) Mask(role domain.Role) (Mask, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	mask, ok := rm.roles[role]
	return mask, ok
}

// Allows reports whether role holds the named permission. Unknown roles and
// unknown permissions are denied.
func (rm *RoleManager) Allows(role domain.Role, permission string) bool {
	mask, ok := rm.Mask(role)
	if !ok {
		return false
	}
	bit, ok := rm.registry.Bit(permission)
	if !ok {
		return false
	}
	_, rootReserved := rm.registry.RootBit()
	return mask.Has(bit, rootReserved)
}

func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}

// DefaultRoles returns the frozen blog role model: ADMIN holds root,
// MODERATOR may read accounts, USER holds no administrative permission.
func DefaultRoles() *RoleManager {
	reg := NewRegistry(true)
	for _, name := range []string{AccountsRead, AccountsUnlock, SecurityReport} {
		if _, err := reg.Register(name); err != nil {
			panic(err)
		}
	}
	reg.Freeze()

	rm := NewRoleManager(reg)
	grants := []struct {
		role  domain.Role
		perms []string
		root  bool
	}{
		{domain.RoleUser, nil, false},
		{domain.RoleModerator, []string{AccountsRead}, false},
		{domain.RoleAdmin, nil, true},
	}
	for _, g := range grants {
		if err := rm.RegisterRole(g.role, g.perms, g.root); err != nil {
			panic(err)
		}
	}
	rm.Freeze()
	return rm
}
