package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var errReadOnly = errors.New("auth: write in read-only view")

// InMemory implements Store with in-process concurrency safety. Transactions
// run against a copy of the state that replaces the original on success.
type InMemory struct {
	mu    sync.RWMutex
	state *memState
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{state: newMemState()}
}

type memState struct {
	users       map[string]User
	sessions    map[string]Session
	sessionHash map[string]string
	roles       map[string]Role
	perms       map[string]Permission
	userRoles   map[string]map[string]struct{}
	rolePerms   map[string]map[string]struct{}
}

func newMemState() *memState {
	return &memState{
		users:       map[string]User{},
		sessions:    map[string]Session{},
		sessionHash: map[string]string{},
		roles:       map[string]Role{},
		perms:       map[string]Permission{},
		userRoles:   map[string]map[string]struct{}{},
		rolePerms:   map[string]map[string]struct{}{},
	}
}

func (s *memState) clone() *memState {
	cp := newMemState()
	for k, v := range s.users {
		if v.DeletedAt != nil {
			at := *v.DeletedAt
			v.DeletedAt = &at
		}
		cp.users[k] = v
	}
	for k, v := range s.sessions {
		cp.sessions[k] = v
	}
	for k, v := range s.sessionHash {
		cp.sessionHash[k] = v
	}
	for k, v := range s.roles {
		cp.roles[k] = v
	}
	for k, v := range s.perms {
		cp.perms[k] = v
	}
	cp.userRoles = cloneSets(s.userRoles)
	cp.rolePerms = cloneSets(s.rolePerms)
	return cp
}

func cloneSets(src map[string]map[string]struct{}) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(src))
	for k, set := range src {
		inner := make(map[string]struct{}, len(set))
		for id := range set {
			inner[id] = struct{}{}
		}
		out[k] = inner
	}
	return out
}

// InTx implements Store.
func (m *InMemory) InTx(ctx context.Context, fn func(q Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.state.clone()
	if err := fn(&memTx{s: next}); err != nil {
		return err
	}
	m.state = next
	return nil
}

// View implements Store.
func (m *InMemory) View(ctx context.Context, fn func(q Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{s: m.state, readonly: true})
}

// Ping implements Store.
func (m *InMemory) Ping(ctx context.Context) error {
	return ctx.Err()
}

type memTx struct {
	s        *memState
	readonly bool
}

func (t *memTx) write() error {
	if t.readonly {
		return errReadOnly
	}
	return nil
}

func (t *memTx) CreateUser(_ context.Context, u User) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := t.s.users[u.ID]; ok {
		return fmt.Errorf("%w: user %s", ErrConflict, u.ID)
	}
	if _, err := t.UserByEmail(context.Background(), u.Email); err == nil {
		return fmt.Errorf("%w: email", ErrConflict)
	}
	t.s.users[u.ID] = u
	return nil
}

func (t *memTx) UserByID(_ context.Context, id string) (User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return User{}, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return u, nil
}

func (t *memTx) UserByEmail(_ context.Context, email string) (User, error) {
	for _, u := range t.s.users {
		if u.Email == email && u.DeletedAt == nil {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("%w: user", ErrNotFound)
}

func (t *memTx) UpdateUser(_ context.Context, u User) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := t.s.users[u.ID]; !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, u.ID)
	}
	if u.DeletedAt == nil {
		for id, other := range t.s.users {
			if id != u.ID && other.DeletedAt == nil && other.Email == u.Email {
				return fmt.Errorf("%w: email", ErrConflict)
			}
		}
	}
	t.s.users[u.ID] = u
	return nil
}

func (t *memTx) ListUsers(_ context.Context) ([]User, error) {
	out := make([]User, 0, len(t.s.users))
	for _, u := range t.s.users {
		if u.DeletedAt == nil {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// LockUser is a no-op: InTx already holds the store lock.
func (t *memTx) LockUser(_ context.Context, id string) error {
	if _, ok := t.s.users[id]; !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return nil
}

func (t *memTx) CreateSession(_ context.Context, s Session) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := t.s.users[s.UserID]; !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, s.UserID)
	}
	if _, ok := t.s.sessionHash[s.TokenHash]; ok {
		return fmt.Errorf("%w: session token", ErrConflict)
	}
	t.s.sessions[s.ID] = s
	t.s.sessionHash[s.TokenHash] = s.ID
	return nil
}

func (t *memTx) ActiveSessionByHash(_ context.Context, tokenHash string) (Session, error) {
	id, ok := t.s.sessionHash[tokenHash]
	if !ok {
		return Session{}, fmt.Errorf("%w: session", ErrNotFound)
	}
	s := t.s.sessions[id]
	if !s.Active {
		return Session{}, fmt.Errorf("%w: session", ErrNotFound)
	}
	return s, nil
}

func (t *memTx) DeactivateSession(_ context.Context, id string) error {
	if err := t.write(); err != nil {
		return err
	}
	s, ok := t.s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	s.Active = false
	t.s.sessions[id] = s
	return nil
}

func (t *memTx) DeactivateUserSessions(_ context.Context, userID, exceptHash string) (int64, error) {
	if err := t.write(); err != nil {
		return 0, err
	}
	var n int64
	for id, s := range t.s.sessions {
		if s.UserID != userID || !s.Active {
			continue
		}
		if exceptHash != "" && s.TokenHash == exceptHash {
			continue
		}
		s.Active = false
		t.s.sessions[id] = s
		n++
	}
	return n, nil
}

func (t *memTx) ListActiveSessions(_ context.Context, userID string, now time.Time) ([]Session, error) {
	out := []Session{}
	for _, s := range t.s.sessions {
		if s.UserID == userID && s.Active && !s.ExpiredAt(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) DeactivateExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	if err := t.write(); err != nil {
		return 0, err
	}
	var n int64
	for id, s := range t.s.sessions {
		if s.Active && s.ExpiredAt(now) {
			s.Active = false
			t.s.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateRole(_ context.Context, r Role) error {
	if err := t.write(); err != nil {
		return err
	}
	for _, other := range t.s.roles {
		if other.Name == r.Name || other.ID == r.ID {
			return fmt.Errorf("%w: role %s", ErrConflict, r.Name)
		}
	}
	t.s.roles[r.ID] = r
	return nil
}

func (t *memTx) RoleByID(_ context.Context, id string) (Role, error) {
	r, ok := t.s.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	return r, nil
}

func (t *memTx) RoleByName(_ context.Context, name string) (Role, error) {
	for _, r := range t.s.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return Role{}, fmt.Errorf("%w: role %s", ErrNotFound, name)
}

func (t *memTx) UpdateRole(_ context.Context, r Role) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := t.s.roles[r.ID]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, r.ID)
	}
	for id, other := range t.s.roles {
		if id != r.ID && other.Name == r.Name {
			return fmt.Errorf("%w: role %s", ErrConflict, r.Name)
		}
	}
	t.s.roles[r.ID] = r
	return nil
}

func (t *memTx) DeleteRole(_ context.Context, id string) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := t.s.roles[id]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	delete(t.s.roles, id)
	delete(t.s.rolePerms, id)
	for _, set := range t.s.userRoles {
		delete(set, id)
	}
	return nil
}

func (t *memTx) ListRoles(_ context.Context) ([]Role, error) {
	out := make([]Role, 0, len(t.s.roles))
	for _, r := range t.s.roles {
		out = append(out, r)
	}
	sortRoles(out)
	return out, nil
}

func (t *memTx) CreatePermission(_ context.Context, p Permission) error {
	if err := t.write(); err != nil {
		return err
	}
	for _, other := range t.s.perms {
		if other.ID == p.ID || (other.ResourceType == p.ResourceType && other.Action == p.Action) {
			return fmt.Errorf("%w: permission %s", ErrConflict, p.Key())
		}
	}
	t.s.perms[p.ID] = p
	return nil
}

func (t *memTx) PermissionByID(_ context.Context, id string) (Permission, error) {
	p, ok := t.s.perms[id]
	if !ok {
		return Permission{}, fmt.Errorf("%w: permission %s", ErrNotFound, id)
	}
	return p, nil
}

func (t *memTx) PermissionByKey(_ context.Context, resourceType, action string) (Permission, error) {
	for _, p := range t.s.perms {
		if p.ResourceType == resourceType && p.Action == action {
			return p, nil
		}
	}
	return Permission{}, fmt.Errorf("%w: permission %s:%s", ErrNotFound, resourceType, action)
}

func (t *memTx) DeletePermission(_ context.Context, id string) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := t.s.perms[id]; !ok {
		return fmt.Errorf("%w: permission %s", ErrNotFound, id)
	}
	delete(t.s.perms, id)
	for _, set := range t.s.rolePerms {
		delete(set, id)
	}
	return nil
}

func (t *memTx) ListPermissions(_ context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(t.s.perms))
	for _, p := range t.s.perms {
		out = append(out, p)
	}
	sortPermissions(out)
	return out, nil
}

func (t *memTx) AttachPermission(_ context.Context, roleID, permissionID string) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := t.s.roles[roleID]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	if _, ok := t.s.perms[permissionID]; !ok {
		return fmt.Errorf("%w: permission %s", ErrNotFound, permissionID)
	}
	return attach(t.s.rolePerms, roleID, permissionID)
}

func (t *memTx) DetachPermission(_ context.Context, roleID, permissionID string) error {
	if err := t.write(); err != nil {
		return err
	}
	return detach(t.s.rolePerms, roleID, permissionID)
}

func (t *memTx) RolePermissions(_ context.Context, roleID string) ([]Permission, error) {
	out := make([]Permission, 0, len(t.s.rolePerms[roleID]))
	for id := range t.s.rolePerms[roleID] {
		out = append(out, t.s.perms[id])
	}
	sortPermissions(out)
	return out, nil
}

func (t *memTx) AttachRole(_ context.Context, userID, roleID string) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := t.s.users[userID]; !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if _, ok := t.s.roles[roleID]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	return attach(t.s.userRoles, userID, roleID)
}

func (t *memTx) DetachRole(_ context.Context, userID, roleID string) error {
	if err := t.write(); err != nil {
		return err
	}
	return detach(t.s.userRoles, userID, roleID)
}

func (t *memTx) UserRoles(_ context.Context, userID string) ([]Role, error) {
	out := make([]Role, 0, len(t.s.userRoles[userID]))
	for id := range t.s.userRoles[userID] {
		out = append(out, t.s.roles[id])
	}
	sortRoles(out)
	return out, nil
}

func (t *memTx) UserHasPermission(_ context.Context, userID, resourceType, action string) (bool, error) {
	for roleID := range t.s.userRoles[userID] {
		for permID := range t.s.rolePerms[roleID] {
			p := t.s.perms[permID]
			if p.ResourceType == resourceType && p.Action == action {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t *memTx) UserHasRole(_ context.Context, userID, roleName string) (bool, error) {
	for roleID := range t.s.userRoles[userID] {
		if t.s.roles[roleID].Name == roleName {
			return true, nil
		}
	}
	return false, nil
}

func attach(sets map[string]map[string]struct{}, owner, id string) error {
	set, ok := sets[owner]
	if !ok {
		set = map[string]struct{}{}
		sets[owner] = set
	}
	if _, ok := set[id]; ok {
		return fmt.Errorf("%w: already attached", ErrConflict)
	}
	set[id] = struct{}{}
	return nil
}

func detach(sets map[string]map[string]struct{}, owner, id string) error {
	set := sets[owner]
	if _, ok := set[id]; !ok {
		return fmt.Errorf("%w: not attached", ErrNotFound)
	}
	delete(set, id)
	return nil
}

func sortRoles(roles []Role) {
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
}

func sortPermissions(perms []Permission) {
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].ResourceType != perms[j].ResourceType {
			return perms[i].ResourceType < perms[j].ResourceType
		}
		return perms[i].Action < perms[j].Action
	})
}
