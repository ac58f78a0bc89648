// Package memory is an in-process twin of the Postgres repositories. It
// enforces the same unique constraints and returns the same domain errors,
// which makes it usable for tests and for running the API without a
// database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// Store holds every entity behind a single lock.
type Store struct {
	mu  sync.Mutex
	seq uint64

	users      map[uuid.UUID]*domain.User
	identities map[identityKey]*domain.UserIdentity
	orgs       map[uuid.UUID]*domain.Organization
	apiKeys    map[uuid.UUID]*domain.APIKey
	agents     map[uuid.UUID]*domain.Agent
	sessions   map[string]*domain.RefreshSession

	// insertion order, used to break created_at ties
	order map[uuid.UUID]uint64
}

type identityKey struct {
	provider string
	subject  string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:      make(map[uuid.UUID]*domain.User),
		identities: make(map[identityKey]*domain.UserIdentity),
		orgs:       make(map[uuid.UUID]*domain.Organization),
		apiKeys:    make(map[uuid.UUID]*domain.APIKey),
		agents:     make(map[uuid.UUID]*domain.Agent),
		sessions:   make(map[string]*domain.RefreshSession),
		order:      make(map[uuid.UUID]uint64),
	}
}

// Users returns the user repository view.
func (s *Store) Users() *Users { return &Users{s: s} }

// Organizations returns the organization repository view.
func (s *Store) Organizations() *Organizations { return &Organizations{s: s} }

// APIKeys returns the API key repository view.
func (s *Store) APIKeys() *APIKeys { return &APIKeys{s: s} }

// Agents returns the agent repository view.
func (s *Store) Agents() *Agents { return &Agents{s: s} }

// Sessions returns the refresh session repository view.
func (s *Store) Sessions() *Sessions { return &Sessions{s: s} }

// track must be called with mu held.
func (s *Store) track(id uuid.UUID) {
	s.seq++
	s.order[id] = s.seq
}

// newerFirst orders by creation time, then insertion order, descending.
func (s *Store) newerFirst(a, b uuid.UUID, ca, cb time.Time) bool {
	if !ca.Equal(cb) {
		return ca.After(cb)
	}
	return s.order[a] > s.order[b]
}

// Users mirrors repository.UsersRepository.
type Users struct{ s *Store }

// Create stores a user.
func (u *Users) Create(_ context.Context, user *domain.User) error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return domain.ErrConflict
	}
	s.users[user.ID] = cloneUser(user)
	s.track(user.ID)
	return nil
}

// CreateWithIdentity stores a user together with its identity link.
func (u *Users) CreateWithIdentity(_ context.Context, user *domain.User, identity *domain.UserIdentity) error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	k := identityKey{provider: identity.Provider, subject: identity.ProviderSubject}
	if _, ok := s.identities[k]; ok {
		return domain.ErrConflict
	}
	if _, ok := s.users[user.ID]; ok {
		return domain.ErrConflict
	}
	s.users[user.ID] = cloneUser(user)
	s.track(user.ID)
	ident := *identity
	s.identities[k] = &ident
	return nil
}

// GetByID retrieves a user by ID.
func (u *Users) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(user), nil
}

// GetWithOrganization retrieves a user and, when bound, its organization.
func (u *Users) GetWithOrganization(_ context.Context, id uuid.UUID) (*domain.User, *domain.Organization, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil, domain.ErrUserNotFound
	}
	if user.OrganizationID == nil {
		return cloneUser(user), nil, nil
	}
	org, ok := s.orgs[*user.OrganizationID]
	if !ok {
		return cloneUser(user), nil, nil
	}
	o := *org
	return cloneUser(user), &o, nil
}

// GetByIdentity retrieves the user linked to an external identity.
func (u *Users) GetByIdentity(_ context.Context, provider, subject string) (*domain.User, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[identityKey{provider: provider, subject: subject}]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	user, ok := s.users[ident.UserID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	if u.Name != nil {
		name := *u.Name
		c.Name = &name
	}
	if u.OrganizationID != nil {
		id := *u.OrganizationID
		c.OrganizationID = &id
	}
	return &c
}

// Organizations mirrors repository.OrganizationsRepository.
type Organizations struct{ s *Store }

// CreateForUser inserts org and binds its owner to it. The binding is
// set-once: if the owner already has an organization, or owns one, or the
// slug is taken, nothing is written and domain.ErrConflict is returned.
func (o *Organizations) CreateForUser(_ context.Context, org *domain.Organization) error {
	s := o.s
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.users[org.OwnerUserID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if owner.OrganizationID != nil {
		return domain.ErrConflict
	}
	for _, existing := range s.orgs {
		if existing.Slug == org.Slug || existing.OwnerUserID == org.OwnerUserID {
			return domain.ErrConflict
		}
	}

	stored := *org
	s.orgs[org.ID] = &stored
	s.track(org.ID)
	id := org.ID
	owner.OrganizationID = &id
	owner.UpdatedAt = time.Now()
	return nil
}

// GetByID retrieves an organization by ID.
func (o *Organizations) GetByID(_ context.Context, id uuid.UUID) (*domain.Organization, error) {
	s := o.s
	s.mu.Lock()
	defer s.mu.Unlock()

	org, ok := s.orgs[id]
	if !ok {
		return nil, domain.ErrOrganizationNotFound
	}
	c := *org
	return &c, nil
}

// Count returns the number of stored organizations.
func (o *Organizations) Count() int {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	return len(o.s.orgs)
}

// APIKeys mirrors repository.APIKeysRepository.
type APIKeys struct{ s *Store }

// Create stores a key, rejecting a duplicate value or a second active
// auto-provisioned key for the organization with domain.ErrConflict.
func (a *APIKeys) Create(_ context.Context, key *domain.APIKey) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.apiKeys {
		if existing.Key == key.Key {
			return domain.ErrConflict
		}
		if key.AutoProvisioned && key.IsActive &&
			existing.OrganizationID == key.OrganizationID && existing.AutoProvisioned && existing.IsActive {
			return domain.ErrConflict
		}
	}
	stored := *key
	s.apiKeys[key.ID] = &stored
	s.track(key.ID)
	return nil
}

// GetActiveByOrganization returns the oldest active key of an organization.
func (a *APIKeys) GetActiveByOrganization(_ context.Context, orgID uuid.UUID) (*domain.APIKey, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *domain.APIKey
	for _, key := range s.apiKeys {
		if key.OrganizationID != orgID || !key.IsActive {
			continue
		}
		if oldest == nil || s.newerFirst(oldest.ID, key.ID, oldest.CreatedAt, key.CreatedAt) {
			oldest = key
		}
	}
	if oldest == nil {
		return nil, domain.ErrAPIKeyNotFound
	}
	c := *oldest
	return &c, nil
}

// GetByKey retrieves a key by its secret value.
func (a *APIKeys) GetByKey(_ context.Context, value string) (*domain.APIKey, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.apiKeys {
		if key.Key == value {
			c := *key
			return &c, nil
		}
	}
	return nil, domain.ErrAPIKeyNotFound
}

// ListByOrganization returns every key of an organization, newest first.
func (a *APIKeys) ListByOrganization(_ context.Context, orgID uuid.UUID) ([]*domain.APIKey, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := []*domain.APIKey{}
	for _, key := range s.apiKeys {
		if key.OrganizationID == orgID {
			c := *key
			keys = append(keys, &c)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.newerFirst(keys[i].ID, keys[j].ID, keys[i].CreatedAt, keys[j].CreatedAt)
	})
	return keys, nil
}

// Revoke deactivates a key owned by orgID.
func (a *APIKeys) Revoke(_ context.Context, orgID, id uuid.UUID) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.apiKeys[id]
	if !ok || key.OrganizationID != orgID {
		return domain.ErrAPIKeyNotFound
	}
	key.IsActive = false
	if key.RevokedAt == nil {
		now := time.Now()
		key.RevokedAt = &now
	}
	return nil
}

// CountActive returns the number of active keys of an organization.
func (a *APIKeys) CountActive(orgID uuid.UUID) int {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	n := 0
	for _, key := range a.s.apiKeys {
		if key.OrganizationID == orgID && key.IsActive {
			n++
		}
	}
	return n
}
