// Package repotest provides in-memory repositories for tests.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/repositories"
)

type Accounts struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
}

func NewAccounts() *Accounts {
	return &Accounts{accounts: make(map[uuid.UUID]*models.Account)}
}

func (f *Accounts) Create(_ context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Email == account.Email {
			return repositories.ErrConflict
		}
	}
	account.ID = uuid.New()
	account.CreatedAt = time.Now()
	copied := *account
	f.accounts[account.ID] = &copied
	return nil
}

func (f *Accounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[id]; ok {
		return a, nil
	}
	return nil, repositories.ErrNotFound
}

func (f *Accounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *Accounts) Update(_ context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[account.ID]; !ok {
		return repositories.ErrNotFound
	}
	f.accounts[account.ID] = account
	return nil
}

func (f *Accounts) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accounts, id)
	return nil
}

// Devices also serves push targets the way the Postgres repository does:
// the newest non-revoked device with a token wins.
type Devices struct {
	mu      sync.Mutex
	devices map[uuid.UUID]*models.Device
	cleared []string
}

func NewDevices() *Devices {
	return &Devices{devices: make(map[uuid.UUID]*models.Device)}
}

func (f *Devices) Create(_ context.Context, device *models.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	device.ID = uuid.New()
	device.CreatedAt = time.Now()
	f.devices[device.ID] = device
	return nil
}

func (f *Devices) GetByID(_ context.Context, id uuid.UUID) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.devices[id]; ok {
		return d, nil
	}
	return nil, repositories.ErrNotFound
}

func (f *Devices) GetDevicesByAccountID(_ context.Context, accountID uuid.UUID) ([]*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Device
	for _, d := range f.devices {
		if d.AccountID == accountID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *Devices) Update(_ context.Context, device *models.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[device.ID] = device
	return nil
}

func (f *Devices) Revoke(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return repositories.ErrNotFound
	}
	now := time.Now()
	d.RevokedAt = &now
	return nil
}

func (f *Devices) SetPushToken(_ context.Context, id uuid.UUID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return repositories.ErrNotFound
	}
	for _, other := range f.devices {
		if other.PushToken != nil && *other.PushToken == token {
			other.PushToken = nil
		}
	}
	now := time.Now()
	d.PushToken = &token
	d.UpdatedAt = &now
	return nil
}

func (f *Devices) ClearPushToken(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, token)
	for _, d := range f.devices {
		if d.PushToken != nil && *d.PushToken == token {
			d.PushToken = nil
		}
	}
	return nil
}

func (f *Devices) GetPushTarget(_ context.Context, accountID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.Device
	for _, d := range f.devices {
		if d.AccountID != accountID || !d.HasPushTarget() {
			continue
		}
		if best == nil || d.CreatedAt.After(best.CreatedAt) {
			best = d
		}
	}
	if best == nil {
		return "", nil
	}
	return *best.PushToken, nil
}

// Cleared returns the tokens passed to ClearPushToken.
func (f *Devices) Cleared() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cleared...)
}

type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]*models.Session)}
}

func (f *Sessions) Create(_ context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ID] = session
	return nil
}

func (f *Sessions) GetByID(_ context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, repositories.ErrNotFound
}

func (f *Sessions) ListByAccountID(_ context.Context, accountID uuid.UUID) ([]*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Session
	for _, s := range f.sessions {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *Sessions) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *Sessions) DeleteAllForAccount(_ context.Context, accountID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.sessions {
		if s.AccountID == accountID {
			delete(f.sessions, id)
		}
	}
	return nil
}

// StatusRecords mimics the Postgres upsert: versions start at 1 and the
// replaced record is returned.
type StatusRecords struct {
	mu      sync.Mutex
	records map[uuid.UUID]models.StatusRecord
	writes  int
	Err     error
}

func NewStatusRecords() *StatusRecords {
	return &StatusRecords{records: make(map[uuid.UUID]models.StatusRecord)}
}

func (f *StatusRecords) Upsert(_ context.Context, record *models.StatusRecord) (*models.StatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.writes++
	var prev *models.StatusRecord
	if existing, ok := f.records[record.OwnerID]; ok {
		prev = &existing
		record.Version = existing.Version + 1
	} else {
		record.Version = 1
	}
	record.UpdatedAt = time.Now().UTC()
	f.records[record.OwnerID] = *record
	return prev, nil
}

func (f *StatusRecords) GetByOwner(_ context.Context, ownerID uuid.UUID) (*models.StatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[ownerID]; ok {
		return &r, nil
	}
	return nil, repositories.ErrNotFound
}

// Writes counts successful upserts.
func (f *StatusRecords) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

type StatusCache struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.StatusRecord
}

func NewStatusCache() *StatusCache {
	return &StatusCache{records: make(map[uuid.UUID]*models.StatusRecord)}
}

// Set keeps the higher version, like the Redis script.
func (f *StatusCache) Set(_ context.Context, record *models.StatusRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.records[record.OwnerID]; ok && cur.Version > record.Version {
		return nil
	}
	copied := *record
	f.records[record.OwnerID] = &copied
	return nil
}

func (f *StatusCache) Get(_ context.Context, ownerID uuid.UUID) (*models.StatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[ownerID]; ok {
		return r, nil
	}
	return nil, repositories.ErrNotFound
}

func (f *StatusCache) GetBulk(_ context.Context, ownerIDs []uuid.UUID) (map[uuid.UUID]*models.StatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]*models.StatusRecord)
	for _, id := range ownerIDs {
		if r, ok := f.records[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

type Friendships struct {
	mu    sync.Mutex
	edges []*models.Friendship
}

func NewFriendships() *Friendships {
	return &Friendships{}
}

// Add inserts an edge directly with the given status.
func (f *Friendships) Add(a, b uuid.UUID, status models.FriendshipStatus) *models.Friendship {
	f.mu.Lock()
	defer f.mu.Unlock()
	edge := models.NewFriendship(a, b)
	edge.ID = uuid.New()
	edge.Status = status
	edge.CreatedAt = time.Now()
	f.edges = append(f.edges, edge)
	return edge
}

func (f *Friendships) Create(_ context.Context, friendship *models.Friendship) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.edges {
		if e.ParticipantA == friendship.ParticipantA && e.ParticipantB == friendship.ParticipantB {
			return repositories.ErrConflict
		}
	}
	friendship.ID = uuid.New()
	friendship.CreatedAt = time.Now()
	f.edges = append(f.edges, friendship)
	return nil
}

func (f *Friendships) GetByID(_ context.Context, id uuid.UUID) (*models.Friendship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.edges {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *Friendships) ListAccepted(_ context.Context, accountID uuid.UUID) ([]*models.Friendship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Friendship
	for _, e := range f.edges {
		if e.Involves(accountID) && e.Status == models.FriendshipAccepted {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *Friendships) ListForAccount(_ context.Context, accountID uuid.UUID) ([]*models.Friendship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Friendship
	for _, e := range f.edges {
		if e.Involves(accountID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *Friendships) Accept(_ context.Context, id, addressee uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.edges {
		if e.ID == id && e.Status == models.FriendshipPending && e.RequesterID != addressee && e.Involves(addressee) {
			now := time.Now()
			e.Status = models.FriendshipAccepted
			e.RespondedAt = &now
			return nil
		}
	}
	return repositories.ErrNotFound
}

type LocationBindings struct {
	mu       sync.Mutex
	bindings map[uuid.UUID]*models.LocationBinding
}

func NewLocationBindings() *LocationBindings {
	return &LocationBindings{bindings: make(map[uuid.UUID]*models.LocationBinding)}
}

func (f *LocationBindings) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*models.LocationBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.LocationBinding
	for _, b := range f.bindings {
		if b.OwnerID == ownerID {
			copied := *b
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

func (f *LocationBindings) Upsert(_ context.Context, binding *models.LocationBinding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := binding.WithDefaults()
	b.AccessPointID = models.NormalizeAccessPointID(b.AccessPointID)
	for _, existing := range f.bindings {
		if existing.OwnerID == b.OwnerID && existing.AccessPointID == b.AccessPointID {
			b.ID = existing.ID
			b.CreatedAt = existing.CreatedAt
			now := time.Now()
			b.UpdatedAt = &now
			f.bindings[b.ID] = &b
			*binding = b
			return nil
		}
	}
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	f.bindings[b.ID] = &b
	*binding = b
	return nil
}

func (f *LocationBindings) Delete(_ context.Context, ownerID uuid.UUID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bindings[id]
	if !ok || b.OwnerID != ownerID {
		return repositories.ErrNotFound
	}
	delete(f.bindings, id)
	return nil
}

// KV is an in-memory KeyValueStore.
type KV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewKV() *KV {
	return &KV{data: make(map[string][]byte)}
}

func (f *KV) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *KV) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = append([]byte(nil), value...)
	return nil
}

func (f *KV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

// FriendStatuses is an in-memory FriendStatusStore.
type FriendStatuses struct {
	mu      sync.Mutex
	entries map[uuid.UUID]models.FriendStatusEntry
}

func NewFriendStatuses() *FriendStatuses {
	return &FriendStatuses{entries: make(map[uuid.UUID]models.FriendStatusEntry)}
}

func (f *FriendStatuses) Get(_ context.Context, friendID uuid.UUID) (*models.FriendStatusEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[friendID]; ok {
		return &e, nil
	}
	return nil, repositories.ErrNotFound
}

func (f *FriendStatuses) Upsert(_ context.Context, entry *models.FriendStatusEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.FriendID] = *entry
	return nil
}

func (f *FriendStatuses) List(_ context.Context) ([]*models.FriendStatusEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.FriendStatusEntry, 0, len(f.entries))
	for _, e := range f.entries {
		copied := e
		out = append(out, &copied)
	}
	return out, nil
}

var (
	_ repositories.AccountRepository         = (*Accounts)(nil)
	_ repositories.DeviceRepository          = (*Devices)(nil)
	_ repositories.PushTargetReader          = (*Devices)(nil)
	_ repositories.SessionRepository         = (*Sessions)(nil)
	_ repositories.StatusRepository          = (*StatusRecords)(nil)
	_ repositories.StatusCacheRepository     = (*StatusCache)(nil)
	_ repositories.FriendshipRepository      = (*Friendships)(nil)
	_ repositories.LocationBindingRepository = (*LocationBindings)(nil)
	_ repositories.KeyValueStore             = (*KV)(nil)
	_ repositories.FriendStatusStore         = (*FriendStatuses)(nil)
)
