// Package user manages per-identity request history and favorites.
package user

import (
	"time"

	"github.com/google/uuid"

	"ytgate/internal/config"
	"ytgate/internal/store"
	"ytgate/internal/types"
)

// HistoryLimit caps the per-identity history length
const HistoryLimit = 25

// Manager owns the history and favorites sections of user records.
// Quota fields in the same records belong to the ledger. Both sides
// save the whole record, so every load-mutate-save cycle here runs
// under store.UserLock, the same per-identity lock the ledger takes.
type Manager struct {
	store    *store.Store
	settings *config.Manager
	loc      *time.Location
	nowFunc  func() time.Time
}

// NewManager creates a user manager over the given store
func NewManager(st *store.Store, settings *config.Manager, loc *time.Location) *Manager {
	return &Manager{
		store:    st,
		settings: settings,
		loc:      loc,
		nowFunc:  time.Now,
	}
}

// NewIdentityID generates an opaque instance identifier
func NewIdentityID() string {
	return "user_" + uuid.NewString()
}

func (m *Manager) load(identityID string) (*store.UserRecord, error) {
	today := m.nowFunc().In(m.loc).Format("2006-01-02")
	return m.store.LoadUser(identityID, m.settings.Get().UserLimits.Default, today)
}

// History returns the identity's request history, most recent first
func (m *Manager) History(identityID string) ([]types.HistoryEntry, error) {
	lock := m.store.UserLock(identityID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.load(identityID)
	if err != nil {
		return nil, err
	}
	return record.History, nil
}

// AddToHistory records a channel request at the front of the history.
// A channel already present moves to the front instead of duplicating,
// and the history never exceeds HistoryLimit entries.
func (m *Manager) AddToHistory(identityID string, entry types.HistoryEntry) error {
	lock := m.store.UserLock(identityID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.load(identityID)
	if err != nil {
		return err
	}

	kept := make([]types.HistoryEntry, 0, len(record.History)+1)
	kept = append(kept, entry)
	for _, h := range record.History {
		if h.ID != entry.ID {
			kept = append(kept, h)
		}
	}
	if len(kept) > HistoryLimit {
		kept = kept[:HistoryLimit]
	}
	record.History = kept

	return m.store.SaveUser(record)
}

// Favorites returns the identity's bookmarked channels
func (m *Manager) Favorites(identityID string) ([]types.Favorite, error) {
	lock := m.store.UserLock(identityID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.load(identityID)
	if err != nil {
		return nil, err
	}
	return record.Favorites, nil
}

// AddFavorite bookmarks a channel. Already-bookmarked channels are a no-op.
func (m *Manager) AddFavorite(identityID string, favorite types.Favorite) error {
	lock := m.store.UserLock(identityID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.load(identityID)
	if err != nil {
		return err
	}

	for _, f := range record.Favorites {
		if f.ID == favorite.ID {
			return nil
		}
	}
	record.Favorites = append(record.Favorites, favorite)
	return m.store.SaveUser(record)
}

// RemoveFavorite drops a channel from the identity's bookmarks
func (m *Manager) RemoveFavorite(identityID, channelID string) error {
	lock := m.store.UserLock(identityID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.load(identityID)
	if err != nil {
		return err
	}

	kept := record.Favorites[:0]
	for _, f := range record.Favorites {
		if f.ID != channelID {
			kept = append(kept, f)
		}
	}
	record.Favorites = kept
	return m.store.SaveUser(record)
}

// IsFavorite reports whether the identity bookmarked the channel
func (m *Manager) IsFavorite(identityID, channelID string) (bool, error) {
	lock := m.store.UserLock(identityID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.load(identityID)
	if err != nil {
		return false, err
	}
	for _, f := range record.Favorites {
		if f.ID == channelID {
			return true, nil
		}
	}
	return false, nil
}
