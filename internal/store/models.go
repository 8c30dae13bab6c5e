package store

import (
	"time"

	"ytgate/internal/types"
)

// AdminRecord is the global quota state shared by all identities.
// Counters are owned by the quota ledger; operator-tunable settings
// (limits, priority channels) live in the config file instead.
type AdminRecord struct {
	DailyQuota DailyQuota            `json:"dailyQuota"`
	Users      map[string]*UserUsage `json:"users"`
	Alerts     AlertFlags            `json:"alerts"`
}

// DailyQuota is the global daily counter and its window
type DailyQuota struct {
	Total      int    `json:"total"`
	Used       int    `json:"used"`
	WindowDate string `json:"windowDate"`
}

// UserUsage mirrors one identity's usage into the admin record for the dashboard
type UserUsage struct {
	QuotaUsed int    `json:"quotaUsed"`
	Blocked   bool   `json:"blocked"`
	Since     string `json:"since"`
}

// AlertFlags records which thresholds already fired this window
type AlertFlags struct {
	Percent80  bool `json:"percent80"`
	Percent95  bool `json:"percent95"`
	Percent100 bool `json:"percent100"`
}

// UserRecord is one identity's state: quota counters plus history and favorites.
// Quota fields are written only by the ledger, history and favorites only by
// the user manager; every writer saves the whole record, so all
// load-mutate-save cycles hold UserLock(identityID).
type UserRecord struct {
	IdentityID string               `json:"identityId"`
	QuotaToday int                  `json:"quotaToday"`
	QuotaLimit int                  `json:"quotaLimit"`
	QuotaDate  string               `json:"quotaDate"`
	History    []types.HistoryEntry `json:"history"`
	Favorites  []types.Favorite     `json:"favorites"`
}

// CacheEntry is one channel's cached result set
type CacheEntry struct {
	ChannelID  string              `json:"channelId"`
	Videos     []types.VideoRecord `json:"data"`
	Label      string              `json:"name"`
	InsertedAt time.Time           `json:"timestamp"`
	Priority   bool                `json:"priority"`
}

// CacheRecord is the persisted cache index: entries plus eviction order,
// oldest first among non-priority entries
type CacheRecord struct {
	Channels map[string]*CacheEntry `json:"channels"`
	Order    []string               `json:"order"`
}

// NewAdminRecord returns an admin record with documented defaults
func NewAdminRecord(total int, windowDate string) *AdminRecord {
	return &AdminRecord{
		DailyQuota: DailyQuota{Total: total, WindowDate: windowDate},
		Users:      make(map[string]*UserUsage),
	}
}

// NewUserRecord returns a fresh user record for an identity
func NewUserRecord(identityID string, limit int, today string) *UserRecord {
	return &UserRecord{
		IdentityID: identityID,
		QuotaLimit: limit,
		QuotaDate:  today,
		History:    []types.HistoryEntry{},
		Favorites:  []types.Favorite{},
	}
}

// NewCacheRecord returns an empty cache record
func NewCacheRecord() *CacheRecord {
	return &CacheRecord{
		Channels: make(map[string]*CacheEntry),
		Order:    []string{},
	}
}

var adminChecks = []FieldCheck{
	{Path: "dailyQuota", Kind: KindObject},
	{Path: "dailyQuota.total", Kind: KindNumber},
	{Path: "dailyQuota.used", Kind: KindNumber},
	{Path: "dailyQuota.windowDate", Kind: KindString},
	{Path: "users", Kind: KindObject},
	{Path: "alerts", Kind: KindObject},
}

var userChecks = []FieldCheck{
	{Path: "identityId", Kind: KindString},
	{Path: "quotaToday", Kind: KindNumber},
	{Path: "quotaLimit", Kind: KindNumber},
	{Path: "quotaDate", Kind: KindString},
	{Path: "history", Kind: KindArray},
	{Path: "favorites", Kind: KindArray},
}

var cacheChecks = []FieldCheck{
	{Path: "channels", Kind: KindObject},
	{Path: "order", Kind: KindArray},
}

// LoadAdmin returns the admin record, falling back to defaults when the
// stored blob is absent or fails shape validation
func (s *Store) LoadAdmin(defaultTotal int, windowDate string) (*AdminRecord, error) {
	record := &AdminRecord{}
	found, err := s.GetValidated(KeyAdmin, record, adminChecks...)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewAdminRecord(defaultTotal, windowDate), nil
	}
	if record.Users == nil {
		record.Users = make(map[string]*UserUsage)
	}
	return record, nil
}

// SaveAdmin persists the admin record
func (s *Store) SaveAdmin(record *AdminRecord) error {
	return s.Set(KeyAdmin, record)
}

// UserKey returns the store key for an identity's user record
func UserKey(identityID string) string {
	return KeyUserPrefix + identityID
}

// LoadUser returns the identity's record, creating a default one when
// absent or invalid
func (s *Store) LoadUser(identityID string, defaultLimit int, today string) (*UserRecord, error) {
	record := &UserRecord{}
	found, err := s.GetValidated(UserKey(identityID), record, userChecks...)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewUserRecord(identityID, defaultLimit, today), nil
	}
	if record.History == nil {
		record.History = []types.HistoryEntry{}
	}
	if record.Favorites == nil {
		record.Favorites = []types.Favorite{}
	}
	return record, nil
}

// SaveUser persists an identity's record
func (s *Store) SaveUser(record *UserRecord) error {
	return s.Set(UserKey(record.IdentityID), record)
}

// LoadCacheRecord returns the cache record, empty when absent or invalid
func (s *Store) LoadCacheRecord() (*CacheRecord, error) {
	record := &CacheRecord{}
	found, err := s.GetValidated(KeyCache, record, cacheChecks...)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewCacheRecord(), nil
	}
	if record.Channels == nil {
		record.Channels = make(map[string]*CacheEntry)
	}
	if record.Order == nil {
		record.Order = []string{}
	}
	return record, nil
}

// SaveCacheRecord persists the cache record
func (s *Store) SaveCacheRecord(record *CacheRecord) error {
	return s.Set(KeyCache, record)
}
