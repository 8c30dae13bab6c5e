// Package quota tracks per-identity and global daily request counters
// against configured limits, with lazy day rollover.
package quota

import (
	"sort"
	"sync"
	"time"

	"ytgate/internal/config"
	"ytgate/internal/store"
)

// dateFormat is the calendar-date key for quota windows
const dateFormat = "2006-01-02"

// UserStatus is the result of a quota check for one identity
type UserStatus struct {
	Used       int  `json:"used"`
	Limit      int  `json:"limit"`
	Remaining  int  `json:"remaining"`
	CanRequest bool `json:"canRequest"`
}

// AlertEvent reports a newly crossed global quota threshold.
// At most one threshold is reported per increment, lowest first.
type AlertEvent struct {
	Threshold int     `json:"threshold"`
	Percent   float64 `json:"percent"`
}

// GlobalStatus is the global counter's state, for the admin dashboard
type GlobalStatus struct {
	Used       int              `json:"used"`
	Total      int              `json:"total"`
	Percent    float64          `json:"percent"`
	WindowDate string           `json:"windowDate"`
	Alerts     store.AlertFlags `json:"alerts"`
}

// UserSummary is one identity's usage row for the admin dashboard
type UserSummary struct {
	IdentityID string `json:"identityId"`
	QuotaUsed  int    `json:"quotaUsed"`
	Blocked    bool   `json:"blocked"`
	Since      string `json:"since"`
}

// Ledger owns the quota counters. All entry points apply day rollover
// before reading or writing, so a stale window never leaks into a result.
//
/// Lock order: user record access goes through store.UserLock(identityID),
// shared with the user manager; l.mu guards the admin record only and is
// always taken after the user lock, never before.
type Ledger struct {
	mu       sync.Mutex
	store    *store.Store
	settings *config.Manager
	loc      *time.Location
	nowFunc  func() time.Time
}

// NewLedger creates a ledger over the given store. Dates are evaluated
// in loc, the configured reset timezone.
func NewLedger(st *store.Store, settings *config.Manager, loc *time.Location) *Ledger {
	return &Ledger{
		store:    st,
		settings: settings,
		loc:      loc,
		nowFunc:  time.Now,
	}
}

func (l *Ledger) today() string {
	return l.nowFunc().In(l.loc).Format(dateFormat)
}

// rolloverUser resets the per-identity counter when the stored window
// date is not today. Pure over the record; reports whether it changed.
func rolloverUser(record *store.UserRecord, today string) bool {
	if record.QuotaDate == today {
		return false
	}
	record.QuotaToday = 0
	record.QuotaDate = today
	return true
}

// rolloverAdmin resets the global counter, fired alerts and per-identity
// mirrors when the stored window date is not today
func rolloverAdmin(record *store.AdminRecord, today string) bool {
	if record.DailyQuota.WindowDate == today {
		return false
	}
	record.DailyQuota.Used = 0
	record.DailyQuota.WindowDate = today
	record.Alerts = store.AlertFlags{}
	for _, usage := range record.Users {
		usage.QuotaUsed = 0
		usage.Blocked = false
	}
	return true
}

// CheckUser reports the identity's current usage against its limit.
// The limit always comes from the current settings, so an operator
// change applies to existing identities immediately.
func (l *Ledger) CheckUser(identityID string) (UserStatus, error) {
	lock := l.store.UserLock(identityID)
	lock.Lock()
	defer lock.Unlock()

	today := l.today()
	limit := l.settings.Get().UserLimits.Default

	record, err := l.store.LoadUser(identityID, limit, today)
	if err != nil {
		return UserStatus{}, err
	}

	changed := rolloverUser(record, today)
	if record.QuotaLimit != limit {
		record.QuotaLimit = limit
		changed = true
	}
	if changed {
		if err := l.store.SaveUser(record); err != nil {
			return UserStatus{}, err
		}
	}

	return statusFor(record.QuotaToday, limit), nil
}

func statusFor(used, limit int) UserStatus {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return UserStatus{
		Used:       used,
		Limit:      limit,
		Remaining:  remaining,
		CanRequest: used < limit,
	}
}

// IncrementUser adds one request to the identity's counter and mirrors
// the new value into the admin record. Enforcement is the caller's job:
// incrementing past the limit still counts.
func (l *Ledger) IncrementUser(identityID string) error {
	today := l.today()
	limit := l.settings.Get().UserLimits.Default

	lock := l.store.UserLock(identityID)
	lock.Lock()
	defer lock.Unlock()

	record, err := l.store.LoadUser(identityID, limit, today)
	if err != nil {
		return err
	}
	rolloverUser(record, today)
	record.QuotaToday++
	if err := l.store.SaveUser(record); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	admin, err := l.loadAdmin(today)
	if err != nil {
		return err
	}
	usage, ok := admin.Users[identityID]
	if !ok {
		usage = &store.UserUsage{Since: l.nowFunc().In(l.loc).Format(time.RFC3339)}
		admin.Users[identityID] = usage
	}
	usage.QuotaUsed = record.QuotaToday
	return l.store.SaveAdmin(admin)
}

// loadAdmin loads the admin record with rollover applied (not yet persisted)
func (l *Ledger) loadAdmin(today string) (*store.AdminRecord, error) {
	total := l.settings.Get().DailyQuotaTotal
	admin, err := l.store.LoadAdmin(total, today)
	if err != nil {
		return nil, err
	}
	rolloverAdmin(admin, today)
	// The configured total wins over whatever was stored
	admin.DailyQuota.Total = total
	return admin, nil
}

// IncrementGlobal adds amount to the global counter and returns the
// lowest newly crossed alert threshold, if any. A threshold fires at
// most once per window.
func (l *Ledger) IncrementGlobal(amount int) (*AlertEvent, error) {
	if amount <= 0 {
		amount = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	admin, err := l.loadAdmin(l.today())
	if err != nil {
		return nil, err
	}
	admin.DailyQuota.Used += amount

	event := checkAlerts(admin)
	if err := l.store.SaveAdmin(admin); err != nil {
		return nil, err
	}
	return event, nil
}

// checkAlerts marks and returns the lowest threshold newly crossed by the
// current usage. Evaluated ascending so a multi-threshold jump reports
// only the lowest; the rest fire on subsequent increments.
func checkAlerts(admin *store.AdminRecord) *AlertEvent {
	if admin.DailyQuota.Total <= 0 {
		return nil
	}
	percent := float64(admin.DailyQuota.Used) / float64(admin.DailyQuota.Total) * 100

	if percent >= 80 && !admin.Alerts.Percent80 {
		admin.Alerts.Percent80 = true
		return &AlertEvent{Threshold: 80, Percent: percent}
	}
	if percent >= 95 && !admin.Alerts.Percent95 {
		admin.Alerts.Percent95 = true
		return &AlertEvent{Threshold: 95, Percent: percent}
	}
	if percent >= 100 && !admin.Alerts.Percent100 {
		admin.Alerts.Percent100 = true
		return &AlertEvent{Threshold: 100, Percent: percent}
	}
	return nil
}

// Rollover applies day rollover to the admin record and persists it.
// Called by the midnight scheduler; identities roll lazily on their
// next check.
func (l *Ledger) Rollover() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	admin, err := l.loadAdmin(l.today())
	if err != nil {
		return err
	}
	return l.store.SaveAdmin(admin)
}

// ResetAll zeroes the global counter, fired alerts and every identity's
// counter, independent of the calendar date. Administrative.
func (l *Ledger) ResetAll() error {
	today := l.today()

	l.mu.Lock()
	admin, err := l.loadAdmin(today)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	admin.DailyQuota.Used = 0
	admin.Alerts = store.AlertFlags{}
	for _, usage := range admin.Users {
		usage.QuotaUsed = 0
		usage.Blocked = false
	}
	err = l.store.SaveAdmin(admin)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	limit := l.settings.Get().UserLimits.Default
	keys, err := l.store.Keys(store.KeyUserPrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		identityID := key[len(store.KeyUserPrefix):]
		if err := l.resetUser(identityID, limit, today); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) resetUser(identityID string, limit int, today string) error {
	lock := l.store.UserLock(identityID)
	lock.Lock()
	defer lock.Unlock()

	record, err := l.store.LoadUser(identityID, limit, today)
	if err != nil {
		return err
	}
	record.QuotaToday = 0
	record.QuotaDate = today
	return l.store.SaveUser(record)
}

// SetUserBlocked marks or clears the identity's blocked flag in the
// admin record. The flag is operator bookkeeping surfaced on the
// dashboard; CheckUser does not refuse blocked identities, only the
// daily limit does. The flag clears on day rollover.
func (l *Ledger) SetUserBlocked(identityID string, blocked bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	admin, err := l.loadAdmin(l.today())
	if err != nil {
		return err
	}
	usage, ok := admin.Users[identityID]
	if !ok {
		usage = &store.UserUsage{Since: l.nowFunc().In(l.loc).Format(time.RFC3339)}
		admin.Users[identityID] = usage
	}
	usage.Blocked = blocked
	return l.store.SaveAdmin(admin)
}

// GlobalStatus returns the current global counter state with rollover applied
func (l *Ledger) GlobalStatus() (GlobalStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	admin, err := l.loadAdmin(l.today())
	if err != nil {
		return GlobalStatus{}, err
	}

	var percent float64
	if admin.DailyQuota.Total > 0 {
		percent = float64(admin.DailyQuota.Used) / float64(admin.DailyQuota.Total) * 100
	}
	return GlobalStatus{
		Used:       admin.DailyQuota.Used,
		Total:      admin.DailyQuota.Total,
		Percent:    percent,
		WindowDate: admin.DailyQuota.WindowDate,
		Alerts:     admin.Alerts,
	}, nil
}

// UserTable returns every known identity's usage for the admin dashboard
func (l *Ledger) UserTable() ([]UserSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	admin, err := l.loadAdmin(l.today())
	if err != nil {
		return nil, err
	}

	summaries := make([]UserSummary, 0, len(admin.Users))
	for id, usage := range admin.Users {
		summaries = append(summaries, UserSummary{
			IdentityID: id,
			QuotaUsed:  usage.QuotaUsed,
			Blocked:    usage.Blocked,
			Since:      usage.Since,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].IdentityID < summaries[j].IdentityID
	})
	return summaries, nil
}
