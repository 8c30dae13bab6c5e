// Package coordinator orchestrates a single "get videos for channel"
// request: quota check, cache lookup, upstream fetch on miss, then
// ledger/cache/history updates.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ytgate/internal/cache"
	"ytgate/internal/quota"
	"ytgate/internal/types"
	"ytgate/internal/user"
	"ytgate/internal/youtube"
)

// MaxPages bounds the fetch loop: at most 5 pages of 50 records each
const MaxPages = 5

// ErrorKind classifies a failed request for the caller
type ErrorKind string

const (
	KindQuotaExceeded         ErrorKind = "quota_exceeded"
	KindChannelNotFound       ErrorKind = "channel_not_found"
	KindUpstreamQuotaExceeded ErrorKind = "upstream_quota_exceeded"
	KindUpstreamUnavailable   ErrorKind = "upstream_unavailable"
	KindInvalidChannel        ErrorKind = "invalid_channel"
	KindStorage               ErrorKind = "storage_error"
)

// RequestError is the structured failure outcome of a request
type RequestError struct {
	Kind    ErrorKind
	Message string
	// Quota carries the caller's current standing for quota failures,
	// so the caller can render remaining/reset context
	Quota *quota.UserStatus
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Outcome is the successful result of a request
type Outcome struct {
	ChannelID string
	Videos    []types.VideoRecord
	FromCache bool
	Quota     quota.UserStatus
}

// Fetcher is the upstream collaborator contract: one page per call,
// empty next token when the listing is complete
type Fetcher interface {
	FetchPage(ctx context.Context, channelID, pageToken string) (*youtube.Page, error)
}

// channelLock is a refcounted per-channel mutex. The count tracks
// holders and waiters so the map entry can be dropped once the last one
// leaves.
type channelLock struct {
	mu   sync.Mutex
	refs int
}

// Coordinator runs the request state machine over the ledger, cache and
// upstream fetcher
type Coordinator struct {
	ledger  *quota.Ledger
	cache   *cache.Cache
	users   *user.Manager
	fetcher Fetcher

	// One lock per channel so two concurrent misses on the same channel
	// produce a single upstream fetch; entries are removed when idle
	mu       sync.Mutex
	inflight map[string]*channelLock

	nowFunc func() time.Time
}

// New creates a coordinator
func New(ledger *quota.Ledger, ch *cache.Cache, users *user.Manager, fetcher Fetcher) *Coordinator {
	return &Coordinator{
		ledger:   ledger,
		cache:    ch,
		users:    users,
		fetcher:  fetcher,
		inflight: make(map[string]*channelLock),
		nowFunc:  time.Now,
	}
}

func (co *Coordinator) lockChannel(channelID string) *channelLock {
	co.mu.Lock()
	lock, ok := co.inflight[channelID]
	if !ok {
		lock = &channelLock{}
		co.inflight[channelID] = lock
	}
	lock.refs++
	co.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (co *Coordinator) unlockChannel(channelID string, lock *channelLock) {
	lock.mu.Unlock()

	co.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(co.inflight, channelID)
	}
	co.mu.Unlock()
}

// GetChannelVideos runs one request for the identity. Quota is checked
// before the cache, so an exhausted identity is refused even when the
// answer is fully cached.
func (co *Coordinator) GetChannelVideos(ctx context.Context, identityID, channelID, label string) (*Outcome, error) {
	if !youtube.IsChannelID(channelID) {
		return nil, &RequestError{Kind: KindInvalidChannel, Message: fmt.Sprintf("not a channel id: %q", channelID)}
	}
	if label == "" {
		label = channelID
	}

	status, err := co.ledger.CheckUser(identityID)
	if err != nil {
		return nil, storageFailure("quota check", err)
	}
	if !status.CanRequest {
		return nil, &RequestError{
			Kind:    KindQuotaExceeded,
			Message: "daily request limit reached, try again tomorrow",
			Quota:   &status,
		}
	}

	lock := co.lockChannel(channelID)
	defer co.unlockChannel(channelID, lock)

	videos, hit, err := co.cache.Get(channelID)
	if err != nil {
		return nil, storageFailure("cache lookup", err)
	}
	if hit {
		return &Outcome{ChannelID: channelID, Videos: videos, FromCache: true, Quota: status}, nil
	}

	videos, err = co.fetchAll(ctx, channelID)
	if err != nil {
		return nil, translateUpstream(err)
	}

	if err := co.ledger.IncrementUser(identityID); err != nil {
		return nil, storageFailure("quota update", err)
	}
	alert, err := co.ledger.IncrementGlobal(1)
	if err != nil {
		return nil, storageFailure("global quota update", err)
	}
	if alert != nil {
		log.Printf("📊 Global quota alert: %d%% threshold crossed (%.1f%% used)", alert.Threshold, alert.Percent)
	}

	if err := co.cache.Put(channelID, videos, label); err != nil {
		return nil, storageFailure("cache store", err)
	}

	if err := co.users.AddToHistory(identityID, types.HistoryEntry{
		ID:         channelID,
		Name:       label,
		Date:       co.nowFunc(),
		VideoCount: len(videos),
	}); err != nil {
		return nil, storageFailure("history update", err)
	}

	status, err = co.ledger.CheckUser(identityID)
	if err != nil {
		return nil, storageFailure("quota check", err)
	}

	return &Outcome{ChannelID: channelID, Videos: videos, FromCache: false, Quota: status}, nil
}

// fetchAll loops the collaborator's page fetch until the listing is
// complete or MaxPages is reached
func (co *Coordinator) fetchAll(ctx context.Context, channelID string) ([]types.VideoRecord, error) {
	var videos []types.VideoRecord
	pageToken := ""

	for page := 0; page < MaxPages; page++ {
		result, err := co.fetcher.FetchPage(ctx, channelID, pageToken)
		if err != nil {
			return nil, err
		}
		videos = append(videos, result.Videos...)
		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}
	return videos, nil
}

// translateUpstream maps collaborator failures onto outcome kinds
func translateUpstream(err error) *RequestError {
	var upstream *youtube.UpstreamError
	if errors.As(err, &upstream) {
		switch upstream.Code {
		case youtube.CodeQuotaExceeded:
			return &RequestError{Kind: KindUpstreamQuotaExceeded, Message: "YouTube API quota exhausted"}
		case youtube.CodeNotFound:
			return &RequestError{Kind: KindChannelNotFound, Message: "channel not found"}
		}
		return &RequestError{Kind: KindUpstreamUnavailable, Message: upstream.Message}
	}
	return &RequestError{Kind: KindUpstreamUnavailable, Message: err.Error()}
}

func storageFailure(op string, err error) *RequestError {
	return &RequestError{Kind: KindStorage, Message: fmt.Sprintf("%s failed: %v", op, err)}
}
