package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"ytgate/internal/cache"
	"ytgate/internal/config"
	"ytgate/internal/quota"
	"ytgate/internal/store"
	"ytgate/internal/types"
	"ytgate/internal/user"
	"ytgate/internal/youtube"
)

const testChannel = "UCabcdefghijklmnopqrstuv"

// fakeFetcher serves a fixed number of pages, or a fixed error
type fakeFetcher struct {
	pages     int
	perPage   int
	err       error
	fetchLog  []string
	callCount int
}

func (f *fakeFetcher) FetchPage(ctx context.Context, channelID, pageToken string) (*youtube.Page, error) {
	f.callCount++
	f.fetchLog = append(f.fetchLog, pageToken)
	if f.err != nil {
		return nil, f.err
	}

	page := f.callCount
	videos := make([]types.VideoRecord, f.perPage)
	for i := range videos {
		videos[i] = types.VideoRecord{
			VideoID: fmt.Sprintf("p%dv%d", page, i),
			Title:   fmt.Sprintf("Page %d video %d", page, i),
		}
	}

	next := ""
	if page < f.pages {
		next = fmt.Sprintf("token%d", page)
	}
	return &youtube.Page{Videos: videos, NextPageToken: next}, nil
}

type fixture struct {
	co       *Coordinator
	fetcher  *fakeFetcher
	ledger   *quota.Ledger
	users    *user.Manager
	cache    *cache.Cache
	settings *config.Manager
}

func newFixture(t *testing.T, fetcher *fakeFetcher) *fixture {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	settings, err := config.NewManager(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("Failed to create settings manager: %v", err)
	}
	t.Cleanup(func() { settings.Close() })

	ledger := quota.NewLedger(st, settings, time.UTC)
	ch := cache.New(st, settings.IsPriorityChannel)
	users := user.NewManager(st, settings, time.UTC)

	return &fixture{
		co:       New(ledger, ch, users, fetcher),
		fetcher:  fetcher,
		ledger:   ledger,
		users:    users,
		cache:    ch,
		settings: settings,
	}
}

func requestErr(t *testing.T, err error) *RequestError {
	t.Helper()
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected *RequestError, got %T: %v", err, err)
	}
	return reqErr
}

func TestGetChannelVideos_FetchThenCacheHit(t *testing.T) {
	f := newFixture(t, &fakeFetcher{pages: 1, perPage: 3})

	out, err := f.co.GetChannelVideos(context.Background(), "user_a", testChannel, "Test Channel")
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	if out.FromCache {
		t.Errorf("First request should miss the cache")
	}
	if len(out.Videos) != 3 {
		t.Errorf("Expected 3 videos, got %d", len(out.Videos))
	}
	if out.Quota.Used != 1 {
		t.Errorf("Fetch should cost one request, quota=%+v", out.Quota)
	}

	out, err = f.co.GetChannelVideos(context.Background(), "user_a", testChannel, "Test Channel")
	if err != nil {
		t.Fatalf("Second request failed: %v", err)
	}
	if !out.FromCache {
		t.Errorf("Second request should hit the cache")
	}
	if out.Quota.Used != 1 {
		t.Errorf("Cache hit must not cost quota, quota=%+v", out.Quota)
	}
	if f.fetcher.callCount != 1 {
		t.Errorf("Expected a single upstream fetch, got %d", f.fetcher.callCount)
	}
}

func TestGetChannelVideos_PaginationStopsAtLimit(t *testing.T) {
	f := newFixture(t, &fakeFetcher{pages: 10, perPage: 50})

	out, err := f.co.GetChannelVideos(context.Background(), "user_a", testChannel, "")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if f.fetcher.callCount != MaxPages {
		t.Errorf("Expected %d page fetches, got %d", MaxPages, f.fetcher.callCount)
	}
	if len(out.Videos) != MaxPages*50 {
		t.Errorf("Expected %d videos, got %d", MaxPages*50, len(out.Videos))
	}
	// Tokens chain page to page, starting empty
	if f.fetcher.fetchLog[0] != "" || f.fetcher.fetchLog[1] != "token1" {
		t.Errorf("Unexpected page token sequence: %v", f.fetcher.fetchLog)
	}
}

func TestGetChannelVideos_QuotaCheckedBeforeCache(t *testing.T) {
	f := newFixture(t, &fakeFetcher{pages: 1, perPage: 2})

	// Populate the cache with the identity's first request
	if _, err := f.co.GetChannelVideos(context.Background(), "user_a", testChannel, ""); err != nil {
		t.Fatalf("Priming request failed: %v", err)
	}

	// Burn the rest of the daily limit
	for i := 0; i < 4; i++ {
		if err := f.ledger.IncrementUser("user_a"); err != nil {
			t.Fatalf("IncrementUser failed: %v", err)
		}
	}

	// The answer is fully cached, but the identity is out of quota and
	// must be refused anyway
	_, err := f.co.GetChannelVideos(context.Background(), "user_a", testChannel, "")
	reqErr := requestErr(t, err)
	if reqErr.Kind != KindQuotaExceeded {
		t.Errorf("Expected %s, got %s", KindQuotaExceeded, reqErr.Kind)
	}
	if reqErr.Quota == nil || reqErr.Quota.Remaining != 0 {
		t.Errorf("Quota failure should carry the identity's standing: %+v", reqErr.Quota)
	}

	// Another identity still gets the cached answer
	out, err := f.co.GetChannelVideos(context.Background(), "user_b", testChannel, "")
	if err != nil {
		t.Fatalf("Other identity's request failed: %v", err)
	}
	if !out.FromCache {
		t.Errorf("Expected cache hit for the other identity")
	}
}

func TestGetChannelVideos_InvalidChannelID(t *testing.T) {
	f := newFixture(t, &fakeFetcher{pages: 1, perPage: 1})

	for _, id := range []string{"", "not-a-channel", "UCshort", "https://www.youtube.com/@handle"} {
		_, err := f.co.GetChannelVideos(context.Background(), "user_a", id, "")
		reqErr := requestErr(t, err)
		if reqErr.Kind != KindInvalidChannel {
			t.Errorf("Input %q: expected %s, got %s", id, KindInvalidChannel, reqErr.Kind)
		}
	}
	if f.fetcher.callCount != 0 {
		t.Errorf("Invalid ids must not reach upstream")
	}
}

func TestGetChannelVideos_UpstreamErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
	}{
		{
			name:     "upstream_quota_exhausted",
			err:      &youtube.UpstreamError{Code: youtube.CodeQuotaExceeded, StatusCode: http.StatusForbidden, Message: "quotaExceeded"},
			wantKind: KindUpstreamQuotaExceeded,
		},
		{
			name:     "channel_not_found",
			err:      &youtube.UpstreamError{Code: youtube.CodeNotFound, StatusCode: http.StatusNotFound, Message: "channelNotFound"},
			wantKind: KindChannelNotFound,
		},
		{
			name:     "upstream_server_error",
			err:      &youtube.UpstreamError{Code: youtube.CodeOther, StatusCode: http.StatusInternalServerError, Message: "backendError"},
			wantKind: KindUpstreamUnavailable,
		},
		{
			name:     "transport_error",
			err:      errors.New("connection refused"),
			wantKind: KindUpstreamUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, &fakeFetcher{err: tc.err})

			_, err := f.co.GetChannelVideos(context.Background(), "user_a", testChannel, "")
			reqErr := requestErr(t, err)
			if reqErr.Kind != tc.wantKind {
				t.Errorf("Expected %s, got %s", tc.wantKind, reqErr.Kind)
			}

			// A failed fetch must not consume the identity's quota
			status, err := f.ledger.CheckUser("user_a")
			if err != nil {
				t.Fatalf("CheckUser failed: %v", err)
			}
			if status.Used != 0 {
				t.Errorf("Failed fetch should not count, used=%d", status.Used)
			}
		})
	}
}

func TestGetChannelVideos_RecordsHistory(t *testing.T) {
	f := newFixture(t, &fakeFetcher{pages: 1, perPage: 4})

	if _, err := f.co.GetChannelVideos(context.Background(), "user_a", testChannel, "Test Channel"); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	history, err := f.users.History("user_a")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(history))
	}
	entry := history[0]
	if entry.ID != testChannel || entry.Name != "Test Channel" || entry.VideoCount != 4 {
		t.Errorf("Unexpected history entry: %+v", entry)
	}

	// A cache hit leaves history untouched
	if _, err := f.co.GetChannelVideos(context.Background(), "user_a", testChannel, "Test Channel"); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	history, _ = f.users.History("user_a")
	if len(history) != 1 {
		t.Errorf("Cache hit should not add history, got %d entries", len(history))
	}
}

func TestChannelLocks_RemovedWhenIdle(t *testing.T) {
	f := newFixture(t, &fakeFetcher{pages: 1, perPage: 1})

	for i := 0; i < 10; i++ {
		channelID := fmt.Sprintf("UCabcdefghijklmnopqrst%02d", i)
		if _, err := f.co.GetChannelVideos(context.Background(), "user_a", channelID, ""); err != nil {
			// The sixth request exhausts the default limit; that path
			// never takes a channel lock, which is fine here
			continue
		}
	}

	f.co.mu.Lock()
	size := len(f.co.inflight)
	f.co.mu.Unlock()
	if size != 0 {
		t.Errorf("Idle channel locks should be removed, %d entries remain", size)
	}
}

func TestGetChannelVideos_EmptyLabelFallsBackToChannelID(t *testing.T) {
	f := newFixture(t, &fakeFetcher{pages: 1, perPage: 1})

	if _, err := f.co.GetChannelVideos(context.Background(), "user_a", testChannel, ""); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	history, err := f.users.History("user_a")
	if err != nil || len(history) != 1 {
		t.Fatalf("History failed: %v (%d entries)", err, len(history))
	}
	if history[0].Name != testChannel {
		t.Errorf("Expected channel id as label, got %q", history[0].Name)
	}
}
