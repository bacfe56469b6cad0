package efrsbclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fedresurs-radar/internal/contracts"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/schemas"

	"github.com/google/uuid"
)

const pageJSON = `{"total":1,"pageData":[{"guid":"6f1f3f4e-8a9b-4c1d-9e2f-1a2b3c4d5e6f","type":"Auction2","datePublish":"2024-03-01T10:15:30.123","content":"<x/>","isAnnulled":false,"isLocked":false,"trade":{"guid":"1a2b3c4d-1a2b-4c3d-8e9f-0a1b2c3d4e5f","number":"123-ОАОФ"}}]}`

type fakeRegistry struct {
	authCalls atomic.Int32
	pageCalls atomic.Int32

	// authHandler и pageHandler можно подменить в тесте
	authHandler func(w http.ResponseWriter, r *http.Request)
	pageHandler func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v1/auth":
		f.authCalls.Add(1)
		if f.authHandler != nil {
			f.authHandler(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"jwt":"token-1"}`))
	default:
		f.pageCalls.Add(1)
		if f.pageHandler != nil {
			f.pageHandler(w, r)
			return
		}
		_, _ = w.Write([]byte(pageJSON))
	}
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return nil
}

func newTestClient(t *testing.T, baseURL string, validator PayloadValidator) (*EfrsbClientAdapter, *sleepRecorder) {
	t.Helper()
	client, err := NewEfrsbClientAdapter(Config{
		BaseURL:            baseURL,
		Login:              "demo",
		Password:           "Demo",
		RequestsPerSecond:  1000,
		Burst:              100,
		MaxRetries:         3,
		BackoffFactor:      2 * time.Second,
		NetworkBackoffBase: time.Second,
		RequestTimeout:     5 * time.Second,
		TokenTTL:           11 * time.Hour,
		Parallelism:        8,
	}, validator)
	if err != nil {
		t.Fatalf("NewEfrsbClientAdapter() error = %v", err)
	}
	rec := &sleepRecorder{}
	client.sleep = rec.sleep
	t.Cleanup(func() { _ = client.Close() })
	return client, rec
}

func testWindow() domain.PageQuery {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return domain.PageQuery{
		Source: domain.SourceTradeMessages,
		Start:  start,
		End:    start.Add(7 * 24 * time.Hour),
		Limit:  500,
	}
}

func TestFetchMessagesPageHappyPath(t *testing.T) {
	reg := &fakeRegistry{}
	var gotQuery, gotAuth, gotPath string
	reg.pageHandler = func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(pageJSON))
	}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, nil)
	page, err := client.FetchMessagesPage(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("FetchMessagesPage() error = %v", err)
	}

	if page.Total != 1 || len(page.Messages) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	msg := page.Messages[0]
	if msg.Type != domain.MessageTypeAuction2 || msg.Trade == nil || msg.Trade.GUID == nil {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.PublishedAt.IsZero() {
		t.Error("publish date was not parsed")
	}
	if gotPath != "/v1/trade-messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer token-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	for _, want := range []string{"datePublishBegin=gte%3A2024-03-01T03%3A00%3A00", "includeContent=true", "limit=500", "offset=0"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q does not contain %q", gotQuery, want)
		}
	}
	if reg.authCalls.Load() != 1 {
		t.Errorf("auth calls = %d, want 1", reg.authCalls.Load())
	}
}

func TestFetchMessagesPageTypeFilter(t *testing.T) {
	reg := &fakeRegistry{}
	var gotPath, gotType string
	reg.pageHandler = func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.URL.Query().Get("type")
		_, _ = w.Write([]byte(`{"total":0,"pageData":[]}`))
	}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, nil)
	q := testWindow()
	q.Source = domain.SourceMessages
	q.Types = []string{"PropertyInventoryResult", "MeetingResult"}

	if _, err := client.FetchMessagesPage(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/v1/messages" || gotType != "PropertyInventoryResult,MeetingResult" {
		t.Errorf("path = %q, type = %q", gotPath, gotType)
	}
}

func TestTokenRefreshOn401(t *testing.T) {
	reg := &fakeRegistry{}
	var tokens atomic.Int32
	reg.authHandler = func(w http.ResponseWriter, r *http.Request) {
		n := tokens.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"jwt": "token-" + string(rune('0'+n))})
	}
	reg.pageHandler = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(pageJSON))
	}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	client, rec := newTestClient(t, srv.URL, nil)
	if _, err := client.FetchMessagesPage(context.Background(), testWindow()); err != nil {
		t.Fatalf("FetchMessagesPage() error = %v", err)
	}

	if got := reg.authCalls.Load(); got != 2 {
		t.Errorf("auth calls = %d, want initial login plus one re-authentication", got)
	}
	if got := reg.pageCalls.Load(); got != 2 {
		t.Errorf("page calls = %d, want original plus one transparent retry", got)
	}
	if len(rec.sleeps) != 0 {
		t.Errorf("re-authentication consumed backoff slots: %v", rec.sleeps)
	}
	if client.auth.snapshot() != stateAuthenticated {
		t.Errorf("state = %v, want authenticated", client.auth.snapshot())
	}
}

func TestConcurrent401TriggersSingleRefresh(t *testing.T) {
	reg := &fakeRegistry{}
	reg.authHandler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"JWT":"fresh"}`))
	}
	reg.pageHandler = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(pageJSON))
	}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, nil)
	client.auth.set("stale", time.Now().Add(time.Hour))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.FetchMessagesPage(context.Background(), testWindow())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("request failed: %v", err)
		}
	}
	if got := reg.authCalls.Load(); got != 1 {
		t.Errorf("auth calls = %d, want exactly one refresh", got)
	}
}

func TestSecond401SurfacesAuthenticationError(t *testing.T) {
	reg := &fakeRegistry{}
	reg.pageHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, nil)
	_, err := client.FetchMessagesPage(context.Background(), testWindow())

	var authErr *domain.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthenticationError", err)
	}
	if got := reg.pageCalls.Load(); got != 2 {
		t.Errorf("page calls = %d, want 2", got)
	}
}

func TestPersistent429ExhaustsRetries(t *testing.T) {
	reg := &fakeRegistry{}
	reg.pageHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	client, rec := newTestClient(t, srv.URL, nil)
	_, err := client.FetchMessagesPage(context.Background(), testWindow())

	var rateErr *domain.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("error = %v, want RateLimitError", err)
	}
	if rateErr.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", rateErr.Attempts)
	}
	if got := reg.pageCalls.Load(); got != 4 {
		t.Errorf("page calls = %d, want max_retries+1", got)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}
	if len(rec.sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", rec.sleeps, want)
	}
	for i := range want {
		if rec.sleeps[i] != want[i] {
			t.Errorf("sleep %d = %s, want %s", i, rec.sleeps[i], want[i])
		}
	}
}

func TestRetryAfterHeaderIsHonoured(t *testing.T) {
	reg := &fakeRegistry{}
	var calls atomic.Int32
	reg.pageHandler = func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "10")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(pageJSON))
	}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	client, rec := newTestClient(t, srv.URL, nil)
	if _, err := client.FetchMessagesPage(context.Background(), testWindow()); err != nil {
		t.Fatal(err)
	}
	if len(rec.sleeps) != 1 || rec.sleeps[0] != 10*time.Second {
		t.Errorf("sleeps = %v, want [10s]", rec.sleeps)
	}
}

func TestServerErrorRecoversThenGivesUp(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		reg := &fakeRegistry{}
		var calls atomic.Int32
		reg.pageHandler = func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) <= 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(pageJSON))
		}
		srv := httptest.NewServer(reg)
		defer srv.Close()

		client, rec := newTestClient(t, srv.URL, nil)
		if _, err := client.FetchMessagesPage(context.Background(), testWindow()); err != nil {
			t.Fatal(err)
		}
		if len(rec.sleeps) != 2 {
			t.Errorf("sleeps = %v, want 2", rec.sleeps)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		reg := &fakeRegistry{}
		reg.pageHandler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}
		srv := httptest.NewServer(reg)
		defer srv.Close()

		client, _ := newTestClient(t, srv.URL, nil)
		_, err := client.FetchMessagesPage(context.Background(), testWindow())

		var apiErr *domain.ApiError
		if !errors.As(err, &apiErr) || apiErr.Kind != domain.FailureServer || apiErr.StatusCode != http.StatusBadGateway {
			t.Fatalf("error = %v, want server ApiError", err)
		}
		if domain.ClassifyTaskError(err) != domain.DispositionDrop {
			t.Error("exhausted 5xx should be dropped at task level")
		}
	})
}

func TestClientErrorIsNotRetried(t *testing.T) {
	reg := &fakeRegistry{}
	reg.pageHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad date"}`))
	}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	client, rec := newTestClient(t, srv.URL, nil)
	_, err := client.FetchMessagesPage(context.Background(), testWindow())

	var apiErr *domain.ApiError
	if !errors.As(err, &apiErr) || apiErr.Kind != domain.FailureClient {
		t.Fatalf("error = %v, want client ApiError", err)
	}
	if reg.pageCalls.Load() != 1 || len(rec.sleeps) != 0 {
		t.Errorf("client error was retried: calls=%d sleeps=%v", reg.pageCalls.Load(), rec.sleeps)
	}
}

func TestNetworkErrorUsesExponentialBackoff(t *testing.T) {
	srv := httptest.NewServer(&fakeRegistry{})
	url := srv.URL
	srv.Close()

	client, rec := newTestClient(t, url, nil)
	// токен уже есть, чтобы до сетевой ошибки дошел именно запрос страницы
	client.auth.set("token", time.Now().Add(time.Hour))

	_, err := client.FetchMessagesPage(context.Background(), testWindow())

	var apiErr *domain.ApiError
	if !errors.As(err, &apiErr) || apiErr.Kind != domain.FailureNetwork {
		t.Fatalf("error = %v, want network ApiError", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(rec.sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", rec.sleeps, want)
	}
	for i := range want {
		if rec.sleeps[i] != want[i] {
			t.Errorf("sleep %d = %s, want %s", i, rec.sleeps[i], want[i])
		}
	}
}

func TestAuthenticateWithBadCredentials(t *testing.T) {
	reg := &fakeRegistry{}
	reg.authHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, nil)
	err := client.Authenticate(context.Background())

	var authErr *domain.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthenticationError", err)
	}
	if client.auth.snapshot() != stateUnauthenticated {
		t.Errorf("state = %v, want unauthenticated", client.auth.snapshot())
	}
}

func TestWindowTooWideIsRejectedLocally(t *testing.T) {
	reg := &fakeRegistry{}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, nil)
	q := testWindow()
	q.End = q.Start.Add(32 * 24 * time.Hour)

	_, err := client.FetchMessagesPage(context.Background(), q)
	if !errors.Is(err, domain.ErrWindowTooWide) {
		t.Fatalf("error = %v, want ErrWindowTooWide", err)
	}
	if reg.authCalls.Load()+reg.pageCalls.Load() != 0 {
		t.Error("an HTTP request was made for an illegal window")
	}
}

func TestPayloadValidation(t *testing.T) {
	validator, err := contracts.NewRegistry(schemas.SchemasFS)
	if err != nil {
		t.Fatal(err)
	}

	reg := &fakeRegistry{}
	reg.pageHandler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pageData":"nope"}`))
	}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, validator)
	_, err = client.FetchMessagesPage(context.Background(), testWindow())

	var apiErr *domain.ApiError
	if !errors.As(err, &apiErr) || apiErr.Kind != domain.FailurePayload {
		t.Fatalf("error = %v, want payload ApiError", err)
	}
}

func TestGetMessageAndLinked(t *testing.T) {
	guid := uuid.MustParse("6f1f3f4e-8a9b-4c1d-9e2f-1a2b3c4d5e6f")
	reg := &fakeRegistry{}
	reg.pageHandler = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/messages/" + guid.String():
			_, _ = w.Write([]byte(`{"guid":"` + guid.String() + `","type":"BiddingInvitation","content":"<a/>"}`))
		case "/v1/messages/" + guid.String() + "/linked":
			_, _ = w.Write([]byte(`[{"guid":"1a2b3c4d-1a2b-4c3d-8e9f-0a1b2c3d4e5f","type":"Auction2"},{"guid":"broken","type":"x"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
	srv := httptest.NewServer(reg)
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, nil)

	msg, err := client.GetMessage(context.Background(), guid)
	if err != nil {
		t.Fatal(err)
	}
	if msg.GUID != guid || msg.Type != domain.MessageTypeBiddingInvitation {
		t.Errorf("unexpected message %+v", msg)
	}

	linked, err := client.GetLinkedMessages(context.Background(), guid)
	if err != nil {
		t.Fatal(err)
	}
	if len(linked) != 1 {
		t.Errorf("linked = %d messages, want 1 (malformed guid skipped)", len(linked))
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(&fakeRegistry{})
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, nil)
	if err := client.Close(); err != nil {
		t.Fatal(err)
	}
	if err := client.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := client.FetchMessagesPage(context.Background(), testWindow()); !errors.Is(err, domain.ErrClientClosed) {
		t.Errorf("error after close = %v, want ErrClientClosed", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status  int
		kind    outcomeKind
		failure domain.FailureKind
	}{
		{200, outcomeOK, ""},
		{204, outcomeOK, ""},
		{401, outcomeNeedsReauth, ""},
		{429, outcomeRateLimited, ""},
		{500, outcomeFailed, domain.FailureServer},
		{503, outcomeFailed, domain.FailureServer},
		{403, outcomeFailed, domain.FailureClient},
		{404, outcomeFailed, domain.FailureClient},
	}
	for _, tt := range tests {
		out := classify(tt.status, http.Header{}, nil)
		if out.kind != tt.kind || out.failure != tt.failure {
			t.Errorf("classify(%d) = %v/%q, want %v/%q", tt.status, out.kind, out.failure, tt.kind, tt.failure)
		}
	}
}
