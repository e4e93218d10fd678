package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/mediaseal/internal/domain/model"
)

// fakeSleep — fake clock: записывает паузы вместо реального сна.
type fakeSleep struct {
	calls []time.Duration
}

func (f *fakeSleep) sleep(d time.Duration) {
	f.calls = append(f.calls, d)
}

// newTestClient создаёт клиент, направленный на httptest-сервер,
// с fake clock-ом вместо реальных пауз.
func newTestClient(t *testing.T, srv *httptest.Server, signerKey string, retry RetryPolicy) (*Client, *fakeSleep) {
	t.Helper()
	fs := &fakeSleep{}
	c := New(srv.URL, signerKey, 5*time.Second, retry, 50, slog.Default(),
		WithSleepFunc(fs.sleep),
		WithHTTPClient(srv.Client()),
	)
	return c, fs
}

const testHash = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

// TestRegister_Success проверяет успешную регистрационную транзакцию.
func TestRegister_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/transactions" {
			t.Errorf("неожиданный запрос: %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer signer-key" {
			t.Errorf("Authorization = %q, ожидался Bearer signer-key", auth)
		}

		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["content_hash"] != testHash {
			t.Errorf("content_hash = %v, ожидался %s", req["content_hash"], testHash)
		}

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(RegisterResult{
			TxID:          "tx-123",
			AttestationID: "att-456",
			Creator:       "0xcreator",
		})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, "signer-key", DefaultRetryPolicy())
	result, err := c.Register(context.Background(), RegisterParams{
		ContentHash: testHash,
		BlobRef:     "blob-1",
		Source:      "example.com",
		MediaType:   model.MediaPhoto,
	})
	if err != nil {
		t.Fatalf("Register ошибка: %v", err)
	}
	if result.TxID != "tx-123" || result.AttestationID != "att-456" {
		t.Errorf("result = %+v", result)
	}
}

// TestRegister_AlreadyExists проверяет отклонение повторной регистрации.
func TestRegister_AlreadyExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, "signer-key", DefaultRetryPolicy())
	_, err := c.Register(context.Background(), RegisterParams{ContentHash: testHash})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("ожидался ErrAlreadyExists, получено %v", err)
	}
}

// TestRegister_NoSignerKey проверяет ErrUnavailable без ключа подписи.
func TestRegister_NoSignerKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("запрос не должен был отправляться без ключа подписи")
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, "", DefaultRetryPolicy())
	_, err := c.Register(context.Background(), RegisterParams{ContentHash: testHash})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("ожидался ErrUnavailable, получено %v", err)
	}
}

// fakeLedger — настраиваемый fake ledger-шлюза.
type fakeLedger struct {
	// indexResponses — последовательность ответов hash-индекса по запросам
	indexResponses []int
	indexCall      int
	attestationID  string
	record         *model.Attestation
	events         []model.CreationEvent
	eventsStatus   int
}

func (f *fakeLedger) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v1/index/"):
			status := http.StatusNotFound
			if f.indexCall < len(f.indexResponses) {
				status = f.indexResponses[f.indexCall]
			}
			f.indexCall++
			if status == http.StatusOK {
				_ = json.NewEncoder(w).Encode(hashIndexResponse{AttestationID: f.attestationID})
				return
			}
			w.WriteHeader(status)

		case strings.HasPrefix(r.URL.Path, "/api/v1/records/"):
			if f.record == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(f.record)

		case r.URL.Path == "/api/v1/events":
			if f.eventsStatus != 0 && f.eventsStatus != http.StatusOK {
				w.WriteHeader(f.eventsStatus)
				return
			}
			_ = json.NewEncoder(w).Encode(eventsResponse{Events: f.events})

		default:
			t.Errorf("неожиданный путь: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// TestLookup_DirectHit проверяет прямой keyed-поиск с первой попытки.
func TestLookup_DirectHit(t *testing.T) {
	fl := &fakeLedger{
		indexResponses: []int{http.StatusOK},
		attestationID:  "att-1",
		record: &model.Attestation{
			AttestationID: "att-1",
			ContentHash:   testHash,
			Creator:       "0xcreator",
		},
		eventsStatus: http.StatusInternalServerError,
	}
	srv := httptest.NewServer(fl.handler(t))
	defer srv.Close()

	c, fs := newTestClient(t, srv, "", RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second})
	att, err := c.Lookup(context.Background(), testHash)
	if err != nil {
		t.Fatalf("Lookup ошибка: %v", err)
	}
	if att.AttestationID != "att-1" {
		t.Errorf("AttestationID = %s, ожидался att-1", att.AttestationID)
	}
	if len(fs.calls) != 0 {
		t.Errorf("пауз = %d, ожидалось 0 (успех с первой попытки)", len(fs.calls))
	}
}

// TestLookup_RetryConvergence проверяет сходимость: запись становится
// видимой на третьей попытке (eventual consistency).
func TestLookup_RetryConvergence(t *testing.T) {
	fl := &fakeLedger{
		indexResponses: []int{http.StatusNotFound, http.StatusNotFound, http.StatusOK},
		attestationID:  "att-2",
		record:         &model.Attestation{AttestationID: "att-2", ContentHash: testHash},
	}
	srv := httptest.NewServer(fl.handler(t))
	defer srv.Close()

	c, fs := newTestClient(t, srv, "", RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second})
	att, err := c.Lookup(context.Background(), testHash)
	if err != nil {
		t.Fatalf("Lookup ошибка: %v", err)
	}
	if att.AttestationID != "att-2" {
		t.Errorf("AttestationID = %s, ожидался att-2", att.AttestationID)
	}

	// Две паузы перед второй и третьей попытками, фиксированная длительность
	if len(fs.calls) != 2 {
		t.Fatalf("пауз = %d, ожидалось 2", len(fs.calls))
	}
	for _, d := range fs.calls {
		if d != 2*time.Second {
			t.Errorf("пауза = %v, ожидалось 2s", d)
		}
	}
}

// TestLookup_NotFoundConverges проверяет детерминированный вердикт NotFound
// для никогда не регистрировавшегося хэша.
func TestLookup_NotFoundConverges(t *testing.T) {
	fl := &fakeLedger{
		indexResponses: []int{http.StatusNotFound, http.StatusNotFound, http.StatusNotFound},
	}
	srv := httptest.NewServer(fl.handler(t))
	defer srv.Close()

	c, fs := newTestClient(t, srv, "", RetryPolicy{MaxAttempts: 3, Delay: time.Second})
	_, err := c.Lookup(context.Background(), strings.Repeat("b", 64))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидался ErrNotFound, получено %v", err)
	}
	if fl.indexCall != 3 {
		t.Errorf("попыток = %d, ожидалось 3", fl.indexCall)
	}
	if len(fs.calls) != 2 {
		t.Errorf("пауз = %d, ожидалось 2", len(fs.calls))
	}
}

// TestLookup_EventScanFallback проверяет fallback на сканирование событий,
// когда прямой hash-индекс недоступен.
func TestLookup_EventScanFallback(t *testing.T) {
	fl := &fakeLedger{
		indexResponses: []int{http.StatusInternalServerError},
		record:         &model.Attestation{AttestationID: "att-3", ContentHash: testHash},
		events: []model.CreationEvent{
			{AttestationID: "att-other", ContentHash: strings.Repeat("c", 64)},
			{AttestationID: "att-3", ContentHash: testHash},
		},
	}
	srv := httptest.NewServer(fl.handler(t))
	defer srv.Close()

	c, _ := newTestClient(t, srv, "", RetryPolicy{MaxAttempts: 1, Delay: time.Second})
	att, err := c.Lookup(context.Background(), testHash)
	if err != nil {
		t.Fatalf("Lookup ошибка: %v", err)
	}
	if att.AttestationID != "att-3" {
		t.Errorf("AttestationID = %s, ожидался att-3", att.AttestationID)
	}
}

// TestLookup_TransientErrorConsumesAttempt проверяет, что транзиентная
// ошибка расходует попытку, а не падает сразу.
func TestLookup_TransientErrorConsumesAttempt(t *testing.T) {
	fl := &fakeLedger{
		// Первая попытка: индекс 500 + события 500 (транзиентная ошибка).
		// Вторая попытка: индекс отвечает.
		indexResponses: []int{http.StatusInternalServerError, http.StatusOK},
		attestationID:  "att-4",
		record:         &model.Attestation{AttestationID: "att-4", ContentHash: testHash},
		eventsStatus:   http.StatusInternalServerError,
	}
	srv := httptest.NewServer(fl.handler(t))
	defer srv.Close()

	c, fs := newTestClient(t, srv, "", RetryPolicy{MaxAttempts: 2, Delay: time.Second})
	att, err := c.Lookup(context.Background(), testHash)
	if err != nil {
		t.Fatalf("Lookup ошибка: %v", err)
	}
	if att.AttestationID != "att-4" {
		t.Errorf("AttestationID = %s, ожидался att-4", att.AttestationID)
	}
	if len(fs.calls) != 1 {
		t.Errorf("пауз = %d, ожидалось 1", len(fs.calls))
	}
}

// TestQueryRecentEvents проверяет запрос последних событий.
func TestQueryRecentEvents(t *testing.T) {
	fl := &fakeLedger{
		events: []model.CreationEvent{
			{AttestationID: "att-9", ContentHash: strings.Repeat("d", 64), Creator: "0xd", TimestampMs: 1000},
		},
	}
	srv := httptest.NewServer(fl.handler(t))
	defer srv.Close()

	c, _ := newTestClient(t, srv, "", DefaultRetryPolicy())
	events, err := c.QueryRecentEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("QueryRecentEvents ошибка: %v", err)
	}
	if len(events) != 1 || events[0].AttestationID != "att-9" {
		t.Errorf("events = %+v", events)
	}
}

// TestIncrementVerification проверяет инкремент счётчика верификаций.
func TestIncrementVerification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/verifications") {
			t.Errorf("неожиданный запрос: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]int64{"verification_count": 3})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, "signer-key", DefaultRetryPolicy())
	count, err := c.IncrementVerification(context.Background(), "att-1")
	if err != nil {
		t.Fatalf("IncrementVerification ошибка: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, ожидался 3", count)
	}
}
