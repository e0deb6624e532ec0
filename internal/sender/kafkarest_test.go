package sender

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fgaction/internal/action"
	"fgaction/internal/config"
)

func newTestKafkaRestSender(t *testing.T, handler http.HandlerFunc) *KafkaRestSender {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	s, err := NewKafkaRestSender(config.KafkaRestConfig{Address: server.URL, Topic: "fgaction-status"}, config.SOCKSConfig{})
	if err != nil {
		t.Fatalf("NewKafkaRestSender failed: %v", err)
	}
	s.retryDelay = 5 * time.Millisecond
	return s
}

func TestKafkaRestSender_Send(t *testing.T) {
	var gotBody kafkaRestBody
	var gotPath, gotType string

	s := newTestKafkaRestSender(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusOK)
	})

	rec := NewRecord(KindStarted, 12, action.NativeHeadless, action.Config{TaskName: "t", Title: "Fittest"})
	if err := s.Send(context.Background(), rec); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotPath != "/topics/fgaction-status" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotType != kafkaRestContentType {
		t.Errorf("unexpected content type %q", gotType)
	}
	if len(gotBody.Records) != 1 || gotBody.Records[0].Key != "12" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
	if gotBody.Records[0].Value.EventID != rec.EventID {
		t.Errorf("expected event id %s, got %s", rec.EventID, gotBody.Records[0].Value.EventID)
	}
}

func TestKafkaRestSender_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	s := newTestKafkaRestSender(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := s.Send(context.Background(), NewRecord(KindUpdated, 1, action.InProcess, action.Config{})); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestKafkaRestSender_GivesUp(t *testing.T) {
	var calls int32
	s := newTestKafkaRestSender(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	if err := s.Send(context.Background(), NewRecord(KindUpdated, 1, action.InProcess, action.Config{})); err == nil {
		t.Fatal("expected error after retries")
	}
	if got := atomic.LoadInt32(&calls); got != maxRetries+1 {
		t.Errorf("expected %d attempts, got %d", maxRetries+1, got)
	}
}

func TestKafkaRestSender_Closed(t *testing.T) {
	s := newTestKafkaRestSender(t, func(w http.ResponseWriter, r *http.Request) {})
	s.Close()
	if err := s.Send(context.Background(), NewRecord(KindStarted, 1, action.InProcess, action.Config{})); err == nil {
		t.Error("expected error on closed sender")
	}
}

func TestEnsureHTTPScheme(t *testing.T) {
	cases := map[string]string{
		"host:8082":         "http://host:8082",
		"http://host:8082":  "http://host:8082",
		"https://host:8443": "https://host:8443",
	}
	for in, want := range cases {
		if got := ensureHTTPScheme(in); got != want {
			t.Errorf("ensureHTTPScheme(%q) = %q, want %q", in, got, want)
		}
	}
}
