package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alfredjeanlab/livetimeline/internal/config"
)

func newTestUpstash(t *testing.T, handler http.HandlerFunc) *UpstashBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	b, err := NewUpstashBackend(config.Settings{
		Backend:   config.BackendUpstash,
		RESTURL:   srv.URL + "/",
		RESTToken: "secret-token",
	})
	if err != nil {
		t.Fatalf("NewUpstashBackend: %v", err)
	}
	return b
}

func TestUpstashBackend_Receive(t *testing.T) {
	for _, tc := range []struct {
		name     string
		status   int
		body     string
		wantMsgs int
		wantBody string
		wantErr  bool
	}{
		{"Null", http.StatusOK, `{"result":null}`, 0, "", false},
		{"String", http.StatusOK, `{"result":"{\"id\":\"1\"}"}`, 1, `"{\"id\":\"1\"}"`, false},
		{"Object", http.StatusOK, `{"result":{"id":"1"}}`, 1, `{"id":"1"}`, false},
		{"Unauthorized", http.StatusUnauthorized, `{"error":"Unauthorized"}`, 0, "", true},
		{"ServerError", http.StatusInternalServerError, `oops`, 0, "", true},
		{"BadJSON", http.StatusOK, `not json`, 0, "", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestUpstash(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("method = %s, want GET", r.Method)
				}
				if r.URL.Path != "/rpop/timeline-events" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
					t.Errorf("Authorization = %q", got)
				}
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			})

			msgs, err := b.Receive(context.Background())
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Receive: %v", err)
			}
			if len(msgs) != tc.wantMsgs {
				t.Fatalf("got %d messages, want %d", len(msgs), tc.wantMsgs)
			}
			if tc.wantMsgs > 0 && string(msgs[0].Body) != tc.wantBody {
				t.Errorf("body = %s, want %s", msgs[0].Body, tc.wantBody)
			}
		})
	}
}

func TestUpstashBackend_APIError(t *testing.T) {
	b := newTestUpstash(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"Unauthorized"}`)
	})
	_, err := b.Receive(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Error() != "HTTP 401: Unauthorized" {
		t.Errorf("Error() = %q", apiErr.Error())
	}
}

func TestUpstashBackend_Send(t *testing.T) {
	var got []string
	b := newTestUpstash(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		io.WriteString(w, `{"result":1}`)
	})

	if err := b.Send(context.Background(), []byte(`{"id":"x"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := []string{"LPUSH", "timeline-events", `{"id":"x"}`}
	if len(got) != len(want) {
		t.Fatalf("command = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUpstashBackend_AckIsNoop(t *testing.T) {
	calls := 0
	b := newTestUpstash(t, func(w http.ResponseWriter, r *http.Request) { calls++ })
	if err := b.Ack(context.Background(), &Message{}); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if calls != 0 {
		t.Fatalf("Ack made %d requests", calls)
	}
}

func TestNewUpstashBackend_InvalidURL(t *testing.T) {
	if _, err := NewUpstashBackend(config.Settings{RESTURL: "not a url"}); err == nil {
		t.Fatal("expected error for invalid rest_url")
	}
}

func TestDial(t *testing.T) {
	b, err := Dial(context.Background(), config.Settings{
		Backend: config.BackendUpstash, RESTURL: "https://eu1.upstash.io", RESTToken: "t",
	})
	if err != nil {
		t.Fatalf("Dial upstash: %v", err)
	}
	if _, ok := b.(*UpstashBackend); !ok {
		t.Fatalf("Dial returned %T", b)
	}
	if _, ok := b.(LongPoller); ok {
		t.Error("upstash backend should not long poll")
	}

	s, err := DialSender(context.Background(), config.Settings{
		Backend: config.BackendSQS, QueueURL: testQueueURL, AccessKeyID: "k", SecretAccessKey: "s",
	})
	if err != nil {
		t.Fatalf("DialSender sqs: %v", err)
	}
	if _, ok := s.(*SQSBackend); !ok {
		t.Fatalf("DialSender returned %T", s)
	}

	if _, err := Dial(context.Background(), config.Settings{Backend: "kafka"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
