package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPClient_Stream(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:timeline.snapshot\ndata:{\"events\":[],\"total\":0}\n\n")
		fmt.Fprint(w, ":keepalive\n\n")
		fmt.Fprint(w, "id:1\nevent:timeline.event.upserted\ndata:{\"event\":{\"task_id\":\"t1\"}}\n\n")
		fmt.Fprint(w, "id:2\nevent:timeline.poller.status\ndata:{\"is_polling\":true}\n\n")
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	var got []StreamEvent
	err := c.Stream(context.Background(), []string{"timeline.>"}, true, func(e StreamEvent) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if gotQuery != "snapshot=true&topics=timeline.%3E" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(got), got)
	}
	if got[0].Topic != "timeline.snapshot" || got[0].ID != "" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].ID != "1" || got[1].Topic != "timeline.event.upserted" || string(got[1].Data) != `{"event":{"task_id":"t1"}}` {
		t.Errorf("got[1] = %+v", got[1])
	}
	if got[2].ID != "2" || got[2].Topic != "timeline.poller.status" {
		t.Errorf("got[2] = %+v", got[2])
	}
}

func TestHTTPClient_Stream_CallbackErrorStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "id:1\nevent:a\ndata:{}\n\nid:2\nevent:b\ndata:{}\n\n")
	}))
	defer srv.Close()

	stop := errors.New("stop")
	calls := 0
	err := NewHTTPClient(srv.URL, "").Stream(context.Background(), nil, false, func(StreamEvent) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want %v", err, stop)
	}
	if calls != 1 {
		t.Fatalf("callback called %d times, want 1", calls)
	}
}

func TestHTTPClient_Stream_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL, "bad").Stream(context.Background(), nil, false, func(StreamEvent) error { return nil })
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 APIError", err)
	}
}
