package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientPostDecodesReply(t *testing.T) {
	var gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		_, _ = w.Write([]byte(`<response timestamp="20240101120000"><result>00</result><message>OK</message></response>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.Post(context.Background(), "auth", "<request/>")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Approved() || resp.Message != "OK" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gotContentType != "application/xml" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotBody != "<request/>" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestClientPostNon2xxIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Post(context.Background(), "auth", "<request/>"); err == nil {
		t.Fatal("expected error for 500 reply")
	}
}

func TestClientPostConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Post(context.Background(), "auth", "<request/>"); err == nil {
		t.Fatal("expected error for closed endpoint")
	}
}
