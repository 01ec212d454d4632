package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatHistoryGrowsPerTurn(t *testing.T) {
	var requests []generateRequest
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		requests = append(requests, req)
		fmt.Fprint(w, candidateResponse("reply"))
	}))

	chat := c.NewChat("test-model", "be helpful")
	if chat.Model() != "test-model" {
		t.Fatalf("model = %q", chat.Model())
	}

	if _, err := chat.Send(context.Background(), []Part{{Text: "first"}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := chat.Send(context.Background(), []Part{{Text: "second"}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(requests) != 2 {
		t.Fatalf("got %d requests", len(requests))
	}
	// First call: just the user turn. Second call: user, model, user.
	if len(requests[0].Contents) != 1 {
		t.Fatalf("first call carried %d contents", len(requests[0].Contents))
	}
	if len(requests[1].Contents) != 3 {
		t.Fatalf("second call carried %d contents, want full history", len(requests[1].Contents))
	}
	if requests[1].Contents[1].Role != "model" {
		t.Fatalf("history turn role = %q", requests[1].Contents[1].Role)
	}
	if requests[0].SystemInstruction == nil {
		t.Fatalf("system instruction missing")
	}
}

func TestChatFailedTurnNotCommitted(t *testing.T) {
	fail := true
	var lastLen int
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		lastLen = len(req.Contents)
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error": {"message": "boom"}}`)
			return
		}
		fmt.Fprint(w, candidateResponse("ok"))
	}))

	chat := c.NewChat("m", "")
	if _, err := chat.Send(context.Background(), []Part{{Text: "first"}}); err == nil {
		t.Fatalf("expected failure")
	}
	fail = false
	if _, err := chat.Send(context.Background(), []Part{{Text: "retry"}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if lastLen != 1 {
		t.Fatalf("failed turn leaked into history, contents = %d", lastLen)
	}
}

func TestChatSendStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "data: %s\n\n", candidateResponse("streamed "))
		fmt.Fprintf(w, "data: %s\n\n", candidateResponse("text"))
	}))
	t.Cleanup(srv.Close)
	c, err := NewClient("k")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.baseURL = srv.URL

	chat := c.NewChat("m", "")
	var chunks []string
	full, err := chat.SendStream(context.Background(), []Part{{Text: "go"}}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("SendStream: %v", err)
	}
	if full != "streamed text" {
		t.Fatalf("full = %q", full)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks = %v", chunks)
	}
}
