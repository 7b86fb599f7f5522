package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestEscape(t *testing.T) {
	got := Escape("p85 = 3.5 (weeks)! a_b")
	want := `p85 \= 3\.5 \(weeks\)\! a\_b`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestChunk_BreaksOnLines(t *testing.T) {
	text := strings.Repeat("x", 8) + "\n" + strings.Repeat("y", 8) + "\n" + "zz"
	parts := Chunk(text, 10)
	// "yyyyyyyy\nzz" would be 11 runes, so zz starts a third chunk.
	if len(parts) != 3 || parts[2] != "zz" {
		t.Fatalf("unexpected chunks %q", parts)
	}
	for _, p := range parts {
		if len([]rune(p)) > 10 {
			t.Fatalf("chunk too long: %q", p)
		}
	}
}

func TestChunk_HardSplitsLongLines(t *testing.T) {
	parts := Chunk("ab\n"+strings.Repeat("é", 25), 10)
	if len(parts) != 4 || parts[0] != "ab" || parts[3] != strings.Repeat("é", 5) {
		t.Fatalf("unexpected chunks %q", parts)
	}
}

func TestChunk_KeepsEscapePairs(t *testing.T) {
	line := Escape(strings.Repeat("a.", 20))
	parts := Chunk(line, 7)
	if strings.Join(parts, "") != line {
		t.Fatalf("chunks lost text: %q", parts)
	}
	for _, p := range parts {
		if len([]rune(p)) > 7 {
			t.Fatalf("chunk too long: %q", p)
		}
		if strings.HasSuffix(p, `\`) && !strings.HasSuffix(p, `\\`) {
			t.Fatalf("chunk ends inside an escape: %q", p)
		}
	}
}

func TestSendMarkdownV2(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottok/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := &Client{token: "tok", api: srv.URL, http: srv.Client(), log: zerolog.Nop()}
	if err := c.SendMarkdownV2(context.Background(), 42, "*hi*"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["parse_mode"] != "MarkdownV2" || got["chat_id"].(float64) != 42 {
		t.Fatalf("unexpected body %v", got)
	}
}

func TestSend_RejectsMissingChat(t *testing.T) {
	c := &Client{token: "tok", api: "http://127.0.0.1:0", http: http.DefaultClient, log: zerolog.Nop()}
	if err := c.SendPlain(context.Background(), 0, "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSend_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"can't parse entities"}`, http.StatusBadRequest)
	}))
	defer srv.Close()
	c := &Client{token: "tok", api: srv.URL, http: srv.Client(), log: zerolog.Nop()}
	err := c.SendMarkdownV2(context.Background(), 1, "bad.")
	if err == nil || !strings.Contains(err.Error(), "status=400") {
		t.Fatalf("expected status error, got %v", err)
	}
}
