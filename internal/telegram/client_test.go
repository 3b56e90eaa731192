package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// fakeBotAPI answers Bot API methods with canned results.
type fakeBotAPI struct {
	mu      sync.Mutex
	methods []string
	forms   []map[string]string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	_ = r.ParseForm()
	form := map[string]string{}
	for key := range r.Form {
		form[key] = r.Form.Get(key)
	}
	f.mu.Lock()
	f.methods = append(f.methods, method)
	f.forms = append(f.forms, form)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"ytbot"}}`)
	case "sendMessage", "editMessageText":
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":77,"date":0,"chat":{"id":5,"type":"private"}}}`)
	case "deleteMessage":
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	default:
		fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: unsupported"}`)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeBotAPI) {
	t.Helper()
	fake := &fakeBotAPI{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)
	client, err := NewWithEndpoint("123:abc", srv.URL+"/bot%s/%s", log)
	if err != nil {
		t.Fatalf("NewWithEndpoint() error = %v", err)
	}
	return client, fake
}

// TestClientMessageOperations verifies send, edit and delete calls.
func TestClientMessageOperations(t *testing.T) {
	client, fake := newTestClient(t)
	if client.Username() != "ytbot" {
		t.Fatalf("username = %q", client.Username())
	}

	ctx := context.Background()
	id, err := client.SendMessage(ctx, 5, "Processing...")
	if err != nil || id != 77 {
		t.Fatalf("SendMessage() = %d, %v", id, err)
	}
	if err := client.EditMessageText(ctx, 5, 77, "Download started! 10%"); err != nil {
		t.Fatalf("EditMessageText() error = %v", err)
	}
	if err := client.DeleteMessage(ctx, 5, 77); err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	want := []string{"getMe", "sendMessage", "editMessageText", "deleteMessage"}
	if strings.Join(fake.methods, ",") != strings.Join(want, ",") {
		t.Fatalf("methods = %v, want %v", fake.methods, want)
	}
	if fake.forms[1]["text"] != "Processing..." || fake.forms[2]["message_id"] != "77" {
		t.Fatalf("forms = %v", fake.forms)
	}
}

// TestClientSurfacesAPIErrors checks failed API calls become errors.
func TestClientSurfacesAPIErrors(t *testing.T) {
	client, _ := newTestClient(t)
	path := t.TempDir() + "/video-abc.mp4"
	if err := client.SendVideo(context.Background(), 5, path, "Clip"); err == nil {
		t.Fatal("expected send video error")
	}
}

// TestFromUpdate covers command parsing and skipped updates.
func TestFromUpdate(t *testing.T) {
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 3,
		From:      &tgbotapi.User{ID: 42, FirstName: "Ada", UserName: "ada"},
		Chat:      &tgbotapi.Chat{ID: 420, Type: "private"},
		Text:      "/list@ytbot 5",
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 11}},
	}}

	msg, ok := FromUpdate(update)
	if !ok {
		t.Fatal("expected message")
	}
	if msg.Command != "list" || msg.Args != "5" {
		t.Fatalf("command = %q args = %q", msg.Command, msg.Args)
	}
	if msg.UserID != 42 || msg.ChatID != 420 || msg.ID != 3 || msg.Username != "ada" {
		t.Fatalf("msg = %+v", msg)
	}

	plain, ok := FromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 1},
		Chat: &tgbotapi.Chat{ID: 1},
		Text: "https://youtu.be/abcdefghijk",
	}})
	if !ok || plain.Command != "" || plain.Text == "" {
		t.Fatalf("plain = %+v, %v", plain, ok)
	}

	if _, ok := FromUpdate(tgbotapi.Update{}); ok {
		t.Fatal("updates without message must be skipped")
	}
}
