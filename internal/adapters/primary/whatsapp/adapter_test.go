package whatsapp

import (
	"context"
	"errors"
	"testing"
	"time"

	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/vibin/lead-assistant/config"
	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/logger"
)

func textEvent(text string) *events.Message {
	user := types.NewJID("375291234567", types.DefaultUserServer)
	sender := user
	sender.Device = 3
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: user, Sender: sender},
			ID:            "3EB0ABC",
			PushName:      "Анна",
			Timestamp:     time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		},
		Message: &waProto.Message{Conversation: proto.String(text)},
	}
}

func TestIncomingFromEvent(t *testing.T) {
	msg, ok := incomingFromEvent(textEvent("Сколько стоит курс?"))
	if !ok {
		t.Fatal("text message skipped")
	}
	if msg.ChatID != chat || msg.UserID != chat || msg.Username != "375291234567" || msg.FirstName != "Анна" || msg.Text != "Сколько стоит курс?" {
		t.Fatalf("message = %+v", msg)
	}

	extended := textEvent("")
	extended.Message = &waProto.Message{ExtendedTextMessage: &waProto.ExtendedTextMessage{Text: proto.String("reply")}}
	if msg, ok := incomingFromEvent(extended); !ok || msg.Text != "reply" {
		t.Fatalf("extended text = %+v, %v", msg, ok)
	}

	if _, ok := incomingFromEvent(textEvent("   ")); ok {
		t.Fatal("blank message accepted")
	}
	own := textEvent("hi")
	own.Info.IsFromMe = true
	if _, ok := incomingFromEvent(own); ok {
		t.Fatal("own message accepted")
	}
}

func newTestAdapter(t *testing.T) *WhatsAppAdapter {
	t.Helper()
	cfg := config.DefaultConfig().WhatsApp
	cfg.StoreDir = t.TempDir()
	a, err := NewWhatsAppAdapter(&cfg, logger.Nop())
	if err != nil {
		t.Fatalf("NewWhatsAppAdapter: %v", err)
	}
	return a
}

func TestSendWhileDisconnected(t *testing.T) {
	a := newTestAdapter(t)
	if a.IsConnected() {
		t.Fatal("adapter connected before Connect")
	}
	if _, err := a.Send(context.Background(), chat, "hi", domain.SendOptions{}); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("Send err = %v, want ErrNotConnected", err)
	}
	if err := a.Edit(context.Background(), chat, "m1", "hi", domain.SendOptions{}); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("Edit err = %v, want ErrNotConnected", err)
	}
	if err := a.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
}

func TestStartRequiresHandler(t *testing.T) {
	if err := newTestAdapter(t).Start(context.Background()); err == nil {
		t.Fatal("Start without handler succeeded")
	}
}

func TestFirstSeen(t *testing.T) {
	a := newTestAdapter(t)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	if !a.firstSeen("m1") || a.firstSeen("m1") {
		t.Fatal("duplicate not detected")
	}
	if !a.firstSeen("") || !a.firstSeen("") {
		t.Fatal("empty ids are always dispatched")
	}

	now = now.Add(dedupWindow + time.Second)
	a.housekeeping()
	if !a.firstSeen("m1") {
		t.Fatal("id kept past the dedup window")
	}
}

type recordingHandler struct {
	messages chan domain.IncomingMessage
}

func (h *recordingHandler) HandleMessage(_ context.Context, msg domain.IncomingMessage) {
	h.messages <- msg
}

func (h *recordingHandler) HandleCallback(context.Context, domain.Callback) {}

func TestHandleMessageDispatchesOnce(t *testing.T) {
	a := newTestAdapter(t)
	h := &recordingHandler{messages: make(chan domain.IncomingMessage, 2)}
	a.SetHandler(h)

	evt := textEvent("Привет")
	a.eventHandler(evt)
	a.eventHandler(evt)

	select {
	case msg := <-h.messages:
		if msg.Text != "Привет" {
			t.Fatalf("dispatched %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message not dispatched")
	}
	select {
	case msg := <-h.messages:
		t.Fatalf("duplicate dispatched: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
