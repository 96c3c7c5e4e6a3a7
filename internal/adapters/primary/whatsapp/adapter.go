package whatsapp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"

	"github.com/vibin/lead-assistant/config"
	"github.com/vibin/lead-assistant/internal/adapters/secondary/repository"
	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/core/ports"
	"github.com/vibin/lead-assistant/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sendTimeout      = 30 * time.Second
	housekeepingTick = 10 * time.Minute
	dedupWindow      = time.Hour
)

// Handler receives the events the bot reacts to
type Handler interface {
	HandleMessage(ctx context.Context, msg domain.IncomingMessage)
	HandleCallback(ctx context.Context, cb domain.Callback)
}

// WhatsAppAdapter implements ports.TransportPort on top of whatsmeow
type WhatsAppAdapter struct {
	client    *whatsmeow.Client
	store     *store.Device
	storeDir  string
	handler   Handler
	log       logger.Logger
	config    *config.WhatsAppConfig
	limiter   *rate.Limiter // Rate limiter for WhatsApp API calls
	formatter *WhatsAppFormatter
	polls     *pollRegistry
	processed ports.SessionStore[string, time.Time] // message ids already dispatched
	now       func() time.Time
}

var _ ports.TransportPort = (*WhatsAppAdapter)(nil)

// NewWhatsAppAdapter creates a new WhatsApp adapter
func NewWhatsAppAdapter(cfg *config.WhatsAppConfig, log logger.Logger) (*WhatsAppAdapter, error) {
	// Ensure store directory exists
	if err := os.MkdirAll(cfg.StoreDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create WhatsApp store directory: %w", err)
	}

	perSecond := cfg.MessagesPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &WhatsAppAdapter{
		storeDir:  cfg.StoreDir,
		log:       log.WithField("component", "whatsapp"),
		config:    cfg,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), burst),
		formatter: NewWhatsAppFormatter(),
		polls:     newPollRegistry(repository.NewMemorySessionStore[string, pollRecord](), time.Now),
		processed: repository.NewMemorySessionStore[string, time.Time](),
		now:       time.Now,
	}, nil
}

// SetHandler registers the receiver of incoming events. It must be called
// before Start.
func (a *WhatsAppAdapter) SetHandler(h Handler) {
	a.handler = h
}

// Connect establishes the connection to WhatsApp, pairing through a QR code
// on first run
func (a *WhatsAppAdapter) Connect(ctx context.Context) error {
	dbLog := waLog.Stdout("Database", "WARN", true)
	container, err := sqlstore.New("sqlite3", fmt.Sprintf("file:%s/whatsmeow.db?_foreign_keys=on", a.storeDir), dbLog)
	if err != nil {
		return fmt.Errorf("failed to initialize WhatsApp database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice()
	if err != nil {
		return fmt.Errorf("failed to get device store: %w", err)
	}
	a.store = deviceStore

	clientLog := waLog.Stdout("Client", "INFO", true)
	a.client = whatsmeow.NewClient(deviceStore, clientLog)
	a.client.AddEventHandler(a.eventHandler)

	if a.client.Store.ID != nil {
		if err := a.client.Connect(); err != nil {
			return fmt.Errorf("error connecting to WhatsApp: %w", err)
		}
		a.log.Info("Connected to WhatsApp")
		return nil
	}

	// No session yet
	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("error getting QR channel: %w", err)
	}
	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("error connecting to WhatsApp: %w", err)
	}
	for evt := range qrChan {
		if evt.Event == "code" {
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			a.log.Info("Scan the QR code with your WhatsApp app")
		} else {
			a.log.Info("QR channel event", "event", evt.Event)
		}
	}
	return nil
}

// Disconnect closes the connection to WhatsApp
func (a *WhatsAppAdapter) Disconnect() error {
	if a.client != nil {
		a.client.Disconnect()
	}
	return nil
}

// IsConnected checks if the client is connected
func (a *WhatsAppAdapter) IsConnected() bool {
	return a.client != nil && a.client.IsConnected()
}

// Start connects and dispatches incoming events until ctx is done
func (a *WhatsAppAdapter) Start(ctx context.Context) error {
	if a.handler == nil {
		return fmt.Errorf("whatsapp adapter has no handler")
	}
	a.log.Info("WhatsApp adapter is starting")

	if !a.IsConnected() {
		if err := a.Connect(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(housekeepingTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.housekeeping()
		case <-ctx.Done():
			a.log.Info("WhatsApp adapter stopping")
			return nil
		}
	}
}

func (a *WhatsAppAdapter) housekeeping() {
	cutoff := a.now().Add(-dedupWindow)
	seen := a.processed.DeleteFunc(func(_ string, at time.Time) bool { return at.Before(cutoff) })
	polls := a.polls.prune()
	a.log.Debug("Pruned transport state", "message_ids", seen, "polls", polls)
}

// eventHandler handles WhatsApp events
func (a *WhatsAppAdapter) eventHandler(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		if evt.Message.GetPollUpdateMessage() != nil {
			a.handlePollVote(evt)
			return
		}
		a.handleMessage(evt)
	case *events.Connected:
		a.log.Info("WhatsApp connected")
	case *events.Disconnected:
		a.log.Info("WhatsApp disconnected")
	case *events.LoggedOut:
		a.log.Warn("WhatsApp logged out")
		if a.store != nil {
			if err := a.store.Delete(); err != nil {
				a.log.Error("Failed to delete device store on logout", "error", err)
			}
		}
	}
}

// firstSeen records a message id and reports whether it is new
func (a *WhatsAppAdapter) firstSeen(id string) bool {
	if id == "" {
		return true
	}
	fresh := false
	a.processed.Compute(id, func(at time.Time, ok bool) (time.Time, bool) {
		if ok {
			return at, true
		}
		fresh = true
		return a.now(), true
	})
	return fresh
}

// incomingFromEvent converts a text message event. Messages sent by the bot
// account and messages without text are skipped.
func incomingFromEvent(evt *events.Message) (domain.IncomingMessage, bool) {
	if evt.Info.IsFromMe {
		return domain.IncomingMessage{}, false
	}
	text := getMessageText(evt)
	if strings.TrimSpace(text) == "" {
		return domain.IncomingMessage{}, false
	}

	sender := evt.Info.Sender.ToNonAD()
	return domain.IncomingMessage{
		ID:        evt.Info.ID,
		ChatID:    evt.Info.Chat.ToNonAD().String(),
		UserID:    sender.String(),
		Username:  sender.User,
		FirstName: evt.Info.PushName,
		Text:      text,
		IsGroup:   evt.Info.IsGroup,
		SentAt:    evt.Info.Timestamp,
	}, true
}

func (a *WhatsAppAdapter) handleMessage(evt *events.Message) {
	msg, ok := incomingFromEvent(evt)
	if !ok {
		return
	}
	if !a.firstSeen(msg.ID) {
		a.log.Debug("Skipping already processed message", "message_id", msg.ID)
		return
	}

	a.log.Debug("Received WhatsApp message", "chat", msg.ChatID, "is_group", msg.IsGroup)
	go a.dispatch("message", func(ctx context.Context) { a.handler.HandleMessage(ctx, msg) })
}

func (a *WhatsAppAdapter) handlePollVote(evt *events.Message) {
	if !a.firstSeen(evt.Info.ID) {
		return
	}
	pollID := evt.Message.GetPollUpdateMessage().GetPollCreationMessageKey().GetID()
	if _, ok := a.polls.get(pollID); !ok {
		a.log.Debug("Vote on unknown poll", "poll_id", pollID)
		return
	}

	vote, err := a.client.DecryptPollVote(evt)
	if err != nil {
		a.log.Error("Failed to decrypt poll vote", "poll_id", pollID, "error", err)
		return
	}

	cb, ok := a.polls.resolve(pollID, evt.Info.ID, evt.Info.Chat.ToNonAD().String(), evt.Info.Sender.ToNonAD().String(), vote.GetSelectedOptions())
	if !ok {
		return
	}
	a.log.Debug("Received poll vote", "poll_id", pollID, "data", cb.Data)
	go a.dispatch("callback", func(ctx context.Context) { a.handler.HandleCallback(ctx, cb) })
}

func (a *WhatsAppAdapter) dispatch(kind string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("Handler panicked", "event", kind, "panic", r)
		}
	}()
	fn(context.Background())
}

// getMessageText extracts text from the message
func getMessageText(evt *events.Message) string {
	if evt.Message.GetConversation() != "" {
		return evt.Message.GetConversation()
	}
	if evt.Message.GetExtendedTextMessage() != nil {
		return evt.Message.GetExtendedTextMessage().GetText()
	}
	return ""
}

func (a *WhatsAppAdapter) prepare(ctx context.Context, chatID string) (types.JID, error) {
	if !a.IsConnected() {
		return types.JID{}, domain.ErrNotConnected
	}
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return types.JID{}, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return types.JID{}, fmt.Errorf("rate limiter: %w", err)
	}
	return jid, nil
}

// Send delivers text to a chat. Controls are sent as single-choice polls
// whose question is the text.
func (a *WhatsAppAdapter) Send(ctx context.Context, chatID, text string, opts domain.SendOptions) (string, error) {
	jid, err := a.prepare(ctx, chatID)
	if err != nil {
		return "", err
	}
	if opts.Format {
		text = a.formatter.Format(text)
	}

	var (
		msg     *waProto.Message
		options []pollOption
	)
	if opts.Control != domain.ControlNone {
		if options, err = pollOptions(opts.Control); err != nil {
			return "", err
		}
		msg = a.client.BuildPollCreation(text, labels(options), 1)
	} else {
		msg = &waProto.Message{Conversation: proto.String(text)}
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	resp, err := a.client.SendMessage(sendCtx, jid, msg)
	if err != nil {
		return "", fmt.Errorf("send to %s: %w", chatID, err)
	}
	if options != nil {
		a.polls.add(resp.ID, pollRecord{ChatID: jid.ToNonAD().String(), Kind: opts.Control, Options: options})
	}
	a.log.Debug("WhatsApp message sent", "chat", chatID, "message_id", resp.ID, "control", opts.Control)
	return resp.ID, nil
}

// Edit replaces a sent text message. Polls cannot be edited: the poll stops
// accepting votes and the new content goes out as a fresh message, as does
// any edit that carries a control.
func (a *WhatsAppAdapter) Edit(ctx context.Context, chatID, messageID, text string, opts domain.SendOptions) error {
	if a.polls.retire(messageID) || opts.Control != domain.ControlNone {
		_, err := a.Send(ctx, chatID, text, opts)
		return err
	}

	jid, err := a.prepare(ctx, chatID)
	if err != nil {
		return err
	}
	if opts.Format {
		text = a.formatter.Format(text)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	edit := a.client.BuildEdit(jid, types.MessageID(messageID), &waProto.Message{Conversation: proto.String(text)})
	if _, err := a.client.SendMessage(sendCtx, jid, edit); err != nil {
		return fmt.Errorf("edit %s in %s: %w", messageID, chatID, err)
	}
	return nil
}

// AnswerCallback is a no-op: poll votes need no acknowledgement
func (a *WhatsAppAdapter) AnswerCallback(_ context.Context, callbackID string) error {
	a.log.Debug("Callback acknowledged", "callback_id", callbackID)
	return nil
}
