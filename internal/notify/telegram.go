package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	logx "dmrotor/pkg/logx"
)

// maxMessageRunes is Telegram's text limit per message.
const maxMessageRunes = 4096

type TelegramOptions struct {
	Token       string
	PollTimeout time.Duration
	// ChatID is the only chat commands are answered in.
	ChatID int64
	Log    logx.Logger
}

// CommandFunc builds the reply to a bot command.
type CommandFunc func(ctx context.Context, args string) (string, error)

// Telegram is a telebot-backed Sender that also answers a few read-only
// commands from the operator chat.
type Telegram struct {
	bot    *tele.Bot
	chatID int64
	log    logx.Logger

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ Sender = (*Telegram)(nil)

func NewTelegram(opts TelegramOptions) (*Telegram, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  opts.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{bot: b, chatID: opts.ChatID, log: log.With(logx.String("comp", "telegram"))}, nil
}

func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(&tele.Chat{ID: chatID}, clip(text, maxMessageRunes), &tele.SendOptions{DisableWebPagePreview: true})
	return err
}

// clip cuts s to at most n runes, ending in "…" when something was dropped.
func clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	seen := 0
	for i := range s {
		if seen == n-1 {
			return s[:i] + "…"
		}
		seen++
	}
	return s
}

// Handle registers a command such as "/stats". Messages from other chats
// are ignored.
func (t *Telegram) Handle(command string, fn CommandFunc) {
	t.bot.Handle(command, func(c tele.Context) error {
		if c.Chat() == nil || (t.chatID != 0 && c.Chat().ID != t.chatID) {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		reply, err := fn(ctx, strings.TrimSpace(c.Message().Payload))
		if err != nil {
			t.log.Warn("command failed", logx.String("command", command), logx.Err(err))
			return c.Send("Error: " + err.Error())
		}
		return c.Send(clip(reply, maxMessageRunes), &tele.SendOptions{DisableWebPagePreview: true})
	})
}

// Start begins long polling until Stop or ctx cancellation.
func (t *Telegram) Start(ctx context.Context) {
	t.runMu.Lock()
	if t.running {
		t.runMu.Unlock()
		return
	}
	t.running = true
	rctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.wg.Add(1)
	t.runMu.Unlock()

	go func() {
		<-rctx.Done()
		t.bot.Stop()
	}()
	go func() {
		defer t.wg.Done()
		t.log.Info("polling started")
		t.bot.Start()
	}()
}

// Stop ends polling. It never waits longer than two seconds for the
// long-poll request to return.
func (t *Telegram) Stop(ctx context.Context) error {
	t.runMu.Lock()
	cancel := t.cancel
	was := t.running
	t.running = false
	t.cancel = nil
	t.runMu.Unlock()
	if !was {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	grace := time.NewTimer(2 * time.Second)
	defer grace.Stop()
	select {
	case <-done:
		t.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-grace.C:
		t.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}
