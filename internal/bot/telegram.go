package bot

import (
	"context"
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the subset of *tgbotapi.BotAPI used for outbound messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers order notifications as Telegram direct messages.
type Notifier struct {
	sender Sender
}

func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// Notify sends a direct message. For private chats the chat ID equals the
// user ID, so requesters are reachable by their user ID.
func (n *Notifier) Notify(ctx context.Context, chatID int64, text string) error {
	_, err := n.sender.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// Telegram connects the router to the Telegram Bot API.
type Telegram struct {
	sender Sender
	router *Router
}

func NewTelegram(sender Sender, router *Router) *Telegram {
	return &Telegram{sender: sender, router: router}
}

// Run consumes updates until ctx is cancelled or the channel closes. Each
// update is handled in its own goroutine; Run waits for in-flight handlers
// before returning.
func (t *Telegram) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer wg.Done()
				t.handleMessage(ctx, msg)
			}(update.Message)
		}
	}
}

func (t *Telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	reply := t.router.Handle(ctx, Request{
		ChatID: msg.Chat.ID,
		UserID: msg.From.ID,
		Text:   msg.Text,
	})
	if reply == "" {
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	out.ReplyToMessageID = msg.MessageID
	out.DisableWebPagePreview = true
	if _, err := t.sender.Send(out); err != nil {
		log.Printf("[Bot] Failed to reply in chat %d: %v", msg.Chat.ID, err)
	}
}
