package sender

import (
	"context"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/domain"
)

// Sender is the messaging platform as seen by the bot core. Calls are made
// after state has been committed; a failed send never rolls anything back.
type Sender interface {
	// Name identifies the implementation in logs.
	Name() string

	// Updates streams inbound updates until ctx is done.
	Updates(ctx context.Context) <-chan domain.Update

	// Send delivers msg to a chat and returns a reference to it.
	Send(ctx context.Context, chatID int64, msg domain.Message) (domain.MessageRef, error)

	// PublishToChannel posts msg to the public channel ("@name" or numeric id).
	PublishToChannel(ctx context.Context, channel string, msg domain.Message) error

	// SetChannelDescription replaces the channel description.
	SetChannelDescription(ctx context.Context, channel, text string) error

	// ClearButtons removes the inline keyboard from a delivered message.
	ClearButtons(ctx context.Context, ref domain.MessageRef) error

	// AnswerCallback acknowledges a button press, optionally with a toast.
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// SendDocument uploads a file to a chat.
	SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error
}
