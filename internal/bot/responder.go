package bot

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/AlexYaroshenko/notifybot/internal/metrics"
	"github.com/AlexYaroshenko/notifybot/internal/telegram"
)

// Transport is the chat capability the bot consumes. *telegram.Client
// satisfies it; tests substitute fakes.
type Transport interface {
	SendMessage(ctx context.Context, chatID string, text string, opts *telegram.SendOptions) (int, error)
	EditMessageText(ctx context.Context, chatID string, messageID int, text string, opts *telegram.SendOptions) error
	AnswerCallbackQuery(ctx context.Context, callbackID string, text string) error
}

// Responder renders message effects into outbound Telegram actions. Transport
// failures terminate here: they are logged and counted, never returned to the
// state machine.
type Responder struct {
	transport Transport
	log       zerolog.Logger
}

func NewResponder(transport Transport, log zerolog.Logger) *Responder {
	return &Responder{transport: transport, log: log}
}

func (r *Responder) Deliver(ctx context.Context, ev Event, kind EffectKind) {
	var (
		err    error
		method string
	)

	switch kind {
	case EffectSendWelcome:
		method = "sendMessage"
		keyboard := &telegram.InlineKeyboardMarkup{
			InlineKeyboard: [][]telegram.InlineKeyboardButton{{
				{Text: consentButtonLabel, CallbackData: consentCallbackData},
			}},
		}
		_, err = r.transport.SendMessage(ctx, ev.ChatID, welcomeText(ev.DisplayName), &telegram.SendOptions{
			ParseMode:   "HTML",
			ReplyMarkup: keyboard,
		})

	case EffectAnswerCallback:
		method = "answerCallbackQuery"
		err = r.transport.AnswerCallbackQuery(ctx, ev.CallbackID, callbackAckText)

	case EffectEditConfirmation:
		method = "editMessageText"
		// Empty keyboard removes the consent button from the prompt.
		err = r.transport.EditMessageText(ctx, ev.ChatID, ev.PromptMessageID, confirmationText(ev.DisplayName), &telegram.SendOptions{
			ParseMode:   "HTML",
			ReplyMarkup: &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{}},
		})

	case EffectSendUnsubscribed:
		method = "sendMessage"
		_, err = r.transport.SendMessage(ctx, ev.ChatID, unsubscribedText(ev.DisplayName), nil)

	case EffectSendNotSubscribed:
		method = "sendMessage"
		_, err = r.transport.SendMessage(ctx, ev.ChatID, notSubscribedText(ev.DisplayName), nil)

	case EffectSendEcho:
		method = "sendMessage"
		_, err = r.transport.SendMessage(ctx, ev.ChatID, echoHTML(ev.Text), &telegram.SendOptions{ParseMode: "HTML"})

	default:
		return
	}

	if err != nil {
		metrics.TransportErrors.WithLabelValues(method).Inc()
		r.log.Error().Err(err).
			Str("chat_id", ev.ChatID).
			Str("method", method).
			Msg("outbound action failed")
	}
}
