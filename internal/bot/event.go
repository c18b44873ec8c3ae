package bot

import (
	"strconv"
	"strings"

	"github.com/AlexYaroshenko/notifybot/internal/telegram"
)

// EventKind classifies one inbound update.
type EventKind string

const (
	EventConsentCommand     EventKind = "consent_command"     // /start
	EventUnsubscribeCommand EventKind = "unsubscribe_command" // /unsubscribe
	EventConsentButton      EventKind = "consent_button"      // consent keyboard press
	EventPlainText          EventKind = "plain_text"          // free text to echo
	EventUnrecognized       EventKind = "unrecognized"        // dropped silently
)

// consentCallbackData is the callback payload attached to the consent button.
const consentCallbackData = "consent_given"

// Event is one typed inbound event after classification.
type Event struct {
	Kind        EventKind
	ChatID      string
	DisplayName string
	Text        string
	// CallbackID and PromptMessageID are set for consent button presses:
	// the press must be acknowledged and the original prompt edited in place.
	CallbackID      string
	PromptMessageID int
}

// Classify maps a Telegram update onto a typed event. It never fails: any
// shape it does not understand becomes EventUnrecognized.
func Classify(upd *telegram.Update) Event {
	if upd == nil {
		return Event{Kind: EventUnrecognized}
	}

	if cq := upd.CallbackQuery; cq != nil {
		if cq.Data != consentCallbackData || cq.Message == nil || cq.Message.Chat == nil {
			return Event{Kind: EventUnrecognized}
		}
		return Event{
			Kind:            EventConsentButton,
			ChatID:          strconv.FormatInt(cq.Message.Chat.ID, 10),
			DisplayName:     telegram.FormatUserName(cq.From),
			CallbackID:      cq.ID,
			PromptMessageID: cq.Message.MessageID,
		}
	}

	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return Event{Kind: EventUnrecognized}
	}

	ev := Event{
		ChatID:      strconv.FormatInt(msg.Chat.ID, 10),
		DisplayName: telegram.FormatUserName(msg.From),
		Text:        msg.Text,
	}
	switch {
	case isCommand(msg.Text, "/start"):
		ev.Kind = EventConsentCommand
	case isCommand(msg.Text, "/unsubscribe"):
		ev.Kind = EventUnsubscribeCommand
	case strings.HasPrefix(msg.Text, "/"):
		ev.Kind = EventUnrecognized
	default:
		ev.Kind = EventPlainText
	}
	return ev
}

// isCommand matches "/cmd", "/cmd@botname" and "/cmd args".
func isCommand(text, cmd string) bool {
	if !strings.HasPrefix(text, cmd) {
		return false
	}
	rest := text[len(cmd):]
	return rest == "" || rest[0] == ' ' || rest[0] == '@'
}
