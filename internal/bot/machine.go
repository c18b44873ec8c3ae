package bot

import (
	"time"

	"github.com/AlexYaroshenko/notifybot/internal/store"
)

// EffectKind names one side effect the state machine asks for. Message
// effects are listed before store effects so callers can apply them in slice
// order: the user-facing reply is attempted before the persistence write.
type EffectKind int

const (
	EffectSendWelcome EffectKind = iota
	EffectAnswerCallback
	EffectEditConfirmation
	EffectSendUnsubscribed
	EffectSendNotSubscribed
	EffectSendEcho
	EffectUpsertRecord
	EffectAppendAudit
)

// Effect is one requested side effect. Record is set for EffectUpsertRecord,
// Audit for EffectAppendAudit; message effects carry no payload because the
// responder renders them from the event.
type Effect struct {
	Kind   EffectKind
	Record store.Subscriber
	Audit  store.AuditEntry
}

// Transition is the consent state machine. It is a pure function and it is
// total: every (state, event) pair returns a defined next state and effect
// list, so duplicate or out-of-order deliveries can never crash the handler.
//
// current is the stored record for the event's chat id; exists=false means no
// record (state "absent"). The returned state equals current.State when
// nothing changes.
func Transition(current store.Subscriber, exists bool, ev Event, now time.Time) (store.State, []Effect) {
	state := current.State
	if !exists {
		state = ""
	}

	switch ev.Kind {
	case EventConsentCommand:
		next := current
		next.ChatID = ev.ChatID
		next.DisplayName = ev.DisplayName
		next.State = store.StateAwaitingConsent
		// UnsubscribedAt is non-empty only in UNSUBSCRIBED.
		next.UnsubscribedAt = time.Time{}
		next.UpdatedAt = now
		return store.StateAwaitingConsent, []Effect{
			{Kind: EffectSendWelcome},
			{Kind: EffectUpsertRecord, Record: next},
			{Kind: EffectAppendAudit, Audit: auditEntry(ev, now, "/start", auditWelcomeSent)},
		}

	case EventConsentButton:
		if state != store.StateAwaitingConsent {
			// Re-press or stray press: acknowledge and nothing else.
			return state, []Effect{{Kind: EffectAnswerCallback}}
		}
		next := current
		next.ChatID = ev.ChatID
		next.DisplayName = ev.DisplayName
		next.State = store.StateSubscribed
		next.SubscribedAt = now
		next.UnsubscribedAt = time.Time{}
		next.UpdatedAt = now
		return store.StateSubscribed, []Effect{
			{Kind: EffectAnswerCallback},
			{Kind: EffectEditConfirmation},
			{Kind: EffectUpsertRecord, Record: next},
			{Kind: EffectAppendAudit, Audit: auditEntry(ev, now, auditConsentInbound, auditConsentGiven)},
		}

	case EventUnsubscribeCommand:
		if state != store.StateSubscribed {
			return state, []Effect{
				{Kind: EffectSendNotSubscribed},
				{Kind: EffectAppendAudit, Audit: auditEntry(ev, now, "/unsubscribe", auditUnsubscribeMissing)},
			}
		}
		next := current
		next.DisplayName = ev.DisplayName
		next.State = store.StateUnsubscribed
		next.UnsubscribedAt = now
		next.UpdatedAt = now
		return store.StateUnsubscribed, []Effect{
			{Kind: EffectSendUnsubscribed},
			{Kind: EffectUpsertRecord, Record: next},
			{Kind: EffectAppendAudit, Audit: auditEntry(ev, now, "/unsubscribe", auditUnsubscribed)},
		}

	case EventPlainText:
		return state, []Effect{
			{Kind: EffectSendEcho},
			{Kind: EffectAppendAudit, Audit: auditEntry(ev, now, ev.Text, echoText(ev.Text))},
		}
	}

	// EventUnrecognized and anything future: safe no-op.
	return state, nil
}

func auditEntry(ev Event, now time.Time, inbound, outbound string) store.AuditEntry {
	return store.AuditEntry{
		Timestamp:    now,
		ChatID:       ev.ChatID,
		DisplayName:  ev.DisplayName,
		InboundText:  inbound,
		OutboundText: outbound,
	}
}
