// Package agent orchestrates a single exchange: assemble the prompt,
// call the completion service, and persist the user/assistant pair only
// after the completion succeeds, so failed requests never pollute
// history.
package agent

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"github.com/ssergeev/membot/internal/chat"
)

// FSM states of one exchange.
type fsmState stateless.State

var (
	stateReadyToCallLLM fsmState = "ReadyToCallLLM"
	statePersisting     fsmState = "PersistingExchange"
	stateDone           fsmState = "Done"
	stateError          fsmState = "Error"
)

// FSM triggers.
type fsmTrigger stateless.Trigger

var (
	triggerProcessInput fsmTrigger = "ProcessInput"
	triggerCompleted    fsmTrigger = "CompletionSucceeded"
	triggerPersisted    fsmTrigger = "ExchangePersisted"
	triggerFailed       fsmTrigger = "ErrorOccurred"
)

// Builder assembles the ordered prompt for a user's next exchange.
type Builder interface {
	Build(ctx context.Context, userID int64, input string) ([]chat.Message, error)
}

// Completer sends an assembled prompt to the completion service.
type Completer interface {
	Complete(ctx context.Context, msgs []chat.Message) (string, error)
}

// History is the write side of the store the agent records exchanges
// through.
type History interface {
	AppendExchange(ctx context.Context, userID int64, userText, assistantText string) error
}

// Agent is the composition of the exchange pipeline.
type Agent struct {
	assembler Builder
	completer Completer
	history   History
	log       *slog.Logger
}

// New creates an agent.
func New(assembler Builder, completer Completer, history History, log *slog.Logger) *Agent {
	return &Agent{assembler: assembler, completer: completer, history: history, log: log}
}

// Process runs one exchange for the user and returns the assistant's
// reply. Any failure leaves the stored history exactly as it was before
// the call; the returned error carries the classification for the
// caller to map onto a user-safe message.
func (a *Agent) Process(ctx context.Context, userID int64, input string) (string, error) {
	log := a.log.With("request_id", uuid.NewString(), "user_id", userID)

	var exch struct {
		reply string
		err   error
	}

	fsm := stateless.NewStateMachine(stateReadyToCallLLM)

	fsm.Configure(stateReadyToCallLLM).
		PermitReentry(triggerProcessInput).
		OnEntry(func(ctx context.Context, _ ...any) error {
			msgs, err := a.assembler.Build(ctx, userID, input)
			if err != nil {
				exch.err = err
				return fsm.FireCtx(ctx, triggerFailed)
			}
			log.Debug("prompt assembled", "messages", len(msgs))

			reply, err := a.completer.Complete(ctx, msgs)
			if err != nil {
				exch.err = err
				return fsm.FireCtx(ctx, triggerFailed)
			}
			exch.reply = reply
			return fsm.FireCtx(ctx, triggerCompleted)
		}).
		Permit(triggerCompleted, statePersisting).
		Permit(triggerFailed, stateError)

	fsm.Configure(statePersisting).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if err := a.history.AppendExchange(ctx, userID, input, exch.reply); err != nil {
				exch.err = err
				return fsm.FireCtx(ctx, triggerFailed)
			}
			return fsm.FireCtx(ctx, triggerPersisted)
		}).
		Permit(triggerPersisted, stateDone).
		Permit(triggerFailed, stateError)

	if err := fsm.FireCtx(ctx, triggerProcessInput); err != nil {
		log.Error("exchange state machine failed", "error", err)
		return "", err
	}
	if exch.err != nil {
		log.Error("exchange failed", "error", exch.err)
		return "", exch.err
	}
	log.Info("exchange completed", "reply_chars", utf8.RuneCountInString(exch.reply))
	return exch.reply, nil
}
