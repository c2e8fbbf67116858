// Package handlers is the front-end glue: it routes inbound chat events to
// the vault, the dialog state machine and the debate orchestrator, and
// renders their results back as messages. No domain rules live here.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dmitrijs2005/debatekeeper/internal/bot/debate"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/dialog"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/providers"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/stream"
	"github.com/dmitrijs2005/debatekeeper/internal/bot/vault"
	"github.com/dmitrijs2005/debatekeeper/internal/common"
	"github.com/dmitrijs2005/debatekeeper/internal/logging"
)

// Telegram caps message text at 4096 characters.
const maxMessageLen = 4096

const defaultRounds = 3

// Sender delivers a message to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Recorder is the slice of metrics the handlers touch.
type Recorder interface {
	RecordCredentialCreated()
}

type nopRecorder struct{}

func (nopRecorder) RecordCredentialCreated() {}

// Handler routes chat events. Safe for concurrent use; debates run in their
// own goroutine so a long session does not stall the consumer loop.
type Handler struct {
	vault    *vault.Service
	orch     *debate.Orchestrator
	registry *providers.Registry
	dialogs  *dialog.Store
	sender   Sender
	metrics  Recorder
	logger   logging.Logger

	mu       sync.Mutex
	rounds   map[int64]int
	inFlight map[int64]bool
	wg       sync.WaitGroup
}

func New(v *vault.Service, orch *debate.Orchestrator, registry *providers.Registry,
	dialogs *dialog.Store, sender Sender, metrics Recorder, logger logging.Logger) *Handler {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Handler{
		vault:    v,
		orch:     orch,
		registry: registry,
		dialogs:  dialogs,
		sender:   sender,
		metrics:  metrics,
		logger:   logger,
		rounds:   make(map[int64]int),
		inFlight: make(map[int64]bool),
	}
}

// HandleEvent is the stream.Handler entrypoint.
func (h *Handler) HandleEvent(ctx context.Context, ev stream.Event) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		h.handleCommand(ctx, ev, text)
		return
	}

	switch st := h.dialogs.Get(ev.UserID).(type) {
	case dialog.AwaitingProvider:
		h.providerChosen(ctx, ev, text)
	case dialog.AwaitingSecret:
		h.secretReceived(ctx, ev, st, text)
	case dialog.AwaitingAlias:
		h.aliasReceived(ctx, ev, st, text)
	case dialog.AwaitingRounds:
		h.roundsReceived(ctx, ev, text)
	default:
		h.startDebate(ctx, ev, text)
	}
}

// Wait blocks until all in-flight debate goroutines have finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) handleCommand(ctx context.Context, ev stream.Event, text string) {
	fields := strings.Fields(text)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/start":
		h.dialogs.Reset(ev.UserID)
		h.reply(ctx, ev,
			"Hi! I am a debate bot: several AI models argue a topic of your choice, "+
				"using your own API keys.\n\n"+
				"/addkey - store an API key\n"+
				"/mykeys - list your keys\n"+
				"/use <n> - activate key number n\n"+
				"/rounds - set the number of rounds\n"+
				"/cancel - abort the current command\n\n"+
				"Send any other text to start a debate on it.")
	case "/addkey":
		h.dialogs.Set(ev.UserID, dialog.AwaitingProvider{})
		h.reply(ctx, ev, "Which provider is the key for? One of: "+
			strings.Join(h.registry.Names(), ", "))
	case "/mykeys":
		h.listKeys(ctx, ev)
	case "/use":
		h.useKey(ctx, ev, args)
	case "/rounds":
		h.dialogs.Set(ev.UserID, dialog.AwaitingRounds{})
		h.reply(ctx, ev, "How many rounds? Enter a number greater than 1.")
	case "/cancel":
		h.dialogs.Reset(ev.UserID)
		h.reply(ctx, ev, "Cancelled.")
	default:
		h.reply(ctx, ev, "Unknown command. Try /start.")
	}
}

func (h *Handler) providerChosen(ctx context.Context, ev stream.Event, text string) {
	name := strings.ToLower(strings.TrimSpace(text))
	if _, err := h.registry.Lookup(name); err != nil {
		h.reply(ctx, ev, "Unknown provider. One of: "+strings.Join(h.registry.Names(), ", "))
		return
	}
	h.dialogs.Set(ev.UserID, dialog.AwaitingSecret{Provider: name})
	h.reply(ctx, ev, fmt.Sprintf("Enter your %s API key:", name))
}

func (h *Handler) secretReceived(ctx context.Context, ev stream.Event, st dialog.AwaitingSecret, text string) {
	secret := strings.TrimSpace(text)

	caller, err := h.registry.Lookup(st.Provider)
	if err != nil {
		h.dialogs.Reset(ev.UserID)
		h.reply(ctx, ev, "Something went wrong, try /addkey again.")
		return
	}

	if err := caller.Validate(ctx, secret); err != nil {
		var perr *providers.Error
		if errors.As(err, &perr) && !perr.Retryable {
			h.reply(ctx, ev, "The provider rejected this key. Check it and enter again, or /cancel.")
			return
		}
		// Transient failure: store the key anyway rather than block the user.
		h.logger.Warn(ctx, "key validation inconclusive", "provider", st.Provider, "error", err)
	}

	h.dialogs.Set(ev.UserID, dialog.AwaitingAlias{Provider: st.Provider, Secret: secret})
	h.reply(ctx, ev, "Name this key (e.g. 'my gemini'):")
}

func (h *Handler) aliasReceived(ctx context.Context, ev stream.Event, st dialog.AwaitingAlias, text string) {
	info, err := h.vault.AddCredential(ctx, ev.UserID, st.Provider, st.Secret, text)
	switch {
	case errors.Is(err, common.ErrDuplicateAlias):
		h.reply(ctx, ev, "You already have a key with that name. Pick another, or /cancel.")
		return
	case errors.Is(err, common.ErrValidation):
		h.reply(ctx, ev, "That does not work: "+err.Error()+"\nTry again, or /cancel.")
		return
	case err != nil:
		h.logger.Error(ctx, "storing credential", "error", err)
		h.dialogs.Reset(ev.UserID)
		h.reply(ctx, ev, "Could not store the key, try again later.")
		return
	}

	h.metrics.RecordCredentialCreated()
	h.dialogs.Reset(ev.UserID)

	msg := fmt.Sprintf("Key '%s' (%s) added with %d calls.", info.Alias, info.Provider, info.Remaining)
	if info.IsActive {
		msg += " It is now the active key for " + info.Provider + "."
	}
	h.reply(ctx, ev, msg)
}

func (h *Handler) roundsReceived(ctx context.Context, ev stream.Event, text string) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 2 {
		h.reply(ctx, ev, "Enter a number greater than 1.")
		return
	}
	h.mu.Lock()
	h.rounds[ev.UserID] = n
	h.mu.Unlock()
	h.dialogs.Reset(ev.UserID)
	h.reply(ctx, ev, fmt.Sprintf("Rounds set to %d.", n))
}

func (h *Handler) listKeys(ctx context.Context, ev stream.Event) {
	keys, err := h.vault.ListCredentials(ctx, ev.UserID)
	if err != nil {
		h.logger.Error(ctx, "listing credentials", "error", err)
		h.reply(ctx, ev, "Could not list your keys, try again later.")
		return
	}
	if len(keys) == 0 {
		h.reply(ctx, ev, "You have no keys yet. Add one with /addkey.")
		return
	}

	var b strings.Builder
	b.WriteString("Your keys:\n")
	for i, k := range keys {
		marker := " "
		if k.IsActive {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %d. %s (%s) - %d calls left\n", marker, i+1, k.Alias, k.Provider, k.Remaining)
	}
	b.WriteString("\n* = active. Switch with /use <n>.")
	h.reply(ctx, ev, b.String())
}

func (h *Handler) useKey(ctx context.Context, ev stream.Event, args []string) {
	if len(args) != 1 {
		h.reply(ctx, ev, "Usage: /use <n> (see /mykeys for numbers).")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		h.reply(ctx, ev, "Usage: /use <n> (see /mykeys for numbers).")
		return
	}

	keys, err := h.vault.ListCredentials(ctx, ev.UserID)
	if err != nil {
		h.logger.Error(ctx, "listing credentials", "error", err)
		h.reply(ctx, ev, "Could not look up your keys, try again later.")
		return
	}
	if n > len(keys) {
		h.reply(ctx, ev, fmt.Sprintf("You only have %d keys.", len(keys)))
		return
	}

	target := keys[n-1]
	if err := h.vault.Activate(ctx, ev.UserID, target.ID); err != nil {
		h.logger.Error(ctx, "activating credential", "error", err)
		h.reply(ctx, ev, "Could not activate that key, try again later.")
		return
	}
	h.reply(ctx, ev, fmt.Sprintf("'%s' is now the active %s key.", target.Alias, target.Provider))
}

func (h *Handler) startDebate(ctx context.Context, ev stream.Event, topic string) {
	h.mu.Lock()
	if h.inFlight[ev.UserID] {
		h.mu.Unlock()
		h.reply(ctx, ev, "A debate is already running. Wait for it to finish.")
		return
	}
	h.inFlight[ev.UserID] = true
	rounds := h.rounds[ev.UserID]
	h.mu.Unlock()

	if rounds == 0 {
		rounds = defaultRounds
	}

	h.reply(ctx, ev, fmt.Sprintf("Debate started on: %s\nRounds: %d", topic, rounds))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			h.mu.Lock()
			delete(h.inFlight, ev.UserID)
			h.mu.Unlock()
		}()
		h.runDebate(ctx, ev, topic, rounds)
	}()
}

func (h *Handler) runDebate(ctx context.Context, ev stream.Event, topic string, rounds int) {
	res, err := h.orch.Run(ctx, ev.UserID, topic, rounds)
	if err != nil {
		if errors.Is(err, common.ErrNoEligibleParticipants) {
			h.reply(ctx, ev, "No usable keys: every provider is missing an active key or out of calls. Add one with /addkey.")
			return
		}
		h.logger.Error(ctx, "debate run", "error", err)
		if res == nil || len(res.Transcript) == 0 {
			h.reply(ctx, ev, "The debate could not run, try again later.")
			return
		}
		// Aborted mid-session: show what accumulated before the failure.
	}
	h.sendResult(ctx, ev, res)
}

func (h *Handler) sendResult(ctx context.Context, ev stream.Event, res *debate.Result) {
	for _, ex := range res.Excluded {
		h.reply(ctx, ev, fmt.Sprintf("%s sits this one out: %s", ex.Provider, ex.Reason))
	}

	round := 0
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			h.reply(ctx, ev, strings.TrimRight(b.String(), "\n"))
			b.Reset()
		}
	}
	for _, entry := range res.Transcript {
		if entry.Round != round {
			flush()
			round = entry.Round
			fmt.Fprintf(&b, "Round %d\n\n", round)
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", entry.Participant, entry.Text)
	}
	flush()

	for _, d := range res.Dropped {
		h.reply(ctx, ev, fmt.Sprintf("%s dropped out: %s", d.Provider, d.Reason))
	}

	switch res.Status {
	case debate.StatusComplete:
		h.reply(ctx, ev, "Debate finished.")
	default:
		msg := "Debate ended early"
		if res.Reason != "" {
			msg += ": " + res.Reason
		}
		h.reply(ctx, ev, msg+".")
	}
}

func (h *Handler) reply(ctx context.Context, ev stream.Event, text string) {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if err := h.sender.SendMessage(ctx, ev.ChatID, chunk); err != nil {
			h.logger.Error(ctx, "sending message", "chat_id", ev.ChatID, "error", err)
			return
		}
	}
}

// splitMessage breaks text into chunks of at most limit bytes, preferring
// line boundaries and never cutting inside a multi-byte rune (the Bot API
// rejects invalid UTF-8 outright).
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
