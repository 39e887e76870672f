package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"skeddy/internal/reminder"
	rtsup "skeddy/internal/runtime/supervisor"
	kit "skeddy/internal/transport"
	logx "skeddy/pkg/logx"
)

const jobQueueCap = 256

// Request is one inbound chat message on its way through the handler chain.
type Request struct {
	Chat    kit.ChatTarget
	Owner   int64
	FromID  int64
	Command string // "" for free text
	Args    []string
	Text    string
	ReqID   string
	Logger  logx.Logger
}

// Command is a slash command the bot answers.
type Command struct {
	Name        string
	Description string
	Handle      HandlerFunc
}

// Handler routes chat updates to reminder operations and replies.
//
// Reminders are owned by the chat they were created in.
type Handler struct {
	log    logx.Logger
	sender kit.Sender
	intake *reminder.Intake
	store  *reminder.Store
	now    func() time.Time

	loc atomic.Pointer[time.Location]

	workers int
	timeout time.Duration
	runMu   sync.Mutex
	running bool

	commands map[string]Command
	order    []string
}

type Option func(*Handler)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithWorkers sets the number of concurrent request workers.
func WithWorkers(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.workers = n
		}
	}
}

// New returns a Handler with the built-in commands registered.
func New(sender kit.Sender, intake *reminder.Intake, store *reminder.Store, log logx.Logger, opts ...Option) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &Handler{
		log:     log,
		sender:  sender,
		intake:  intake,
		store:   store,
		now:     time.Now,
		workers: 4,
		timeout: 15 * time.Second,
	}
	h.loc.Store(time.Local)
	for _, o := range opts {
		o(h)
	}
	h.register(
		Command{Name: "start", Description: "Welcome and quick examples", Handle: h.cmdStart},
		Command{Name: "help", Description: "How to set reminders", Handle: h.cmdHelp},
		Command{Name: "list", Description: "View your active reminders", Handle: h.cmdList},
		Command{Name: "cancel", Description: "Cancel a reminder by ID", Handle: h.cmdCancel},
	)
	return h
}

func (h *Handler) register(cmds ...Command) {
	if h.commands == nil {
		h.commands = map[string]Command{}
	}
	for _, c := range cmds {
		h.commands[c.Name] = c
		h.order = append(h.order, c.Name)
	}
}

// Commands lists the slash commands for the platform menu.
func (h *Handler) Commands() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, kit.BotCommand{Command: name, Description: h.commands[name].Description})
	}
	return out
}

// SetLocation sets the zone used to interpret and render times.
func (h *Handler) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	h.loc.Store(loc)
}

func (h *Handler) Location() *time.Location { return h.loc.Load() }

// DispatchLoop consumes updates until ctx is done or the channel closes.
// Requests run on a bounded worker pool so one slow reply does not stall the rest.
func (h *Handler) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	h.runMu.Lock()
	if h.running {
		h.runMu.Unlock()
		return errors.New("bot: dispatch loop already running")
	}
	h.running = true
	jobs := make(chan func(), jobQueueCap)
	h.runMu.Unlock()

	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(h.log),
		rtsup.WithCancelOnError(false),
	)
	for i := 0; i < h.workers; i++ {
		sup.GoRestart("request.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					job()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}
	h.log.Info("dispatcher started", logx.Int("workers", h.workers), logx.Int("job_queue_cap", cap(jobs)))

	defer func() {
		h.runMu.Lock()
		h.running = false
		close(jobs)
		h.runMu.Unlock()
		// Wait briefly for workers to drain.
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		h.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind != kit.UpdateMessage || up.Message == nil {
				continue
			}
			msg := *up.Message
			select {
			case jobs <- func() { _ = h.Handle(ctx, msg) }:
			default:
				_ = h.reply(ctx, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, textBusy)
			}
		}
	}
}

// Handle processes one message synchronously.
func (h *Handler) Handle(ctx context.Context, msg kit.Message) error {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	req := &Request{
		Chat:   kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		Owner:  msg.ChatID,
		FromID: msg.FromID,
		Text:   text,
		ReqID:  uuid.NewString(),
	}

	handle := h.handleText
	if strings.HasPrefix(text, "/") {
		name, args := parseCommand(text)
		req.Command = name
		req.Args = args
		cmd, ok := h.commands[name]
		if !ok {
			handle = h.cmdUnknown
		} else {
			handle = cmd.Handle
		}
	}
	req.Logger = h.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int64("from_id", req.FromID),
	)

	final := Chain(handle,
		MWPanicRecover(),
		MWRequestLog(),
		MWTimeout(h.timeout),
	)
	return final(ctx, req)
}

// parseCommand splits "/cancel@skeddy_bot 3" into ("cancel", ["3"]).
func parseCommand(text string) (string, []string) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil
	}
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return word, parts[1:]
}

func (h *Handler) reply(ctx context.Context, to kit.ChatTarget, text string) error {
	if h.sender == nil {
		return nil
	}
	_, err := h.sender.SendText(ctx, to, text, htmlOpts)
	return err
}

func (h *Handler) cmdStart(ctx context.Context, req *Request) error {
	return h.reply(ctx, req.Chat, welcomeText)
}

func (h *Handler) cmdHelp(ctx context.Context, req *Request) error {
	return h.reply(ctx, req.Chat, helpText)
}

func (h *Handler) cmdList(ctx context.Context, req *Request) error {
	return h.reply(ctx, req.Chat, formatList(h.store.ListActive(req.Owner), h.Location()))
}

func (h *Handler) cmdCancel(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return h.reply(ctx, req.Chat, textCancelUsage)
	}
	id := strings.TrimPrefix(strings.Join(req.Args, " "), "#")
	if h.store.Cancel(req.Owner, id) {
		req.Logger.Info("reminder cancelled", logx.String("id", id))
		return h.reply(ctx, req.Chat, "✅ Reminder #"+escape(id)+" has been cancelled.")
	}
	return h.reply(ctx, req.Chat, "❌ Could not find reminder #"+escape(id)+".")
}

func (h *Handler) cmdUnknown(ctx context.Context, req *Request) error {
	return h.reply(ctx, req.Chat, textUnknown)
}

func (h *Handler) handleText(ctx context.Context, req *Request) error {
	r, err := h.intake.Accept(req.Owner, req.Text, h.now().In(h.Location()))
	switch {
	case err == nil:
		req.Logger.Info("reminder created", logx.String("id", r.ID), logx.Time("due_at", r.DueAt))
		return h.reply(ctx, req.Chat, formatCreated(r, h.Location()))
	case errors.Is(err, reminder.ErrNotUnderstood):
		return h.reply(ctx, req.Chat, textNotUnderstood)
	case errors.Is(err, reminder.ErrPastInstant):
		return h.reply(ctx, req.Chat, textPast)
	default:
		req.Logger.Error("processing reminder failed", logx.Err(err))
		return h.reply(ctx, req.Chat, textFailed)
	}
}
