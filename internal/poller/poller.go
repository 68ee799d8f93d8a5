// Package poller owns the WhatsApp session and the periodic scan that feeds
// new chat messages into ingestion.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mikig28/secbrain/internal/browser"
	"github.com/mikig28/secbrain/internal/extract"
	"github.com/mikig28/secbrain/internal/ingest"
)

var (
	// ErrNoOpenChat is returned by Start when no conversation is open and
	// an open chat is required.
	ErrNoOpenChat = errors.New("no open chat detected")
	// ErrNotRunning is returned by operations that need a live session.
	ErrNotRunning = errors.New("poller not running")

	errStopped     = errors.New("poller stopped")
	errNoSession   = errors.New("no session")
	errSessionDead = errors.New("session not live")
)

// Chat is a connected WhatsApp Web page.
type Chat interface {
	Connect(ctx context.Context) error
	ChatOpen(ctx context.Context) (bool, error)
	Snapshot(ctx context.Context) ([]extract.RawNode, error)
	ImageData(ctx context.Context, id string) ([]byte, error)
	QRCode(ctx context.Context) ([]byte, error)
	IsLive(ctx context.Context) bool
	Close() error
}

// ChatFactory returns a new, unconnected Chat for target.
type ChatFactory func(target string) Chat

// Handler persists one extracted message.
type Handler interface {
	Process(ctx context.Context, msg extract.ChatMessage) ingest.Outcome
}

// Status is a point-in-time view of the poller.
type Status struct {
	State      string         `json:"state"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	LastPollAt *time.Time     `json:"last_poll_at,omitempty"`
	Polls      int            `json:"polls"`
	Seen       int            `json:"seen"`
	Reconnects int            `json:"reconnects"`
	LastError  string         `json:"last_error,omitempty"`
	Ingested   ingest.Outcome `json:"ingested"`
}

// Poller drives the session state machine. At most one Chat is held at a
// time.
type Poller struct {
	cfg     Config
	newChat ChatFactory
	handler Handler
	log     *zap.Logger
	now     func() time.Time

	mu         sync.Mutex
	state      State
	gen        uint64
	chat       Chat
	sched      *cron.Cron
	cancel     context.CancelFunc
	seen       map[string]struct{}
	primed     bool
	startedAt  time.Time
	lastPoll   time.Time
	polls      int
	reconnects int
	failures   int
	lastErr    error
	totals     ingest.Outcome
}

// New returns an Uninitialized poller.
func New(cfg Config, newChat ChatFactory, handler Handler, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.L()
	}
	return &Poller{
		cfg:     cfg.withDefaults(),
		newChat: newChat,
		handler: handler,
		log:     log.Named("poller"),
		now:     time.Now,
		seen:    make(map[string]struct{}),
	}
}

// Start connects, waits for an open chat, runs the first poll cycle and
// schedules the rest. It returns once polling has begun or setup failed.
// Calling Start on an active poller does nothing.
//
// ctx bounds setup and the first cycle only. The session outlives it and
// ends with Stop.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if state := p.state; state.Active() {
		p.mu.Unlock()
		p.log.Debug("start ignored, already active", zap.Stringer("state", state))
		return nil
	}
	sessCtx, cancel := context.WithCancel(context.Background())
	p.gen++
	gen := p.gen
	p.state = Connecting
	p.cancel = cancel
	p.startedAt = p.now()
	p.lastErr = nil
	p.failures = 0
	p.mu.Unlock()

	setupCtx, setupCancel := context.WithCancel(sessCtx)
	defer setupCancel()
	stop := context.AfterFunc(ctx, setupCancel)
	defer stop()

	p.log.Info("starting", zap.String("target", p.cfg.TargetAddress))
	if err := p.connect(setupCtx, gen); err != nil {
		p.terminate(gen, err)
		return err
	}
	if err := p.prime(setupCtx); err != nil {
		p.terminate(gen, err)
		return err
	}
	if !p.transition(gen, Ready) {
		return errStopped
	}

	p.cycle(setupCtx, gen)

	logger := cronLogger{sugar: p.log.Sugar()}
	sched := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	sched.Schedule(cron.Every(p.cfg.PollInterval), cron.FuncJob(func() { p.cycle(sessCtx, gen) }))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return errStopped
	}
	if p.state == Terminated {
		if p.lastErr != nil {
			return p.lastErr
		}
		return errStopped
	}
	if p.state == Ready {
		p.state = Polling
	}
	p.sched = sched
	sched.Start()
	p.log.Info("polling", zap.Duration("interval", p.cfg.PollInterval))
	return nil
}

// Stop cancels the schedule, lets an in-flight cycle finish for up to
// ConnectionTimeout and closes the session. Stopping an inactive poller
// does nothing.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.state.Active() {
		p.mu.Unlock()
		return nil
	}
	p.state = Terminated
	sched, cancel, chat := p.sched, p.cancel, p.chat
	p.sched, p.chat = nil, nil
	p.mu.Unlock()

	if sched != nil {
		done := sched.Stop()
		select {
		case <-done.Done():
		case <-time.After(p.cfg.ConnectionTimeout):
			p.log.Warn("poll cycle still running, closing session anyway")
		}
	}
	if cancel != nil {
		cancel()
	}

	var err error
	if chat != nil {
		if cerr := chat.Close(); cerr != nil {
			err = fmt.Errorf("close session: %w", cerr)
		}
	}
	p.log.Info("stopped")
	return err
}

// State returns the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		State:      p.state.String(),
		Polls:      p.polls,
		Seen:       len(p.seen),
		Reconnects: p.reconnects,
		Ingested:   p.totals,
	}
	if !p.startedAt.IsZero() {
		t := p.startedAt
		s.StartedAt = &t
	}
	if !p.lastPoll.IsZero() {
		t := p.lastPoll
		s.LastPollAt = &t
	}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	return s
}

// QRCode captures the login QR code of the current session.
func (p *Poller) QRCode(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	chat := p.chat
	p.mu.Unlock()
	if chat == nil {
		return nil, ErrNotRunning
	}
	return chat.QRCode(ctx)
}

// transition moves to state to unless session gen was stopped meanwhile.
func (p *Poller) transition(gen uint64, to State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen || p.state == Terminated {
		return false
	}
	p.state = to
	return true
}

// connect obtains a new Chat, connects it and waits for an open chat. On
// failure the Chat is released.
func (p *Poller) connect(ctx context.Context, gen uint64) error {
	chat := p.newChat(p.cfg.TargetAddress)

	p.mu.Lock()
	if p.gen != gen || p.state == Terminated {
		p.mu.Unlock()
		return errStopped
	}
	p.state = Connecting
	p.chat = chat
	p.mu.Unlock()

	if err := p.acquire(ctx, gen, chat); err != nil {
		p.release(chat)
		return err
	}
	return nil
}

func (p *Poller) acquire(ctx context.Context, gen uint64, chat Chat) error {
	if err := chat.Connect(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w", p.cfg.TargetAddress, err)
	}
	if !p.transition(gen, AwaitingChat) {
		return errStopped
	}
	return p.awaitChat(ctx, chat)
}

func (p *Poller) awaitChat(ctx context.Context, chat Chat) error {
	attempts := p.cfg.ChatDetectionAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		open, err := chat.ChatOpen(ctx)
		if err == nil && open {
			p.log.Info("chat open", zap.Int("attempt", attempt))
			return nil
		}
		if err != nil {
			p.log.Debug("chat probe failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.ChatDetectionDelay):
		}
	}

	if p.cfg.RequireOpenChat {
		return fmt.Errorf("after %d attempts: %w", attempts, ErrNoOpenChat)
	}
	p.log.Warn("no open chat detected, polling anyway", zap.Int("attempts", attempts))
	return nil
}

// release closes chat if it is still the current handle. A handle taken by
// Stop is closed there.
func (p *Poller) release(chat Chat) {
	p.mu.Lock()
	current := p.chat == chat
	if current {
		p.chat = nil
	}
	p.mu.Unlock()
	if !current {
		return
	}
	if err := chat.Close(); err != nil {
		p.log.Warn("close session", zap.Error(err))
	}
}

// prime marks the messages already on screen as seen, once per poller.
func (p *Poller) prime(ctx context.Context) error {
	p.mu.Lock()
	if p.primed || p.cfg.IngestBacklog {
		p.primed = true
		p.mu.Unlock()
		return nil
	}
	chat := p.chat
	p.mu.Unlock()
	if chat == nil {
		return errStopped
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
	defer cancel()
	nodes, err := chat.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("prime seen messages: %w", err)
	}

	p.mu.Lock()
	for _, n := range nodes {
		if n.ExternalID != "" {
			p.seen[n.ExternalID] = struct{}{}
		}
	}
	p.primed = true
	p.mu.Unlock()
	p.log.Info("skipping messages already on screen", zap.Int("count", len(nodes)))
	return nil
}

// cycle is one poll of session gen: ingest every unseen message in DOM
// order, or recover a dead session. The scan runs under ConnectionTimeout
// and a scan that overruns it counts as a dead session.
func (p *Poller) cycle(ctx context.Context, gen uint64) {
	if ctx.Err() != nil {
		return
	}
	p.mu.Lock()
	chat, current := p.chat, p.gen == gen && p.state != Terminated
	p.mu.Unlock()

	switch {
	case !current:
		return
	case chat == nil:
		p.reconnect(ctx, gen, errNoSession)
		return
	}

	scanCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
	err := p.scan(scanCtx, chat)
	timedOut := errors.Is(scanCtx.Err(), context.DeadlineExceeded)
	cancel()

	switch {
	case ctx.Err() != nil:
	case timedOut:
		p.reconnect(ctx, gen, fmt.Errorf("poll cycle exceeded %s: %w", p.cfg.ConnectionTimeout, context.DeadlineExceeded))
	case err == nil:
	case errors.Is(err, errSessionDead), errors.Is(err, browser.ErrDetached):
		p.reconnect(ctx, gen, err)
	default:
		p.recordError(err)
	}
}

// scan reads the page once and hands unseen messages to the handler. It
// stops early once ctx ends, leaving the remaining ids unseen.
func (p *Poller) scan(ctx context.Context, chat Chat) error {
	if !chat.IsLive(ctx) {
		return errSessionDead
	}
	nodes, err := chat.Snapshot(ctx)
	if err != nil {
		return err
	}

	var out ingest.Outcome
	fresh := 0
	defer func() { p.finishCycle(out, fresh) }()

	for _, node := range nodes {
		if ctx.Err() != nil {
			return nil
		}
		if node.ExternalID == "" || p.isSeen(node.ExternalID) {
			continue
		}
		if node.ImageRef != "" {
			data, err := chat.ImageData(ctx, node.ExternalID)
			switch {
			case err == nil:
				node.ImageData = data
			case errors.Is(err, browser.ErrDetached):
				return err
			case ctx.Err() != nil:
				return nil
			default:
				p.log.Warn("capture image", zap.String("message_id", node.ExternalID), zap.Error(err))
			}
		}

		msg := extract.Extract(node)
		if !msg.Ignorable() {
			out.Add(p.handler.Process(ctx, msg))
			if ctx.Err() != nil {
				return nil
			}
		}
		p.markSeen(node.ExternalID)
		fresh++
	}
	return nil
}

func (p *Poller) finishCycle(out ingest.Outcome, fresh int) {
	p.mu.Lock()
	p.polls++
	p.lastPoll = p.now()
	p.totals.Add(out)
	p.mu.Unlock()

	if fresh > 0 {
		p.log.Info("processed new messages",
			zap.Int("messages", fresh),
			zap.Int("videos", out.VideosAdded),
			zap.Int("links", out.LinksAdded),
			zap.Int("entries", out.EntriesAdded),
			zap.Int("images", out.ImagesStored),
			zap.Int("errors", out.Errors))
	}
}

// reconnect drops the current session and runs the connect sequence once.
// Consecutive failures beyond MaxReconnectAttempts terminate the poller.
func (p *Poller) reconnect(ctx context.Context, gen uint64, cause error) {
	p.mu.Lock()
	if p.gen != gen || p.state == Terminated {
		p.mu.Unlock()
		return
	}
	p.state = Degraded
	old := p.chat
	p.chat = nil
	p.reconnects++
	attempt := p.failures + 1
	p.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			p.log.Debug("close stale session", zap.Error(err))
		}
	}

	p.log.Warn("session degraded, reconnecting", zap.NamedError("cause", cause), zap.Int("attempt", attempt))
	err := p.connect(ctx, gen)
	if err == nil {
		p.mu.Lock()
		if p.gen == gen && p.state != Terminated {
			p.state = Polling
		}
		p.failures = 0
		p.mu.Unlock()
		p.log.Info("session reconnected")
		return
	}
	if errors.Is(err, errStopped) {
		return
	}
	if ctx.Err() != nil {
		p.mu.Lock()
		if p.gen == gen && p.state != Terminated {
			p.state = Degraded
		}
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	p.failures++
	p.lastErr = err
	giveUp := p.cfg.MaxReconnectAttempts > 0 && p.failures >= p.cfg.MaxReconnectAttempts
	if !giveUp && p.gen == gen && p.state != Terminated {
		p.state = Degraded
	}
	p.mu.Unlock()

	if giveUp {
		p.terminate(gen, fmt.Errorf("giving up after %d reconnect attempts: %w", p.cfg.MaxReconnectAttempts, err))
		return
	}
	p.log.Warn("reconnect failed", zap.Error(err))
}

// terminate tears session gen down after a fatal error. Unlike Stop it
// does not wait for the schedule, so it is safe to call from a cycle.
func (p *Poller) terminate(gen uint64, err error) {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	chat, sched, cancel := p.chat, p.sched, p.cancel
	p.chat, p.sched = nil, nil
	p.state = Terminated
	if err != nil {
		p.lastErr = err
	}
	p.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if chat != nil {
		if cerr := chat.Close(); cerr != nil {
			p.log.Warn("close session", zap.Error(cerr))
		}
	}
	p.log.Error("terminated", zap.Error(err))
}

func (p *Poller) recordError(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.totals.Errors++
	p.mu.Unlock()
	p.log.Warn("poll cycle failed", zap.Error(err))
}

func (p *Poller) isSeen(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.seen[id]
	return ok
}

func (p *Poller) markSeen(id string) {
	p.mu.Lock()
	p.seen[id] = struct{}{}
	p.mu.Unlock()
}
