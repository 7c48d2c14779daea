package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
	"github.com/Ananth-NQI/menuchat-backend/internal/utils"
)

// Stepper advances one conversation by one inbound text.
type Stepper interface {
	Step(ctx context.Context, session *models.Session, text string) (*models.Session, []string)
}

// Sender delivers outbound text through a tenant's transport.
type Sender interface {
	Send(ctx context.Context, tenantID, to, text string) error
}

// AllowChecker answers allow-list lookups.
type AllowChecker interface {
	IsAllowed(ctx context.Context, tenantID, address string) (bool, error)
}

type routedMessage struct {
	msg  InboundMessage
	done chan error
}

// mailbox is the FIFO of messages waiting for one session key. A single
// drain goroutine exists per non-empty mailbox.
type mailbox struct {
	queue []routedMessage
}

// Router turns inbound messages into conversation steps and replies. Messages
// for the same (tenant, address) are processed one at a time in arrival
// order; different keys run concurrently.
type Router struct {
	sessions *SessionStore
	engine   Stepper
	configs  ConfigProvider
	allow    AllowChecker
	sender   Sender
	events   EventPublisher
	dedupe   *DedupeCache
	logger   zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	mailboxes map[models.SessionKey]*mailbox
	closed    bool
}

// RouterDeps collects the Router's collaborators. Dedupe is optional.
type RouterDeps struct {
	Sessions  *SessionStore
	Engine    Stepper
	Configs   ConfigProvider
	AllowList AllowChecker
	Sender    Sender
	Events    EventPublisher
	Dedupe    *DedupeCache
	Logger    zerolog.Logger
}

// NewRouter creates a router.
func NewRouter(deps RouterDeps) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		sessions:  deps.Sessions,
		engine:    deps.Engine,
		configs:   deps.Configs,
		allow:     deps.AllowList,
		sender:    deps.Sender,
		events:    deps.Events,
		dedupe:    deps.Dedupe,
		logger:    deps.Logger,
		baseCtx:   ctx,
		cancel:    cancel,
		mailboxes: make(map[models.SessionKey]*mailbox),
	}
}

// Route queues msg behind any earlier message from the same customer. The
// returned channel yields the processing result once and is then closed.
// Processing outlives ctx: a step that started is completed even if the
// tenant is stopped meanwhile.
func (r *Router) Route(ctx context.Context, tenantID string, msg InboundMessage) <-chan error {
	done := make(chan error, 1)

	address := utils.NormalizeAddress(msg.From)
	if address == "" {
		done <- fmt.Errorf("%w: %q", ErrInvalidAddress, msg.From)
		close(done)
		return done
	}

	if msg.ID != "" && r.dedupe != nil && r.dedupe.CheckAndMark(tenantID+"/"+msg.ID) {
		r.logger.Debug().Str("tenant_id", tenantID).Str("message_id", msg.ID).Msg("duplicate inbound message dropped")
		close(done)
		return done
	}

	key := models.SessionKey{TenantID: tenantID, Address: address}
	item := routedMessage{msg: msg, done: done}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		done <- ErrRouterClosed
		close(done)
		return done
	}

	if mb, ok := r.mailboxes[key]; ok {
		mb.queue = append(mb.queue, item)
		return done
	}

	r.mailboxes[key] = &mailbox{queue: []routedMessage{item}}
	r.wg.Add(1)
	go r.drain(key)
	return done
}

// ForwardPairing hands a pairing artifact to operators.
func (r *Router) ForwardPairing(tenantID, artifact string) {
	r.logger.Info().Str("tenant_id", tenantID).Msg("forwarding pairing artifact to operators")
	if r.events != nil {
		r.events.Publish(models.OperatorEvent{
			Type:     models.EventPairingReady,
			TenantID: tenantID,
			Artifact: artifact,
		})
	}
}

// Pending returns the number of keys with queued or running messages.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mailboxes)
}

// Close stops accepting messages and waits for queued ones to finish, or for
// ctx to end, whichever comes first.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	defer r.cancel()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) drain(key models.SessionKey) {
	defer r.wg.Done()

	for {
		r.mu.Lock()
		mb := r.mailboxes[key]
		if len(mb.queue) == 0 {
			delete(r.mailboxes, key)
			r.mu.Unlock()
			return
		}
		next := mb.queue[0]
		mb.queue[0] = routedMessage{}
		mb.queue = mb.queue[1:]
		r.mu.Unlock()

		err := r.process(r.baseCtx, key, next.msg)
		next.done <- err
		close(next.done)
	}
}

func (r *Router) process(ctx context.Context, key models.SessionKey, msg InboundMessage) error {
	logger := r.logger.With().Str("tenant_id", key.TenantID).Str("customer", key.Address).Logger()

	if err := r.admit(ctx, key); err != nil {
		logger.Debug().Err(err).Msg("inbound message dropped by allow-list")
		return err
	}

	session := r.sessions.GetOrCreate(key)
	next, replies := r.engine.Step(ctx, session, msg.Text)
	if next == nil {
		r.sessions.Remove(key)
	} else {
		r.sessions.Save(next)
	}

	for i, reply := range replies {
		if err := r.sender.Send(ctx, key.TenantID, key.Address, reply); err != nil {
			logger.Error().Err(err).
				Int("reply", i+1).
				Int("replies", len(replies)).
				Msg("failed to send reply, dropping the rest")
			return fmt.Errorf("send reply %d of %d: %w", i+1, len(replies), err)
		}
	}
	return nil
}

// admit applies the privacy gate. A tenant whose config cannot be read is
// treated as private, and an allow-list that cannot be read admits nobody.
func (r *Router) admit(ctx context.Context, key models.SessionKey) error {
	private := true
	if conf, err := r.configs.Get(ctx, key.TenantID); err == nil {
		private = conf.PrivacyMode
	}
	if !private {
		return nil
	}

	allowed, err := r.allow.IsAllowed(ctx, key.TenantID, key.Address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotAllowed, err)
	}
	if !allowed {
		return ErrNotAllowed
	}
	return nil
}
