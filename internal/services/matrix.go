package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/Ananth-NQI/menuchat-backend/internal/storage"
)

// MatrixDialer connects tenants to Matrix. Each tenant logs in with its own
// access token; a customer address is the room ID the customer talks in.
type MatrixDialer struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewMatrixDialer creates a Matrix dialer reading credentials from store.
func NewMatrixDialer(store storage.Store, logger zerolog.Logger) *MatrixDialer {
	return &MatrixDialer{
		store:  store,
		logger: logger.With().Str("transport", "matrix").Logger(),
	}
}

type matrixConn struct {
	*eventStream
	tenantID  string
	client    *mautrix.Client
	userID    id.UserID
	startedAt time.Time
	cancel    context.CancelFunc
	logger    zerolog.Logger
}

// Dial implements Dialer. The sync loop runs until Close or a sync failure,
// which is reported as a disconnect.
func (d *MatrixDialer) Dial(ctx context.Context, tenantID string) (Conn, error) {
	tenant, err := d.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	if tenant.MatrixHomeserver == "" || tenant.MatrixUserID == "" || tenant.MatrixAccessToken == "" {
		return nil, fmt.Errorf("tenant %s has no Matrix credentials configured", tenantID)
	}

	userID := id.UserID(tenant.MatrixUserID)
	client, err := mautrix.NewClient(tenant.MatrixHomeserver, userID, tenant.MatrixAccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	syncer, ok := client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return nil, fmt.Errorf("unexpected syncer type: %T", client.Syncer)
	}

	syncCtx, cancel := context.WithCancel(context.Background())
	conn := &matrixConn{
		eventStream: newEventStream(),
		tenantID:    tenantID,
		client:      client,
		userID:      userID,
		startedAt:   time.Now(),
		cancel:      cancel,
		logger:      d.logger.With().Str("tenant_id", tenantID).Logger(),
	}

	syncer.OnEventType(event.EventMessage, conn.handleMessageEvent)
	syncer.OnSync(func(context.Context, *mautrix.RespSync, string) bool {
		conn.emit(TransportEvent{Type: TransportHeartbeat})
		return true
	})

	conn.emit(TransportEvent{Type: TransportConnected})
	go conn.run(syncCtx)

	return conn, nil
}

func (c *matrixConn) run(ctx context.Context) {
	err := c.client.SyncWithContext(ctx)
	if ctx.Err() != nil {
		// Closed on purpose
		return
	}
	if err == nil {
		err = errors.New("matrix sync stopped")
	}
	c.logger.Warn().Err(err).Msg("matrix sync failed")
	c.emit(TransportEvent{Type: TransportDisconnected, Err: err})
}

// handleMessageEvent forwards text messages from other users.
func (c *matrixConn) handleMessageEvent(_ context.Context, evt *event.Event) {
	if evt.Sender == c.userID {
		return
	}
	// Skip backlog delivered by the initial sync
	if time.UnixMilli(evt.Timestamp).Before(c.startedAt) {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText || content.Body == "" {
		return
	}

	c.emit(TransportEvent{
		Type: TransportMessage,
		Message: &InboundMessage{
			ID:         evt.ID.String(),
			From:       evt.RoomID.String(),
			Text:       content.Body,
			ReceivedAt: time.UnixMilli(evt.Timestamp),
		},
	})
}

// Send implements Conn.
func (c *matrixConn) Send(ctx context.Context, to, text string) error {
	if c.isClosed() {
		return ErrTransportClosed
	}
	if _, err := c.client.SendText(ctx, id.RoomID(to), text); err != nil {
		return fmt.Errorf("send matrix message: %w", err)
	}
	return nil
}

// Close implements Conn.
func (c *matrixConn) Close() error {
	if c.close() {
		c.cancel()
	}
	return nil
}
