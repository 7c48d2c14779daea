package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Ananth-NQI/menuchat-backend/internal/storage"
)

// messageCreator is the slice of the Twilio REST API used for sending.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioDialer connects tenants to WhatsApp through Twilio. Twilio needs no
// pairing: a tenant is connected as soon as its sender number is known.
// Inbound messages arrive through the webhook and are handed to Deliver.
type TwilioDialer struct {
	api    messageCreator
	store  storage.Store
	logger zerolog.Logger

	mu    sync.RWMutex
	conns map[string]*twilioConn
}

// NewTwilioDialer creates a Twilio-backed dialer from account credentials.
func NewTwilioDialer(accountSID, authToken string, store storage.Store, logger zerolog.Logger) (*TwilioDialer, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("missing Twilio credentials")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return newTwilioDialer(client.Api, store, logger), nil
}

func newTwilioDialer(api messageCreator, store storage.Store, logger zerolog.Logger) *TwilioDialer {
	return &TwilioDialer{
		api:    api,
		store:  store,
		logger: logger.With().Str("transport", "twilio").Logger(),
		conns:  make(map[string]*twilioConn),
	}
}

type twilioConn struct {
	*eventStream
	tenantID string
	from     string // Tenant's WhatsApp sender, "whatsapp:+14155238886"
	dialer   *TwilioDialer
}

// Dial implements Dialer.
func (d *TwilioDialer) Dial(ctx context.Context, tenantID string) (Conn, error) {
	tenant, err := d.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	if tenant.WhatsAppFrom == "" {
		return nil, fmt.Errorf("tenant %s has no WhatsApp sender configured", tenantID)
	}

	from := tenant.WhatsAppFrom
	if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}

	conn := &twilioConn{
		eventStream: newEventStream(),
		tenantID:    tenantID,
		from:        from,
		dialer:      d,
	}
	conn.emit(TransportEvent{Type: TransportConnected})

	d.mu.Lock()
	if old, ok := d.conns[tenantID]; ok {
		old.close()
	}
	d.conns[tenantID] = conn
	d.mu.Unlock()

	return conn, nil
}

// Deliver hands a webhook message to the tenant's connection.
func (d *TwilioDialer) Deliver(tenantID string, msg InboundMessage) error {
	d.mu.RLock()
	conn, ok := d.conns[tenantID]
	d.mu.RUnlock()

	if !ok || conn.isClosed() {
		return fmt.Errorf("%w: %s", ErrNotConnected, tenantID)
	}
	if !conn.emit(TransportEvent{Type: TransportMessage, Message: &msg}) {
		return ErrTransportClosed
	}
	return nil
}

// Send implements Conn by sending a WhatsApp message via Twilio.
func (c *twilioConn) Send(_ context.Context, to string, message string) error {
	if c.isClosed() {
		return ErrTransportClosed
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(c.from)
	params.SetTo(fmt.Sprintf("whatsapp:%s", to))
	params.SetBody(message)

	resp, err := c.dialer.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("send WhatsApp message: %w", err)
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		detail := ""
		if resp.ErrorMessage != nil {
			detail = *resp.ErrorMessage
		}
		return fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, detail)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	c.dialer.logger.Debug().Str("tenant_id", c.tenantID).Str("sid", sid).Msg("WhatsApp message sent")
	return nil
}

// Close implements Conn.
func (c *twilioConn) Close() error {
	c.close()

	c.dialer.mu.Lock()
	if cur, ok := c.dialer.conns[c.tenantID]; ok && cur == c {
		delete(c.dialer.conns, c.tenantID)
	}
	c.dialer.mu.Unlock()
	return nil
}
