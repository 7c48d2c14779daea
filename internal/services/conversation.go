package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
	"github.com/Ananth-NQI/menuchat-backend/internal/utils"
)

// ConfigProvider resolves a tenant's menu and price table.
type ConfigProvider interface {
	Get(ctx context.Context, tenantID string) (*models.TenantConfig, error)
}

// OrderSink persists confirmed orders.
type OrderSink interface {
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
}

const (
	defaultMinAddressLength = 10
	// Invalid inputs tolerated in a state before the retry prompt also
	// explains how to start over.
	maxSilentRetries = 1
)

var sizeAliases = map[string]string{
	"small":  "S",
	"medium": "M",
	"large":  "L",
}

// ConversationEngine drives one order conversation. Step is the only entry
// point; it never mutates the session it is given.
type ConversationEngine struct {
	configs       ConfigProvider
	orders        OrderSink
	minAddressLen int
	now           func() time.Time
	logger        zerolog.Logger
}

// EngineOption customizes a ConversationEngine.
type EngineOption func(*ConversationEngine)

// WithMinAddressLength sets the shortest delivery address accepted.
func WithMinAddressLength(n int) EngineOption {
	return func(e *ConversationEngine) {
		if n > 0 {
			e.minAddressLen = n
		}
	}
}

// WithClock replaces time.Now, used for open-hours checks.
func WithClock(now func() time.Time) EngineOption {
	return func(e *ConversationEngine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithEngineLogger sets the engine's logger.
func WithEngineLogger(logger zerolog.Logger) EngineOption {
	return func(e *ConversationEngine) {
		e.logger = logger
	}
}

// NewConversationEngine creates an engine reading prices from configs and
// saving confirmed orders to orders.
func NewConversationEngine(configs ConfigProvider, orders OrderSink, opts ...EngineOption) *ConversationEngine {
	e := &ConversationEngine{
		configs:       configs,
		orders:        orders,
		minAddressLen: defaultMinAddressLength,
		now:           time.Now,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Step applies one inbound text to session. It returns the session to keep,
// or nil when the conversation ended (confirmed, cancelled or closed), plus
// the replies to send in order.
func (e *ConversationEngine) Step(ctx context.Context, session *models.Session, text string) (*models.Session, []string) {
	if session == nil || session.State.Terminal() {
		return nil, nil
	}

	s := session.Clone()
	input := utils.NormalizeInput(text)

	if input == "cancel" {
		return nil, []string{msgCancelled}
	}

	conf, err := e.configs.Get(ctx, s.Key.TenantID)
	if err == nil && !usableConfig(conf) {
		err = ErrConfigUnavailable
	}
	if err != nil {
		if needsConfig(s.State, input) {
			e.logger.Warn().Err(err).Str("session", s.Key.String()).Msg("tenant config unavailable")
			return s, []string{msgUnavailable}
		}
		e.logger.Debug().Err(err).Str("session", s.Key.String()).Msg("tenant config unavailable, continuing unpriced step")
		conf = nil
	}

	if (input == "menu" || input == "restart") && s.State != models.StateStart {
		s.Order = models.Accumulator{}
		return e.advance(s, models.StateAwaitingMenuChoice), []string{menuPrompt(conf)}
	}

	switch s.State {
	case models.StateStart:
		return e.stepStart(s, conf, input)
	case models.StateAwaitingMenuChoice:
		return e.stepMenuChoice(s, conf, input)
	case models.StateAwaitingSize:
		return e.stepSize(s, conf, input)
	case models.StateAwaitingDrinkChoice:
		return e.stepDrinkChoice(s, conf, input)
	case models.StateAwaitingDrinkSelection:
		return e.stepDrinkSelection(s, conf, input)
	case models.StateAwaitingPaymentMethod:
		return e.stepPayment(s, conf, input)
	case models.StateAwaitingDeliveryMode:
		return e.stepDeliveryMode(s, conf, input)
	case models.StateAwaitingAddress:
		return e.stepAddress(s, conf, text)
	case models.StateAwaitingConfirmation:
		return e.stepConfirmation(ctx, s, conf, input)
	}

	e.logger.Error().Str("state", string(s.State)).Str("session", s.Key.String()).Msg("unknown session state, restarting")
	s.Order = models.Accumulator{}
	return e.advance(s, models.StateAwaitingMenuChoice), []string{welcomeMessage(conf)}
}

func (e *ConversationEngine) stepStart(s *models.Session, conf *models.TenantConfig, input string) (*models.Session, []string) {
	if !conf.IsOpen(e.now()) {
		return nil, []string{closedMessage(conf)}
	}

	// A customer who already knows the menu may open with their choice.
	if choice, ok := parseChoice(input, len(conf.Menu)); ok {
		return e.acceptMenuChoice(s, conf, choice)
	}
	return e.advance(s, models.StateAwaitingMenuChoice), []string{welcomeMessage(conf)}
}

func (e *ConversationEngine) stepMenuChoice(s *models.Session, conf *models.TenantConfig, input string) (*models.Session, []string) {
	choice, ok := parseChoice(input, len(conf.Menu))
	if !ok {
		return e.retry(s, conf, invalidChoice(len(conf.Menu)))
	}
	return e.acceptMenuChoice(s, conf, choice)
}

func (e *ConversationEngine) acceptMenuChoice(s *models.Session, conf *models.TenantConfig, choice int) (*models.Session, []string) {
	s.Order.MenuChoice = choice
	s.Order.MenuItem = conf.Menu[choice-1]
	return e.advance(s, models.StateAwaitingSize), []string{sizePrompt(conf, s.Order.MenuItem)}
}

func (e *ConversationEngine) stepSize(s *models.Session, conf *models.TenantConfig, input string) (*models.Session, []string) {
	size, ok := matchSize(conf, input)
	if !ok {
		return e.retry(s, conf, invalidSize(conf))
	}

	s.Order.Size = size.Token
	s.Order.Currency = conf.Currency
	s.Order.SizePrice = conf.SizePrices[size.Token]
	s.Order.Total = s.Order.ComputeTotal()

	if len(conf.Drinks) == 0 {
		return e.advance(s, models.StateAwaitingPaymentMethod), []string{paymentPrompt()}
	}
	return e.advance(s, models.StateAwaitingDrinkChoice), []string{drinkChoicePrompt()}
}

func (e *ConversationEngine) stepDrinkChoice(s *models.Session, conf *models.TenantConfig, input string) (*models.Session, []string) {
	switch input {
	case "yes", "y":
		s.Order.WantsDrink = true
		return e.advance(s, models.StateAwaitingDrinkSelection), []string{drinkSelectionPrompt(conf)}
	case "no", "n":
		s.Order.WantsDrink = false
		s.Order.DrinkChoice = 0
		s.Order.Drink = ""
		s.Order.DrinkPrice = 0
		s.Order.Total = s.Order.ComputeTotal()
		return e.advance(s, models.StateAwaitingPaymentMethod), []string{paymentPrompt()}
	}
	return e.retry(s, conf, msgYesNo)
}

func (e *ConversationEngine) stepDrinkSelection(s *models.Session, conf *models.TenantConfig, input string) (*models.Session, []string) {
	choice, ok := parseChoice(input, len(conf.Drinks))
	if !ok {
		return e.retry(s, conf, invalidChoice(len(conf.Drinks)))
	}

	price, _ := conf.DrinkPrice(choice)
	s.Order.DrinkChoice = choice
	s.Order.Drink = conf.Drinks[choice-1].Name
	s.Order.DrinkPrice = price
	s.Order.Total = s.Order.ComputeTotal()
	return e.advance(s, models.StateAwaitingPaymentMethod), []string{paymentPrompt()}
}

func (e *ConversationEngine) stepPayment(s *models.Session, conf *models.TenantConfig, input string) (*models.Session, []string) {
	choice, ok := parseChoice(input, len(paymentMethods))
	if !ok {
		return e.retry(s, conf, invalidChoice(len(paymentMethods)))
	}
	s.Order.PaymentMethod = paymentMethods[choice-1]
	return e.advance(s, models.StateAwaitingDeliveryMode), []string{deliveryPrompt(conf)}
}

func (e *ConversationEngine) stepDeliveryMode(s *models.Session, conf *models.TenantConfig, input string) (*models.Session, []string) {
	switch input {
	case "1", "delivery":
		s.Order.DeliveryMode = models.DeliveryModeDelivery
		s.Order.DeliveryFee = conf.DeliveryFee
		s.Order.Total = s.Order.ComputeTotal()
		return e.advance(s, models.StateAwaitingAddress), []string{addressPrompt(e.minAddressLen)}
	case "2", "pickup":
		s.Order.DeliveryMode = models.DeliveryModePickup
		s.Order.DeliveryFee = 0
		s.Order.Address = ""
		s.Order.Total = s.Order.ComputeTotal()
		return e.advance(s, models.StateAwaitingConfirmation), []string{confirmationPrompt(s.Order)}
	}
	return e.retry(s, conf, invalidChoice(2))
}

// stepAddress takes the raw text: addresses keep their original casing.
func (e *ConversationEngine) stepAddress(s *models.Session, conf *models.TenantConfig, text string) (*models.Session, []string) {
	address := strings.Join(strings.Fields(text), " ")
	if len([]rune(address)) < e.minAddressLen {
		return e.retry(s, conf, addressTooShort(e.minAddressLen))
	}
	s.Order.Address = address
	return e.advance(s, models.StateAwaitingConfirmation), []string{confirmationPrompt(s.Order)}
}

func (e *ConversationEngine) stepConfirmation(ctx context.Context, s *models.Session, conf *models.TenantConfig, input string) (*models.Session, []string) {
	if input != "confirm" {
		return e.retry(s, conf, msgConfirmOnly)
	}

	s.Order.Total = s.Order.ComputeTotal()
	replies := []string{confirmedMessage(s.Order)}

	created, err := e.orders.CreateOrder(ctx, buildOrder(s))
	if err != nil {
		err = errors.Join(ErrPersistenceFailure, err)
		e.logger.Error().Err(err).Str("session", s.Key.String()).Msg("failed to persist confirmed order")
		return nil, append(replies, msgSaveFailed)
	}

	e.logger.Info().
		Str("session", s.Key.String()).
		Str("order_id", created.ID).
		Int64("total", created.Total).
		Msg("order confirmed")
	return nil, append(replies, orderNumberMessage(created.ID))
}

// retry keeps the state and re-emits its prompt behind an error prefix.
// Repeated invalid input never resets the order: from the second miss on the
// reply also points at MENU and CANCEL, leaving the restart to the customer.
func (e *ConversationEngine) retry(s *models.Session, conf *models.TenantConfig, problem string) (*models.Session, []string) {
	s.Retries++

	var b strings.Builder
	b.WriteString(msgInvalidHead)
	b.WriteString(" ")
	b.WriteString(problem)
	b.WriteString("\n\n")
	b.WriteString(e.prompt(s, conf))
	if s.Retries > maxSilentRetries {
		b.WriteString("\n\n")
		b.WriteString(msgRetryHint)
	}
	return s, []string{b.String()}
}

func (e *ConversationEngine) advance(s *models.Session, next models.State) *models.Session {
	s.State = next
	s.Retries = 0
	return s
}

// needsConfig reports whether handling input in state reads the tenant's
// menu or prices. The other steps run on the accumulated order alone.
func needsConfig(state models.State, input string) bool {
	if input == "menu" || input == "restart" {
		return true
	}
	switch state {
	case models.StateAwaitingPaymentMethod, models.StateAwaitingAddress, models.StateAwaitingConfirmation:
		return false
	case models.StateAwaitingDrinkChoice:
		return input == "yes" || input == "y"
	}
	return true
}

// prompt is the question asked in the session's current state.
func (e *ConversationEngine) prompt(s *models.Session, conf *models.TenantConfig) string {
	switch s.State {
	case models.StateAwaitingSize:
		return sizePrompt(conf, s.Order.MenuItem)
	case models.StateAwaitingDrinkChoice:
		return drinkChoicePrompt()
	case models.StateAwaitingDrinkSelection:
		return drinkSelectionPrompt(conf)
	case models.StateAwaitingPaymentMethod:
		return paymentPrompt()
	case models.StateAwaitingDeliveryMode:
		return deliveryPrompt(conf)
	case models.StateAwaitingAddress:
		return addressPrompt(e.minAddressLen)
	case models.StateAwaitingConfirmation:
		return confirmationPrompt(s.Order)
	default:
		return menuPrompt(conf)
	}
}

func buildOrder(s *models.Session) *models.Order {
	return &models.Order{
		TenantID:        s.Key.TenantID,
		CustomerAddress: s.Key.Address,
		MenuItem:        s.Order.MenuItem,
		Size:            s.Order.Size,
		Drink:           s.Order.Drink,
		PaymentMethod:   s.Order.PaymentMethod,
		DeliveryMode:    s.Order.DeliveryMode,
		Address:         s.Order.Address,
		SizePrice:       s.Order.SizePrice,
		DrinkPrice:      s.Order.DrinkPrice,
		DeliveryFee:     s.Order.DeliveryFee,
		Total:           s.Order.Total,
		Status:          models.OrderStatusReceived,
	}
}

func usableConfig(conf *models.TenantConfig) bool {
	return conf != nil && len(conf.Menu) > 0 && len(conf.Sizes) > 0
}

// parseChoice accepts "2" or "2." for a 1-based choice up to max.
func parseChoice(input string, max int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSuffix(input, "."))
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n, true
}

func matchSize(conf *models.TenantConfig, input string) (models.SizeOption, bool) {
	for _, size := range conf.Sizes {
		if input == strings.ToLower(size.Token) || input == strings.ToLower(size.Label) {
			return size, true
		}
	}
	if token, ok := sizeAliases[input]; ok {
		for _, size := range conf.Sizes {
			if size.Token == token {
				return size, true
			}
		}
	}
	return models.SizeOption{}, false
}
