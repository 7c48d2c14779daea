package services

import (
	"fmt"
	"strings"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
)

// Customer-facing texts. Every text is a pure function of its inputs so a
// conversation can be replayed exactly.

const (
	msgCancelled   = "👋 Your order was cancelled. Send any message to start a new one."
	msgUnavailable = "⏳ Ordering is temporarily unavailable. Please try again in a few minutes."
	msgRetryHint   = "💡 Reply *MENU* to start over or *CANCEL* to stop."
	msgYesNo       = "Please reply *YES* or *NO*."
	msgConfirmOnly = "Please reply *CONFIRM* to place the order or *CANCEL* to drop it."
	msgSaveFailed  = "⚠️ Sorry, we could not save your order. Nothing was charged. Please send any message to start again."
	msgInvalidHead = "❌ Sorry, I didn't understand that."
)

// paymentMethods is the fixed payment vocabulary, in display order.
var paymentMethods = []string{"Cash", "Card", "Online transfer"}

func welcomeMessage(conf *models.TenantConfig) string {
	return fmt.Sprintf("👋 Welcome to *%s*!\n\n%s", conf.Name, menuPrompt(conf))
}

func closedMessage(conf *models.TenantConfig) string {
	return fmt.Sprintf("🕐 *%s* is closed right now. Opening hours: %s.", conf.Name, conf.OpenHours)
}

func menuPrompt(conf *models.TenantConfig) string {
	var b strings.Builder
	b.WriteString("🍽️ *Menu*\n")
	for i, item := range conf.Menu {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	b.WriteString("\nReply with the number of your choice.")
	return b.String()
}

func sizePrompt(conf *models.TenantConfig, item string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ %s\n\n📏 *Choose a size*\n", item)
	for _, size := range conf.Sizes {
		fmt.Fprintf(&b, "%s - %s (%s)\n", size.Token, size.Label, models.FormatMoney(conf.Currency, size.Price))
	}
	b.WriteString("\nReply with the size letter.")
	return b.String()
}

func drinkChoicePrompt() string {
	return "🥤 Would you like a drink with that? Reply *YES* or *NO*."
}

func drinkSelectionPrompt(conf *models.TenantConfig) string {
	var b strings.Builder
	b.WriteString("🥤 *Drinks*\n")
	for i, drink := range conf.Drinks {
		fmt.Fprintf(&b, "%d. %s (+%s)\n", i+1, drink.Name, models.FormatMoney(conf.Currency, drink.Price))
	}
	b.WriteString("\nReply with the number of your drink.")
	return b.String()
}

func paymentPrompt() string {
	var b strings.Builder
	b.WriteString("💳 *How will you pay?*\n")
	for i, method := range paymentMethods {
		fmt.Fprintf(&b, "%d. %s\n", i+1, method)
	}
	b.WriteString("\nReply with the number of your choice.")
	return b.String()
}

// deliveryPrompt omits the fee when conf is nil.
func deliveryPrompt(conf *models.TenantConfig) string {
	if conf == nil {
		return "🛵 *Delivery or pickup?*\n1. Delivery\n2. Pickup (free)\n\nReply 1 or 2."
	}
	return fmt.Sprintf("🛵 *Delivery or pickup?*\n1. Delivery (+%s)\n2. Pickup (free)\n\nReply 1 or 2.",
		models.FormatMoney(conf.Currency, conf.DeliveryFee))
}

func addressPrompt(minLen int) string {
	return fmt.Sprintf("📍 Please send your full delivery address (at least %d characters).", minLen)
}

func orderSummary(order models.Accumulator) string {
	var b strings.Builder
	b.WriteString("🧾 *Order summary*\n")
	fmt.Fprintf(&b, "• %s (%s): %s\n", order.MenuItem, order.Size, models.FormatMoney(order.Currency, order.SizePrice))
	if order.WantsDrink && order.Drink != "" {
		fmt.Fprintf(&b, "• %s: %s\n", order.Drink, models.FormatMoney(order.Currency, order.DrinkPrice))
	}
	fmt.Fprintf(&b, "• Payment: %s\n", order.PaymentMethod)
	if order.DeliveryMode == models.DeliveryModeDelivery {
		fmt.Fprintf(&b, "• Delivery to: %s\n", order.Address)
		fmt.Fprintf(&b, "• Delivery fee: %s\n", models.FormatMoney(order.Currency, order.DeliveryFee))
	} else {
		b.WriteString("• Pickup at the store\n")
	}
	fmt.Fprintf(&b, "\n💰 *Total: %s*", models.FormatMoney(order.Currency, order.Total))
	return b.String()
}

func confirmationPrompt(order models.Accumulator) string {
	return orderSummary(order) + "\n\nReply *CONFIRM* to place the order or *CANCEL* to drop it."
}

func confirmedMessage(order models.Accumulator) string {
	return "🎉 *Order confirmed!*\n\n" + orderSummary(order)
}

func orderNumberMessage(orderID string) string {
	return fmt.Sprintf("📦 Your order number is *%s*. Thank you!", orderID)
}

func invalidChoice(max int) string {
	if max == 1 {
		return "Please reply with 1."
	}
	return fmt.Sprintf("Please reply with a number from 1 to %d.", max)
}

func invalidSize(conf *models.TenantConfig) string {
	tokens := make([]string, 0, len(conf.Sizes))
	for _, size := range conf.Sizes {
		tokens = append(tokens, size.Token)
	}
	return fmt.Sprintf("Please reply with one of: %s.", strings.Join(tokens, ", "))
}

func addressTooShort(minLen int) string {
	return fmt.Sprintf("That address looks too short (at least %d characters).", minLen)
}
