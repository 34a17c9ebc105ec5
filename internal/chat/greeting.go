package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/procurebot/internal/models"
)

// greetingIntro opens the automated first message of a negotiation.
const greetingIntro = "Thank you for your proposal on the subject. We have thoroughly reviewed the proposal and would like to request you to consider our targets and the following:"

// Greeting builds the automated buyer message that opens a negotiation with
// a breakdown of every item's target and quoted price and its terms.
func Greeting(details models.TargetDetails, now time.Time) models.ChatMessage {
	items := details.AllItems()
	blocks := make([]string, 0, len(items))
	for _, item := range items {
		blocks = append(blocks, itemBreakdown(item))
	}
	text := greetingIntro
	if len(blocks) > 0 {
		text += "\n\n" + strings.Join(blocks, "\n\n")
	}
	return models.ChatMessage{
		Sender:    models.RoleBuyer,
		Text:      text,
		Timestamp: models.NewTimestamp(now),
	}
}

func itemBreakdown(item models.Item) string {
	currency := ""
	if item.Currency != "" {
		currency = " " + item.Currency
	}
	return fmt.Sprintf("• Item: %s\n  Target price: %s%s\n  Quoted price: %s%s\n  Target terms: %s, %s, %s",
		orDefault(item.Name, "(unspecified)"),
		orDash(item.TargetPrice.String()), currency,
		orDash(item.QuotedPrice.String()), currency,
		orDash(item.PaymentTerms), orDash(item.FreightTerms), orDash(item.WarrantyTerms),
	)
}

func orDash(s string) string { return orDefault(s, "-") }

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
