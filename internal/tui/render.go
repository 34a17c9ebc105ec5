package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/zulandar/procurebot/internal/chat"
	"github.com/zulandar/procurebot/internal/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E53935"))
	liveStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#36A64F"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF9800"))
	endedStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#9E9E9E"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3"))

	chipActive    = lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("#1B5E20")).Foreground(lipgloss.Color("#FFFFFF"))
	chipConcluded = lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("#424242")).Foreground(lipgloss.Color("#FFFFFF"))

	bubbleBase = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
	buyerBubble    = bubbleBase.BorderForeground(lipgloss.Color("#2196F3"))
	supplierBubble = bubbleBase.BorderForeground(lipgloss.Color("#36A64F"))
	systemBubble   = bubbleBase.BorderForeground(lipgloss.Color("#FF9800"))

	labelStyle = lipgloss.NewStyle().Bold(true)
	timeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

func statusChip(status string) string {
	if status == "Concluded" {
		return chipConcluded.Render(status)
	}
	return chipActive.Render(status)
}

// renderBubbles lays bubbles out for a chat area of the given width.
// Supplier bubbles sit on the right.
func renderBubbles(bubbles []chat.Bubble, width int) string {
	if len(bubbles) == 0 {
		return helpStyle.Render("No messages yet.")
	}
	if width <= 0 {
		width = 80
	}
	maxWidth := max(width*2/3, 20)

	blocks := make([]string, len(bubbles))
	for i, b := range bubbles {
		blocks[i] = renderBubble(b, width, maxWidth)
	}
	return strings.Join(blocks, "\n")
}

func renderBubble(b chat.Bubble, width, maxWidth int) string {
	style := buyerBubble
	switch b.Sender {
	case models.RoleSupplier:
		style = supplierBubble
	case models.RoleSystem:
		style = systemBubble
	}
	content := labelStyle.Render(b.Label) + "\n" + b.Body
	if b.Time != "" {
		content += "\n" + timeStyle.Render(b.Time)
	}
	// Width counts padding but not the border.
	box := style.Width(min(maxWidth-2, lipgloss.Width(content)+2)).Render(content)

	pos := lipgloss.Left
	if b.Align == chat.AlignRight {
		pos = lipgloss.Right
	}
	return lipgloss.PlaceHorizontal(width, pos, box)
}
