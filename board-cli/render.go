package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/123123eeqweq/omocrm/domain"
)

var (
	colorAccent = lipgloss.Color("#b0853c")
	colorDone   = lipgloss.Color("#8ec07c")
	colorDim    = lipgloss.Color("#928374")

	styleHeader = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleDim    = lipgloss.NewStyle().Foreground(colorDim)
	styleDone   = lipgloss.NewStyle().Foreground(colorDone).Strikethrough(true)
	styleColumn = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1).
			Width(30)
)

func renderBoard(b domain.Board, cols []domain.Column, cardsOnly bool) string {
	boxes := make([]string, 0, len(cols))
	for _, col := range cols {
		var sb strings.Builder
		cards := domain.CardsIn(b.Cards, col.ID)
		sb.WriteString(styleHeader.Render(fmt.Sprintf("%s (%d)", col.Title, len(cards))))
		for _, c := range cards {
			title := c.Title
			if c.ColumnID == domain.ColumnDone {
				title = styleDone.Render(title)
			}
			sb.WriteString("\n" + title + "\n" + styleDim.Render(c.ID))
		}
		boxes = append(boxes, styleColumn.Render(sb.String()))
	}
	out := lipgloss.JoinHorizontal(lipgloss.Top, boxes...) + "\n"
	if cardsOnly {
		return out
	}

	var sb strings.Builder
	sb.WriteString("\n" + styleHeader.Render("Дорожная карта") + "\n")
	if len(b.Steps) == 0 {
		sb.WriteString(styleDim.Render("(пусто)") + "\n")
	}
	for i, s := range b.Steps {
		mark := "[ ]"
		title := s.Title
		if s.Completed {
			mark = "[x]"
			title = styleDone.Render(title)
		}
		fmt.Fprintf(&sb, "%2d. %s %s  %s\n", domain.StepNumber(i), mark, title, styleDim.Render(s.ID))
	}
	return out + sb.String()
}
