// Package tui renders the live watch dashboard: cluster slot progress on
// top, per-validator tower state below.
package tui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"vote-monitoring/internal/chain"
	"vote-monitoring/internal/correlator"
)

var headerStyle = lipgloss.NewStyle().Bold(true)

func padToWidth(s string, width int) string {
	current := runewidth.StringWidth(s)
	if current >= width {
		return s
	}
	return s + strings.Repeat(" ", width-current)
}

func truncateToWidth(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	truncated := ""
	for _, r := range s {
		if runewidth.StringWidth(truncated+string(r)) > width-3 {
			break
		}
		truncated += string(r)
	}
	return truncated + "..."
}

func separatorLine(width int) string {
	if width < 2 {
		return strings.Repeat("─", width)
	}
	return "├" + strings.Repeat("─", width-2) + "┤"
}

func formatInfoLine(text string, width int) string {
	if width < 2 {
		return padToWidth(text, width)
	}
	return "│" + padToWidth(text, width-2) + "│"
}

// SlotMsg updates the slot progress header.
type SlotMsg correlator.SlotUpdate

// TowerMsg updates one validator's tower row.
type TowerMsg correlator.TowerUpdate

// validatorRow is the rendered state of one tracked tower.
type validatorRow struct {
	identity  chain.Pubkey
	label     string
	depth     int
	credits   uint64
	lastVoted chain.Slot
}

// Model holds the TUI state.
type Model struct {
	currentSlot  chain.Slot
	parentSlot   chain.Slot
	ancestrySize int
	votesApplied uint64
	validators   map[chain.Pubkey]validatorRow
	width        int
	height       int
}

// NewModel creates a new TUI model.
func NewModel() Model {
	return Model{validators: make(map[chain.Pubkey]validatorRow)}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SlotMsg:
		m.currentSlot = msg.Slot
		m.parentSlot = msg.Parent
		m.ancestrySize = msg.AncestrySize
		return m, nil

	case TowerMsg:
		m.votesApplied++
		m.validators[msg.Identity] = validatorRow{
			identity:  msg.Identity,
			label:     msg.Label,
			depth:     msg.Depth,
			credits:   msg.Credits,
			lastVoted: msg.LastVoted,
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}

	return m, nil
}

// View renders the UI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.renderValidators())
}

// renderHeader renders the slot progress box.
func (m Model) renderHeader() string {
	lines := []string{
		headerStyle.Render(fmt.Sprintf("slot %d (parent %d)", m.currentSlot, m.parentSlot)),
		fmt.Sprintf("ancestry entries: %d", m.ancestrySize),
		fmt.Sprintf("votes applied: %d, validators tracked: %d", m.votesApplied, len(m.validators)),
	}

	topBorder := "┌" + strings.Repeat("─", m.width-2) + "┐"
	var rows []string
	for _, line := range lines {
		rows = append(rows, formatInfoLine(" "+truncateToWidth(line, m.width-4), m.width))
	}
	return topBorder + "\n" + strings.Join(rows, "\n") + "\n" + separatorLine(m.width)
}

// renderValidators renders the tower table, most recent vote first.
func (m Model) renderValidators() string {
	availableHeight := m.height - 6
	if availableHeight <= 2 {
		return ""
	}
	maxRows := availableHeight - 2

	rows := make([]validatorRow, 0, len(m.validators))
	for _, row := range m.validators {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].lastVoted != rows[j].lastVoted {
			return rows[i].lastVoted > rows[j].lastVoted
		}
		return rows[i].identity.String() < rows[j].identity.String()
	})
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	var lines []string
	for i, row := range rows {
		label := row.label
		if label == "" {
			label = row.identity.Short()
		}
		cell := fmt.Sprintf("%3d %-12s last vote %9d  depth %2d  credits %6d",
			i+1, truncateToWidth(label, 12), row.lastVoted, row.depth, row.credits)
		lines = append(lines, formatInfoLine(" "+truncateToWidth(cell, m.width-4), m.width))
	}
	if len(lines) == 0 {
		lines = append(lines, formatInfoLine(" waiting for votes...", m.width))
	}

	bottomBorder := "└" + strings.Repeat("─", m.width-2) + "┘"
	legend := formatInfoLine(" #, Validator, Last Vote Slot, Tower Depth, Credits", m.width)
	return strings.Join(lines, "\n") + "\n" + separatorLine(m.width) + "\n" + legend + "\n" + bottomBorder
}

// Run starts the TUI program and pumps correlator updates into it.
func Run(updateCh <-chan interface{}) error {
	m := NewModel()
	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for data := range updateCh {
			switch update := data.(type) {
			case correlator.SlotUpdate:
				p.Send(SlotMsg(update))
			case correlator.TowerUpdate:
				p.Send(TowerMsg(update))
			}
		}
		// Channel closed, quit TUI
		p.Quit()
	}()

	_, err := p.Run()
	return err
}
