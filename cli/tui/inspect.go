package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/uadp/adapter"
)

// InspectModel is a Bubble Tea model paging through decoded events.
type InspectModel struct {
	events   []*adapter.DecodedEvent
	cursor   int
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(events []*adapter.DecodedEvent) InspectModel {
	return InspectModel{events: events}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.events)-1 {
				m.cursor++
			}
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}
	if len(m.events) == 0 {
		return "No decoded messages\n" + helpStyle.Render("Press q or Ctrl+C to quit")
	}

	content := renderEvent(m.events[m.cursor])
	help := helpStyle.Render(fmt.Sprintf("Message %d of %d  •  ↑/↓ to page  •  q to quit", m.cursor+1, len(m.events)))
	return content + "\n" + help
}

func renderEvent(ev *adapter.DecodedEvent) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Network Message"))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(" ")
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	b.WriteString(labelStyle.Render("Kind:"))
	b.WriteString(" ")
	b.WriteString(kindStyle(ev.Kind).Render(ev.Kind))
	b.WriteString("\n")
	row("Publisher:", ev.PublisherID)
	row("Writer:", fmt.Sprintf("%d", ev.WriterID))
	row("Sequence:", fmt.Sprintf("%d", ev.SequenceNumber))
	if ev.Version != nil {
		row("Version:", ev.Version.String())
	}
	if ev.DataSet != "" {
		row("DataSet:", ev.DataSet)
	}
	if ev.Timestamp != "" {
		row("Timestamp:", ev.Timestamp)
	}
	if ev.Topic != "" {
		row("Topic:", ev.Topic)
	}
	if ev.Chunk != nil {
		row("Chunk:", fmt.Sprintf("%d+%d of %d", ev.Chunk.Offset, ev.Chunk.Size, ev.Chunk.Total))
	}

	var lines []string
	for _, f := range ev.Fields {
		name := f.Name
		if name == "" {
			name = fmt.Sprintf("#%d", f.Index)
		}
		lines = append(lines, fmt.Sprintf("%-20s %-14s %v", name, f.Type, f.Value))
	}
	for _, f := range ev.Schema {
		lines = append(lines, fmt.Sprintf("%-20s %-14s %s", f.Name, f.Type, f.Description))
	}
	if len(lines) > 0 {
		b.WriteString("\n")
		b.WriteString(panelStyle.Render(strings.Join(lines, "\n")))
	}

	return b.String()
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(events []*adapter.DecodedEvent) error {
	model := NewInspectModel(events)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders one event without full TUI (for fallback).
func RenderInspectStatic(ev *adapter.DecodedEvent) string {
	return lipgloss.NewStyle().Padding(1, 2).Render(renderEvent(ev))
}
