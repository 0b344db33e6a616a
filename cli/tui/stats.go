package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/uadp/adapter"
	"github.com/pithecene-io/uadp/metrics"
)

// DefaultRefresh is how often the dashboard polls the collector.
const DefaultRefresh = 500 * time.Millisecond

// DefaultRecent is how many decoded events the dashboard keeps on screen.
const DefaultRecent = 10

// SnapshotFunc returns the current decoder counters.
type SnapshotFunc func() metrics.Snapshot

type tickMsg time.Time

type eventMsg struct {
	event *adapter.DecodedEvent
}

type eventsClosedMsg struct{}

// StatsModel is a live dashboard of decoder counters and recent events.
type StatsModel struct {
	source    SnapshotFunc
	events    <-chan *adapter.DecodedEvent
	refresh   time.Duration
	maxRecent int

	snapshot metrics.Snapshot
	recent   []*adapter.DecodedEvent
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a dashboard reading counters from source and
// decoded events from events. A nil events channel shows counters only.
func NewStatsModel(source SnapshotFunc, events <-chan *adapter.DecodedEvent) StatsModel {
	m := StatsModel{
		source:    source,
		events:    events,
		refresh:   DefaultRefresh,
		maxRecent: DefaultRecent,
	}
	if source != nil {
		m.snapshot = source()
	}
	return m
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.waitForEvent())
}

func (m StatsModel) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m StatsModel) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	ch := m.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		if m.source != nil {
			m.snapshot = m.source()
		}
		return m, m.tick()

	case eventMsg:
		m.recent = append([]*adapter.DecodedEvent{msg.event}, m.recent...)
		if len(m.recent) > m.maxRecent {
			m.recent = m.recent[:m.maxRecent]
		}
		return m, m.waitForEvent()

	case eventsClosedMsg:
		m.events = nil
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	s := m.snapshot
	var b strings.Builder
	b.WriteString(titleStyle.Render("UADP Decoder"))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf("transport=%s  storage=%s  adapter=%s",
		orNone(s.Transport), orNone(s.StorageBackend), orNone(s.Adapter))))
	b.WriteString("\n\n")

	var decoded int64
	for _, n := range s.DecodedByKind {
		decoded += n
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Received", s.MessagesReceived, blue),
		m.renderStatBox("Decoded", decoded, green),
		m.renderStatBox("Failed", s.DecodeFailures+s.UnsupportedMessages, red),
		m.renderStatBox("Schema misses", s.SchemaMisses, amber),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Chunks", s.ChunksStored, blue),
		m.renderStatBox("Reassembled", s.ChunksCompleted, green),
		m.renderStatBox("Rejected", s.ChunksRejected+s.ChunksSwept, red),
		m.renderStatBox("Meta cached", s.MetaInserted-s.MetaEvicted, purple),
	))
	b.WriteString("\n")

	if len(s.DecodedByKind) > 0 {
		kinds := make([]string, 0, len(s.DecodedByKind))
		for k := range s.DecodedByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		parts := make([]string, len(kinds))
		for i, k := range kinds {
			parts[i] = kindStyle(k).Render(fmt.Sprintf("%s=%d", k, s.DecodedByKind[k]))
		}
		b.WriteString(strings.Join(parts, "  "))
		b.WriteString("\n")
	}

	if s.NotificationsPublished > 0 || s.NotificationsFailed > 0 {
		b.WriteString(fmt.Sprintf("%s %s\n",
			labelStyle.Render("Notifications:"),
			valueStyle.Render(fmt.Sprintf("%d sent, %d failed", s.NotificationsPublished, s.NotificationsFailed))))
	}

	if len(m.recent) > 0 {
		lines := make([]string, len(m.recent))
		for i, ev := range m.recent {
			lines[i] = fmt.Sprintf("%s %-16s w=%-5d seq=%-5d %s",
				kindStyle(ev.Kind).Render(fmt.Sprintf("%-9s", ev.Kind)),
				ev.PublisherID, ev.WriterID, ev.SequenceNumber, summarize(ev))
		}
		b.WriteString("\n")
		b.WriteString(panelStyle.Render(strings.Join(lines, "\n")))
	}

	help := helpStyle.Render("Press q or Ctrl+C to quit")
	return b.String() + "\n" + help
}

func summarize(ev *adapter.DecodedEvent) string {
	switch {
	case ev.Chunk != nil:
		return fmt.Sprintf("%d+%d of %d", ev.Chunk.Offset, ev.Chunk.Size, ev.Chunk.Total)
	case len(ev.Schema) > 0:
		return fmt.Sprintf("%s (%d fields)", ev.DataSet, len(ev.Schema))
	case len(ev.Fields) > 0:
		return fmt.Sprintf("%s (%d values)", ev.DataSet, len(ev.Fields))
	default:
		return ev.DataSet
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func (m StatsModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	return counterStyle.BorderForeground(color).Render(lipgloss.JoinVertical(lipgloss.Center,
		counterValue.Foreground(color).Render(fmt.Sprintf("%d", value)),
		counterLabel.Render(label)))
}

// RunStatsTUI runs the dashboard until the user quits or ctx is done.
func RunStatsTUI(ctx context.Context, source SnapshotFunc, events <-chan *adapter.DecodedEvent) error {
	model := NewStatsModel(source, events)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// RenderStatsStatic renders the counters without full TUI (for fallback).
func RenderStatsStatic(s metrics.Snapshot) string {
	model := NewStatsModel(func() metrics.Snapshot { return s }, nil)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
