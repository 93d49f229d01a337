// Package statsview renders cache statistics for the terminal.
package statsview

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"accessdash/internal/cache"
)

const fetchTimeout = 5 * time.Second

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
	valueStyle = lipgloss.NewStyle().Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type Fetcher func(ctx context.Context) (cache.Stats, error)

func Render(target string, stats cache.Stats) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("cache @ "+target),
		row("hits", strconv.FormatUint(stats.Hits, 10)),
		row("misses", strconv.FormatUint(stats.Misses, 10)),
		row("entries", strconv.Itoa(stats.Size)),
		row("hit rate", fmt.Sprintf("%.1f%%", stats.HitRate*100)),
	)
}

func row(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

type statsMsg struct {
	stats cache.Stats
	err   error
	at    time.Time
}

type tickMsg time.Time

// Model polls fetch every interval until the user quits.
type Model struct {
	target    string
	interval  time.Duration
	fetch     Fetcher
	stats     cache.Stats
	err       error
	loaded    bool
	updatedAt time.Time
}

func NewModel(target string, interval time.Duration, fetch Fetcher) *Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Model{target: target, interval: interval, fetch: fetch}
}

func (m *Model) Init() tea.Cmd {
	return m.fetchCmd()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetchCmd()
		}
	case statsMsg:
		m.updatedAt = msg.at
		m.err = msg.err
		if msg.err == nil {
			m.stats = msg.stats
			m.loaded = true
		}
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg {
			return tickMsg(t)
		})
	case tickMsg:
		return m, m.fetchCmd()
	}
	return m, nil
}

func (m *Model) View() string {
	var b strings.Builder
	if m.loaded {
		b.WriteString(Render(m.target, m.stats))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("updated " + m.updatedAt.Format(time.TimeOnly)))
		b.WriteString("\n")
	} else if m.err == nil {
		b.WriteString("Connecting to " + m.target + "...\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render("✗ " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("r refresh, q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) fetchCmd() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		stats, err := fetch(ctx)
		return statsMsg{stats: stats, err: err, at: time.Now()}
	}
}

// Watch runs the interactive view until the user quits.
func Watch(ctx context.Context, target string, interval time.Duration, fetch Fetcher) error {
	_, err := tea.NewProgram(NewModel(target, interval, fetch), tea.WithContext(ctx)).Run()
	return err
}
