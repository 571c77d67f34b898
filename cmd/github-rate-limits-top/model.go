package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/theodore86/github-rate-limits-exporter/pkg/github"
)

const (
	pollRate       = 5 * time.Second
	fetchTimeout   = 10 * time.Second
	maxHistory     = 20
	viewportHeight = 8
	barWidth       = 30
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(100)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(100)

	resourceStyle = lipgloss.NewStyle().Width(22).Bold(true)
	countStyle    = lipgloss.NewStyle().Width(14).Align(lipgloss.Right)
	resetStyle    = lipgloss.NewStyle().Width(16).Align(lipgloss.Right).Foreground(lipgloss.Color("39"))
	timeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
)

type rateLimitsSource interface {
	GetRateLimits(ctx context.Context) (github.RateLimits, error)
}

type tickMsg time.Time

type dataMsg struct {
	limits github.RateLimits
	at     time.Time
	err    error
}

type model struct {
	account  string
	source   rateLimitsSource
	spinner  spinner.Model
	viewport viewport.Model
	limits   github.RateLimits
	history  []string
	updated  time.Time
	err      error
	ready    bool
	now      func() time.Time
}

func initialModel(account string, source rateLimitsSource) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		account:  account,
		source:   source,
		spinner:  s,
		viewport: newViewport(100),
		now:      time.Now,
	}
}

func newViewport(width int) viewport.Model {
	vp := viewport.New(width, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return vp
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchData(m.source),
		tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, fetchData(m.source), tick())

	case dataMsg:
		if msg.err != nil {
			m.err = msg.err
			m.record(msg.at, errorStyle.Render("error: "+msg.err.Error()))
		} else {
			m.err = nil
			m.limits = msg.limits
			m.updated = msg.at
			core := msg.limits.Get(github.ResourceCore)
			m.record(msg.at, okStyle.Render(fmt.Sprintf("ok: core %d/%d", core.Used, core.Limit)))
		}
		m.ready = true

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}

	return m, tea.Batch(cmds...)
}

// record appends a refresh outcome to the bounded history shown in the viewport.
func (m *model) record(at time.Time, line string) {
	m.history = append(m.history, fmt.Sprintf("%s %s", timeStyle.Render(at.Format("15:04:05")), line))
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.viewport.SetContent(strings.Join(m.history, "\n"))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Fetching rate limits for %s...", m.spinner.View(), m.account)
	}

	var table strings.Builder
	table.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Rate limits: "+m.account) + "\n\n")
	now := m.now()
	for _, api := range github.Resources {
		rl := m.limits.Get(api)
		table.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			resourceStyle.Render(api),
			renderBar(rl.Used, rl.Limit, barWidth),
			countStyle.Render(fmt.Sprintf("%d/%d", rl.Used, rl.Limit)),
			resetStyle.Render(formatReset(rl.Reset, now)),
		))
		table.WriteString("\n")
	}
	topPane := paneStyle.Render(table.String())

	header := headerStyle.Render(fmt.Sprintf("%s Refresh history", m.spinner.View()))

	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	} else {
		status = okStyle.Render(fmt.Sprintf("Online • updated %s", m.updated.Format("15:04:05")))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nPress q to quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, topPane, header, m.viewport.View(), footer)
}

// renderBar draws used/limit as a fixed width bar, colored by how close it is to the limit.
func renderBar(used, limit int64, width int) string {
	filled := 0
	if limit > 0 {
		filled = int(used * int64(width) / limit)
	}
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	switch {
	case limit > 0 && used*10 >= limit*9:
		return errorStyle.Render(bar)
	case limit > 0 && used*2 >= limit:
		return warnStyle.Render(bar)
	default:
		return okStyle.Render(bar)
	}
}

// formatReset renders the time left until an epoch-seconds reset.
func formatReset(reset int64, now time.Time) string {
	if reset <= 0 {
		return "-"
	}
	left := time.Unix(reset, 0).Sub(now)
	if left <= 0 {
		return "now"
	}
	return "in " + left.Truncate(time.Second).String()
}

// Commands

func fetchData(source rateLimitsSource) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		limits, err := source.GetRateLimits(ctx)
		return dataMsg{limits: limits, at: time.Now(), err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
