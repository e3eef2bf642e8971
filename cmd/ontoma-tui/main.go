package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/ontoma/pkg/client"
	"github.com/rmax-ai/ontoma/pkg/lookup"
)

const (
	pollRate       = 2 * time.Second
	maxEvents      = 20
	viewportHeight = 15
	resolveTimeout = time.Minute
)

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

	eventTimeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
	eventQueryStyle = lipgloss.NewStyle().Width(32).Bold(true)
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Width(26)
	targetStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

type tickMsg time.Time

type historyMsg struct {
	events []client.Event
	err    error
}

type resolvedMsg struct {
	query client.Query
	res   client.Resolution
	err   error
}

type model struct {
	api      *client.Client
	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	events  []client.Event
	pending bool
	last    *resolvedMsg
	err     error
	ready   bool
}

func initialModel(api *client.Client) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textinput.New()
	ti.Placeholder = "asthma, or OMIM:230650"
	ti.CharLimit = 256
	ti.Width = 60
	ti.Focus()

	return model{
		api:      api,
		input:    ti,
		spinner:  s,
		viewport: newViewport(100),
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
		textinput.Blink,
		m.spinner.Tick,
		fetchHistory(m.api),
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
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			q, ok := parseQuery(m.input.Value())
			if !ok || m.pending {
				return m, nil
			}
			m.pending = true
			m.input.SetValue("")
			return m, resolve(m.api, q)
		case tea.KeyPgUp, tea.KeyPgDown:
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, fetchHistory(m.api), tick())

	case historyMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.events = msg.events
			m.viewport.SetContent(renderHistory(m.events))
		}
		m.ready = true

	case resolvedMsg:
		m.pending = false
		m.last = &msg
		cmds = append(cmds, fetchHistory(m.api))

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
		m.ready = true
	}

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// parseQuery reads "SYSTEM:code" as a coded query and anything else as a label.
func parseQuery(raw string) (client.Query, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return client.Query{}, false
	}
	if system, code, ok := strings.Cut(raw, ":"); ok && isSystem(system) && code != "" && !strings.ContainsRune(code, ' ') {
		return client.Query{System: system, Code: code}, true
	}
	return client.Query{Label: raw}, true
}

func isSystem(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

func queryText(q client.Query) string {
	if q.Code != "" {
		return q.System + ":" + q.Code
	}
	return q.Label
}

func renderHistory(events []client.Event) string {
	var sb strings.Builder
	for _, e := range events {
		outcome := okStyle.Render(e.Outcome)
		if e.Outcome != "resolved" {
			outcome = errorStyle.Render(e.Outcome)
		}
		source := e.Source
		if source == "" {
			source = "-"
		}
		fmt.Fprintf(&sb, "%s %s %s %s %s\n",
			eventTimeStyle.Render(e.TsEvent.Local().Format("15:04:05")),
			eventQueryStyle.Render(truncate(queryText(e.Query), 30)),
			sourceStyle.Render(source),
			outcome,
			targetStyle.Render(strings.Join(e.Payload.TargetIDs, " ")),
		)
	}
	return sb.String()
}

func renderResult(r *resolvedMsg) string {
	var sb strings.Builder
	sb.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Last resolution") + "\n\n")
	if r == nil {
		sb.WriteString(subtleStyle.Render("Type a term and press enter."))
		return sb.String()
	}

	fmt.Fprintf(&sb, "query:   %s\n", queryText(r.query))
	if r.err != nil {
		style := errorStyle
		if errors.Is(r.err, lookup.ErrNotFound) || errors.Is(r.err, lookup.ErrNoMatch) {
			style = warnStyle
		}
		sb.WriteString(style.Render(r.err.Error()))
		return sb.String()
	}

	res := r.res.Result
	fmt.Fprintf(&sb, "source:  %s\n", res.Source)
	fmt.Fprintf(&sb, "targets: %s", targetStyle.Render(strings.Join(res.IDs, ", ")))
	if res.Label != "" {
		fmt.Fprintf(&sb, "\nlabel:   %s", res.Label)
	}
	if len(res.Degraded) > 0 {
		fmt.Fprintf(&sb, "\n%s", warnStyle.Render(fmt.Sprintf("skipped: %v", res.Degraded)))
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Connecting...", m.spinner.View())
	}

	prompt := m.input.View()
	if m.pending {
		prompt += " " + m.spinner.View()
	}

	topPane := paneStyle.Render(prompt + "\n\n" + renderResult(m.last))
	header := headerStyle.Render("Recent resolutions")

	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	} else {
		status = okStyle.Render(fmt.Sprintf("Online • %d resolutions", len(m.events)))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nenter to resolve • pgup/pgdn to scroll • esc to quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, topPane, header, m.viewport.View(), footer)
}

func fetchHistory(api *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		events, err := api.GetResolutions(ctx, maxEvents)
		return historyMsg{events: events, err: err}
	}
}

func resolve(api *client.Client, q client.Query) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()
		res, err := api.Resolve(ctx, q)
		return resolvedMsg{query: q, res: res, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func main() {
	endpoint := os.Getenv("ONTOMA_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8090"
	}

	p := tea.NewProgram(initialModel(client.NewClient(endpoint)), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("ontoma-tui: %v\n", err)
		os.Exit(1)
	}
}
