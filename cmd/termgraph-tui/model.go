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

	"github.com/rmax-ai/termgraph/pkg/client"
)

const (
	requestTimeout = 5 * time.Second
	viewportHeight = 20
	rootPageSize   = 100
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true)

	focusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	childStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	siblingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
)

// TreeSource is the slice of the termgraph client the browser needs.
type TreeSource interface {
	Roots(ctx context.Context, ontology string, opts client.PageOptions) (client.Page, error)
	Tree(ctx context.Context, ontology, iri string, siblings bool) ([]client.TreeNode, error)
}

// row is one selectable line of the browser.
type row struct {
	iri      string
	label    string
	focus    bool
	sibling  bool
	children bool
}

type treeMsg struct {
	iri  string
	rows []row
	err  error
}

type model struct {
	source   TreeSource
	ontology string

	spinner  spinner.Model
	viewport viewport.Model

	// history holds the focus IRIs visited so far; "" is the roots view.
	history  []string
	rows     []row
	cursor   int
	siblings bool
	loading  bool
	err      error
	ready    bool
}

func initialModel(source TreeSource, ontology, start string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		source:   source,
		ontology: ontology,
		spinner:  s,
		viewport: newViewport(100),
		history:  []string{start},
		loading:  true,
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

func (m model) current() string {
	return m.history[len(m.history)-1]
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch(m.current()))
}

// fetch loads the roots view for "" and the tree view around iri otherwise.
func (m model) fetch(iri string) tea.Cmd {
	source, ontology, siblings := m.source, m.ontology, m.siblings
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if iri == "" {
			p, err := source.Roots(ctx, ontology, client.PageOptions{Size: rootPageSize})
			if err != nil {
				return treeMsg{err: err}
			}
			rows := make([]row, 0, len(p.Terms))
			for _, t := range p.Terms {
				rows = append(rows, row{iri: t.IRI, label: t.Label, children: t.HasChildren})
			}
			return treeMsg{rows: rows}
		}

		nodes, err := source.Tree(ctx, ontology, iri, siblings)
		if err != nil {
			return treeMsg{iri: iri, err: err}
		}
		return treeMsg{iri: iri, rows: rowsFromTree(nodes)}
	}
}

// rowsFromTree flattens a jsTree response: the focus first, then its
// children, then its siblings.
func rowsFromTree(nodes []client.TreeNode) []row {
	if len(nodes) == 0 {
		return nil
	}
	focusID := nodes[0].ID
	var rows, siblings []row
	for i, n := range nodes {
		r := row{iri: n.IRI, label: n.Text, children: n.Children}
		switch {
		case i == 0:
			r.focus = true
			rows = append(rows, r)
		case n.Parent == focusID:
			rows = append(rows, r)
		default:
			r.sibling = true
			siblings = append(siblings, r)
		}
	}
	return append(rows, siblings...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case treeMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			// Stay on the last view that rendered.
			if len(m.history) > 1 && msg.iri == m.current() {
				m.history = m.history[:len(m.history)-1]
			}
			return m, nil
		}
		m.err = nil
		m.rows = msg.rows
		m.cursor = 0
		if len(m.rows) > 1 && m.rows[0].focus {
			m.cursor = 1
		}
		m.updateViewportContent()
		m.ready = true

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
		m.updateViewportContent()
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.updateViewportContent()
		}
	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
			m.updateViewportContent()
		}
	case "enter", "right", "l":
		if m.loading || len(m.rows) == 0 {
			return m, nil
		}
		target := m.rows[m.cursor].iri
		if target == m.current() {
			return m, nil
		}
		m.history = append(m.history, target)
		m.loading = true
		return m, m.fetch(target)
	case "left", "h", "backspace":
		if m.loading || len(m.history) == 1 {
			return m, nil
		}
		m.history = m.history[:len(m.history)-1]
		m.loading = true
		return m, m.fetch(m.current())
	case "s":
		m.siblings = !m.siblings
		if m.current() == "" || m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.fetch(m.current())
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) updateViewportContent() {
	var sb strings.Builder
	for i, r := range m.rows {
		marker := "  "
		if r.children {
			marker = "▸ "
		}
		if r.focus {
			marker = "▾ "
		}

		indent := ""
		if !r.focus && !r.sibling && m.current() != "" {
			indent = "  "
		}

		text := r.label
		if text == "" {
			text = r.iri
		}
		line := indent + marker + text

		switch {
		case i == m.cursor:
			line = cursorStyle.Render(line)
		case r.focus:
			line = focusStyle.Render(line)
		case r.sibling:
			line = siblingStyle.Render(line)
		default:
			line = childStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}

	m.viewport.SetContent(sb.String())
	// Keep the cursor visible.
	if m.cursor < m.viewport.YOffset {
		m.viewport.SetYOffset(m.cursor)
	} else if m.cursor >= m.viewport.YOffset+m.viewport.Height-2 {
		m.viewport.SetYOffset(m.cursor - m.viewport.Height + 3)
	}
}

func (m model) View() string {
	if !m.ready && m.err == nil {
		return fmt.Sprintf("\n%s Loading %s...", m.spinner.View(), m.ontology)
	}

	title := fmt.Sprintf("%s roots", m.ontology)
	if focus := m.current(); focus != "" {
		title = fmt.Sprintf("%s › %s", m.ontology, focus)
	}
	if m.loading {
		title = m.spinner.View() + " " + title
	}
	header := headerStyle.Render(title)

	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	} else {
		mode := "off"
		if m.siblings {
			mode = "on"
		}
		status = okStyle.Render(fmt.Sprintf("%d terms • siblings %s • depth %d", len(m.rows), mode, len(m.history)-1))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\n↑/↓ move • enter expand • ← back • s siblings • q quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), footer)
}
