package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"

	"recompiler/internal/analysis"
	"recompiler/internal/recompiler/styles"
	"recompiler/internal/ui/colorize"
)

type viewMode int

const (
	viewSummary viewMode = iota
	viewProcedures
	viewListing
)

type procItem struct {
	proc *analysis.Procedure
	name string
}

func (i procItem) Title() string       { return fmt.Sprintf("%x  %s", i.proc.Start, i.name) }
func (i procItem) Description() string { return "" }
func (i procItem) FilterValue() string { return i.name }

// Custom item delegate for the procedure list
type procDelegate struct{}

func (d procDelegate) Height() int                               { return 1 }
func (d procDelegate) Spacing() int                              { return 0 }
func (d procDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d procDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(procItem)
	if !ok {
		return
	}

	indicator := " "
	addrStyle := styles.Address
	if index == m.Index() {
		indicator = ">"
		addrStyle = styles.Selected
	}

	kind := i.proc.Kind.String()
	fmt.Fprintf(w, " %s  %s  %s  %5d  %s",
		indicator,
		addrStyle.Render(fmt.Sprintf("%8x", i.proc.Start)),
		styles.KindStyle(kind).Render(fmt.Sprintf("%-8s", kind)),
		len(i.proc.Insts),
		i.name)
}

type model struct {
	summary    viewport.Model
	procList   list.Model
	listing    viewport.Model
	spinner    spinner.Model
	mode       viewMode
	filepath   string
	session    *session
	prog       *analysis.Program
	index      *analysis.AddressIndex
	warn       error
	err        error
	loading    bool
	listedProc string
	width      int
	height     int
}

// programMsg carries the result of recovery. A nil prog means failure.
type programMsg struct {
	prog *analysis.Program
	err  error
}

func recoverCmd(path string, s *session) tea.Cmd {
	return func() tea.Msg {
		prog, err := s.recoverFile(path)
		return programMsg{prog: prog, err: err}
	}
}

func NewModel(filepath string, s *session) model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	procList := list.New([]list.Item{}, procDelegate{}, 80, 24)
	procList.SetShowStatusBar(false)
	procList.SetFilteringEnabled(true)
	procList.Title = "Procedures"
	procList.Styles.Title = styles.Title
	procList.SetShowHelp(true)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	lvp := viewport.New()
	lvp.SetWidth(80)
	lvp.SetHeight(24)

	m := model{
		summary:  vp,
		procList: procList,
		listing:  lvp,
		spinner:  sp,
		mode:     viewSummary,
		filepath: filepath,
		session:  s,
		loading:  true,
		width:    80,
		height:   24,
	}
	m.updateContent()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		recoverCmd(m.filepath, m.session),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case programMsg:
		m.loading = false
		if msg.prog == nil {
			m.err = msg.err
		} else {
			m.prog = msg.prog
			m.warn = msg.err
			m.index = analysis.BuildAddressIndex(msg.prog)
			m.updateProcList()
		}
		m.updateContent()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		m.updateContent()
		return m, cmd

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.summary.SetWidth(msg.Width)
			m.summary.SetHeight(msg.Height - 2)
			m.procList.SetWidth(msg.Width)
			m.procList.SetHeight(msg.Height - 2)
			m.listing.SetWidth(msg.Width)
			m.listing.SetHeight(msg.Height - 2)
			m.updateContent()
		}
		return m, nil

	case tea.KeyMsg:
		key := msg.String()
		// While the list is filtering it owns every key except quit
		filtering := m.mode == viewProcedures && m.procList.FilterState() == list.Filtering
		if !filtering || key == "ctrl+c" {
			if next, cmd, ok := m.handleKey(key); ok {
				return next, cmd
			}
		}
	}

	switch m.mode {
	case viewProcedures:
		m.procList, cmd = m.procList.Update(msg)
	case viewListing:
		m.listing, cmd = m.listing.Update(msg)
	default:
		m.summary, cmd = m.summary.Update(msg)
	}
	return m, cmd
}

// handleKey applies a key binding. ok is false for keys the active view
// should receive.
func (m model) handleKey(key string) (model, tea.Cmd, bool) {
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit, true
	case "s":
		m.mode = viewSummary
		return m, nil, true
	case "p":
		if m.prog != nil {
			m.mode = viewProcedures
		}
		return m, nil, true
	case "l":
		if m.listedProc != "" {
			m.mode = viewListing
		}
		return m, nil, true
	case "enter":
		if m.mode != viewProcedures {
			return m, nil, false
		}
		if item, ok := m.procList.SelectedItem().(procItem); ok {
			m.showListing(item.proc)
		}
		return m, nil, true
	case "tab":
		m.mode = m.nextMode(1)
		return m, nil, true
	case "shift+tab":
		m.mode = m.nextMode(-1)
		return m, nil, true
	}
	return m, nil, false
}

// nextMode cycles through the views that have content.
func (m model) nextMode(step int) viewMode {
	modes := []viewMode{viewSummary}
	if m.prog != nil {
		modes = append(modes, viewProcedures)
	}
	if m.listedProc != "" {
		modes = append(modes, viewListing)
	}
	for i, mode := range modes {
		if mode == m.mode {
			return modes[(i+step+len(modes))%len(modes)]
		}
	}
	return viewSummary
}

func (m *model) showListing(p *analysis.Procedure) {
	listing := analysis.FormatProcedure(p, m.index)
	m.listing.SetContent(strings.TrimSuffix(colorize.ColorizeListing(listing), "\n"))
	m.listing.GotoTop()
	m.listedProc = p.Name()
	m.mode = viewListing
}

func (m model) View() string {
	var content string
	switch m.mode {
	case viewProcedures:
		content = m.procList.View()
	case viewListing:
		content = m.listing.View()
	default:
		content = m.summary.View()
	}

	var menu string
	switch m.mode {
	case viewProcedures:
		menu = " Enter: listing • S: summary • Tab: cycle • Q: quit "
	case viewListing:
		menu = fmt.Sprintf(" %s • S: summary • P: procedures • Tab: cycle • Q: quit ", m.listedProc)
	default:
		if m.prog != nil {
			menu = " P: procedures • Tab: cycle • Q: quit "
		} else {
			menu = " Q: quit "
		}
	}

	return content + "\n" + styles.Menu.Width(m.width).Render(menu)
}

func (m *model) updateContent() {
	var markdown string
	switch {
	case m.prog != nil:
		markdown = summaryMarkdown(m.prog, m.warn)
	case m.err != nil:
		markdown = fmt.Sprintf("# Recompiler\n\n```\n; %s\n```\n\n%s\n",
			relativePath(m.filepath), styles.Warning.Render(m.err.Error()))
	default:
		markdown = fmt.Sprintf("# Recompiler\n\n```\n; %s\n```\n", relativePath(m.filepath))
	}
	if m.loading {
		markdown += fmt.Sprintf("\n%s Recovering procedures...\n", m.spinner.View())
	}

	width := m.width
	if width == 0 {
		width = 80
	}
	renderer := styles.GetMarkdownRenderer(width - 2)
	rendered, err := renderer.Render(markdown)
	if err != nil {
		rendered = markdown
	}
	m.summary.SetContent(strings.TrimSuffix(rendered, "\n"))
}

func (m *model) updateProcList() {
	items := make([]list.Item, 0, len(m.prog.Procedures))
	for i := range m.prog.Procedures {
		p := &m.prog.Procedures[i]
		items = append(items, procItem{proc: p, name: displayName(p)})
	}
	m.procList.SetItems(items)
}
