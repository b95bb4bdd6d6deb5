package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"keybridge/widgets"
)

const (
	logLines  = 8
	laneRows  = 12
	listRows  = 10
	logIndent = "  "
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	th := m.deps.Theme
	headerStyle := lipgloss.NewStyle().Foreground(th.Accent())
	tabStyle := lipgloss.NewStyle().Foreground(th.Muted())
	activeTab := lipgloss.NewStyle().Foreground(th.Success()).Bold(true)

	var tabs []string
	for i, v := range views {
		label := fmt.Sprintf("%d %s", i+1, v)
		if v == m.view {
			tabs = append(tabs, activeTab.Render("["+label+"]"))
		} else {
			tabs = append(tabs, tabStyle.Render(" "+label+" "))
		}
	}
	header := headerStyle.Render("keybridge") + "  " + strings.Join(tabs, " ")

	var body string
	switch {
	case m.showHelp:
		body = widgets.RenderKeyHelp(bindings.fullHelp())
	case m.view == viewBridge:
		body = m.bridgeView()
	case m.view == viewPlayer:
		body = m.playerView()
	case m.view == viewPractice:
		body = m.practiceView()
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(body)
	out.WriteString("\n\n")
	out.WriteString(m.logView())
	out.WriteString("\n")
	out.WriteString(m.help.ShortHelpView(bindings.shortHelp(m.view)))
	return out.String()
}

func (m Model) bridgeView() string {
	th := m.deps.Theme
	cfg := m.deps.Store.Snapshot()
	mapping, _ := cfg.Mapping()

	var lines []string
	lines = append(lines, "Inputs:")
	if len(m.inputs) == 0 {
		lines = append(lines, logIndent+"No devices found")
	}
	lines = append(lines, m.list(m.inputs, m.input)...)

	statusStyle := lipgloss.NewStyle().Foreground(th.FG())
	if m.bridgeFailed {
		statusStyle = statusStyle.Foreground(th.Warning())
	} else if m.deps.Bridge.Running() {
		statusStyle = statusStyle.Foreground(th.Success())
	}
	verbose := "off"
	if cfg.Verbose {
		verbose = "on"
	}
	lines = append(lines, "",
		"Status:  "+statusStyle.Render(m.bridgeStatus),
		fmt.Sprintf("Mapped:  %d notes   Verbose: %s", mapping.Len(), verbose),
		"",
	)

	snap := m.deps.Practice.Snapshot()
	lines = append(lines, widgets.RenderKeyboard(th, widgets.KeyboardState{
		Low:     cfg.Practice.Low,
		High:    cfg.Practice.High,
		Pressed: snap.Pressed,
		Targets: mapping.Notes(),
	}))
	return strings.Join(lines, "\n")
}

func (m Model) playerView() string {
	th := m.deps.Theme
	p := m.deps.Player

	var lines []string
	lines = append(lines, "Songs:")
	if len(m.songs) == 0 {
		lines = append(lines, logIndent+"No MIDI files in "+m.songsDir())
	}
	lines = append(lines, m.list(m.songs, m.song)...)

	armed := "-"
	if seq := p.Armed(); seq != nil {
		armed = seq.Name
	}
	status := lipgloss.NewStyle().Foreground(th.Success()).Render(m.playerStatus)
	lines = append(lines, "",
		"Armed:   "+armed,
		"Status:  "+status,
		fmt.Sprintf("BPM: %.0f   Speed: %s   Transpose: %s", m.bpm, speedLabel(p.Speed()), p.Transposition()),
		fmt.Sprintf("Time: %s / %s", clock(m.elapsed), clock(m.total)),
	)
	return strings.Join(lines, "\n")
}

func (m Model) practiceView() string {
	th := m.deps.Theme
	snap := m.deps.Practice.Snapshot()

	var lines []string
	lines = append(lines, m.list(m.songs, m.song)...)
	lines = append(lines, "")

	name := snap.Name
	if name == "" {
		name = "-"
	}
	status := snap.Status
	if m.practiceErr != "" {
		status = "Error: " + m.practiceErr
	}
	lines = append(lines,
		"Song:    "+name,
		"Status:  "+lipgloss.NewStyle().Foreground(th.Success()).Render(status),
		fmt.Sprintf("BPM: %.0f   Transpose: %s   Hits: %d/%d   Time: %s / %s",
			snap.BPM, snap.Transposition, snap.Hits, snap.Total, clock(snap.Cursor), clock(snap.Duration)),
		"",
	)

	waiting := make(map[int]bool)
	var targets []int
	for _, n := range snap.Blocking {
		waiting[n.Note] = true
		targets = append(targets, n.Note)
	}
	lane := widgets.Lane{
		Low: snap.Low, High: snap.High, Rows: laneRows,
		Cursor: snap.Cursor, Lookahead: snap.Lookahead,
	}
	for _, n := range snap.Visible {
		lane.Notes = append(lane.Notes, widgets.LaneNote{
			Note:    n.Note,
			At:      n.At,
			Waiting: waiting[n.Note] && n.At <= snap.Cursor,
		})
	}
	lines = append(lines,
		widgets.RenderLane(th, lane),
		widgets.RenderKeyboard(th, widgets.KeyboardState{
			Low: snap.Low, High: snap.High, Pressed: snap.Pressed, Targets: targets,
		}),
	)
	return strings.Join(lines, "\n")
}

// list renders a scrolling window of items around the cursor
func (m Model) list(items []string, cursor int) []string {
	th := m.deps.Theme
	sel := lipgloss.NewStyle().Foreground(th.Cursor())

	start := 0
	if cursor >= listRows {
		start = cursor - listRows + 1
	}
	end := min(start+listRows, len(items))

	var lines []string
	for i := start; i < end; i++ {
		if i == cursor {
			lines = append(lines, sel.Render(string(th.Symbols.Selected)+" "+items[i]))
		} else {
			lines = append(lines, logIndent+items[i])
		}
	}
	return lines
}

func (m Model) logView() string {
	if m.deps.Ring == nil {
		return ""
	}
	dim := lipgloss.NewStyle().Foreground(m.deps.Theme.Muted())
	tail := m.deps.Ring.Tail(logLines)
	for i, l := range tail {
		if m.width > 0 {
			l = ansi.Truncate(l, m.width, "…")
		}
		tail[i] = dim.Render(l)
	}
	return strings.Join(tail, "\n")
}

func (m Model) songsDir() string {
	if dir := m.deps.Store.Snapshot().SongsDir; dir != "" {
		return dir
	}
	return "."
}
