package tui

import (
	"github.com/charmbracelet/lipgloss"

	"vist/internal/orb"
)

const (
	colorMuted = "#6B7280"
	colorUser  = "#3B82F6"
	colorAI    = "#10B981"
	colorWarn  = "#F59E0B"
)

var (
	userLabel  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorUser))
	aiLabel    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAI))
	timeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted))
	pendStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color(colorMuted))
	imageStyle = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("#A78BFA"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted))
	noticeBox  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarn)).Bold(true)
	headerBar  = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder(), false, false, true, false).
			BorderForeground(lipgloss.Color(colorMuted))
)

var orbColors = map[orb.State]string{
	orb.Idle:       colorMuted,
	orb.Listening:  "#EF4444",
	orb.Processing: colorWarn,
	orb.Speaking:   colorAI,
}

var orbFrames = map[orb.State][]string{
	orb.Idle:       {"○"},
	orb.Listening:  {"◉", "●"},
	orb.Processing: {"◐", "◓", "◑", "◒"},
	orb.Speaking:   {"●", "◉", "○", "◉"},
}

func renderOrb(s orb.State, frame int) string {
	frames := orbFrames[s]
	if len(frames) == 0 {
		frames = orbFrames[orb.Idle]
	}
	glyph := frames[frame%len(frames)]
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(orbColors[s])).Render(glyph + " " + s.String())
}
