package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Header is the banner printed before a command talks to the hardware.
type Header struct {
	Title   string   // e.g., "ThinkPad"
	Command string   // e.g., "battctl apply max"
	Params  []Detail // rendered in order
	Width   int
}

// NewHeader creates a new header with the given values
func NewHeader(title, command string) *Header {
	return &Header{Title: title, Command: command, Width: GetTerminalWidth()}
}

// AddParam appends a parameter line
func (h *Header) AddParam(key, value string) *Header {
	h.Params = append(h.Params, Detail{Key: key, Value: value})
	return h
}

// SetWidth sets the terminal width for responsive rendering
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

// Render returns the styled header as a string
func (h *Header) Render() string {
	width := h.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	top := lipgloss.JoinVertical(lipgloss.Left,
		HeaderTitleStyle.Render(strings.ToUpper(h.Title)),
		HeaderCommandStyle.Render(h.Command))

	content := top
	if len(h.Params) > 0 {
		params := make([]string, 0, len(h.Params))
		for _, p := range h.Params {
			params = append(params, HeaderParamKeyStyle.Render(p.Key+":")+HeaderParamValueStyle.Render(p.Value))
		}
		divider := RenderHorizontalDivider(width-6, "─")
		content = lipgloss.JoinVertical(lipgloss.Left, top, divider, strings.Join(params, "\n"))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(content)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}
