// Package styles holds the terminal styles shared by the CLI and the TUI.
package styles

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"

	"recompiler/internal/ui/colorize"
)

// Helper functions for style pointers
func boolPtr(b bool) *bool       { return &b }
func stringPtr(s string) *string { return &s }
func uintPtr(u uint) *uint       { return &u }

// Lipgloss styles for the TUI chrome.
var (
	Title    = lipgloss.NewStyle().Foreground(charmtone.Charple).MarginLeft(2)
	Selected = lipgloss.NewStyle().Foreground(charmtone.Dolly)
	Address  = lipgloss.NewStyle().Foreground(charmtone.Squid)
	Muted    = lipgloss.NewStyle().Foreground(charmtone.Oyster)
	Warning  = lipgloss.NewStyle().Foreground(charmtone.Coral)
	Menu     = lipgloss.NewStyle().Background(charmtone.Pepper).Foreground(charmtone.Smoke).Padding(0, 1)
	Spinner  = lipgloss.NewStyle().Foreground(charmtone.Dolly)
)

// KindStyle colors a procedure kind in the procedure list.
func KindStyle(kind string) lipgloss.Style {
	switch kind {
	case "entry":
		return lipgloss.NewStyle().Foreground(charmtone.Guac)
	case "alias", "stray":
		return Warning
	case "external":
		return Muted
	default:
		return lipgloss.NewStyle().Foreground(charmtone.Malibu)
	}
}

// GetMarkdownRenderer returns a glamour TermRenderer for recovery summaries.
func GetMarkdownRenderer(width int) *glamour.TermRenderer {
	r, _ := glamour.NewTermRenderer(
		glamour.WithStyles(GetMarkdownStyle()),
		// Code blocks are preserved by glamour
		glamour.WithWordWrap(width),
	)
	return r
}

// GetMarkdownStyle styles the elements a recovery summary uses: a title,
// section headings, the file block, stat bullets, a warning quote and the
// procedure table.
func GetMarkdownStyle() ansi.StyleConfig {
	return ansi.StyleConfig{
		Document: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(charmtone.Smoke.Hex()),
			},
			Margin: uintPtr(1),
		},
		Heading: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				BlockSuffix: "\n",
				Color:       stringPtr(charmtone.Malibu.Hex()),
				Bold:        boolPtr(true),
			},
		},
		H1: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Prefix:          " ",
				Suffix:          " ",
				Color:           stringPtr(charmtone.Zest.Hex()),
				BackgroundColor: stringPtr(charmtone.Charple.Hex()),
			},
		},
		H2: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Prefix: "▌ ",
				Color:  stringPtr(charmtone.Dolly.Hex()),
			},
		},
		// Partial recovery warnings
		BlockQuote: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color:  stringPtr(charmtone.Coral.Hex()),
				Italic: boolPtr(true),
			},
			Indent:      uintPtr(1),
			IndentToken: stringPtr("! "),
		},
		List: ansi.StyleList{
			LevelIndent: 2,
		},
		Item: ansi.StylePrimitive{
			BlockPrefix: "· ",
		},
		Strong: ansi.StylePrimitive{
			Bold: boolPtr(true),
		},
		Code: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(charmtone.Guac.Hex()),
			},
		},
		CodeBlock: ansi.StyleCodeBlock{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{
					Color: stringPtr(charmtone.Squid.Hex()),
				},
				Margin: uintPtr(2),
			},
			Theme: colorize.StyleName,
		},
		Table: ansi.StyleTable{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{
					Color: stringPtr(charmtone.Smoke.Hex()),
				},
			},
			CenterSeparator: stringPtr("┼"),
			ColumnSeparator: stringPtr("│"),
			RowSeparator:    stringPtr("─"),
		},
	}
}
