// Package colorize highlights x86-64 procedure listings for the terminal.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// EnvNoColor disables all highlighting when set to any value.
const EnvNoColor = "RECOMPILER_NO_COLOR"

// Enabled reports whether output should be colorized.
func Enabled() bool {
	return os.Getenv(EnvNoColor) == "" && os.Getenv("NO_COLOR") == ""
}

// getAssemblyLexer returns an Intel-syntax lexer with fallbacks
func getAssemblyLexer() chroma.Lexer {
	candidates := []string{"nasm", "gas"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the listing style with fallbacks
func getDisasmStyle() *chroma.Style {
	candidates := []string{StyleName, "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// ColorizeListing highlights a listing produced by analysis.FormatProcedure
// line by line, keeping the column layout.
func ColorizeListing(listing string) string {
	if !Enabled() {
		return listing
	}
	lines := strings.Split(strings.TrimSuffix(listing, "\n"), "\n")
	for i, line := range lines {
		lines[i] = ColorizeInstructionLine(line)
	}
	return strings.Join(lines, "\n") + "\n"
}

// ColorizeInstructionLine colorizes a single listing line.
// Format: "address  mnemonic operands                    ; annotation"
// Or:     "address  label:"
func ColorizeInstructionLine(line string) string {
	if !Enabled() {
		return line
	}

	parts := strings.SplitN(line, " ", 2)
	if len(parts) < 2 || !isHex(parts[0]) {
		return colorizeFullLine(line)
	}
	addr, rest := parts[0], parts[1]

	// Color address in gray (79, 79, 79)
	addrColored := fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m", addr)

	if strings.HasSuffix(strings.TrimSpace(rest), ":") {
		// Label in gold
		return fmt.Sprintf("%s \033[38;2;255;215;0m%s\033[0m", addrColored, rest)
	}

	code, comment, found := strings.Cut(rest, ";")
	out := colorizeFullLine(code)
	if found {
		// Annotations in pink
		out += fmt.Sprintf("\033[38;2;235;194;237m;%s\033[0m", comment)
	}
	return fmt.Sprintf("%s %s", addrColored, out)
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !((ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')) {
			return false
		}
	}
	return true
}

// colorizeFullLine uses Chroma to colorize an assembly fragment
func colorizeFullLine(line string) string {
	lexer := getAssemblyLexer()
	if lexer == nil {
		return line
	}

	iterator, err := lexer.Tokenise(nil, line)
	if err != nil {
		return line
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return line
	}
	return buf.String()
}

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
		} else if inEscape {
			if r == 'm' {
				inEscape = false
			}
		} else {
			result.WriteRune(r)
		}
	}

	return result.String()
}
