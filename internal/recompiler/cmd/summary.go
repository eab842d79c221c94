package cmd

import (
	"fmt"
	"io"
	"os"
	pathpkg "path/filepath"
	"strings"

	"recompiler/internal/analysis"
)

// displayName prefers the demangled form of a procedure name.
func displayName(p *analysis.Procedure) string {
	if p.Demangled != "" {
		return p.Demangled
	}
	return p.Name()
}

// transferCounts returns the number of calls and branches in p.
func transferCounts(p *analysis.Procedure) (calls, branches int) {
	for _, ci := range p.Insts {
		switch {
		case ci.IsCall:
			calls++
		case ci.IsBranch:
			branches++
		}
	}
	return calls, branches
}

func relativePath(path string) string {
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := pathpkg.Rel(cwd, path); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return path
}

// summaryMarkdown describes a recovered program. warn is a partial recovery
// error, shown above the tables.
func summaryMarkdown(prog *analysis.Program, warn error) string {
	var b strings.Builder

	rel := relativePath(prog.Path)
	var lines []string
	if dir := pathpkg.Dir(rel); dir != "." {
		lines = append(lines, fmt.Sprintf("; %s/", dir))
	}
	lines = append(lines, fmt.Sprintf("; %s", pathpkg.Base(rel)))
	lines = append(lines, fmt.Sprintf("; text base %#x", prog.TextBase))
	lines = append(lines, fmt.Sprintf("; %d function symbols, %d procedures", len(prog.Symbols), len(prog.Procedures)))

	fmt.Fprintf(&b, "# Recompiler\n\n```\n%s\n```\n", strings.Join(lines, "\n"))

	if warn != nil {
		fmt.Fprintf(&b, "\n> warning: %v\n", warn)
	}

	st := prog.Stats
	b.WriteString("\n## Stats\n\n")
	fmt.Fprintf(&b, "- text instructions: %d\n", st.TextInsts)
	fmt.Fprintf(&b, "- discarded: %d\n", st.Discarded)
	fmt.Fprintf(&b, "- trimmed padding: %d\n", st.Trimmed)
	fmt.Fprintf(&b, "- entry instructions: %d\n", st.EntryInsts)
	fmt.Fprintf(&b, "- aliases: %d, stray: %d, external: %d\n", st.Aliases, st.Stray, st.External)

	b.WriteString("\n## Procedures\n\n")
	b.WriteString("| Address | Kind | Insts | Calls | Branches | Name |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for i := range prog.Procedures {
		p := &prog.Procedures[i]
		calls, branches := transferCounts(p)
		name := strings.ReplaceAll(displayName(p), "|", `\|`)
		fmt.Fprintf(&b, "| %#x | %s | %d | %d | %d | %s |\n",
			p.Start, p.Kind, len(p.Insts), calls, branches, name)
	}
	return b.String()
}

// writeSummary prints the summary as plain text. With full set every
// procedure that has a body is listed after it.
func writeSummary(w io.Writer, prog *analysis.Program, warn error, full bool) error {
	if _, err := io.WriteString(w, summaryMarkdown(prog, warn)); err != nil {
		return err
	}
	if !full {
		return nil
	}

	idx := analysis.BuildAddressIndex(prog)
	for i := range prog.Procedures {
		p := &prog.Procedures[i]
		if len(p.Insts) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "\n## %s\n\n```asm\n%s```\n", displayName(p), analysis.FormatProcedure(p, idx)); err != nil {
			return err
		}
	}
	return nil
}
