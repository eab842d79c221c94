package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	pathpkg "path/filepath"
	"runtime/pprof"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"recompiler/internal/analysis"
	"recompiler/internal/config"
	"recompiler/internal/elfx"
	"recompiler/internal/export"
	"recompiler/internal/logging"
	rlog "recompiler/internal/recompiler/log"
	"recompiler/internal/ui/colorize"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().String("config", "", "Path to recompiler.toml (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().StringP("entry", "e", "", "Entry symbol whose body is the initializer section (default _init)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Show summary without TUI")
	rootCmd.Flags().BoolP("full", "f", false, "Show every procedure listing (use with --no-tui)")
	rootCmd.Flags().BoolP("json", "j", false, "Write recovered procedures as JSON to stdout")
	rootCmd.Flags().String("cbor", "", "Write recovered procedures as CBOR to file")
	rootCmd.Flags().Bool("keep-padding", false, "Keep trailing no-op padding in procedures")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")

	rootCmd.AddCommand(runCmd)
}

var rootCmd = &cobra.Command{
	Use:   "recompiler [file]",
	Short: "Recover procedures from x86-64 ELF executables",
	Long: `Recompiler is the front end of a static binary recompiler.
It slices the code section of a statically linked, symbol-bearing x86-64
executable into one procedure per function symbol and classifies every
instruction as a call, a jump or a conditional jump.`,
	Example: `
# Browse recovered procedures interactively
recompiler ./a.out

# Print the summary and every listing
recompiler --no-tui --full ./a.out

# Export for the next stage
recompiler --cbor a.out.cbor ./a.out
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Setup CPU profiling if requested
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %w", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %w", err)
			}
			defer pprof.StopCPUProfile()
		}

		// Setup memory profiling if requested
		memprofile, _ := cmd.Flags().GetString("memprofile")
		if memprofile != "" {
			defer func() {
				f, err := os.Create(memprofile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
					return
				}
				defer f.Close()
				if err := pprof.WriteHeapProfile(f); err != nil {
					fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
				}
			}()
		}

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		absPath, err := resolveFile(args[0])
		if err != nil {
			return err
		}

		noTUI, _ := cmd.Flags().GetBool("no-tui")
		showFull, _ := cmd.Flags().GetBool("full")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		cborPath, _ := cmd.Flags().GetString("cbor")

		// --full implies --no-tui
		if showFull {
			noTUI = true
		}

		// Also use no-tui mode when output is being piped
		if !term.IsTerminal(os.Stdout.Fd()) {
			noTUI = true
		}

		// Disable coloring when using --no-tui to avoid garbled output
		if noTUI {
			os.Setenv(colorize.EnvNoColor, "1")
		}

		if jsonOutput || cborPath != "" {
			prog, err := s.recoverFile(absPath)
			if prog == nil {
				return err
			}
			if jsonOutput {
				if err := export.WriteJSON(cmd.OutOrStdout(), prog); err != nil {
					return err
				}
			}
			if cborPath != "" {
				if err := writeCBOR(cborPath, prog); err != nil {
					return err
				}
				s.logger.Info("wrote procedures", "file", cborPath, "procedures", len(prog.Procedures))
			}
			return nil
		}

		if noTUI {
			prog, err := s.recoverFile(absPath)
			if prog == nil {
				return err
			}
			return writeSummary(cmd.OutOrStdout(), prog, err, showFull)
		}

		// Set up the TUI. Component logging would corrupt the alt screen.
		s.logger.Close()
		s.logger = logging.Discard()
		program := tea.NewProgram(
			NewModel(absPath, s),
			tea.WithAltScreen(),
			tea.WithContext(cmd.Context()),
		)

		if _, err := program.Run(); err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	},
}

// session carries the resolved configuration and logger of one invocation.
type session struct {
	cfg    *config.Config
	logger *logging.LoggerCloser
}

func newSession(cmd *cobra.Command) (*session, error) {
	cwd, err := ResolveCwd(cmd)
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.FindAndLoad(cwd)
	}
	if err != nil {
		return nil, err
	}

	if entry, _ := cmd.Flags().GetString("entry"); entry != "" {
		cfg.Recover.EntrySymbol = entry
	}
	if f := cmd.Flags().Lookup("keep-padding"); f != nil && f.Changed {
		cfg.Recover.KeepPadding, _ = cmd.Flags().GetBool("keep-padding")
	}
	debug, _ := cmd.Flags().GetBool("debug")
	cfg.Debug = cfg.Debug || debug || logging.IsDebug()

	rlog.Setup("", cfg.Debug)
	return &session{cfg: cfg, logger: logging.NewLogger(cfg.Debug)}, nil
}

func (s *session) Close() error {
	return s.logger.Close()
}

// recoverFile loads and recovers the executable at path. A missing entry
// symbol is reported as a warning: the program is returned with the error.
func (s *session) recoverFile(path string) (*analysis.Program, error) {
	im, err := elfx.Open(path, s.cfg.ImageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}

	opts := s.cfg.RecoverOptions()
	opts.Logger = s.logger.Logger
	prog, err := analysis.Recover(im, opts)
	if err != nil {
		if prog != nil && errors.Is(err, analysis.ErrEntrySymbolNotFound) {
			return prog, err
		}
		return nil, err
	}
	return prog, nil
}

func writeCBOR(path string, prog *analysis.Program) error {
	data, err := export.MarshalCBOR(prog)
	if err != nil {
		return fmt.Errorf("failed to encode CBOR: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func resolveFile(file string) (string, error) {
	absPath, err := pathpkg.Abs(file)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", file)
		}
		return "", fmt.Errorf("cannot access file: %w", err)
	}
	return absPath, nil
}

func Execute() {
	// Bypass fang's markdown rendering for plain output modes and pipes
	plain := false
	for _, arg := range os.Args[1:] {
		switch arg {
		case "--no-tui", "-n", "--full", "-f", "--json", "-j":
			plain = true
		}
	}
	if !plain && !term.IsTerminal(os.Stdout.Fd()) {
		plain = true
	}

	if plain {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %w", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}
	return cwd, nil
}
