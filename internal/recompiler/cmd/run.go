package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"recompiler/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Recover procedures and print one line of statistics",
	Long: `Recover procedures in non-interactive mode and exit.
Unlike the default command, a missing entry symbol is an error.`,
	Example: `
# Check that a binary partitions cleanly
recompiler run ./a.out

# Without warnings on stderr
recompiler run -q ./a.out
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quiet, _ := cmd.Flags().GetBool("quiet")

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		if quiet {
			s.logger.Close()
			s.logger = logging.Discard()
		}

		absPath, err := resolveFile(args[0])
		if err != nil {
			return err
		}

		prog, err := s.recoverFile(absPath)
		if prog == nil {
			return err
		}

		st := prog.Stats
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d procedures, %d instructions, %d discarded, %d trimmed\n",
			relativePath(absPath), len(prog.Procedures), st.TextInsts, st.Discarded, st.Trimmed)
		return err
	},
}

func init() {
	runCmd.Flags().BoolP("quiet", "q", false, "Hide warnings")
}
