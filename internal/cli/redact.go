package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// redactCmd represents the redact command
var redactCmd = &cobra.Command{
	Use:   "redact <person-id> [run-id]",
	Short: "Write the redacted copy of a run's Evidence Pack",
	Long: `Redact removes e-mail addresses, phone numbers, street addresses, living
markers and contributor names from a run's Evidence Pack and stores the result
as redacted-pack.json. The original pack is never modified.

With pipeline.use_redacted set (the default) every stage reads the redacted copy.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ref, err := a.resolveRef(args)
		if err != nil {
			return err
		}
		orch, err := a.orchestrator(false)
		if err != nil {
			return err
		}
		res, err := orch.Redact(cmd.Context(), ref)
		if err != nil {
			return err
		}
		fmt.Print(res.Summary())
		fmt.Fprintf(os.Stderr, "✓ Redacted pack saved for %s\n", ref)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redactCmd)
}
