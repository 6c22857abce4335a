package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var renderRedacted bool

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render stored runs as Markdown",
}

var renderRawCmd = &cobra.Command{
	Use:   "raw <person-id> [run-id]",
	Short: "Render the human-readable copy of a run's Evidence Pack",
	Long: `Render raw writes raw-document.md: one anchored section per source with
its indexed fields and raw text, plus capture diagnostics. No AI is involved.`,
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
		doc, err := orch.RenderRaw(ref, renderRedacted)
		if err != nil {
			return err
		}
		if verbose {
			fmt.Print(doc)
		}
		fmt.Fprintf(os.Stderr, "✓ Rendered raw document for %s\n", ref)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.AddCommand(renderRawCmd)
	renderRawCmd.Flags().BoolVar(&renderRedacted, "redacted", false, "render the redacted copy")
}
