package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var dossierView bool

// dossierCmd represents the dossier command
var dossierCmd = &cobra.Command{
	Use:   "dossier <person-id> [run-id]",
	Short: "Render the research dossier from a completed synthesis",
	Long: `Dossier writes contextualized.md: summary, verified facts, conflicts,
timeline and research suggestions, each statement followed by the sources it
rests on. The synthesize stage must be complete.`,
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
		doc, err := orch.RenderDossier(cmd.Context(), ref)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Dossier written for %s\n", ref)

		if !dossierView {
			return nil
		}
		if !stderrIsTTY() {
			fmt.Print(doc)
			return nil
		}
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return fmt.Errorf("create markdown renderer: %w", err)
		}
		out, err := r.Render(doc)
		if err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dossierCmd)
	dossierCmd.Flags().BoolVar(&dossierView, "view", false, "print the dossier, styled when on a terminal")
}
