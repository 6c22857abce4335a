package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ancestra/internal/model"
	"github.com/ppiankov/ancestra/internal/pipeline"
)

var (
	importFile  string
	exportQuiet bool
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Run, export or import one AI stage of a run",
	Long: `Each run passes through three stages, in order:

  normalize   one structured summary per source
  cluster     groups of sources describing the same event
  synthesize  the research synthesis behind the dossier

A stage is produced either directly (stage run, using the configured LLM
provider) or by hand (stage export, paste into any AI tool, stage import).
Both paths pass the same validation before anything is stored.`,
}

var stageRunCmd = &cobra.Command{
	Use:   "run <stage> <person-id> [run-id]",
	Short: "Run a stage through the configured LLM provider",
	Example: `  ancestra stage run normalize AB12-CDE
  ancestra stage run cluster AB12-CDE --provider ollama --model llama3.1`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		stage, err := model.ParseStage(args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ref, err := a.resolveRef(args[1:])
		if err != nil {
			return err
		}
		orch, err := a.orchestrator(true)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "⚙️  Running %s for %s via %s\n", stage, ref, a.cfg.LLM.Provider)
		res, err := orch.Run(cmd.Context(), ref, stage)
		if err != nil {
			return err
		}
		printStageResult(res)
		return nil
	},
}

var stageExportCmd = &cobra.Command{
	Use:   "export <stage> <person-id> [run-id]",
	Short: "Print a self-contained prompt for an external AI tool",
	Long: `Export prints the stage's full prompt, ready to paste into any AI tool, and
keeps a copy under the run's ai-stages/exports directory. Save the tool's
reply and bring it back with 'ancestra stage import'.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		stage, err := model.ParseStage(args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ref, err := a.resolveRef(args[1:])
		if err != nil {
			return err
		}
		orch, err := a.orchestrator(false)
		if err != nil {
			return err
		}
		exp, err := orch.Export(cmd.Context(), ref, stage)
		if err != nil {
			return err
		}
		if !exportQuiet {
			fmt.Print(exp.Text)
		}
		fmt.Fprintf(os.Stderr, "✓ Prompt saved to %s\n", exp.Path)
		return nil
	},
}

var stageImportCmd = &cobra.Command{
	Use:   "import <stage> <person-id> [run-id]",
	Short: "Import a reply pasted from an external AI tool",
	Long: `Import validates a reply produced outside Ancestra and stores it as the
stage's output. The reply is read from --file, or from stdin when --file is
"-" or absent. Surrounding prose and markdown fences are tolerated.`,
	Example: `  ancestra stage import normalize AB12-CDE --file reply.txt
  pbpaste | ancestra stage import cluster AB12-CDE`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		stage, err := model.ParseStage(args[0])
		if err != nil {
			return err
		}
		text, err := readReply(importFile, cmd.InOrStdin())
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ref, err := a.resolveRef(args[1:])
		if err != nil {
			return err
		}
		orch, err := a.orchestrator(false)
		if err != nil {
			return err
		}
		res, err := orch.Import(cmd.Context(), ref, stage, text)
		if err != nil {
			return err
		}
		printStageResult(res)
		return nil
	},
}

func readReply(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("reply is empty")
	}
	return string(data), nil
}

func printStageResult(res *pipeline.StageResult) {
	fmt.Fprintf(os.Stderr, "✓ %s complete for %s (%s)\n", res.Stage, res.Ref, res.Via)
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "  ⚠ %s\n", w)
	}
	if len(res.Stale) > 0 {
		names := make([]string, len(res.Stale))
		for i, s := range res.Stale {
			names[i] = string(s)
		}
		fmt.Fprintf(os.Stderr, "  ⚠ now stale, run again: %s\n", strings.Join(names, ", "))
	}
}

func init() {
	rootCmd.AddCommand(stageCmd)
	stageCmd.AddCommand(stageRunCmd, stageExportCmd, stageImportCmd)

	stageImportCmd.Flags().StringVarP(&importFile, "file", "f", "", `reply file ("-" or empty for stdin)`)
	stageExportCmd.Flags().BoolVarP(&exportQuiet, "quiet", "q", false, "only save the prompt file")
}
