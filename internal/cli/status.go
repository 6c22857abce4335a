package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ppiankov/ancestra/internal/pipeline"
	"github.com/ppiankov/ancestra/internal/store"
)

var statusAllRuns bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [person-id] [run-id]",
	Short: "Show stage progress for one run or every person's latest run",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		orch, err := a.orchestrator(false)
		if err != nil {
			return err
		}

		var refs []store.RunRef
		switch {
		case len(args) == 1 && statusAllRuns:
			personID := store.SanitizeID(args[0])
			runs, err := a.store.ListRuns(personID)
			if err != nil {
				return err
			}
			for _, r := range runs {
				refs = append(refs, store.RunRef{PersonID: personID, RunID: r})
			}
		case len(args) > 0:
			ref, err := a.resolveRef(args)
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		default:
			if refs, err = latestRuns(a.store); err != nil {
				return err
			}
		}
		if len(refs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs captured yet. Start with 'ancestra capture'.")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Person", "Run", "Stage", "Status", "Output", "Updated", "Note"})
		for _, ref := range refs {
			if err := appendStatusRows(cmd.Context(), t, a.store, orch, ref); err != nil {
				return err
			}
			t.AppendSeparator()
		}
		t.Render()

		inFlight, err := a.ledger.Processing(cmd.Context())
		if err != nil {
			return err
		}
		for _, st := range inFlight {
			fmt.Fprintf(os.Stderr, "⚙️  %s %s is processing (attempt %s, since %s)\n",
				st.Ref, st.Stage, st.AttemptID, st.UpdatedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusAllRuns, "all-runs", false, "with a person id, show every run instead of the latest")
}

func appendStatusRows(ctx context.Context, t table.Writer, st *store.Store, orch *pipeline.Orchestrator, ref store.RunRef) error {
	rs, err := orch.Status(ctx, ref)
	if err != nil {
		return err
	}
	person := ref.PersonID
	if rec, err := st.LoadPerson(ref.PersonID); err == nil && rec.Name != "" {
		person = fmt.Sprintf("%s\n%s", rec.Name, ref.PersonID)
	}
	for _, s := range rs.Stages {
		output := "-"
		if s.HasArtifact {
			output = "stored"
		}
		updated := "-"
		if !s.UpdatedAt.IsZero() {
			updated = s.UpdatedAt.Local().Format(time.DateTime)
		}
		t.AppendRow(table.Row{person, ref.RunID, s.Stage, s.Status, output, updated, stageNote(s)})
	}
	return nil
}

func stageNote(s pipeline.StageStatus) string {
	switch {
	case s.Error != "":
		return truncate(s.Error, 60)
	case s.Stale:
		return "stale: upstream was redone"
	case s.AwaitingImport():
		return "prompt exported, awaiting import"
	case !s.Ready:
		return "waiting on upstream"
	default:
		return ""
	}
}

// latestRuns lists every person's latest run.
func latestRuns(st *store.Store) ([]store.RunRef, error) {
	people, err := st.ListPeople()
	if err != nil {
		return nil, err
	}
	refs := make([]store.RunRef, 0, len(people))
	for _, p := range people {
		ref, err := st.Resolve(store.RunRef{PersonID: p})
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
