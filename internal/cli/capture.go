package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ancestra/internal/capture"
	"github.com/ppiankov/ancestra/internal/model"
	"github.com/ppiankov/ancestra/internal/store"
)

var (
	captureFile       string
	captureURL        string
	captureLive       bool
	captureControlURL string
	captureProfile    string
	captureNoRedact   bool
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a profile page's sources into an Evidence Pack",
	Long: `Capture reads a person's profile page, reveals each attached source's
indexed details and stores everything as a new run.

Sources:
  --file page.html           a page saved from the browser
  --url https://...          fetch the page (robots.txt and rate limits apply)
  --url https://... --live   drive a real browser, clicking each source's toggle

Example:
  ancestra capture --file ~/Downloads/profile.html
  ancestra capture --url https://www.familysearch.org/tree/person/sources/AB12-CDE --live`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().StringVar(&captureFile, "file", "", "saved HTML page to capture")
	captureCmd.Flags().StringVar(&captureURL, "url", "", "page address (with --file, overrides the address recorded in the file)")
	captureCmd.Flags().BoolVar(&captureLive, "live", false, "capture --url in a browser")
	captureCmd.Flags().StringVar(&captureControlURL, "control-url", "", "DevTools websocket of an already running browser (with --live)")
	captureCmd.Flags().StringVar(&captureProfile, "profile", "", "site profile (default: chosen by host)")
	captureCmd.Flags().BoolVar(&captureNoRedact, "no-redact", false, "do not write the redacted copy")
}

func runCapture(cmd *cobra.Command, args []string) error {
	if captureFile == "" && captureURL == "" {
		return errors.New("one of --file or --url is required")
	}
	if captureLive && captureURL == "" {
		return errors.New("--live needs --url")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if captureProfile != "" {
		a.cfg.Capture.Profile = captureProfile
	}

	ctx := cmd.Context()
	c := a.capturer(captureProgress(stderrIsTTY(), verbose))
	var pack *model.EvidencePack
	switch {
	case captureFile != "":
		fmt.Fprintf(os.Stderr, "⚙️  Capturing %s\n", captureFile)
		pack, err = c.CaptureFile(ctx, captureFile, captureURL)
	case captureLive:
		fmt.Fprintf(os.Stderr, "⚙️  Capturing %s in a browser\n", captureURL)
		pack, err = c.CaptureLive(ctx, captureURL, captureControlURL)
	default:
		fmt.Fprintf(os.Stderr, "⚙️  Fetching %s\n", captureURL)
		pack, err = c.CaptureURL(ctx, captureURL)
	}
	if pack == nil {
		return err
	}
	// A fatal capture error still yields a partial pack, which is kept.
	captureErr := err
	if captureErr == nil {
		captureErr = captureOutcome(ctx, pack)
	}

	ref, err := a.store.SaveEvidencePack(pack)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Captured %d sources for %s\n", len(pack.Sources), displayName(pack.Person))
	for _, w := range pack.Diagnostics.Warnings {
		fmt.Fprintf(os.Stderr, "  ⚠ %s\n", w)
	}

	orch, err := a.orchestrator(false)
	if err != nil {
		return err
	}
	if _, err := orch.RenderRaw(ref, false); err != nil {
		return fmt.Errorf("render raw document: %w", err)
	}
	if pack.Diagnostics.Cancelled {
		fmt.Fprintf(os.Stderr, "⚠ Partial run %s saved but not marked latest\n", ref)
		fmt.Println(a.store.RunDir(ref))
		return captureErr
	}
	if a.cfg.Capture.Redact && !captureNoRedact {
		res, err := orch.Redact(ctx, ref)
		if err != nil {
			return fmt.Errorf("redact: %w", err)
		}
		fmt.Fprint(os.Stderr, res.Summary())
	}

	fmt.Fprintf(os.Stderr, "✓ Saved run %s\n", ref)
	fmt.Println(a.store.RunDir(ref))
	return captureErr
}

// captureOutcome turns a cancelled extraction into an error, noting whether
// the user interrupted it.
func captureOutcome(ctx context.Context, pack *model.EvidencePack) error {
	err := capture.Incomplete(pack)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	return err
}

func displayName(p model.Person) string {
	if p.Name != "" {
		return p.Name
	}
	return store.PersonIDFor(p)
}
