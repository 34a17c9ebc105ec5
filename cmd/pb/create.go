package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zulandar/procurebot/internal/wizard"
)

func newCreateCmd() *cobra.Command {
	var draftPath string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create one negotiation per supplier from a draft file",
		Long: "Loads a negotiation draft (YAML), validates it step by step like the web wizard\n" +
			"and creates one negotiation per supplier. Prints the link to share with each supplier.",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := wizard.LoadDraft(draftPath)
			if err != nil {
				return err
			}
			w, err := wizard.FromDraft(d)
			if err != nil {
				return fmt.Errorf("draft %s is incomplete: %w", draftPath, err)
			}

			a, err := newApp(cmd, appOpts{noCache: true})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := w.Submit(cmd.Context(), a.api, a.cfg.Origin)
			if res != nil {
				printLinks(cmd.OutOrStdout(), res)
			}
			if err != nil {
				a.log.Error().Err(err).Msg("negotiation creation stopped")
				return err
			}
			a.log.Info().Int("count", len(res.Links)).Msg("negotiations created")
			return nil
		},
	}

	cmd.Flags().StringVarP(&draftPath, "file", "f", "", "negotiation draft YAML (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func printLinks(out io.Writer, res *wizard.Result) {
	if len(res.Links) == 0 {
		if res.Failed != "" {
			fmt.Fprintln(out, "No negotiations were created.")
		}
		return
	}
	fmt.Fprintf(out, "Created %d negotiation(s). Share these links with your suppliers:\n", len(res.Links))
	for _, l := range res.Links {
		name := l.SupplierName
		if name == "" {
			name = l.SupplierEmail
		}
		fmt.Fprintf(out, "  %s (%s)\n    %s\n", name, l.NegotiationID, l.URL)
	}
	if res.Failed != "" {
		fmt.Fprintf(out, "Creation stopped at supplier %q; the links above are still valid.\n", res.Failed)
	}
}
