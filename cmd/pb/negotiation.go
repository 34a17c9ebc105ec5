package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/procurebot/internal/chat"
	"github.com/zulandar/procurebot/internal/models"
	"github.com/zulandar/procurebot/internal/tui"
)

func newShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a negotiation and its chat history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOpts{})
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.records.GetNegotiation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			printNegotiation(cmd.OutOrStdout(), rec, a.api.ExportURL(rec.ID))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw record as JSON")
	return cmd
}

func printNegotiation(out io.Writer, rec *models.Negotiation, exportURL string) {
	status := "Active"
	if rec.IsConcluded() {
		status = "Concluded"
	}
	fmt.Fprintf(out, "%s [%s]\n", rec.Name, status)
	if s := rec.TargetDetails.SupplierName; s != "" {
		fmt.Fprintf(out, "Supplier: %s\n", s)
	}
	if rec.FromCache {
		fmt.Fprintln(out, "(offline copy: the backend could not be reached)")
	}
	fmt.Fprintf(out, "PDF: %s\n", exportURL)

	if len(rec.ChatHistory) == 0 {
		fmt.Fprintln(out, "\nNo messages yet.")
		return
	}
	for _, msg := range rec.ChatHistory {
		b := chat.RenderBubble(msg, rec.TargetDetails)
		fmt.Fprintf(out, "\n%s  %s\n", b.Label, b.Time)
		for _, line := range strings.Split(b.Body, "\n") {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
}

func newChatCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "chat <id>",
		Short: "Open a negotiation's live chat in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			joinAs, err := parseJoinRole(role)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, appOpts{logFile: "procurebot-chat.log"})
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.newSession(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			return tui.Run(ctx, tui.Opts{
				NegotiationID: args[0],
				Records:       a.records,
				Session:       sess,
				Role:          joinAs,
				ExportURL:     a.api.ExportURL,
				Logger:        a.log.With().Str("negotiation", args[0]).Logger(),
			})
		},
	}

	cmd.Flags().StringVarP(&role, "role", "r", "", "join directly as buyer or supplier")
	return cmd
}

func parseJoinRole(s string) (models.Role, error) {
	if s == "" {
		return "", nil
	}
	return models.ParseRole(strings.ToLower(strings.TrimSpace(s)))
}

func newExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Download a negotiation as PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			a, err := newApp(cmd, appOpts{noCache: true})
			if err != nil {
				return err
			}
			defer a.Close()

			body, err := a.api.ExportPDF(cmd.Context(), id)
			if err != nil {
				return err
			}
			defer body.Close()

			if output == "-" {
				_, err := io.Copy(cmd.OutOrStdout(), body)
				return err
			}
			if output == "" {
				output = "negotiation-" + id + ".pdf"
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			n, err := io.Copy(f, body)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("export: write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%d bytes)\n", output, n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default negotiation-<id>.pdf)")
	return cmd
}
