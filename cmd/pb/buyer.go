package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/procurebot/internal/api"
	"github.com/zulandar/procurebot/internal/dashboard"
	"github.com/zulandar/procurebot/internal/models"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <email>",
		Short: "Check whether a dashboard code exists for a buyer email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOpts{noCache: true})
			if err != nil {
				return err
			}
			defer a.Close()

			exists, err := a.api.CodeExists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if exists {
				fmt.Fprintf(cmd.OutOrStdout(), "A dashboard code exists for %s.\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "No dashboard code exists for %s yet.\n", args[0])
			}
			return nil
		},
	}
}

// addCredentialFlags registers --email and --code.
func addCredentialFlags(cmd *cobra.Command, email, code *string) {
	cmd.Flags().StringVarP(email, "email", "e", "", "buyer email (required)")
	cmd.Flags().StringVar(code, "code", "", "dashboard access code (prompted when omitted)")
	cmd.MarkFlagRequired("email")
}

func credentials(cmd *cobra.Command, email, code string) (api.Credentials, error) {
	code, err := readSecret(cmd, "Dashboard code: ", code)
	if err != nil {
		return api.Credentials{}, err
	}
	return api.Credentials{Email: strings.TrimSpace(email), Code: code}, nil
}

func newListCmd() *cobra.Command {
	var (
		email, code, tab, search string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a buyer's negotiations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOpts{noCache: true})
			if err != nil {
				return err
			}
			defer a.Close()

			creds, err := credentials(cmd, email, code)
			if err != nil {
				return err
			}
			q := dashboard.NewQuery(a.api)
			if err := q.Login(cmd.Context(), creds.Email, creds.Code); err != nil {
				return err
			}
			q.SetTab(dashboard.ParseTab(tab))
			q.SetSearch(search)
			printList(cmd.OutOrStdout(), q.View())
			return nil
		},
	}

	addCredentialFlags(cmd, &email, &code)
	cmd.Flags().StringVar(&tab, "tab", "active", "tab to show: active, concluded, all")
	cmd.Flags().StringVarP(&search, "search", "s", "", "filter by name, status or supplier")
	return cmd
}

func printList(out io.Writer, v dashboard.View) {
	c := v.Counters
	fmt.Fprintf(out, "Total: %d  Active: %d  Concluded: %d  Suppliers: %d\n\n",
		c.Total, c.Active, c.Concluded, c.Suppliers)

	if len(v.Items) == 0 {
		fmt.Fprintf(out, "No %s negotiations found.\n", v.Tab)
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSUPPLIERS\tSTATUS\tCREATED")
	for _, n := range v.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			n.ID, n.Name, supplierList(n), n.Status, n.CreatedAt.Display())
	}
	w.Flush()
}

func supplierList(n models.Negotiation) string {
	names := n.TargetDetails.SupplierNames()
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

func newDeleteCmd() *cobra.Command {
	var (
		email, code string
		yes         bool
	)

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a negotiation permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			a, err := newApp(cmd, appOpts{})
			if err != nil {
				return err
			}
			defer a.Close()

			creds, err := credentials(cmd, email, code)
			if err != nil {
				return err
			}
			if !yes && !confirm(cmd, fmt.Sprintf("Delete negotiation %s? This cannot be undone.", id)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}

			q := dashboard.NewQuery(a.api)
			if err := q.Login(cmd.Context(), creds.Email, creds.Code); err != nil {
				return err
			}
			if err := q.Delete(cmd.Context(), id, creds); err != nil {
				return err
			}
			if a.store != nil {
				a.store.Delete(id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted negotiation %s.\n", id)
			return nil
		},
	}

	addCredentialFlags(cmd, &email, &code)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
