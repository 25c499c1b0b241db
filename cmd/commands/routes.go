package commands

// Command that prints the PartyServer endpoint table
// Offline, needs no base URL

import (
	"fmt"
	"text/tabwriter"

	"partyserver-client/internal/clients_api/partyserver"

	"github.com/spf13/cobra"
)

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "routes",
		Short:       "List PartyServer endpoints",
		Long:        `Print every endpoint the client knows with its method, path and whether it needs admin credentials and its server rate limit (requests per window).`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{offlineAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "METHOD\tPATH\tADMIN\tLIMIT\tNAME\tSUMMARY")
			for _, r := range partyserver.Routes() {
				admin := "no"
				if r.Admin {
					admin = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Method, r.Path, admin, r.RateLimit, r.Name, r.Summary)
			}
			return w.Flush()
		},
	}
}
