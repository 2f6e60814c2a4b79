package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/itstheanurag/coderunner/internal/languages"
	"github.com/spf13/cobra"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported languages",
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LANGUAGE\tEXTENSION\tTOOLCHAIN\tIMAGE")
		for _, l := range languages.NewRegistry().List() {
			fmt.Fprintf(w, "%s\t.%s\t%s\t%s\n", l.ID, l.Extension, l.Toolchain(), l.Image)
		}
		return w.Flush()
	},
}
