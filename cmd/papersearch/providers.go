package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-search-service/internal/app"
	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List providers and whether they would be queried",
	Long: `providers prints every known provider with its client and credential
status. Only providers marked active take part in a search.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cmd)

		registry := papersources.NewRegistry(logger)
		app.RegisterProviders(registry, cfg, logger)
		creds := app.Credentials(cfg)
		active, err := registry.Active(creds)
		if err != nil {
			return err
		}

		registered := make(map[domain.Provider]bool)
		for _, p := range registry.Registered() {
			registered[p] = true
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVIDER\tNAME\tCLIENT\tCREDENTIAL\tACTIVE")
		for _, p := range domain.AllProviders() {
			cred := "-"
			if c := p.RequiredCredential(); c != domain.CredentialNone {
				cred = string(c)
				if !creds.Has(c) {
					cred += " (missing)"
				}
			}
			_, isActive := active.Get(p)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p, p.DisplayName(), yesNo(registered[p]), cred, yesNo(isActive))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
