package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/eggcount/internal/backend/database"
	"github.com/jo-hoe/eggcount/internal/core"
)

func resultsCommand(configPath *string) *cobra.Command {
	var (
		limit int
		count bool
	)

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Print stored results, newest first, as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := core.LoadConfig(*configPath)
			if err != nil {
				return err
			}

			db, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			if count {
				total, err := db.CountResults(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to count results: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), total)
				return err
			}

			results, err := db.GetResults(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list results: %w", err)
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range results {
				if err := encoder.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results to print (0 prints all)")
	cmd.Flags().BoolVar(&count, "count", false, "Print only the number of stored results")
	return cmd
}
