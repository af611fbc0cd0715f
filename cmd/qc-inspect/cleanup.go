package main

import (
	"database/sql"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/tendant/qc-inspect/internal/maintenance"
	"github.com/tendant/qc-inspect/pkg/ratelimit"
	"github.com/tendant/qc-inspect/pkg/repository"
)

func newCleanupCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired sessions, stale tokens and finished rate-limit windows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, err := openDB(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := newPurger(db, repository.NewRateLimitsRepository(db)).Run(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("cleanup finished",
				"sessions", res.Sessions,
				"tokens", res.Tokens,
				"rate_limit_windows", res.Windows,
			)
			return nil
		},
	}
}

// newPurger builds the purge job. windows is nil when the attempt counters
// expire on their own.
func newPurger(db *sql.DB, windows maintenance.WindowPurger) *maintenance.Purger {
	return &maintenance.Purger{
		Sessions:        repository.NewSessionsRepository(db),
		Tokens:          repository.NewVerificationTokensRepository(db),
		Windows:         windows,
		WindowRetention: ratelimit.LongestWindow(),
	}
}
