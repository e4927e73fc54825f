package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mwrona/receiptor/internal/access"
	"github.com/mwrona/receiptor/internal/store"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative commands operating directly on the store",
}

var adminLimitCmd = &cobra.Command{
	Use:   "limit",
	Short: "Usage limit commands",
}

var adminLimitSetCmd = &cobra.Command{
	Use:   "set <user-id> <limit>",
	Short: "Set a user's remaining-use counter (-1 for unlimited)",
	Args:  cobra.ExactArgs(2),
	RunE:  runAdminLimitSet,
}

var adminLimitResetCmd = &cobra.Command{
	Use:   "reset <user-id>",
	Short: "Remove a user's counter, restoring unlimited use",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdminLimitReset,
}

var adminLimitResetAllCmd = &cobra.Command{
	Use:   "reset-all",
	Short: "Remove every recorded counter",
	RunE:  runAdminLimitResetAll,
}

var adminLimitCheckCmd = &cobra.Command{
	Use:   "check <user-id>",
	Short: "Show a user's remaining uses",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdminLimitCheck,
}

var adminAccessCmd = &cobra.Command{
	Use:   "access",
	Short: "Access window commands",
}

var adminAccessGrantCmd = &cobra.Command{
	Use:   "grant <user-id> <days>",
	Short: "Grant access for the given number of days",
	Args:  cobra.ExactArgs(2),
	RunE:  runAdminAccessGrant,
}

var adminAccessCheckCmd = &cobra.Command{
	Use:   "check <user-id>",
	Short: "Show a user's gate status",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdminAccessCheck,
}

var adminTrackerCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Announcement tracker commands",
}

var adminTrackerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the announcement marker so the next serve announces again",
	RunE:  runAdminTrackerReset,
}

func init() {
	adminLimitCmd.AddCommand(adminLimitSetCmd, adminLimitResetCmd, adminLimitResetAllCmd, adminLimitCheckCmd)
	adminAccessCmd.AddCommand(adminAccessGrantCmd, adminAccessCheckCmd)
	adminTrackerCmd.AddCommand(adminTrackerResetCmd)
	adminCmd.AddCommand(adminLimitCmd, adminAccessCmd, adminTrackerCmd)
	rootCmd.AddCommand(adminCmd)
}

// openStore opens the store at the configured path for a one-shot
// admin operation.
func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return store.Open(cfg.Storage.Path, logger)
}

func runAdminLimitSet(cmd *cobra.Command, args []string) error {
	limit, err := strconv.Atoi(args[1])
	if err != nil || limit < store.Unlimited {
		return fmt.Errorf("limit must be -1 (unlimited) or non-negative, got %q", args[1])
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetLimit(context.Background(), args[0], limit); err != nil {
		return err
	}
	fmt.Printf("limit for %s set to %s\n", args[0], formatLimit(limit))
	return nil
}

func runAdminLimitReset(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ResetLimit(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("limit for %s reset\n", args[0])
	return nil
}

func runAdminLimitResetAll(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ResetAllLimits(context.Background()); err != nil {
		return err
	}
	fmt.Println("all limits reset")
	return nil
}

func runAdminLimitCheck(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	limit := st.GetLimit(context.Background(), args[0])
	fmt.Printf("%s: %s\n", args[0], formatLimit(limit))
	return nil
}

func runAdminAccessGrant(cmd *cobra.Command, args []string) error {
	days, err := strconv.Atoi(args[1])
	if err != nil || days < 1 {
		return fmt.Errorf("days must be at least 1, got %q", args[1])
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	expiry := time.Now().Add(time.Duration(days) * 24 * time.Hour)
	if err := st.SetAccessExpiry(context.Background(), args[0], expiry); err != nil {
		return err
	}
	fmt.Printf("access for %s granted until %s\n", args[0], expiry.Format("02/01/2006"))
	return nil
}

func runAdminAccessCheck(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	gate := access.NewGate(st, st)
	res := gate.Check(context.Background(), args[0])

	if !res.Allowed {
		fmt.Printf("%s: denied (%s)\n", args[0], res.Reason)
		return nil
	}

	window := "no expiry"
	if !res.WindowUnlimited {
		window = fmt.Sprintf("expires %s (%d days left)",
			res.ExpiresAt.Format("02/01/2006"), gate.DaysLeft(res.ExpiresAt))
	}
	fmt.Printf("%s: allowed, %s, %s remaining\n", args[0], window, formatLimit(res.Remaining))
	return nil
}

func runAdminTrackerReset(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ClearMarkers(context.Background()); err != nil {
		return err
	}
	fmt.Println("announcement tracker reset")
	return nil
}

func formatLimit(limit int) string {
	if limit == store.Unlimited {
		return "unlimited"
	}
	return strconv.Itoa(limit)
}
