package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bodul/waifu100/internal/share"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Manage the community feed",
}

var feedAddCmd = &cobra.Command{
	Use:   "add [share-id...]",
	Short: "Add existing shares to the community feed",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFeedAdd,
}

var sharesCmd = &cobra.Command{
	Use:   "shares",
	Short: "Inspect stored shares",
}

var sharesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every stored share and whether it is in the feed",
	Args:  cobra.NoArgs,
	RunE:  runSharesList,
}

func openStore(cmd *cobra.Command) (*share.Store, func(), error) {
	rdb, err := share.Connect(cmd.Context(), cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	store := share.NewStore(rdb,
		share.WithPrefix(cfg.Redis.KeyPrefix),
		share.WithFeedSize(cfg.Feed.Size),
		share.WithLogger(logger),
	)
	return store, func() { rdb.Close() }, nil
}

func runFeedAdd(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	var added, skipped, missing []string
	for _, id := range args {
		ok, err := store.AddToFeed(cmd.Context(), id)
		switch {
		case err == nil && ok:
			added = append(added, id)
		case err == nil:
			skipped = append(skipped, id)
		case errors.Is(err, share.ErrNotFound), errors.Is(err, share.ErrInvalidID):
			missing = append(missing, id)
		default:
			return fmt.Errorf("add %s: %w", id, err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Added: %d\n", len(added))
	for _, id := range added {
		fmt.Fprintf(out, "  + %s\n", id)
	}
	fmt.Fprintf(out, "Skipped (already in feed): %d\n", len(skipped))
	for _, id := range skipped {
		fmt.Fprintf(out, "  = %s\n", id)
	}
	fmt.Fprintf(out, "Not found: %d\n", len(missing))
	for _, id := range missing {
		fmt.Fprintf(out, "  ? %s\n", id)
	}
	return nil
}

func runSharesList(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	shares, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tFEED\tTITLE")
	for _, s := range shares {
		feed := ""
		if s.InFeed {
			feed = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.CreatedAt.Format(time.DateTime), feed, s.Title)
	}
	fmt.Fprintf(tw, "\n%d shares\n", len(shares))
	return tw.Flush()
}
