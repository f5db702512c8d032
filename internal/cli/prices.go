package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/soyeahso/tripwatch/internal/domain"
	"github.com/soyeahso/tripwatch/internal/store"
	"github.com/spf13/cobra"
)

func newPricesCmd() *cobra.Command {
	var (
		history string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Show the latest recorded price for each trip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := openPriceBook(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("opening price book: %w", err)
			}
			defer book.Close()

			var updates []domain.PriceUpdate
			if history != "" {
				sq, ok := book.(*store.SQLitePriceBook)
				if !ok {
					return fmt.Errorf("price history requires the sqlite store")
				}
				updates, err = sq.History(cmd.Context(), history, limit)
			} else {
				updates, err = book.List(cmd.Context())
			}
			if err != nil {
				return err
			}

			if len(updates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No price updates recorded yet. Run `tripwatch watch` to collect them.")
				return nil
			}
			return printPrices(cmd.OutOrStdout(), updates)
		},
	}

	cmd.Flags().StringVar(&history, "history", "", "show every recorded update for this trip id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of history rows")

	return cmd
}

func printPrices(out io.Writer, updates []domain.PriceUpdate) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIP\tNAME\tFLIGHT\tHOTEL\tTOTAL\tUPDATED")
	for _, u := range updates {
		updated := "-"
		if !u.UpdatedAt.IsZero() {
			updated = u.UpdatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			u.TripID, dash(u.TripName), dash(u.FlightPrice), dash(u.HotelPrice), dash(u.TotalPrice), updated)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
