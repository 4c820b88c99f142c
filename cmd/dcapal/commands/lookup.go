package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/internal/marketdata"
	"github.com/wonny/allocator/pkg/redis"
)

var (
	searchCmd = &cobra.Command{
		Use:   "search <text>",
		Short: "Search fiat currencies, crypto assets and equities",
		Long: `Matches the text against the fiat and crypto catalogs and the equity
search provider. Queries shorter than 3 characters return nothing.

Example:
  go run ./cmd/dcapal search bitcoin
  go run ./cmd/dcapal search "all world"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSearch,
	}

	priceCmd = &cobra.Command{
		Use:   "price <symbol>",
		Short: "Price an asset in a quote currency",
		Long: `Prints the price of a fiat, crypto or equity symbol in the quote currency.
Equities priced in another currency are converted at the current rate.

Example:
  go run ./cmd/dcapal price btc --quote eur
  go run ./cmd/dcapal price VWCE.DE --quote usd`,
		Args: cobra.ExactArgs(1),
		RunE: runPrice,
	}
)

var (
	priceQuote string
	lookupJSON bool
)

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(priceCmd)

	searchCmd.Flags().BoolVar(&lookupJSON, "json", false, "print the result as JSON")
	priceCmd.Flags().StringVar(&priceQuote, "quote", "USD", "quote currency")
	priceCmd.Flags().BoolVar(&lookupJSON, "json", false, "print the result as JSON")
}

// newLookupService builds the market data service for a one-off command
func newLookupService() (*marketdata.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := newLogger(cfg)

	rc, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, running without cache")
		rc = redis.Disabled()
	}
	return newMarketService(cfg, log, rc), func() { _ = rc.Close() }, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	service, closeFn, err := newLookupService()
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := service.Search(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if lookupJSON {
		return writeJSON(out, res)
	}
	printSearchResult(out, res)
	return nil
}

func runPrice(cmd *cobra.Command, args []string) error {
	service, closeFn, err := newLookupService()
	if err != nil {
		return err
	}
	defer closeFn()

	price, ok, err := service.Price(cmd.Context(), args[0], priceQuote)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s", contracts.ErrPriceNotAvailable, strings.ToLower(args[0]), strings.ToLower(priceQuote))
	}

	out := cmd.OutOrStdout()
	if lookupJSON {
		return writeJSON(out, price)
	}
	fmt.Fprintf(out, "%s = %s", strings.ToUpper(price.Base), formatMoney(price.Price, price.Quote))
	if price.Currency != "" && !strings.EqualFold(price.Currency, price.Quote) {
		fmt.Fprintf(out, " (converted from %s)", strings.ToUpper(price.Currency))
	}
	fmt.Fprintln(out)
	return nil
}

func printSearchResult(w io.Writer, res marketdata.SearchResult) {
	if res.Empty() {
		fmt.Fprintf(w, "No assets match %q\n", res.Query)
		return
	}

	widths := []int{14, 40, 12}
	sections := []struct {
		title  string
		assets []contracts.AssetInfo
	}{
		{"Fiat", res.Fiat},
		{"Crypto", res.Crypto},
		{"Equity", res.Equity},
	}
	for _, sec := range sections {
		if len(sec.assets) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s (%d)\n", sec.title, len(sec.assets))
		printTableHeader(w, []string{"Symbol", "Name", "Exchange"}, widths)
		for _, a := range sec.assets {
			printTableRow(w, []string{a.Symbol, a.Name, a.Exchange}, widths)
		}
	}
	fmt.Fprintln(w)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
