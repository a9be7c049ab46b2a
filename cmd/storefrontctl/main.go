// storefrontctl drives a running storefront service from the command line.
// Each command performs a single operation, making it composable for scripts.
//
// Examples:
//
//	storefrontctl rates --item 12:2 --postcode 560001
//	storefrontctl rates --item 12 --watch < postcodes.txt
//	storefrontctl submit --item 12:2 --postcode 560001 --form buyer.json
//	storefrontctl webhook --secret "$RAZORPAY_WEBHOOK_SECRET" --order 101 --payment pay_123
//	storefrontctl order --id 101
//	storefrontctl orders --token "$STOREFRONT_TOKEN"
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"storefront-checkout/internal/razorpay"
	"storefront-checkout/internal/shipping"
)

func main() {
	app := &cli.App{
		Name:  "storefrontctl",
		Usage: "exercise the storefront checkout API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "storefront service base URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{"STOREFRONT_URL"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "per-request timeout",
				Value: 30 * time.Second,
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "customer bearer token for protected routes",
				EnvVars: []string{"STOREFRONT_TOKEN"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "rates",
				Usage:  "quote shipping for a cart",
				Action: ratesCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "item", Usage: "product as ID or ID:QTY (repeatable)", Required: true},
					&cli.StringFlag{Name: "postcode", Usage: "delivery PIN code"},
					&cli.BoolFlag{Name: "watch", Usage: "read postcodes from stdin, quoting after input settles"},
					&cli.DurationFlag{Name: "debounce", Usage: "settle time in watch mode", Value: shipping.DefaultDebounceWindow},
				},
			},
			{
				Name:   "submit",
				Usage:  "fill a cart, pick the default courier and submit the order",
				Action: submitCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "item", Usage: "product as ID or ID:QTY (repeatable)", Required: true},
					&cli.StringFlag{Name: "postcode", Usage: "delivery PIN code; defaults to the form's"},
					&cli.StringFlag{Name: "form", Usage: "JSON file with the checkout form", Required: true},
				},
			},
			{
				Name:   "webhook",
				Usage:  "sign and post a payment webhook",
				Action: webhookCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "secret", Usage: "webhook secret", EnvVars: []string{"RAZORPAY_WEBHOOK_SECRET"}, Required: true},
					&cli.IntFlag{Name: "order", Usage: "commerce order id", Required: true},
					&cli.StringFlag{Name: "payment", Usage: "payment id", Required: true},
					&cli.StringFlag{Name: "event", Usage: "event name", Value: razorpay.EventPaymentCaptured},
					&cli.Int64Flag{Name: "amount", Usage: "amount in minor units"},
					&cli.BoolFlag{Name: "print", Usage: "print the signed body instead of sending it"},
				},
			},
			{
				Name:   "order",
				Usage:  "show an order",
				Action: orderCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "id", Usage: "commerce order id", Required: true},
				},
			},
			{
				Name:   "orders",
				Usage:  "list the signed-in customer's orders",
				Action: ordersCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func clientFrom(c *cli.Context) (*apiClient, error) {
	return newAPIClient(c.String("server"), c.Duration("timeout"), c.String("token"))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ratesCommand quotes shipping once, or in watch mode for each postcode that
// stays unchanged for the debounce window.
func ratesCommand(c *cli.Context) error {
	items, err := parseItems(c.StringSlice("item"))
	if err != nil {
		return err
	}
	api, err := clientFrom(c)
	if err != nil {
		return err
	}
	if err := api.fillCart(c.Context, items); err != nil {
		return err
	}

	if !c.Bool("watch") {
		postcode := c.String("postcode")
		if postcode == "" {
			return fmt.Errorf("--postcode is required without --watch")
		}
		quotes, err := api.rates(c.Context, postcode)
		if err != nil {
			return err
		}
		return printJSON(quotes)
	}

	window := c.Duration("debounce")
	debouncer := &shipping.Debouncer{Window: window}
	defer debouncer.Stop()

	// Serializes lookups and lets EOF wait for the last one.
	var running sync.Mutex
	lookup := func(postcode string) func() {
		return func() {
			running.Lock()
			defer running.Unlock()
			quotes, err := api.rates(c.Context, postcode)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", postcode, err)
				return
			}
			fmt.Printf("%s: %d courier(s)\n", postcode, len(quotes.Quotes))
			for _, q := range quotes.Quotes {
				fmt.Printf("  %-24s %s\n", q.CourierName, strings.Trim(string(q.Rate), `"`))
			}
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		postcode := strings.TrimSpace(scanner.Text())
		if postcode == "" {
			continue
		}
		debouncer.Trigger(lookup(postcode))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	// Input ended; let the pending lookup fire and finish.
	time.Sleep(window + 50*time.Millisecond)
	running.Lock()
	running.Unlock()
	return nil
}

func submitCommand(c *cli.Context) error {
	items, err := parseItems(c.StringSlice("item"))
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(c.String("form"))
	if err != nil {
		return fmt.Errorf("reading form: %w", err)
	}
	var form map[string]any
	if err := json.Unmarshal(raw, &form); err != nil {
		return fmt.Errorf("parsing form: %w", err)
	}

	postcode := c.String("postcode")
	if postcode == "" {
		postcode, _ = form["postcode"].(string)
	}

	api, err := clientFrom(c)
	if err != nil {
		return err
	}
	if err := api.fillCart(c.Context, items); err != nil {
		return err
	}

	quotes, err := api.rates(c.Context, postcode)
	if err != nil {
		return fmt.Errorf("quoting shipping: %w", err)
	}
	if quotes.Default == nil || *quotes.Default >= len(quotes.Quotes) {
		return fmt.Errorf("no courier serves %s", postcode)
	}
	quote := quotes.Quotes[*quotes.Default]
	fmt.Fprintf(os.Stderr, "shipping with %s\n", quote.CourierName)

	var result map[string]any
	body := map[string]any{"form": form, "shipping_quote": quote}
	if err := api.do(c.Context, "POST", "/checkout", body, nil, &result); err != nil {
		return err
	}
	return printJSON(result)
}

func webhookCommand(c *cli.Context) error {
	body, err := webhookBody(c.String("event"), c.Int("order"), c.String("payment"), c.Int64("amount"))
	if err != nil {
		return err
	}

	if c.Bool("print") {
		fmt.Println(string(body))
		fmt.Println(razorpay.Sign(body, c.String("secret")))
		return nil
	}

	api, err := clientFrom(c)
	if err != nil {
		return err
	}
	ack, err := api.sendWebhook(c.Context, body, c.String("secret"))
	if err != nil {
		return err
	}
	return printJSON(ack)
}

func orderCommand(c *cli.Context) error {
	api, err := clientFrom(c)
	if err != nil {
		return err
	}
	var order map[string]any
	if err := api.do(c.Context, "GET", fmt.Sprintf("/orders/%d", c.Int("id")), nil, nil, &order); err != nil {
		return err
	}
	return printJSON(order)
}

func ordersCommand(c *cli.Context) error {
	if c.String("token") == "" {
		return fmt.Errorf("--token is required to list orders")
	}
	api, err := clientFrom(c)
	if err != nil {
		return err
	}
	var history map[string]any
	if err := api.do(c.Context, "GET", "/orders", nil, nil, &history); err != nil {
		return err
	}
	return printJSON(history)
}
