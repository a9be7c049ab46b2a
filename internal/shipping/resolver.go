// Package shipping resolves courier quotes for the current cart.
package shipping

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"storefront-checkout/internal/adapter"
	"storefront-checkout/internal/cart"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/model"
)

// pincodePattern matches a six digit Indian postal code that does not start with 0.
var pincodePattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)

// ValidPostcode reports whether s is a deliverable PIN code.
func ValidPostcode(s string) bool {
	return pincodePattern.MatchString(strings.TrimSpace(s))
}

// Config holds resolver settings.
type Config struct {
	PickupPostcode string
	Timeout        time.Duration // per lookup; zero means DefaultLookupTimeout
}

// DefaultLookupTimeout bounds a shared lookup when Config.Timeout is unset.
const DefaultLookupTimeout = 30 * time.Second

// Resolver quotes shipping for a cart. It logs in to the logistics provider
// on every lookup; concurrent lookups for the same parcel share one call.
type Resolver struct {
	provider adapter.LogisticsProvider
	pickup   string
	timeout  time.Duration
	logger   *slog.Logger
	group    singleflight.Group
}

// NewResolver creates a Resolver. A nil logger discards output.
func NewResolver(provider adapter.LogisticsProvider, cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLookupTimeout
	}
	return &Resolver{
		provider: provider,
		pickup:   cfg.PickupPostcode,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// GetRates returns available courier quotes in provider order. Provider
// trouble (login failure, non-success status, no couriers) yields an empty
// slice and a nil error so checkout can show shipping as unavailable.
// An invalid postcode or an empty cart is a validation error. A caller that
// gives up gets ctx.Err(); the shared lookup keeps running for the others.
func (r *Resolver) GetRates(ctx context.Context, postcode string, lines []cart.Line) ([]model.ShippingQuote, error) {
	postcode = strings.TrimSpace(postcode)
	if !ValidPostcode(postcode) {
		return nil, model.NewValidationError("postcode", "a valid 6-digit PIN code is required")
	}
	if len(lines) == 0 {
		return nil, model.NewValidationError("cart", "cart is empty")
	}

	query := &model.RateQuery{
		PickupPostcode:   r.pickup,
		DeliveryPostcode: postcode,
		WeightKg:         TotalWeight(lines),
		DeclaredValue:    cart.Total(lines),
	}
	key := fmt.Sprintf("%s|%s|%s", query.DeliveryPostcode,
		strconv.FormatFloat(query.WeightKg, 'f', -1, 64), query.DeclaredValue.String())

	// The lookup outlives whichever caller started it.
	lookupCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.lookup(lookupCtx, query), nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	quotes := res.Val.([]model.ShippingQuote)
	if res.Shared {
		r.logger.Debug("shipping lookup coalesced", "postcode", postcode)
	}

	out := make([]model.ShippingQuote, len(quotes))
	copy(out, quotes)
	return out, nil
}

func (r *Resolver) lookup(ctx context.Context, query *model.RateQuery) []model.ShippingQuote {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	token, err := r.provider.Login(ctx)
	if err != nil {
		r.logger.Error("shipping login failed", "error", err)
		metrics.RecordRateLookup(metrics.ResultError)
		return []model.ShippingQuote{}
	}

	quotes, err := r.provider.Serviceability(ctx, token, query)
	if err != nil {
		r.logger.Error("serviceability lookup failed",
			"postcode", query.DeliveryPostcode,
			"weight_kg", query.WeightKg,
			"error", err,
		)
		metrics.RecordRateLookup(metrics.ResultError)
		return []model.ShippingQuote{}
	}
	if len(quotes) == 0 {
		r.logger.Info("no couriers for destination", "postcode", query.DeliveryPostcode)
		metrics.RecordRateLookup("empty")
		return []model.ShippingQuote{}
	}

	metrics.RecordRateLookup(metrics.ResultSuccess)
	return quotes
}

// DefaultQuote returns the provider's first quote, which checkout selects
// until the shopper picks another. ok is false when there are none.
func DefaultQuote(quotes []model.ShippingQuote) (quote model.ShippingQuote, ok bool) {
	if len(quotes) == 0 {
		return model.ShippingQuote{}, false
	}
	return quotes[0], true
}

// LineWeight returns a line's unit weight in kg, falling back to the default.
func LineWeight(w *float64) float64 {
	if w == nil || *w <= 0 {
		return model.DefaultLineWeight
	}
	return *w
}

// TotalWeight is Σ unit weight × quantity, in kg.
func TotalWeight(lines []cart.Line) float64 {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(decimal.NewFromFloat(LineWeight(l.Weight)).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total.InexactFloat64()
}
