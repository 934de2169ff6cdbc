package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/price"
)

// Syncer publishes treatment prices to Stripe so payments can reference them.
// A Syncer without a secret key is disabled and leaves treatments untouched.
type Syncer struct {
	client   *price.Client
	currency string
	logger   *slog.Logger
}

func NewSyncer(secretKey, currency string, logger *slog.Logger) *Syncer {
	s := &Syncer{currency: strings.ToLower(strings.TrimSpace(currency)), logger: logger}
	if s.currency == "" {
		s.currency = string(stripe.CurrencyUSD)
	}
	if key := strings.TrimSpace(secretKey); key != "" {
		s.client = &price.Client{B: stripe.GetBackend(stripe.APIBackend), Key: key}
	}
	return s
}

func (s *Syncer) Enabled() bool { return s != nil && s.client != nil }

// Sync creates a Stripe price for t and records its id. Free treatments and
// treatments that already carry a price are skipped.
func (s *Syncer) Sync(ctx context.Context, t *model.Treatment) error {
	if !s.Enabled() || t.PriceCents <= 0 || t.StripePriceID != "" {
		return nil
	}
	if t.Currency == "" {
		t.Currency = s.currency
	}
	p, err := s.client.New(PriceParams(ctx, *t))
	if err != nil {
		return fmt.Errorf("stripe price for treatment %s: %w", t.ID, err)
	}
	t.StripePriceID = p.ID
	s.logger.Info("treatment price published", "treatment_id", t.ID, "stripe_price_id", p.ID)
	return nil
}

func PriceParams(ctx context.Context, t model.Treatment) *stripe.PriceParams {
	name := t.Name
	if t.Category != "" {
		name = t.Category + " - " + t.Name
	}
	params := &stripe.PriceParams{
		Currency:   stripe.String(strings.ToLower(t.Currency)),
		UnitAmount: stripe.Int64(t.PriceCents),
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(name),
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("treatment-price:" + t.ID)
	params.AddMetadata("treatment_id", t.ID)
	params.AddMetadata("specialist_id", t.SpecialistID)
	params.AddMetadata("duration_minutes", fmt.Sprint(t.DurationMinutes))
	return params
}
