package seed

import (
	"context"
	"errors"
	"fmt"

	catalogdomain "github.com/smallbiznis/boxoffice/internal/catalog/domain"
	"github.com/smallbiznis/boxoffice/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type starterOption struct {
	name     string
	modifier int64
}

type starterType struct {
	name        string
	description string
	price       int64
	options     []starterOption
}

// Prices are in bani.
var starterCatalog = []starterType{
	{
		name:        "General Admission",
		description: "Three-day festival pass",
		price:       90000,
		options: []starterOption{
			{name: "Camping", modifier: 30000},
		},
	},
	{
		name:        "VIP",
		description: "Three-day pass with VIP area access",
		price:       250000,
	},
	{
		name:        "Day Pass",
		description: "Single day entry",
		price:       40000,
	},
}

// EnsureCatalog creates the starter ticket types when the catalog is empty.
// It reports whether anything was created.
func EnsureCatalog(ctx context.Context, svc catalogdomain.Service) (bool, error) {
	if svc == nil {
		return false, errors.New("seed catalog service is required")
	}

	existing, err := svc.List(ctx, false)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}

	for _, st := range starterCatalog {
		tt, err := svc.CreateTicketType(ctx, catalogdomain.CreateTicketTypeRequest{
			Name:        st.name,
			Description: st.description,
			Price:       st.price,
		})
		if err != nil {
			return false, fmt.Errorf("seed ticket type %q: %w", st.name, err)
		}
		for _, opt := range st.options {
			if _, err := svc.AddOption(ctx, catalogdomain.CreateOptionRequest{
				TicketTypeID:  tt.ID.String(),
				Name:          opt.name,
				PriceModifier: opt.modifier,
			}); err != nil {
				return false, fmt.Errorf("seed option %q: %w", opt.name, err)
			}
		}
	}
	return true, nil
}

var Module = fx.Module("seed",
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, svc catalogdomain.Service, log *zap.Logger) {
		if !cfg.SeedCatalog {
			return
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				created, err := EnsureCatalog(ctx, svc)
				if err != nil {
					return err
				}
				if created {
					log.Info("seeded starter catalog", zap.Int("ticket_types", len(starterCatalog)))
				}
				return nil
			},
		})
	}),
)
