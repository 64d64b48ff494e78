package discount

import (
	"errors"
	"fmt"
	"sort"

	"github.com/smallbiznis/boxoffice/internal/config"
)

var ErrInvalidTierTable = errors.New("invalid_tier_table")

// Band covers Min..Max tickets inclusive. Max 0 means open ended.
type Band struct {
	Min     int
	Max     int
	Percent int
}

// TierTable is a validated, sorted list of non-overlapping bands whose
// percent never decreases as quantity grows.
type TierTable struct {
	bands []Band
}

func NewTierTable(bands []Band) (TierTable, error) {
	sorted := append([]Band(nil), bands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })

	if len(sorted) == 0 {
		return TierTable{}, fmt.Errorf("%w: no bands", ErrInvalidTierTable)
	}
	for i, b := range sorted {
		if b.Min <= 0 || b.Percent < 0 || b.Percent > 100 || (b.Max != 0 && b.Max < b.Min) {
			return TierTable{}, fmt.Errorf("%w: band %d out of range", ErrInvalidTierTable, i)
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if prev.Max == 0 || prev.Max >= b.Min {
			return TierTable{}, fmt.Errorf("%w: band %d overlaps", ErrInvalidTierTable, i)
		}
		if b.Percent < prev.Percent {
			return TierTable{}, fmt.Errorf("%w: band %d lowers the percent", ErrInvalidTierTable, i)
		}
	}
	return TierTable{bands: sorted}, nil
}

func TierTableFromConfig(bands []config.TierBand) (TierTable, error) {
	out := make([]Band, 0, len(bands))
	for _, b := range bands {
		band := Band{Min: b.MinQuantity, Percent: b.Percent}
		if b.MaxQuantity != nil {
			band.Max = *b.MaxQuantity
		}
		out = append(out, band)
	}
	return NewTierTable(out)
}

// DefaultTierTable is 50-99: 10%, 100-149: 12%, 150-199: 15%, 200+: 20%.
func DefaultTierTable() TierTable {
	table, err := TierTableFromConfig(config.DefaultPricingConfig().TierBands)
	if err != nil {
		panic(err)
	}
	return table
}

// MinQuantity is the smallest quantity any band accepts.
func (t TierTable) MinQuantity() int {
	if len(t.bands) == 0 {
		return 0
	}
	return t.bands[0].Min
}

// Lookup returns the percent for quantity. Quantities that fall in a gap or
// below the first band are not eligible.
func (t TierTable) Lookup(quantity int) (int, bool) {
	for i := len(t.bands) - 1; i >= 0; i-- {
		b := t.bands[i]
		if quantity < b.Min {
			continue
		}
		if b.Max != 0 && quantity > b.Max {
			return 0, false
		}
		return b.Percent, true
	}
	return 0, false
}

func (t TierTable) Bands() []Band {
	return append([]Band(nil), t.bands...)
}
