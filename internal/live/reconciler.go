package live

import (
	"fmt"

	"github.com/google/uuid"

	"stratbot/internal/engine"
	"stratbot/internal/exchange"
)

// Mismatch is a position present on both sides whose quantities disagree.
// The exchange value wins; the record exists for operator review.
type Mismatch struct {
	Position         *engine.Position
	LocalQuantity    float64
	ExchangeQuantity float64
}

// Diff is the outcome of comparing local positions against an exchange
// snapshot. The exchange is authoritative for existence: Missing positions
// must be closed externally, Adopted ones tracked with minimal metadata.
type Diff struct {
	Missing    []*engine.Position
	Adopted    []*engine.Position
	Mismatched []Mismatch
}

// Clean reports whether local and exchange state agree.
func (d Diff) Clean() bool {
	return len(d.Missing) == 0 && len(d.Adopted) == 0 && len(d.Mismatched) == 0
}

func (d Diff) String() string {
	return fmt.Sprintf("missing=%d adopted=%d mismatched=%d",
		len(d.Missing), len(d.Adopted), len(d.Mismatched))
}

// Reconcile diffs locally tracked open positions against the snapshot.
// Positions match by id; a local position absent from the snapshot is
// Missing, an exchange position with no local counterpart is returned as an
// Adopted position flagged for manual review (no stop or target attached).
func Reconcile(local []*engine.Position, snap exchange.Snapshot) Diff {
	var diff Diff

	remote := make(map[string]exchange.SnapshotPosition, len(snap.Positions))
	for _, sp := range snap.Positions {
		remote[sp.PositionID] = sp
	}

	seen := make(map[string]bool, len(local))
	for _, p := range local {
		seen[p.ID] = true
		sp, ok := remote[p.ID]
		if !ok {
			diff.Missing = append(diff.Missing, p)
			continue
		}
		if sp.Quantity != p.Quantity {
			diff.Mismatched = append(diff.Mismatched, Mismatch{
				Position:         p,
				LocalQuantity:    p.Quantity,
				ExchangeQuantity: sp.Quantity,
			})
		}
	}

	for _, sp := range snap.Positions {
		if seen[sp.PositionID] {
			continue
		}
		diff.Adopted = append(diff.Adopted, adopt(sp))
	}

	return diff
}

func adopt(sp exchange.SnapshotPosition) *engine.Position {
	side := engine.Long
	if sp.Side == exchange.SideSell {
		side = engine.Short
	}

	id := sp.PositionID
	if id == "" {
		id = uuid.New().String()
	}

	return &engine.Position{
		ID:         id,
		Symbol:     sp.Symbol,
		Side:       side,
		EntryPrice: sp.EntryPrice,
		Quantity:   sp.Quantity,
		Excursion:  sp.EntryPrice,
		Status:     engine.StatusOpen,
		Adopted:    true,
	}
}
