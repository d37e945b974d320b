package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/essentia-erp/essentia-erp/internal/shared"
)

// appliedLine is one item's computed outcome inside the commit phase.
// after was produced by applyDelta once; the builder reuses it rather than
// recomputing, so no double rounding can diverge from the stored stock.
type appliedLine struct {
	item   Item
	before decimal.Decimal
	change decimal.Decimal
	after  decimal.Decimal
}

// buildMovement shapes the immutable per-item movement row.
func buildMovement(line appliedLine, mtype MovementType, doc DocumentRef, remark string, at time.Time) Movement {
	return Movement{
		ItemType:  line.item.Type,
		ItemID:    line.item.ID,
		Type:      mtype,
		Qty:       line.change,
		RefModule: doc.Module,
		RefID:     doc.ID,
		Remark:    remark,
		CreatedAt: at,
	}
}

// buildRecord shapes the single audit record that summarizes one logical
// operation across every mutated item.
func buildRecord(lines []appliedLine, mtype MovementType, reason string, op shared.Operator, remarks string, doc DocumentRef, at time.Time) Record {
	rec := Record{
		Type:         mtype,
		Reason:       reason,
		OperatorID:   op.ID,
		OperatorName: op.Name,
		Remarks:      remarks,
		RefModule:    doc.Module,
		RefID:        doc.ID,
		CreatedAt:    at,
		Lines:        make([]RecordLine, 0, len(lines)),
	}
	for _, line := range lines {
		rec.Lines = append(rec.Lines, RecordLine{
			ItemType:  line.item.Type,
			ItemID:    line.item.ID,
			ItemCode:  line.item.Code,
			ItemName:  line.item.Name,
			QtyBefore: line.before,
			QtyChange: line.change,
			QtyAfter:  line.after,
		})
	}
	return rec
}
