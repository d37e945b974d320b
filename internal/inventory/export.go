package inventory

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Exporter renders inventory records as CSV. Line ordering uses a Chinese
// collator since item names are predominantly CJK.
type Exporter struct {
	collator *collate.Collator
}

// NewExporter constructs an Exporter.
func NewExporter() *Exporter {
	return &Exporter{collator: collate.New(language.Chinese)}
}

// WriteCSV writes one row per record line, records in given order, lines
// sorted by item name.
func (e *Exporter) WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	header := []string{"record_id", "created_at", "type", "reason", "operator", "item_code", "item_name", "qty_before", "qty_change", "qty_after", "remarks"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		lines := make([]RecordLine, len(rec.Lines))
		copy(lines, rec.Lines)
		sort.SliceStable(lines, func(i, j int) bool {
			return e.collator.CompareString(lines[i].ItemName, lines[j].ItemName) < 0
		})
		for _, line := range lines {
			row := []string{
				strconv.FormatInt(rec.ID, 10),
				rec.CreatedAt.Format("2006-01-02 15:04:05"),
				string(rec.Type),
				rec.Reason,
				rec.OperatorName,
				line.ItemCode,
				line.ItemName,
				line.QtyBefore.StringFixed(3),
				line.QtyChange.StringFixed(3),
				line.QtyAfter.StringFixed(3),
				rec.Remarks,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
