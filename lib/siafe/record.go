package siafe

import "strings"

// Record maps column names to cell text for one table row. Keys are the
// table's header set at capture time; no identifier column is assumed
// unique, so two records are duplicates only under full-row equality.
type Record map[string]string

// RecordSet accumulates records across scroll iterations: append-only,
// duplicate-free, insertion order reflecting the order rows first became
// visible.
type RecordSet struct {
	columns []string
	records []Record
	seen    map[string]struct{}
}

func NewRecordSet(columns []string) *RecordSet {
	return &RecordSet{
		columns: columns,
		seen:    map[string]struct{}{},
	}
}

// key canonicalizes a record by joining its values in column order. The
// separator cannot occur in rendered cell text.
func (rs *RecordSet) key(rec Record) string {
	values := make([]string, len(rs.columns))
	for i, col := range rs.columns {
		values[i] = rec[col]
	}
	return strings.Join(values, "\x1f")
}

// Add appends rec unless an equal record is already present. It reports
// whether the set grew.
func (rs *RecordSet) Add(rec Record) bool {
	k := rs.key(rec)
	if _, dup := rs.seen[k]; dup {
		return false
	}
	rs.seen[k] = struct{}{}
	rs.records = append(rs.records, rec)
	return true
}

func (rs *RecordSet) Len() int {
	return len(rs.records)
}

// Columns returns the header set in on-screen order.
func (rs *RecordSet) Columns() []string {
	return rs.columns
}

// Records returns the accumulated records in first-visible order.
func (rs *RecordSet) Records() []Record {
	return rs.records
}
