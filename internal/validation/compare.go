package validation

// ColumnDiff is one differing column between a source row and its target
// counterpart, with both textual values. A nil value means SQL NULL.
type ColumnDiff struct {
	Column      string
	SourceValue *string
	TargetValue *string
}

// ValuesDiffer applies the row comparison rule to a single column pair: a
// difference is exactly one side NULL, or both sides non-NULL and unequal.
// (NULL, NULL) is a match.
func ValuesDiffer(source, target *string) bool {
	if source == nil && target == nil {
		return false
	}
	if source == nil || target == nil {
		return true
	}
	return *source != *target
}

// DiffRow compares the text-rendered column values of one source/target row
// pair and returns the differing columns in declared column order.
func DiffRow(columns []string, source, target map[string]*string) []ColumnDiff {
	var diffs []ColumnDiff
	for _, col := range columns {
		s := source[col]
		t := target[col]
		if ValuesDiffer(s, t) {
			diffs = append(diffs, ColumnDiff{Column: col, SourceValue: s, TargetValue: t})
		}
	}
	return diffs
}
