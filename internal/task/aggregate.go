package task

// Ratio computes done/total for percentage fields. The boolean is false
// when total is zero: the zero-denominator case must never abort a record,
// the caller omits the computed field instead.
func Ratio(done, total int64) (float64, bool) {
	if total == 0 {
		return 0, false
	}
	return float64(done) / float64(total), true
}
