package engine

import "github.com/oklog/ulid/v2"

const calculationIDPrefix = "calc_"

// NewCalculationID returns a lexicographically sortable id. ulid.Make draws
// from a process-wide monotonic entropy source, so ids issued in the same
// millisecond still sort in issue order.
func NewCalculationID() CalculationID {
	return CalculationID(calculationIDPrefix + ulid.Make().String())
}
