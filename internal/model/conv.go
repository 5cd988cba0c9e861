package model

import "strconv"

// FormatNumber renders v with a fixed number of decimals.
// A negative precision uses the shortest exact representation.
func FormatNumber(v float64, precision int) string {
	return strconv.FormatFloat(v, 'f', precision, 64)
}
