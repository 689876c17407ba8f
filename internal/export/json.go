package export

import (
	"encoding/json"

	"portfolio_exporter/internal/core"
)

// FormatJSON renders the positions as an indented JSON array, sorted by
// close time descending. Raw fixed-point amounts and all decimal values
// serialize as strings, so consumers never round them through float64.
func FormatJSON(positions []core.AggregatedPosition) (string, error) {
	sorted := append([]core.AggregatedPosition(nil), positions...)
	SortByCloseDesc(sorted)
	if sorted == nil {
		sorted = []core.AggregatedPosition{}
	}

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
