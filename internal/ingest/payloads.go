package ingest

import (
	"portfolio_exporter/internal/core"
)

// Wire shapes of the monitored endpoints. Only fields the reconciler needs
// are declared; everything else in the responses is ignored.

// positionListPayload is the body of the position-list endpoint. Pages
// arrive wrapped in a data envelope.
type positionListPayload struct {
	Data []core.Position `json:"data"`
}

// configPayload is the body of the precision-config endpoint. Other config
// sections share the same response and are skipped.
type configPayload struct {
	AssetDecimals map[string]int `json:"assetDecimals"`
}
