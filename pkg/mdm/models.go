package mdm

import (
	"github.com/shopspring/decimal"
)

// deviceResponse is the envelope of GET /devices/{id}.
type deviceResponse struct {
	Data struct {
		Attributes deviceAttributes `json:"attributes"`
	} `json:"data"`
}

type deviceAttributes struct {
	Name              *string         `json:"name"`
	LocationLatitude  nullableDecimal `json:"location_latitude"`
	LocationLongitude nullableDecimal `json:"location_longitude"`
	LocationAccuracy  nullableDecimal `json:"location_accuracy"`
	LocationUpdatedAt *string         `json:"location_updated_at"`
}

// nullableDecimal accepts a JSON number, a numeric string, null or "".
type nullableDecimal struct {
	decimal.NullDecimal
}

func (n *nullableDecimal) UnmarshalJSON(data []byte) error {
	if string(data) == `""` {
		n.Valid = false
		return nil
	}
	return n.NullDecimal.UnmarshalJSON(data)
}
