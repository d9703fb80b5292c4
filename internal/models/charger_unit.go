package models

import "time"

// ChargerUnit is a physical charging bay derived from the port layout of a
// published station version. Units are addressable by label within a station.
type ChargerUnit struct {
	ID            string    `db:"id" json:"id"`
	StationID     string    `db:"station_id" json:"stationId"`
	Label         string    `db:"label" json:"label"`
	PowerType     PowerType `db:"power_type" json:"powerType"`
	PowerKw       *float64  `db:"power_kw" json:"powerKw,omitempty"`
	PricePerSlot  int       `db:"price_per_slot" json:"pricePerSlot"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}
