package model

type UnitState string

const (
	UnitAvailable UnitState = "AVAILABLE"
	UnitLocked    UnitState = "LOCKED"
	UnitBooked    UnitState = "BOOKED"
)

// InventoryUnit is one sellable unit of a resource group, a seat in a show.
// Price is in minor currency units.
type InventoryUnit struct {
	GroupID  string `json:"group_id" bson:"group_id"`
	UnitID   string `json:"unit_id" bson:"unit_id"`
	Category string `json:"category" bson:"category"`
	Price    int64  `json:"price" bson:"price"`
}

// Show is a resource group as the catalog stores it: one document per show
// with its units embedded.
type Show struct {
	ID    string          `json:"id" bson:"_id"`
	Name  string          `json:"name" bson:"name"`
	Units []InventoryUnit `json:"units" bson:"units"`
}
