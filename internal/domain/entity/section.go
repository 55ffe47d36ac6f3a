package entity

// SectionID identifies one of the fixed audit sections
type SectionID string

// SectionCategory separates site-presence sections from the equipment inventory
type SectionCategory string

const (
	CategorySite      SectionCategory = "sitio"
	CategoryInventory SectionCategory = "inventario"
)

// SectionDefinition is an immutable entry of the section registry
type SectionDefinition struct {
	ID         SectionID       `json:"id"`
	Name       string          `json:"name"`
	Category   SectionCategory `json:"category"`
	Obligatory bool            `json:"obligatory"`
}

// Weight is the aggregation weight: obligatory sections count double
func (d SectionDefinition) Weight() float64 {
	if d.Obligatory {
		return 2
	}
	return 1
}

// IsInventory reports whether the section is fed by the inventory ingestion
func (d SectionDefinition) IsInventory() bool {
	return d.Category == CategoryInventory
}
