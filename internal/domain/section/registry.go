// Package section holds the static catalog of evaluable audit sections.
package section

import "github.com/garyjia/site-audit/internal/domain/entity"

const (
	NetworkTopology    entity.SectionID = "topologia_red"
	TechnicalRoom      entity.SectionID = "cuarto_tecnico"
	ElectricalPower    entity.SectionID = "energia_electrica"
	Cooling            entity.SectionID = "climatizacion"
	PhysicalSecurity   entity.SectionID = "seguridad_fisica"
	StructuredCabling  entity.SectionID = "cableado_estructurado"
	InternetLink       entity.SectionID = "conectividad_internet"
	PowerBackup        entity.SectionID = "respaldo_energia"
	InformationSec     entity.SectionID = "seguridad_informatica"
	Maintenance        entity.SectionID = "mantenimiento"
	IncidentManagement entity.SectionID = "gestion_incidentes"
	EquipmentInventory entity.SectionID = "inventario_equipos"
)

var catalog = []entity.SectionDefinition{
	{ID: NetworkTopology, Name: "Topología de red", Category: entity.CategorySite, Obligatory: true},
	{ID: TechnicalRoom, Name: "Cuarto técnico", Category: entity.CategorySite, Obligatory: true},
	{ID: ElectricalPower, Name: "Energía eléctrica", Category: entity.CategorySite, Obligatory: true},
	{ID: Cooling, Name: "Climatización", Category: entity.CategorySite, Obligatory: true},
	{ID: PhysicalSecurity, Name: "Seguridad física", Category: entity.CategorySite, Obligatory: true},
	{ID: StructuredCabling, Name: "Cableado estructurado", Category: entity.CategorySite, Obligatory: true},
	{ID: InternetLink, Name: "Conectividad a internet", Category: entity.CategorySite, Obligatory: true},
	{ID: PowerBackup, Name: "Respaldo de energía", Category: entity.CategorySite, Obligatory: true},
	{ID: InformationSec, Name: "Seguridad informática", Category: entity.CategorySite, Obligatory: false},
	{ID: Maintenance, Name: "Mantenimiento", Category: entity.CategorySite, Obligatory: false},
	{ID: IncidentManagement, Name: "Gestión de incidentes", Category: entity.CategorySite, Obligatory: false},
	{ID: EquipmentInventory, Name: "Inventario de equipos", Category: entity.CategoryInventory, Obligatory: true},
}

// Registry is a read-only lookup over section definitions
type Registry struct {
	ordered []entity.SectionDefinition
	byID    map[entity.SectionID]entity.SectionDefinition
}

// NewRegistry builds a registry from the given definitions, preserving order.
// Duplicate ids keep the first definition.
func NewRegistry(defs []entity.SectionDefinition) *Registry {
	r := &Registry{byID: make(map[entity.SectionID]entity.SectionDefinition, len(defs))}
	for _, d := range defs {
		if _, dup := r.byID[d.ID]; dup {
			continue
		}
		r.ordered = append(r.ordered, d)
		r.byID[d.ID] = d
	}
	return r
}

// Default returns the twelve-section catalog
func Default() *Registry {
	return NewRegistry(catalog)
}

// Get returns the definition or a NotFoundError
func (r *Registry) Get(id entity.SectionID) (entity.SectionDefinition, error) {
	d, ok := r.byID[id]
	if !ok {
		return entity.SectionDefinition{}, entity.NewNotFoundError("section", id)
	}
	return d, nil
}

// Has reports whether id is registered
func (r *Registry) Has(id entity.SectionID) bool {
	_, ok := r.byID[id]
	return ok
}

// ListAll returns every definition in catalog order
func (r *Registry) ListAll() []entity.SectionDefinition {
	return append([]entity.SectionDefinition(nil), r.ordered...)
}

// ListObligatory returns the set of obligatory section ids
func (r *Registry) ListObligatory() map[entity.SectionID]struct{} {
	set := make(map[entity.SectionID]struct{})
	for _, d := range r.ordered {
		if d.Obligatory {
			set[d.ID] = struct{}{}
		}
	}
	return set
}

// ObligatoryIDs returns the obligatory ids in catalog order
func (r *Registry) ObligatoryIDs() []entity.SectionID {
	var ids []entity.SectionID
	for _, d := range r.ordered {
		if d.Obligatory {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// IsObligatory reports false for unknown ids
func (r *Registry) IsObligatory(id entity.SectionID) bool {
	return r.byID[id].Obligatory
}

// Weight returns the aggregation weight of id, or 0 when unknown
func (r *Registry) Weight(id entity.SectionID) float64 {
	d, ok := r.byID[id]
	if !ok {
		return 0
	}
	return d.Weight()
}
