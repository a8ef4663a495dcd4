package ingest

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
)

// columnSpec lists accepted header names, in priority order, for each
// logical field of a source's extract. Header matching is case-insensitive.
type columnSpec struct {
	externalID []string
	firstName  []string
	lastName   []string
	fullName   []string
	phone      []string
	date       []string
}

// sourceColumns captures the layouts the three upstream systems actually
// export. Lead extracts split names; registration extracts split names and
// carry the visit date; ledger extracts have a single beneficiary column.
var sourceColumns = map[model.Source]columnSpec{
	model.SourceLead: {
		externalID: []string{"lead_id", "id"},
		firstName:  []string{"first_name", "nombre"},
		lastName:   []string{"last_name", "apellido"},
		fullName:   []string{"full_name", "nombre_completo"},
		phone:      []string{"phone", "phone_number", "telefono", "celular"},
		date:       []string{"created_at", "lead_date", "fecha"},
	},
	model.SourceFieldRegistration: {
		externalID: []string{"registration_id", "registro_id", "id"},
		firstName:  []string{"first_name", "nombre"},
		lastName:   []string{"last_name", "apellido"},
		fullName:   []string{"full_name", "nombre_completo"},
		phone:      []string{"phone", "telefono", "celular"},
		date:       []string{"registration_date", "visit_date", "fecha_registro", "fecha"},
	},
	model.SourceLedgerTransaction: {
		externalID: []string{"transaction_id", "tx_id", "id"},
		fullName:   []string{"beneficiary_name", "beneficiario", "driver_name", "full_name"},
		phone:      []string{"phone", "msisdn", "telefono"},
		date:       []string{"transaction_date", "payment_date", "fecha"},
	},
}

// driverColumnSpec is the layout of the canonical driver snapshot CSV.
var driverColumnSpec = columnSpec{
	externalID: []string{"driver_id", "id"},
	fullName:   []string{"full_name", "name", "nombre_completo"},
	phone:      []string{"phone", "telefono", "celular"},
	date:       []string{"hire_date", "hired_at", "fecha_ingreso"},
}

// dateLayouts are tried in order when parsing extract dates. Upstream
// systems disagree on formats; an unparseable date leaves the attribute
// absent rather than failing the row.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
}

// RowMapper resolves one extract's header to column positions and converts
// rows to records.
type RowMapper struct {
	source model.Source
	id     int
	first  int
	last   int
	full   int
	phone  int
	date   int
}

// NewRowMapper builds a mapper for the given source from the extract's
// header row. The external id column is required; everything else is
// optional and simply left absent when the extract lacks it.
func NewRowMapper(source model.Source, header []string) (*RowMapper, error) {
	if !model.ValidSource(source) {
		return nil, eris.Errorf("ingest: unknown source %q", source)
	}
	spec := sourceColumns[source]

	m := &RowMapper{
		source: source,
		id:     findColumn(header, spec.externalID),
		first:  findColumn(header, spec.firstName),
		last:   findColumn(header, spec.lastName),
		full:   findColumn(header, spec.fullName),
		phone:  findColumn(header, spec.phone),
		date:   findColumn(header, spec.date),
	}
	if m.id < 0 {
		return nil, eris.Errorf("ingest: %s extract is missing an id column (looked for %s)",
			source, strings.Join(spec.externalID, ", "))
	}
	return m, nil
}

// Record converts one data row. Returns ok=false when the row has no
// external id and must be skipped.
func (m *RowMapper) Record(row []string) (model.ExternalRecord, bool) {
	id := cell(row, m.id)
	if id == "" {
		return model.ExternalRecord{}, false
	}
	return model.ExternalRecord{
		ExternalID:    id,
		Source:        m.source,
		FirstName:     cell(row, m.first),
		LastName:      cell(row, m.last),
		FullName:      cell(row, m.full),
		Phone:         cell(row, m.phone),
		ReferenceDate: ParseDate(cell(row, m.date)),
	}, true
}

// DriverMapper converts driver snapshot rows.
type DriverMapper struct {
	id    int
	name  int
	phone int
	hired int
}

func NewDriverMapper(header []string) (*DriverMapper, error) {
	m := &DriverMapper{
		id:    findColumn(header, driverColumnSpec.externalID),
		name:  findColumn(header, driverColumnSpec.fullName),
		phone: findColumn(header, driverColumnSpec.phone),
		hired: findColumn(header, driverColumnSpec.date),
	}
	if m.id < 0 {
		return nil, eris.Errorf("ingest: driver snapshot is missing an id column (looked for %s)",
			strings.Join(driverColumnSpec.externalID, ", "))
	}
	if m.name < 0 {
		return nil, eris.Errorf("ingest: driver snapshot is missing a name column (looked for %s)",
			strings.Join(driverColumnSpec.fullName, ", "))
	}
	return m, nil
}

func (m *DriverMapper) Driver(row []string) (model.CanonicalDriver, bool) {
	id := cell(row, m.id)
	if id == "" {
		return model.CanonicalDriver{}, false
	}
	return model.CanonicalDriver{
		DriverID: id,
		FullName: cell(row, m.name),
		Phone:    cell(row, m.phone),
		HireDate: ParseDate(cell(row, m.hired)),
	}, true
}

// ParseDate tries the known extract layouts and returns the zero time when
// none apply.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func findColumn(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
