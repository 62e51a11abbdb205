package rewrite

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gpsalud/consultaflow/types"
)

// tableFile is the YAML schema of the synonym table source. Rules are a
// list because application order is part of the contract.
type tableFile struct {
	Expansions    []Rule              `yaml:"expansions"`
	EntityContext map[string][]string `yaml:"entity_context"`
}

// LoadTable reads and validates a synonym table from a YAML file. Failures
// are CONFIG_INVALID and fatal at startup.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrConfigInvalid, fmt.Sprintf("read synonym table %s", path), err)
	}
	return ParseTable(data)
}

// ParseTable parses and validates YAML synonym table content.
func ParseTable(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, types.NewError(types.ErrConfigInvalid, "parse synonym table", err)
	}

	for i, r := range file.Expansions {
		if r.Pattern == "" {
			return nil, types.NewError(types.ErrConfigInvalid, fmt.Sprintf("expansion %d has empty pattern", i), nil)
		}
		if r.Expansion == "" {
			return nil, types.NewError(types.ErrConfigInvalid, fmt.Sprintf("expansion %d (%q) has empty expansion", i, r.Pattern), nil)
		}
	}

	return NewTable(file.Expansions, file.EntityContext), nil
}

// DefaultTable returns the built-in synonym table for the obra social
// domain. Used when no synonym source is configured.
func DefaultTable() *Table {
	rules := []Rule{
		// coseguros / prices
		{Pattern: "cuanto cuesta", Expansion: "valor precio coseguro tarifa"},
		{Pattern: "cuanto sale", Expansion: "valor precio coseguro tarifa"},
		{Pattern: "cuanto es el coseguro", Expansion: "valor precio coseguro"},
		{Pattern: "cuanto es el copago", Expansion: "valor precio coseguro"},
		{Pattern: "que precio tiene", Expansion: "valor precio coseguro tarifa"},
		{Pattern: "importe de coseguro", Expansion: "valor precio coseguro tarifa pesos consulta especialista"},

		// physicians
		{Pattern: "pediatra", Expansion: "pediatra médico familia generalista"},
		{Pattern: "ginecologo", Expansion: "ginecólogo tocoginecólogo"},
		{Pattern: "clinico", Expansion: "clínico médico familia generalista"},
		{Pattern: "medico de cabecera", Expansion: "médico familia generalista"},

		// exemptions
		{Pattern: "quienes no pagan", Expansion: "exentos excluidos programas HIV oncología discapacidad PMI guardia urgencia"},
		{Pattern: "quien no paga", Expansion: "exentos excluidos programas HIV oncología discapacidad PMI"},
		{Pattern: "no paga coseguro", Expansion: "exentos excluidos programas HIV oncología"},
		{Pattern: "estan exentos", Expansion: "exentos excluidos programas HIV oncología discapacidad PMI"},

		// imaging
		{Pattern: "tomografia", Expansion: "TAC tomografía alta complejidad"},
		{Pattern: "resonancia", Expansion: "RMN resonancia magnética alta complejidad"},
		{Pattern: "ecografia", Expansion: "ecografía imágenes baja complejidad"},
		{Pattern: "radiografia", Expansion: "RX radiografía imágenes baja complejidad"},
		{Pattern: "imagenes alta complejidad", Expansion: "TAC RMN tomografía resonancia endoscopia medicina nuclear"},

		// authorizations
		{Pattern: "necesito autorizacion", Expansion: "requiere autorización previa"},
		{Pattern: "tengo que pedir autorizacion", Expansion: "requiere autorización previa"},
		{Pattern: "hay que autorizar", Expansion: "requiere autorización previa"},

		// documentation
		{Pattern: "que necesito", Expansion: "requisitos documentación documentos"},
		{Pattern: "que documentos", Expansion: "requisitos documentación"},
		{Pattern: "que tengo que llevar", Expansion: "requisitos documentación documentos"},

		// emergency intake
		{Pattern: "guardia", Expansion: "guardia ingreso documentación validador DNI"},
		{Pattern: "urgencia", Expansion: "guardia urgencia emergencia ingreso"},

		// hospitalization
		{Pattern: "internarme", Expansion: "internación internación programada"},
		{Pattern: "internacion", Expansion: "internación hospitalización"},

		// mental health
		{Pattern: "salud mental", Expansion: "psiquiatría psicología turnos salud mental"},

		// deadlines and validity
		{Pattern: "cuanto tiempo", Expansion: "plazo días horas vigencia"},
		{Pattern: "cuanto dura", Expansion: "vigencia días plazo tiempo duración"},
		{Pattern: "debo avisar", Expansion: "denuncia plazo 24 horas"},

		// specific coseguros
		{Pattern: "coseguro laboratorio", Expansion: "coseguro laboratorio valor prestaciones determinaciones tarifa"},
		{Pattern: "coseguro especialista", Expansion: "coseguro médicos especialistas valor tarifa precio consulta"},
		{Pattern: "especialista", Expansion: "médicos especialistas consulta valor tarifa precio"},

		// plans
		{Pattern: "planes disponibles", Expansion: "planes Delta Krono Quantum Integral Total Global categorías"},
		{Pattern: "que planes hay", Expansion: "planes Delta Krono Quantum categorías"},
	}

	contextKeywords := map[string][]string{
		"ENSALUD":          {"ENSALUD", "prestaciones"},
		"ASI":              {"ASI", "ASI Salud"},
		"IOSFA":            {"IOSFA", "fuerzas armadas"},
		"GRUPO_PEDIATRICO": {"grupo pediátrico", "pediatría"},
	}

	return NewTable(rules, contextKeywords)
}
