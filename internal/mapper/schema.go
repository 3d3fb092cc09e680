package mapper

import (
	"fmt"

	"fondos/internal/domain"
	"fondos/internal/workbook"
)

// Canonical field names bound from the primary sheet.
const (
	FieldSeq           = "seq"
	FieldCode          = "code"
	FieldName          = "name"
	FieldPeriod        = "period"
	FieldFund          = "fund"
	FieldCounterpart   = "counterpart"
	FieldTotal         = "total"
	FieldBeneficiaries = "beneficiaries"
	FieldStatus        = "status"
)

// DefaultName replaces blank record names so NOT NULL columns are satisfied.
const DefaultName = "Unnamed"

// Milestone is a named stage whose date is carried in its own column.
type Milestone struct {
	Stage   string
	Aliases []string
}

func (m Milestone) field() string {
	return "milestone:" + m.Stage
}

// Schema describes how one record type is laid out in a workbook.
type Schema struct {
	RecordType   domain.RecordType
	Prefix       string
	SheetAliases []string
	Columns      workbook.Columns
	Milestones   []Milestone
}

// AllColumns returns the record columns followed by the milestone columns, so
// a header is bound to a record field before it can be taken as a milestone.
func (s Schema) AllColumns() workbook.Columns {
	cols := make(workbook.Columns, 0, len(s.Columns)+len(s.Milestones))
	cols = append(cols, s.Columns...)
	for _, m := range s.Milestones {
		cols = append(cols, workbook.Column{Field: m.field(), Aliases: m.Aliases})
	}
	return cols
}

// fkColumns are shared by every record type.
var fkColumns = workbook.Columns{
	{Field: string(domain.DimensionAxis), Aliases: []string{"Eje", "Eje Estratégico", "Eje de Intervención", "Cod Eje"}},
	{Field: string(domain.DimensionLine), Aliases: []string{"Línea", "Linea de Intervención", "Línea de Acción", "Cod Línea"}},
	{Field: string(domain.DimensionRegion), Aliases: []string{"Región", "Departamento", "Ámbito", "Region de Intervención"}},
	{Field: string(domain.DimensionStage), Aliases: []string{"Etapa", "Fase", "Etapa Actual"}},
	{Field: string(domain.DimensionModality), Aliases: []string{"Modalidad", "Modalidad de Intervención", "Modalidad de Estudio"}},
	{Field: string(domain.DimensionInstitution), Aliases: []string{"Institución", "Institución Ejecutora", "Entidad Ejecutora", "Ejecutor", "Institución Educativa", "Universidad"}},
}

var projectSchema = Schema{
	RecordType:   domain.RecordTypeProject,
	Prefix:       "SC",
	SheetAliases: []string{"Proyectos", "Proyecto", "Cartera", "Base de Datos", "Data"},
	Columns: append(workbook.Columns{
		{Field: FieldSeq, Aliases: []string{"Seq", "N° Seq", "Secuencia", "Nro", "N°", "Item", "ID"}},
		{Field: FieldCode, Aliases: []string{"Código", "Código del Proyecto", "Cod Proyecto", "Código SC"}},
		{Field: FieldName, Aliases: []string{"Nombre del Proyecto", "Nombre", "Proyecto", "Título"}},
		{Field: FieldPeriod, Aliases: []string{"Periodo", "Año", "Convocatoria", "Año Convocatoria"}},
		{Field: FieldFund, Aliases: []string{"Fondoempleo", "Monto Fondoempleo", "Aporte Fondoempleo", "Financiamiento Fondoempleo"}},
		{Field: FieldCounterpart, Aliases: []string{"Contrapartida", "Monto Contrapartida", "Aporte Contrapartida"}},
		{Field: FieldTotal, Aliases: []string{"Monto Total", "Total", "Costo Total"}},
		{Field: FieldBeneficiaries, Aliases: []string{"Beneficiarios", "N° Beneficiarios", "Meta de Beneficiarios", "Beneficiarios Directos"}},
		{Field: FieldStatus, Aliases: []string{"Estado", "Situación", "Estado del Proyecto"}},
	}, fkColumns...),
	Milestones: []Milestone{
		{Stage: "CONVOCATORIA", Aliases: []string{"Fecha Convocatoria", "Convocatoria (Fecha)"}},
		{Stage: "APROBACION", Aliases: []string{"Fecha Aprobación", "Aprobación"}},
		{Stage: "FIRMA DE CONVENIO", Aliases: []string{"Firma de Convenio", "Fecha Firma Convenio", "Fecha de Firma"}},
		{Stage: "INICIO", Aliases: []string{"Fecha Inicio", "Inicio", "Fecha de Inicio"}},
		{Stage: "PRIMER DESEMBOLSO", Aliases: []string{"Primer Desembolso", "Fecha Primer Desembolso"}},
		{Stage: "INFORME FINAL", Aliases: []string{"Informe Final", "Fecha Informe Final"}},
		{Stage: "CIERRE", Aliases: []string{"Fecha Cierre", "Cierre", "Fecha de Término"}},
	},
}

var scholarshipSchema = Schema{
	RecordType:   domain.RecordTypeScholarship,
	Prefix:       "BC",
	SheetAliases: []string{"Becas", "Beca", "Becarios", "Base de Datos", "Data"},
	Columns: append(workbook.Columns{
		{Field: FieldSeq, Aliases: []string{"Seq", "N° Seq", "Secuencia", "Nro", "N°", "Item", "ID"}},
		{Field: FieldCode, Aliases: []string{"Código", "Código de Beca", "Cod Beca"}},
		{Field: FieldName, Aliases: []string{"Nombre del Becario", "Becario", "Beneficiario", "Nombre", "Programa"}},
		{Field: FieldPeriod, Aliases: []string{"Periodo", "Año", "Convocatoria", "Año Convocatoria"}},
		{Field: FieldFund, Aliases: []string{"Fondoempleo", "Monto Beca", "Monto Fondoempleo", "Aporte Fondoempleo"}},
		{Field: FieldCounterpart, Aliases: []string{"Contrapartida", "Monto Contrapartida", "Aporte Institución"}},
		{Field: FieldTotal, Aliases: []string{"Monto Total", "Total"}},
		{Field: FieldBeneficiaries, Aliases: []string{"Beneficiarios", "N° Becarios", "Becarios"}},
		{Field: FieldStatus, Aliases: []string{"Estado", "Situación", "Estado de la Beca"}},
	}, fkColumns...),
	Milestones: []Milestone{
		{Stage: "POSTULACION", Aliases: []string{"Fecha Postulación", "Postulación"}},
		{Stage: "ADJUDICACION", Aliases: []string{"Fecha Adjudicación", "Adjudicación"}},
		{Stage: "INICIO DE ESTUDIOS", Aliases: []string{"Inicio de Estudios", "Fecha Inicio"}},
		{Stage: "FIN DE ESTUDIOS", Aliases: []string{"Fin de Estudios", "Fecha Fin", "Fecha de Término"}},
	},
}

// SchemaFor returns the layout of recordType.
func SchemaFor(recordType domain.RecordType) (Schema, error) {
	switch recordType {
	case domain.RecordTypeProject:
		return projectSchema, nil
	case domain.RecordTypeScholarship:
		return scholarshipSchema, nil
	default:
		return Schema{}, fmt.Errorf("%w: %q", domain.ErrUnknownRecordType, string(recordType))
	}
}

// CatalogSheet describes a master catalog sheet.
type CatalogSheet struct {
	Dimension domain.Dimension
	Aliases   []string
}

// CatalogColumns binds master catalog sheets.
var CatalogColumns = workbook.Columns{
	{Field: "number", Aliases: []string{"N°", "Nro", "Número", "Código", "Cod", "ID"}},
	{Field: "description", Aliases: []string{"Descripción", "Nombre", "Detalle", "Eje", "Línea", "Región", "Etapa", "Modalidad"}},
}

// CatalogSheets lists the master sheets recognized in a workbook.
var CatalogSheets = []CatalogSheet{
	{Dimension: domain.DimensionAxis, Aliases: []string{"Ejes", "Eje", "Ejes Estratégicos"}},
	{Dimension: domain.DimensionLine, Aliases: []string{"Líneas", "Linea", "Líneas de Intervención"}},
	{Dimension: domain.DimensionRegion, Aliases: []string{"Regiones", "Región", "Departamentos"}},
	{Dimension: domain.DimensionStage, Aliases: []string{"Etapas", "Etapa", "Fases"}},
	{Dimension: domain.DimensionModality, Aliases: []string{"Modalidades", "Modalidad"}},
}
