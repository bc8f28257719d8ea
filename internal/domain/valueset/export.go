package valueset

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// WriteCSV writes the member triples as CSV: header `system,code,display`,
// one row per member, no metadata rows (metadata travels as a companion, not
// inline). encoding/csv quotes values containing commas or quotes.
func WriteCSV(w io.Writer, exp *Export) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"system", "code", "display"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, m := range exp.Members {
		if err := cw.Write([]string{m.System, m.Code, m.Display}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FHIRDocument shapes the export as a FHIR ValueSet resource. Members are
// grouped by coding system; groups appear in first-appearance order and each
// group keeps its members' insertion order.
func FHIRDocument(exp *Export) *Document {
	var systems []string
	grouped := make(map[string][]Coding)
	for _, m := range exp.Members {
		if _, ok := grouped[m.System]; !ok {
			systems = append(systems, m.System)
		}
		grouped[m.System] = append(grouped[m.System], Coding{Code: m.Code, Display: m.Display})
	}

	include := make([]Include, len(systems))
	for i, system := range systems {
		include[i] = Include{System: system, Concept: grouped[system]}
	}

	return &Document{
		ResourceType: "ValueSet",
		ID:           exp.ID,
		Name:         exp.Name,
		Status:       exp.Status,
		Description:  exp.Description,
		Compose:      Compose{Include: include},
	}
}

// WriteWorkbook writes the export as an XLSX workbook: a Members sheet with
// the same columns as the CSV and a Metadata companion sheet.
func WriteWorkbook(w io.Writer, exp *Export) error {
	f := excelize.NewFile()
	defer f.Close()

	const membersSheet = "Members"
	if err := f.SetSheetName("Sheet1", membersSheet); err != nil {
		return fmt.Errorf("rename members sheet: %w", err)
	}
	header := []interface{}{"system", "code", "display"}
	if err := f.SetSheetRow(membersSheet, "A1", &header); err != nil {
		return fmt.Errorf("write members header: %w", err)
	}
	for i, m := range exp.Members {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{m.System, m.Code, m.Display}
		if err := f.SetSheetRow(membersSheet, cell, &row); err != nil {
			return fmt.Errorf("write members row %d: %w", i+2, err)
		}
	}

	const metaSheet = "Metadata"
	if _, err := f.NewSheet(metaSheet); err != nil {
		return fmt.Errorf("create metadata sheet: %w", err)
	}
	meta := [][]interface{}{
		{"id", exp.ID},
		{"name", exp.Name},
		{"status", exp.Status},
		{"description", exp.Description},
	}
	for i, pair := range meta {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(metaSheet, cell, &pair); err != nil {
			return fmt.Errorf("write metadata row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
