package concept

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV writes concepts as CSV for download, one row per concept after the
// header. encoding/csv handles quoting of values containing commas or quotes.
func WriteCSV(w io.Writer, concepts []*Concept) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"concept_id", "concept_code", "concept_name", "vocabulary_id", "domain_id", "concept_class_id", "standard_concept"}); err != nil {
		return fmt.Errorf("write concept csv header: %w", err)
	}
	for _, c := range concepts {
		standard := ""
		if c.Standard {
			standard = "S"
		}
		row := []string{
			strconv.FormatInt(c.ID, 10),
			c.Code,
			c.Name,
			c.Vocabulary,
			c.Domain,
			c.ConceptClass,
			standard,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write concept csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
