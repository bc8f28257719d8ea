package valueset

import (
	"fmt"

	"github.com/vocabset/vocabset/internal/domain/concept"
)

// Canonical coding-system URIs.
const (
	SystemSNOMED          = "http://snomed.info/sct"
	SystemLOINC           = "http://loinc.org"
	SystemRxNorm          = "http://www.nlm.nih.gov/research/umls/rxnorm"
	SystemRxNormExtension = "https://fhir.ohdsi.org/CodeSystem/rxnorm-extension"
	SystemICD10           = "http://hl7.org/fhir/sid/icd-10"
	SystemATC             = "http://www.whocc.no/atc"
	SystemOMOPGenomic     = "https://fhir.ohdsi.org/CodeSystem/omop-genomic"
)

// systemURIs is the closed vocabulary-to-system mapping. The supported
// vocabularies are stable and enumerable; anything else is rejected rather
// than guessed.
var systemURIs = map[string]string{
	concept.VocabSNOMED:          SystemSNOMED,
	concept.VocabLOINC:           SystemLOINC,
	concept.VocabRxNorm:          SystemRxNorm,
	concept.VocabRxNormExtension: SystemRxNormExtension,
	concept.VocabICD10:           SystemICD10,
	concept.VocabATC:             SystemATC,
	concept.VocabOMOPGenomic:     SystemOMOPGenomic,
}

// UnsupportedVocabularyError marks a concept whose vocabulary has no entry in
// the coding-system table.
type UnsupportedVocabularyError struct {
	Vocabulary string
}

func (e *UnsupportedVocabularyError) Error() string {
	return fmt.Sprintf("unsupported vocabulary: %q", e.Vocabulary)
}

// SystemURI maps an OMOP vocabulary id to its canonical system URI.
func SystemURI(vocabulary string) (string, error) {
	uri, ok := systemURIs[vocabulary]
	if !ok {
		return "", &UnsupportedVocabularyError{Vocabulary: vocabulary}
	}
	return uri, nil
}
