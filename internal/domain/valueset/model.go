package valueset

// Metadata names and describes an export. Status must be "draft" or
// "active"; an empty status defaults to draft, an empty id gets a fresh uuid.
type Metadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

// Member is one (system, code, display) triple of an export.
type Member struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

// Export is the canonical model both serializers consume. Members keep the
// insertion order of the ConceptSet they were assembled from. An Export is
// owned by the assembler until handed to a serializer and immutable after.
type Export struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	Description string   `json:"description,omitempty"`
	Members     []Member `json:"members"`
}

// Document is the FHIR ValueSet JSON shape.
type Document struct {
	ResourceType string  `json:"resourceType"`
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	Description  string  `json:"description,omitempty"`
	Compose      Compose `json:"compose"`
}

// Compose holds the include groups of a Document.
type Compose struct {
	Include []Include `json:"include"`
}

// Include lists the concepts of one coding system.
type Include struct {
	System  string   `json:"system"`
	Concept []Coding `json:"concept"`
}

// Coding is a bare code/display pair inside an Include group.
type Coding struct {
	Code    string `json:"code"`
	Display string `json:"display"`
}
