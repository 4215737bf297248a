package models

import "time"

type DescriptionType string

const (
	TypeLocation   DescriptionType = "location"
	TypeCharacter  DescriptionType = "character"
	TypeAtmosphere DescriptionType = "atmosphere"
	TypeOther      DescriptionType = "other"
)

type Classification string

const (
	ClassUnknown     Classification = "unknown"
	ClassService     Classification = "service"
	ClassSubstantive Classification = "substantive"
)

type ExtractionState string

const (
	ExtractionNotStarted ExtractionState = "not_started"
	ExtractionExtracted  ExtractionState = "extracted"
)

type Document struct {
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Author     string    `json:"author,omitempty"`
	UnitCount  int       `json:"unit_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// ContentUnit is a chapter: the unit of classification and extraction.
type ContentUnit struct {
	UnitID            string          `json:"unit_id"`
	DocumentID        string          `json:"document_id"`
	Ordinal           int             `json:"ordinal"`
	Title             string          `json:"title"`
	Content           string          `json:"content,omitempty"`
	WordCount         int             `json:"word_count"`
	Classification    Classification  `json:"classification"`
	ClassifierVersion string          `json:"classifier_version,omitempty"`
	ExtractionState   ExtractionState `json:"extraction_state"`
	DescriptionCount  int             `json:"description_count"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type Description struct {
	DescriptionID    string          `json:"description_id"`
	UnitID           string          `json:"unit_id"`
	Type             DescriptionType `json:"type"`
	Text             string          `json:"text"`
	ConfidenceScore  float64         `json:"confidence_score"`
	PositionInUnit   int             `json:"position_in_unit"`
	SourceProcessors []string        `json:"source_processors"`
	QualityScore     float64         `json:"quality_score"`
	CreatedAt        time.Time       `json:"created_at"`
}

// UnitResult is what callers get back for a unit: the persisted descriptions
// plus enough state to tell an empty service page from an unprocessed chapter.
type UnitResult struct {
	UnitID            string          `json:"unit_id"`
	Classification    Classification  `json:"classification"`
	ExtractionState   ExtractionState `json:"extraction_state"`
	Descriptions      []Description   `json:"descriptions"`
	ReducedConfidence bool            `json:"reduced_confidence,omitempty"`
}
