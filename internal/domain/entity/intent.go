package entity

import "time"

// DateRange bounds IdentifiedAt. A zero Start or End is open.
type DateRange struct {
	Start time.Time `json:"start,omitzero"`
	End   time.Time `json:"end,omitzero"`
}

// ExtractedFilters are advisory constraints pulled out of a query.
// An empty field means unconstrained.
type ExtractedFilters struct {
	Severity    string     `json:"severity,omitempty"`
	Status      string     `json:"status,omitempty"`
	Department  string     `json:"department,omitempty"`
	Year        string     `json:"year,omitempty"`
	ProjectType string     `json:"project_type,omitempty"`
	Keywords    []string   `json:"keywords,omitempty"`
	DateRange   *DateRange `json:"date_range,omitempty"`
}

// HasAny reports whether any filter constrains the record set.
func (f ExtractedFilters) HasAny() bool {
	return f.Severity != "" || f.Status != "" || f.Department != "" ||
		f.Year != "" || f.ProjectType != "" || len(f.Keywords) > 0 || f.DateRange != nil
}

// RecognizedIntent is the structured reading of a free-text query.
type RecognizedIntent struct {
	IntentText       string           `json:"intent_text"`
	Confidence       float64          `json:"confidence"`
	Filters          ExtractedFilters `json:"filters"`
	RequiresAnalysis bool             `json:"requires_analysis"`
}
