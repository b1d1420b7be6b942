package entity

import (
	"strings"
	"time"
)

// Finding is a single audit result. It is the record type the query
// pipeline filters, ranks and hands to the model as grounding.
type Finding struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	Title          string    `json:"title"`
	Area           string    `json:"area"`
	Description    string    `json:"description"`
	Recommendation string    `json:"recommendation,omitempty"`
	Department     string    `json:"department"`
	Project        string    `json:"project"`
	ProjectType    string    `json:"project_type"`
	Year           string    `json:"year"`
	Severity       string    `json:"severity"`
	SeverityScore  float64   `json:"severity_score"`
	Status         string    `json:"status"`
	Owner          string    `json:"owner,omitempty"`
	OwnerEmail     string    `json:"owner_email,omitempty"`
	Auditor        string    `json:"auditor,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	IdentifiedAt   time.Time `json:"identified_at"`
}

// SearchableText is the lower-cased concatenation used for keyword coverage.
func (f Finding) SearchableText() string {
	parts := []string{f.Title, f.Area, f.Description, f.Department, f.Project, f.Code}
	return strings.ToLower(strings.Join(parts, " "))
}

// Field returns the value of a filterable field by its store name.
// Unknown fields return nil.
func (f Finding) Field(name string) any {
	switch name {
	case "id":
		return f.ID
	case "code":
		return f.Code
	case "title":
		return f.Title
	case "area":
		return f.Area
	case "description":
		return f.Description
	case "department":
		return f.Department
	case "project":
		return f.Project
	case "project_type":
		return f.ProjectType
	case "year":
		return f.Year
	case "severity":
		return f.Severity
	case "severity_score":
		return f.SeverityScore
	case "status":
		return f.Status
	case "owner":
		return f.Owner
	case "auditor":
		return f.Auditor
	case "tags":
		return f.Tags
	case "identified_at":
		return f.IdentifiedAt
	}
	return nil
}
