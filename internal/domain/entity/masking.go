package entity

// MaskCategory classifies a masked span.
type MaskCategory string

const (
	MaskEmail   MaskCategory = "email"
	MaskPhone   MaskCategory = "phone"
	MaskName    MaskCategory = "name"
	MaskAddress MaskCategory = "address"
	MaskID      MaskCategory = "id"
	MaskCustom  MaskCategory = "custom"
)

// MaskingToken records one substitution made by the masker.
type MaskingToken struct {
	Token         string       `json:"token"`
	OriginalValue string       `json:"original_value"`
	Category      MaskCategory `json:"category"`
}
