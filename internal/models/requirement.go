package models

// ReqType classifies an extracted qualification unit
type ReqType string

const (
	ReqTypeRequired       ReqType = "required"
	ReqTypePreferred      ReqType = "preferred"
	ReqTypeResponsibility ReqType = "responsibility"
	ReqTypeBenefit        ReqType = "benefit"
)

// RequirementTags carries the classifier output attached to a requirement
type RequirementTags struct {
	Skills      []string
	Category    string
	Proficiency string
}

// JobRequirementUnit is one verbatim qualification excerpt extracted from a
// job description. Each unit has a paired RequirementEmbedding row.
type JobRequirementUnit struct {
	ID           string `badgerhold:"key"`
	JobID        string `badgerhold:"index"`
	ReqType      ReqType
	Text         string
	Tags         RequirementTags
	Ordinal      int
	MinYears     *float64
	YearsContext string
}

// RequirementEmbedding is the vector row paired 1:1 with a requirement unit
type RequirementEmbedding struct {
	RequirementID string `badgerhold:"key"`
	JobID         string `badgerhold:"index"`
	Embedding     []float32
}
