package models

// FacetKey is one of the seven predefined semantic dimensions of a posting
type FacetKey string

const (
	FacetRemoteFlexibility FacetKey = "remote_flexibility"
	FacetCompensation      FacetKey = "compensation"
	FacetLearningGrowth    FacetKey = "learning_growth"
	FacetCompanyCulture    FacetKey = "company_culture"
	FacetWorkLifeBalance   FacetKey = "work_life_balance"
	FacetTechStack         FacetKey = "tech_stack"
	FacetVisaSponsorship   FacetKey = "visa_sponsorship"
)

// AllFacetKeys lists the facet keys in schema order
var AllFacetKeys = []FacetKey{
	FacetRemoteFlexibility,
	FacetCompensation,
	FacetLearningGrowth,
	FacetCompanyCulture,
	FacetWorkLifeBalance,
	FacetTechStack,
	FacetVisaSponsorship,
}

// JobFacetEmbedding is one extracted facet with its vector.
// Unique on (JobID, FacetKey); the key is FacetRowKey(jobID, facetKey).
type JobFacetEmbedding struct {
	ID          string `badgerhold:"key"`
	JobID       string `badgerhold:"index"`
	FacetKey    FacetKey
	FacetText   string
	Embedding   []float32
	ContentHash string
}

// FacetRowKey builds the composite storage key for a facet row
func FacetRowKey(jobID string, key FacetKey) string {
	return jobID + ":" + string(key)
}
