package extractor

// Extraction payload types and the JSON schemas sent to the LLM. The schemas
// are plain objects; the client unwraps any {name, strict, schema} envelope
// before sending.

// ExtractedRequirement is one qualification unit as returned by the model
type ExtractedRequirement struct {
	Text        string   `json:"text"`
	Skills      []string `json:"skills"`
	Category    string   `json:"category"`
	Proficiency string   `json:"proficiency"`
}

// RequirementExtraction is the full structured output for one description
type RequirementExtraction struct {
	Required         []ExtractedRequirement `json:"required"`
	Preferred        []ExtractedRequirement `json:"preferred"`
	Responsibilities []string               `json:"responsibilities"`
	Benefits         []string               `json:"benefits"`
	JobLevel         string                 `json:"job_level"`
	SalaryMin        *float64               `json:"salary_min"`
	SalaryMax        *float64               `json:"salary_max"`
	Currency         string                 `json:"currency"`
	RemotePolicy     string                 `json:"remote_policy"`
	MinYears         *float64               `json:"min_years_experience"`
}

// FacetExtraction carries the seven facet texts. Empty strings mean the
// posting says nothing about that dimension.
type FacetExtraction struct {
	RemoteFlexibility string `json:"remote_flexibility"`
	Compensation      string `json:"compensation"`
	LearningGrowth    string `json:"learning_growth"`
	CompanyCulture    string `json:"company_culture"`
	WorkLifeBalance   string `json:"work_life_balance"`
	TechStack         string `json:"tech_stack"`
	VisaSponsorship   string `json:"visa_sponsorship"`
}

// ByKey returns the facet texts keyed by facet key
func (f *FacetExtraction) ByKey() map[string]string {
	return map[string]string{
		"remote_flexibility": f.RemoteFlexibility,
		"compensation":       f.Compensation,
		"learning_growth":    f.LearningGrowth,
		"company_culture":    f.CompanyCulture,
		"work_life_balance":  f.WorkLifeBalance,
		"tech_stack":         f.TechStack,
		"visa_sponsorship":   f.VisaSponsorship,
	}
}

const requirementSystemPrompt = `You are a precise job-description analyst. Extract qualification units from the posting verbatim: copy the exact text of each requirement, do not paraphrase, merge or invent. Classify each unit as required or preferred. Also extract responsibilities, benefits, the job level, salary range and remote policy when the posting states them explicitly. Leave fields empty when the posting is silent.`

const facetSystemPrompt = `You are a job-posting analyst. For each of the seven dimensions, extract the relevant sentences from the posting verbatim. Use an empty string when the posting says nothing about a dimension. Do not infer or summarize.`

func requirementItemSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text":        map[string]interface{}{"type": "string"},
			"skills":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"category":    map[string]interface{}{"type": "string"},
			"proficiency": map[string]interface{}{"type": "string"},
		},
		"required":             []string{"text"},
		"additionalProperties": false,
	}
}

// RequirementSchema is the JSON schema for requirement extraction
func RequirementSchema() map[string]interface{} {
	stringArray := map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"required":             map[string]interface{}{"type": "array", "items": requirementItemSchema()},
			"preferred":            map[string]interface{}{"type": "array", "items": requirementItemSchema()},
			"responsibilities":     stringArray,
			"benefits":             stringArray,
			"job_level":            map[string]interface{}{"type": "string"},
			"salary_min":           map[string]interface{}{"type": []string{"number", "null"}},
			"salary_max":           map[string]interface{}{"type": []string{"number", "null"}},
			"currency":             map[string]interface{}{"type": "string"},
			"remote_policy":        map[string]interface{}{"type": "string"},
			"min_years_experience": map[string]interface{}{"type": []string{"number", "null"}},
		},
		"required":             []string{"required", "preferred"},
		"additionalProperties": false,
	}
}

// FacetSchema is the JSON schema for facet extraction (seven keys)
func FacetSchema() map[string]interface{} {
	properties := map[string]interface{}{}
	required := make([]string, 0, 7)
	for _, key := range []string{
		"remote_flexibility", "compensation", "learning_growth",
		"company_culture", "work_life_balance", "tech_stack", "visa_sponsorship",
	} {
		properties[key] = map[string]interface{}{"type": "string"}
		required = append(required, key)
	}
	return map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}
