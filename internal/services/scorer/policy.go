package scorer

import (
	"sort"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/models"
)

// ApplyPolicy filters scored matches by the result policy and returns the
// survivors ordered by overall score descending, truncated to top_k. Ties
// break on job ID so repeated runs produce the same ordering.
func ApplyPolicy(policy *common.ResultPolicy, scored []*models.ScoredMatch) []*models.ScoredMatch {
	kept := make([]*models.ScoredMatch, 0, len(scored))
	for _, match := range scored {
		if match.FitScore < policy.MinFit {
			continue
		}
		if policy.MinJDRequiredCoverage != nil && match.RequiredCoverage < *policy.MinJDRequiredCoverage {
			continue
		}
		kept = append(kept, match)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].OverallScore != kept[j].OverallScore {
			return kept[i].OverallScore > kept[j].OverallScore
		}
		return kept[i].Preliminary.Job.ID < kept[j].Preliminary.Job.ID
	})

	if policy.TopK > 0 && len(kept) > policy.TopK {
		kept = kept[:policy.TopK]
	}
	return kept
}
