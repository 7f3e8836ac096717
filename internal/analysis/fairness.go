package analysis

import "sort"

// Fixed weights folding the wire score dimensions into the overall score.
// They sum to 1.0 and are part of the scoring contract.
const (
	genderWeight            = 0.4
	stereotypeWeight        = 0.4
	languageDominanceWeight = 0.2
)

const engineVersion = "fairness-engine-v1.0.0"

// Mitigation bounds: content influence is dampened, never zeroed, and never
// boosted above its original weight.
const (
	minMitigationWeight = 0.1
	maxMitigationWeight = 1.0
)

// recommendationThreshold is the per-category score above which that
// category contributes recommendations.
const recommendationThreshold = 0.2

// generalThreshold is the overall score above which the general
// recommendation is appended.
const generalThreshold = 0.6

// recommendationsPerCategory caps how many template entries one triggering
// category contributes.
const recommendationsPerCategory = 2

var recommendationTemplates = map[BiasCategory][]string{
	CategoryGender: {
		"Use gender-neutral language (e.g., 'they/them' instead of 'he/she')",
		"Replace gendered job titles with neutral alternatives",
		"Ensure balanced representation of all genders in examples",
		"Review pronouns for unnecessary gender assumptions",
	},
	CategoryStereotype: {
		"Replace stereotypical terms with skills-based language",
		"Use specific, measurable criteria instead of vague cultural terms",
		"Remove jargon that may exclude diverse candidates",
	},
	CategoryExclusionary: {
		"Remove educational institution tier references",
		"Focus on skills and experience rather than credentials",
		"Broaden language to include self-taught and alternative paths",
		"Replace 'culture fit' with specific behavioral competencies",
	},
	CategoryAge: {
		"Avoid age-related assumptions about capabilities",
		"Describe experience requirements in years and skills, not life stage",
		"Remove generational labels from audience descriptions",
	},
}

var generalRecommendations = []string{
	"Conduct a diversity review of all content",
	"Include diverse perspectives in content creation",
	"Test content with diverse focus groups",
	"Implement regular bias audits",
}

// FoldScores maps the four catalog category scores onto the three wire
// score dimensions and computes the weighted overall. Age folds into the
// stereotype dimension (capped at 1.0); it keeps its own hits,
// explanations, and recommendations.
func FoldScores(results map[BiasCategory]CategoryResult) BiasScores {
	gender := results[CategoryGender].Score
	stereotype := results[CategoryStereotype].Score + results[CategoryAge].Score
	if stereotype > 1.0 {
		stereotype = 1.0
	}
	dominance := results[CategoryExclusionary].Score

	return BiasScores{
		GenderBias:        gender,
		Stereotype:        stereotype,
		LanguageDominance: dominance,
		Overall:           genderWeight*gender + stereotypeWeight*stereotype + languageDominanceWeight*dominance,
	}
}

// RiskLevelFor buckets the overall bias score. Boundaries are closed on the
// lower end: exactly 0.3 is medium, exactly 0.8 is critical.
func RiskLevelFor(overall float64) RiskLevel {
	switch {
	case overall < 0.3:
		return RiskLow
	case overall < 0.6:
		return RiskMedium
	case overall < 0.8:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// Aggregate derives the complete fairness view from the folded bias scores
// and the raw per-category scores. Pure function: no randomness, no I/O,
// no rounding, so the risk boundaries stay exact.
func Aggregate(bias BiasScores, categoryScores map[BiasCategory]float64) FairnessResult {
	adjusted := clamp(1.0-bias.Overall, minMitigationWeight, maxMitigationWeight)

	return FairnessResult{
		RiskLevel:       RiskLevelFor(bias.Overall),
		FairnessScore:   1.0 - bias.Overall,
		Recommendations: buildRecommendations(bias, categoryScores),
		MitigationWeights: MitigationWeights{
			OriginalWeight:   1.0,
			AdjustedWeight:   adjusted,
			AdjustmentFactor: 1.0 - adjusted,
		},
		DetailedMetrics: detailedMetrics(bias),
		EngineVersion:   engineVersion,
	}
}

// buildRecommendations collects templates for every category scoring above
// the trigger threshold, ordered by descending score with ties broken by
// category name, plus the general entry when the overall score is high.
// Always returns a non-nil slice.
func buildRecommendations(bias BiasScores, categoryScores map[BiasCategory]float64) []string {
	type triggered struct {
		cat   BiasCategory
		score float64
	}

	candidates := []triggered{}
	for _, cat := range AllCategories() {
		if score := categoryScores[cat]; score > recommendationThreshold {
			candidates = append(candidates, triggered{cat, score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].cat < candidates[j].cat
	})

	recommendations := []string{}
	for _, c := range candidates {
		templates := recommendationTemplates[c.cat]
		n := recommendationsPerCategory
		if len(templates) < n {
			n = len(templates)
		}
		recommendations = append(recommendations, templates[:n]...)
	}

	if bias.Overall > generalThreshold {
		recommendations = append(recommendations, generalRecommendations[0])
	}

	return recommendations
}

// detailedMetrics computes the auxiliary fairness numbers, all pure
// functions of the bias scores and all in [0,1].
func detailedMetrics(bias BiasScores) map[string]float64 {
	genderFairness := 1.0 - bias.GenderBias
	stereotypeFairness := 1.0 - bias.Stereotype
	languageFairness := 1.0 - bias.LanguageDominance

	return map[string]float64{
		"gender_fairness":     genderFairness,
		"stereotype_fairness": stereotypeFairness,
		"language_fairness":   languageFairness,
		"inclusion_index":     (genderFairness + stereotypeFairness + languageFairness) / 3.0,
		"semantic_neutrality": 0.25*genderFairness + 0.40*stereotypeFairness + 0.35*languageFairness,
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
