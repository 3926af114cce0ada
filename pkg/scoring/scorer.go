// Package scoring compares two catalog programs and decides whether they
// look like the same real-world listing. All comparisons are symmetric.
package scoring

import (
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// Thresholds for the duplicate rule cascade
const (
	NameAloneThreshold         = 0.75
	NameWithSignalThreshold    = 0.60
	CategoryOverlapThreshold   = 0.5
	ContainmentMinLength       = 10
	CommonPrefixMinTokens      = 3
	CommonPrefixMinChars       = 15
	AddressDivergenceThreshold = 0.7
)

// Evaluation is the outcome of comparing two programs
type Evaluation struct {
	NameScore     float64
	ProviderScore float64
	CategoryScore float64
	// Composite ranks candidates for review. It never decides duplicate
	// status on its own.
	Composite   float64
	IsDuplicate bool
	Reasons     []string
}

// Scorer evaluates program pairs for likely duplication
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Evaluate compares two programs. The result is identical regardless of
// argument order.
func (s *Scorer) Evaluate(a, b *models.Program) Evaluation {
	nameA := strings.ToLower(strings.TrimSpace(a.Name))
	nameB := strings.ToLower(strings.TrimSpace(b.Name))

	eval := Evaluation{
		NameScore:     s.Levenshtein(nameA, nameB),
		ProviderScore: s.providerScore(a.Provider, b.Provider),
		CategoryScore: s.CategoryOverlap(a.Categories, b.Categories),
	}
	eval.Composite = (eval.NameScore + eval.ProviderScore + eval.CategoryScore) / 3

	sameProvider := eval.ProviderScore == 1.0
	containment := s.nameContainment(nameA, nameB)
	commonPrefix := s.commonPrefix(nameA, nameB)

	// Any rule in the cascade marks the pair a likely duplicate
	switch {
	case eval.NameScore >= NameAloneThreshold:
		eval.IsDuplicate = true
	case eval.NameScore >= NameWithSignalThreshold && sameProvider:
		eval.IsDuplicate = true
	case eval.NameScore >= NameWithSignalThreshold && eval.CategoryScore >= CategoryOverlapThreshold:
		eval.IsDuplicate = true
	case containment:
		eval.IsDuplicate = true
	case commonPrefix:
		eval.IsDuplicate = true
	}

	if eval.NameScore >= NameAloneThreshold {
		eval.Reasons = append(eval.Reasons, models.ReasonNameSimilarity)
	}
	if sameProvider {
		eval.Reasons = append(eval.Reasons, models.ReasonSameProvider)
	}
	if eval.CategoryScore >= CategoryOverlapThreshold {
		eval.Reasons = append(eval.Reasons, models.ReasonCategoryOverlap)
	}
	if containment {
		eval.Reasons = append(eval.Reasons, models.ReasonNameContainment)
	}
	if commonPrefix {
		eval.Reasons = append(eval.Reasons, models.ReasonCommonPrefix)
	}

	// Divergent addresses suggest two branches of the same provider. The
	// caveat is surfaced for the reviewer but never suppresses the pair.
	if s.addressesDiverge(a.Location, b.Location) {
		eval.Reasons = append(eval.Reasons, models.ReasonMultiLocation)
	}

	return eval
}

func (s *Scorer) providerScore(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}
	return 0.0
}

// CategoryOverlap returns |A ∩ B| / max(|A|, |B|). Comparison is
// case-insensitive; two programs with no categories score 0.
func (s *Scorer) CategoryOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]bool, len(a))
	for _, c := range a {
		setA[strings.ToLower(strings.TrimSpace(c))] = true
	}

	setB := make(map[string]bool, len(b))
	intersection := 0
	for _, c := range b {
		key := strings.ToLower(strings.TrimSpace(c))
		if setB[key] {
			continue
		}
		setB[key] = true
		if setA[key] {
			intersection++
		}
	}

	maxLen := max(len(setA), len(setB))
	if maxLen == 0 {
		return 0.0
	}
	return float64(intersection) / float64(maxLen)
}

// nameContainment reports whether the shorter normalized name appears
// whole inside the longer one. Very short names are ignored to avoid
// flagging generic words.
func (s *Scorer) nameContainment(a, b string) bool {
	a = normalizers.NormalizeName(a)
	b = normalizers.NormalizeName(b)

	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < ContainmentMinLength {
		return false
	}
	return strings.Contains(longer, shorter)
}

// commonPrefix reports whether two names share at least three leading
// tokens or a long leading character run
func (s *Scorer) commonPrefix(a, b string) bool {
	a = normalizers.NormalizeName(a)
	b = normalizers.NormalizeName(b)
	if a == "" || b == "" {
		return false
	}

	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	sharedTokens := 0
	for i := 0; i < len(tokensA) && i < len(tokensB); i++ {
		if tokensA[i] != tokensB[i] {
			break
		}
		sharedTokens++
	}
	if sharedTokens >= CommonPrefixMinTokens {
		return true
	}

	sharedChars := 0
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			break
		}
		sharedChars++
	}
	return sharedChars >= CommonPrefixMinChars
}

func (s *Scorer) addressesDiverge(a, b *models.ProgramLocation) bool {
	if a == nil || b == nil || a.Address == "" || b.Address == "" {
		return false
	}
	sim := s.Levenshtein(normalizers.NormalizeAddress(a.Address), normalizers.NormalizeAddress(b.Address))
	return sim < AddressDivergenceThreshold
}

// Levenshtein calculates the Levenshtein distance between two strings
// Returns a similarity score between 0.0 and 1.0
func (s *Scorer) Levenshtein(a, b string) float64 {
	distance := s.LevenshteinDistance(a, b)
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}
