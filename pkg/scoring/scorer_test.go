package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
)

func program(name, provider string, categories ...string) *models.Program {
	return &models.Program{
		ID:         name,
		Name:       name,
		Provider:   provider,
		Categories: categories,
	}
}

func TestLevenshtein(t *testing.T) {
	s := NewScorer()

	t.Run("Identical", func(t *testing.T) {
		assert.Equal(t, 1.0, s.Levenshtein("chess club", "chess club"))
	})

	t.Run("BothEmpty", func(t *testing.T) {
		assert.Equal(t, 1.0, s.Levenshtein("", ""))
	})

	t.Run("OneEmpty", func(t *testing.T) {
		assert.Equal(t, 0.0, s.Levenshtein("", "chess"))
	})

	t.Run("KnownDistance", func(t *testing.T) {
		// 3 substitutions over 10 characters
		assert.Equal(t, 3, s.LevenshteinDistance("chess club", "chess camp"))
		assert.InDelta(t, 0.7, s.Levenshtein("chess club", "chess camp"), 0.001)
	})
}

func TestCategoryOverlap(t *testing.T) {
	s := NewScorer()

	t.Run("BothEmpty", func(t *testing.T) {
		assert.Equal(t, 0.0, s.CategoryOverlap(nil, nil))
	})

	t.Run("Disjoint", func(t *testing.T) {
		assert.Equal(t, 0.0, s.CategoryOverlap([]string{"sports"}, []string{"arts"}))
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		assert.Equal(t, 1.0, s.CategoryOverlap([]string{"Chess"}, []string{"chess"}))
	})

	t.Run("PartialOverlap", func(t *testing.T) {
		score := s.CategoryOverlap([]string{"chess", "games"}, []string{"chess", "camps", "stem"})
		assert.InDelta(t, 1.0/3.0, score, 0.001)
	})

	t.Run("DuplicatesDoNotInflate", func(t *testing.T) {
		score := s.CategoryOverlap([]string{"chess", "chess"}, []string{"chess"})
		assert.Equal(t, 1.0, score)
	})
}

func TestEvaluate_RuleCascade(t *testing.T) {
	s := NewScorer()

	t.Run("HighNameSimilarityAlone", func(t *testing.T) {
		a := program("Sunset Soccer Academy", "Sunset Sports")
		b := program("Sunset Soccer Academy!", "Golden Gate Kids")

		eval := s.Evaluate(a, b)
		assert.True(t, eval.IsDuplicate)
		assert.Contains(t, eval.Reasons, models.ReasonNameSimilarity)
	})

	t.Run("ModerateNameSameProvider", func(t *testing.T) {
		a := program("Chess Club", "Mission Rec Center")
		b := program("Chess Camp", "mission rec center")

		eval := s.Evaluate(a, b)
		assert.InDelta(t, 0.7, eval.NameScore, 0.001)
		assert.True(t, eval.IsDuplicate)
		assert.Contains(t, eval.Reasons, models.ReasonSameProvider)
	})

	t.Run("ModerateNameDifferentProviderNotDuplicate", func(t *testing.T) {
		a := program("Chess Club", "Mission Rec Center")
		b := program("Chess Camp", "Richmond Library")

		eval := s.Evaluate(a, b)
		assert.False(t, eval.IsDuplicate)
	})

	t.Run("ModerateNameWithCategoryOverlap", func(t *testing.T) {
		a := program("Chess Club", "Mission Rec Center", "chess", "games")
		b := program("Chess Camp", "Richmond Library", "Chess", "camps")

		eval := s.Evaluate(a, b)
		assert.True(t, eval.IsDuplicate)
		assert.Contains(t, eval.Reasons, models.ReasonCategoryOverlap)
	})

	t.Run("Containment", func(t *testing.T) {
		a := program("Little Gym Chess Club", "Little Gym")
		b := program("Little Gym Chess Club - San Francisco", "Little Gym")

		eval := s.Evaluate(a, b)
		assert.True(t, eval.IsDuplicate)
		assert.Contains(t, eval.Reasons, models.ReasonNameContainment)
		assert.Contains(t, eval.Reasons, models.ReasonCommonPrefix)
	})

	t.Run("ShortContainmentIgnored", func(t *testing.T) {
		a := program("Art", "Studio A")
		b := program("Art Adventures for Beginners", "Studio B")

		eval := s.Evaluate(a, b)
		assert.NotContains(t, eval.Reasons, models.ReasonNameContainment)
	})

	t.Run("UnrelatedPrograms", func(t *testing.T) {
		a := program("Mission Swim School", "Mission Aquatics")
		b := program("Richmond Art Studio", "Richmond Arts Council")

		eval := s.Evaluate(a, b)
		assert.False(t, eval.IsDuplicate)
	})
}

func TestEvaluate_Symmetry(t *testing.T) {
	s := NewScorer()

	a := program("Little Gym Chess Club", "Little Gym", "chess")
	b := program("Chess Camp at the Little Gym", "Little Gym", "chess", "camps")

	ab := s.Evaluate(a, b)
	ba := s.Evaluate(b, a)

	assert.Equal(t, ab.NameScore, ba.NameScore)
	assert.Equal(t, ab.ProviderScore, ba.ProviderScore)
	assert.Equal(t, ab.CategoryScore, ba.CategoryScore)
	assert.Equal(t, ab.Composite, ba.Composite)
	assert.Equal(t, ab.IsDuplicate, ba.IsDuplicate)
	assert.Equal(t, ab.Reasons, ba.Reasons)
}

func TestEvaluate_Composite(t *testing.T) {
	s := NewScorer()

	t.Run("AllSignalsPerfect", func(t *testing.T) {
		a := program("Chess Club", "Mission Rec Center", "chess")
		b := program("Chess Club", "Mission Rec Center", "chess")

		eval := s.Evaluate(a, b)
		assert.Equal(t, 1.0, eval.Composite)
	})

	t.Run("NameOnly", func(t *testing.T) {
		a := program("Chess Club", "Mission Rec Center")
		b := program("Chess Camp", "Richmond Library")

		eval := s.Evaluate(a, b)
		assert.InDelta(t, 0.7/3.0, eval.Composite, 0.001)
	})

	t.Run("EmptyProvidersScoreZero", func(t *testing.T) {
		a := program("Chess Club", "")
		b := program("Chess Club", "")

		eval := s.Evaluate(a, b)
		assert.Equal(t, 0.0, eval.ProviderScore)
	})
}

func TestEvaluate_MultiLocationCaveat(t *testing.T) {
	s := NewScorer()

	t.Run("DivergentAddresses", func(t *testing.T) {
		a := program("Little Gym Chess Club", "Little Gym")
		a.Location = &models.ProgramLocation{Address: "123 Main Street"}
		b := program("Little Gym Chess Club", "Little Gym")
		b.Location = &models.ProgramLocation{Address: "900 Ocean Avenue"}

		eval := s.Evaluate(a, b)
		assert.True(t, eval.IsDuplicate, "caveat must not suppress the pair")
		assert.Contains(t, eval.Reasons, models.ReasonMultiLocation)
	})

	t.Run("SameAddressDifferentSpelling", func(t *testing.T) {
		a := program("Little Gym Chess Club", "Little Gym")
		a.Location = &models.ProgramLocation{Address: "123 Main Street"}
		b := program("Little Gym Chess Club", "Little Gym")
		b.Location = &models.ProgramLocation{Address: "123 Main St."}

		eval := s.Evaluate(a, b)
		assert.NotContains(t, eval.Reasons, models.ReasonMultiLocation)
	})

	t.Run("MissingAddressNoCaveat", func(t *testing.T) {
		a := program("Little Gym Chess Club", "Little Gym")
		b := program("Little Gym Chess Club", "Little Gym")

		eval := s.Evaluate(a, b)
		assert.NotContains(t, eval.Reasons, models.ReasonMultiLocation)
	})
}
