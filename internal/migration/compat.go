// Package migration re-embeds stored records from one model to another and
// scores model compatibility beforehand.
package migration

import (
	"context"
	"fmt"
	"strings"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// ValidateCompatibility resolves both models across the provider set and
// scores how well records can move between them. Equal dimensions are the
// hard requirement; everything else only lowers the similarity score.
func (m *Migrator) ValidateCompatibility(ctx context.Context, fromModel, toModel string) (*types.CompatibilityResult, error) {
	_, from, err := m.providers.ResolveModel(ctx, fromModel)
	if err != nil {
		return nil, fmt.Errorf("source model: %w", err)
	}
	_, to, err := m.providers.ResolveModel(ctx, toModel)
	if err != nil {
		return nil, fmt.Errorf("target model: %w", err)
	}

	if from.Dimensions != to.Dimensions {
		return &types.CompatibilityResult{
			Compatible: false,
			Reason: fmt.Sprintf("dimension mismatch: %s has %d dimensions, %s has %d",
				from.Name, from.Dimensions, to.Name, to.Dimensions),
			SimilarityScore: 0,
		}, nil
	}

	score := 1.0
	if from.Provider != to.Provider {
		score -= 0.1
	}
	if from.MaxTokens > 0 && to.MaxTokens > 0 {
		minTok, maxTok := from.MaxTokens, to.MaxTokens
		if minTok > maxTok {
			minTok, maxTok = maxTok, minTok
		}
		score *= float64(minTok) / float64(maxTok)
	}
	score *= languageOverlap(from.Languages, to.Languages)

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return &types.CompatibilityResult{
		Compatible:      true,
		SimilarityScore: score,
	}, nil
}

// languageOverlap is the Jaccard index of the two language sets. A model
// that declares no languages is assumed to cover everything, so an empty
// set on either side never penalizes.
func languageOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 1
	}

	setA := make(map[string]bool, len(a))
	for _, lang := range a {
		setA[strings.ToLower(lang)] = true
	}
	setB := make(map[string]bool, len(b))
	for _, lang := range b {
		setB[strings.ToLower(lang)] = true
	}

	var intersection int
	for lang := range setA {
		if setB[lang] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection

	return float64(intersection) / float64(union)
}
