// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package search

import (
	"math"
	"regexp"
	"strings"
)

// BM25 parameters (Okapi variant, standard values).
const (
	paramK1      = 1.2
	paramB       = 0.75
	paramEpsilon = 0.25
)

// tokenPattern splits text into alphanumeric runs.
var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// caseDocument is the text material of one case prepared for
// relevance scoring. Field weights: title counts three times,
// description twice, note text once.
type caseDocument struct {
	caseID      string
	title       string
	description string
	notes       []string
}

// ranker scores case documents against a query with BM25 (Okapi).
// It is built per query over the already-filtered candidate set; case
// registries are small enough that rebuilding beats maintaining an
// incremental index, and a fresh build keeps scoring a pure function
// of catalog state.
type ranker struct {
	termFrequencies []map[string]int
	lengths         []int
	averageLength   float64
	idf             map[string]float64
}

const (
	weightTitle       = 3
	weightDescription = 2
	weightNotes       = 1
)

// newRanker indexes the candidate documents. The slice order must
// match the order score is called with.
func newRanker(documents []caseDocument) *ranker {
	r := &ranker{
		termFrequencies: make([]map[string]int, len(documents)),
		lengths:         make([]int, len(documents)),
		idf:             make(map[string]float64),
	}

	documentFrequency := make(map[string]int)
	var totalLength int

	for i, document := range documents {
		tokens := compositeTokens(document)
		r.lengths[i] = len(tokens)
		totalLength += len(tokens)

		termFrequency := make(map[string]int)
		seen := make(map[string]bool)
		for _, token := range tokens {
			termFrequency[token]++
			if !seen[token] {
				seen[token] = true
				documentFrequency[token]++
			}
		}
		r.termFrequencies[i] = termFrequency
	}

	if len(documents) > 0 {
		r.averageLength = float64(totalLength) / float64(len(documents))
	}

	// Terms present in every document get epsilon instead of zero so
	// they still separate documents by frequency.
	documentCount := float64(len(documents))
	for term, frequency := range documentFrequency {
		idf := math.Log(1 + (documentCount-float64(frequency)+0.5)/(float64(frequency)+0.5))
		if idf < 0 {
			idf = paramEpsilon
		}
		r.idf[term] = idf
	}

	return r
}

// score computes the BM25 score of document i against the query
// tokens.
func (r *ranker) score(i int, queryTokens []string) float64 {
	termFrequency := r.termFrequencies[i]
	length := float64(r.lengths[i])

	var score float64
	for _, token := range queryTokens {
		idf, exists := r.idf[token]
		if !exists {
			continue
		}
		frequency := float64(termFrequency[token])
		if frequency == 0 {
			continue
		}
		numerator := frequency * (paramK1 + 1)
		denominator := frequency + paramK1*(1-paramB+paramB*length/r.averageLength)
		score += idf * numerator / denominator
	}
	return score
}

// compositeTokens flattens a case document into a weighted token
// sequence by repeating each field's tokens weight times.
func compositeTokens(document caseDocument) []string {
	var tokens []string
	appendWeighted := func(text string, weight int) {
		fieldTokens := tokenize(text)
		for i := 0; i < weight; i++ {
			tokens = append(tokens, fieldTokens...)
		}
	}
	appendWeighted(document.title, weightTitle)
	appendWeighted(document.description, weightDescription)
	for _, note := range document.notes {
		appendWeighted(note, weightNotes)
	}
	return tokens
}

// tokenize splits text into lowercase alphanumeric tokens, discarding
// single-character noise.
func tokenize(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := matches[:0]
	for _, match := range matches {
		if len(match) >= 2 {
			tokens = append(tokens, match)
		}
	}
	return tokens
}
