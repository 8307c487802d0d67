// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package search

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	got := tokenize("The QUICK brown-fox, jumps #42 a I ok")
	want := []string{"the", "quick", "brown", "fox", "jumps", "42", "ok"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tokenize = %v, want %v", got, want)
	}
	if tokens := tokenize(""); len(tokens) != 0 {
		t.Errorf("tokenize(\"\") = %v, want empty", tokens)
	}
}

func TestRankerPrefersTermFrequency(t *testing.T) {
	documents := []caseDocument{
		{caseID: "a", title: "burglary", description: "burglary at the warehouse burglary"},
		{caseID: "b", title: "fraud", description: "one burglary mention"},
		{caseID: "c", title: "arson", description: "no relevant terms"},
	}
	r := newRanker(documents)
	query := tokenize("burglary")

	scoreA := r.score(0, query)
	scoreB := r.score(1, query)
	scoreC := r.score(2, query)

	if scoreA <= scoreB {
		t.Errorf("score(a)=%f should exceed score(b)=%f", scoreA, scoreB)
	}
	if scoreB <= 0 {
		t.Errorf("score(b)=%f should be positive", scoreB)
	}
	if scoreC != 0 {
		t.Errorf("score(c)=%f, want 0", scoreC)
	}
}

func TestRankerTitleOutweighsNotes(t *testing.T) {
	documents := []caseDocument{
		{caseID: "title-hit", title: "ransomware incident", description: "x"},
		{caseID: "note-hit", title: "y", notes: []string{"possible ransomware angle"}},
	}
	r := newRanker(documents)
	query := tokenize("ransomware")

	if r.score(0, query) <= r.score(1, query) {
		t.Error("a title match should outscore a note match")
	}
}

func TestRankerEmptyCorpus(t *testing.T) {
	r := newRanker(nil)
	if got := len(r.idf); got != 0 {
		t.Errorf("idf has %d terms for empty corpus", got)
	}
}
