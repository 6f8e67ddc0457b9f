// Package vector implements TF-IDF weighting over a capped vocabulary and the
// sparse document-term matrix it produces.
package vector

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity/tokenizer"
)

// DefaultMaxFeatures caps the vocabulary when callers pass a non-positive
// limit.
const DefaultMaxFeatures = 10000

// Model is the fitted weighting model: an alphabetically ordered vocabulary
// and the smoothed inverse document frequency of each term. Terms[j] is
// column j of every matrix the model produces.
type Model struct {
	Terms []string  `json:"terms"`
	IDF   []float64 `json:"idf"`

	once    sync.Once
	columns map[string]int
}

// Fit builds the vocabulary from texts, keeps the maxFeatures terms with the
// highest total count across the corpus, and returns the model together with
// the weighted matrix of texts. Rows are L2-normalised. A corpus without any
// indexable term yields a model with no terms and a matrix with no columns.
func Fit(texts []string, maxFeatures int) (*Model, *Matrix) {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}
	counts := make([]map[string]int, len(texts))
	df := make(map[string]int)
	total := make(map[string]int)
	for i, text := range texts {
		tf := termCounts(text)
		for term, c := range tf {
			df[term]++
			total[term] += c
		}
		counts[i] = tf
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	if len(terms) > maxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if total[terms[i]] != total[terms[j]] {
				return total[terms[i]] > total[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:maxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(texts))
	idf := make([]float64, len(terms))
	for j, term := range terms {
		idf[j] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	model := &Model{Terms: terms, IDF: idf}
	return model, model.weigh(counts)
}

// Column returns the column of term, or false if it is not in the vocabulary.
func (m *Model) Column(term string) (int, bool) {
	m.once.Do(func() {
		m.columns = make(map[string]int, len(m.Terms))
		for j, t := range m.Terms {
			m.columns[t] = j
		}
	})
	j, ok := m.columns[term]
	return j, ok
}

// Len returns the vocabulary size.
func (m *Model) Len() int {
	return len(m.Terms)
}

// Validate checks that the vocabulary is strictly ascending and that every
// term has a positive IDF.
func (m *Model) Validate() error {
	if len(m.Terms) != len(m.IDF) {
		return fmt.Errorf("model has %d terms but %d idf weights", len(m.Terms), len(m.IDF))
	}
	for j := range m.Terms {
		if j > 0 && m.Terms[j-1] >= m.Terms[j] {
			return fmt.Errorf("vocabulary not strictly ordered at column %d", j)
		}
		if !(m.IDF[j] > 0) || math.IsInf(m.IDF[j], 0) {
			return fmt.Errorf("invalid idf %v for term %q", m.IDF[j], m.Terms[j])
		}
	}
	return nil
}

func termCounts(text string) map[string]int {
	tf := make(map[string]int)
	for _, tok := range tokenizer.Tokenize(text) {
		tf[tok]++
	}
	return tf
}

// weigh turns raw term counts into L2-normalised TF-IDF rows. Terms outside
// the vocabulary are ignored.
func (m *Model) weigh(counts []map[string]int) *Matrix {
	b := newBuilder(len(m.Terms))
	for _, tf := range counts {
		cols := make([]int, 0, len(tf))
		for term := range tf {
			if j, ok := m.Column(term); ok {
				cols = append(cols, j)
			}
		}
		sort.Ints(cols)
		vals := make([]float64, len(cols))
		var sumSq float64
		for k, j := range cols {
			w := float64(tf[m.Terms[j]]) * m.IDF[j]
			vals[k] = w
			sumSq += w * w
		}
		if sumSq > 0 {
			norm := math.Sqrt(sumSq)
			for k := range vals {
				vals[k] /= norm
			}
		}
		b.appendRow(cols, vals)
	}
	return b.matrix()
}
