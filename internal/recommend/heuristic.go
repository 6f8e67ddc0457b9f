package recommend

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/catalog"
)

const (
	nameTokenWeight = 2
	priceWeight     = 1
	priceLow        = 0.7
	priceHigh       = 1.3
	minTokenLength  = 3
)

type scored struct {
	product catalog.Product
	weight  int
}

// Heuristic ranks candidates against ref without the index. A candidate
// sharing a name word with ref earns 2, a price within 30% of ref's earns 1
// more. When fewer than limit candidates scored, the best-rated remaining
// products fill in with weight 0. Results are ordered by weight, then by
// descending id, and capped at limit. candidates may include ref; it is
// skipped.
func Heuristic(ref catalog.Product, candidates []catalog.Product, limit int) []catalog.Product {
	if limit <= 0 {
		return []catalog.Product{}
	}
	refTokens := nameTokens(ref.NameOrEmpty())
	others := make([]catalog.Product, 0, len(candidates))
	for _, p := range candidates {
		if p.ID != ref.ID {
			others = append(others, p)
		}
	}

	var similar []scored
	pos := make(map[int64]int)
	if len(refTokens) > 0 {
		for _, p := range others {
			if sharesToken(refTokens, nameTokens(p.NameOrEmpty())) {
				pos[p.ID] = len(similar)
				similar = append(similar, scored{product: p, weight: nameTokenWeight})
			}
		}
	}

	if ref.Price != nil {
		low, high := *ref.Price*priceLow, *ref.Price*priceHigh
		for _, p := range others {
			if p.Price == nil || *p.Price < low || *p.Price > high {
				continue
			}
			if i, ok := pos[p.ID]; ok {
				similar[i].weight += priceWeight
				continue
			}
			pos[p.ID] = len(similar)
			similar = append(similar, scored{product: p, weight: priceWeight})
		}
	}

	if len(similar) < limit {
		rated := append([]catalog.Product(nil), others...)
		sort.SliceStable(rated, func(i, j int) bool {
			return rated[i].AverageRating > rated[j].AverageRating
		})
		for _, p := range rated {
			if len(similar) >= limit {
				break
			}
			if _, ok := pos[p.ID]; ok {
				continue
			}
			pos[p.ID] = len(similar)
			similar = append(similar, scored{product: p, weight: 0})
		}
	}

	sort.Slice(similar, func(i, j int) bool {
		if similar[i].weight != similar[j].weight {
			return similar[i].weight > similar[j].weight
		}
		return similar[i].product.ID > similar[j].product.ID
	})
	if len(similar) > limit {
		similar = similar[:limit]
	}
	out := make([]catalog.Product, len(similar))
	for i, s := range similar {
		out[i] = s.product
	}
	return out
}

// nameTokens splits a product name on whitespace, keeping lower-cased words
// longer than two characters.
func nameTokens(name string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, w := range strings.Fields(name) {
		if len([]rune(w)) >= minTokenLength {
			tokens[strings.ToLower(w)] = struct{}{}
		}
	}
	return tokens
}

func sharesToken(a, b map[string]struct{}) bool {
	for t := range b {
		if _, ok := a[t]; ok {
			return true
		}
	}
	return false
}
