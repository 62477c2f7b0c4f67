// Package batch splits ordered article texts into token-bounded chunks for
// classification calls.
package batch

import (
	"iter"
	"strings"
)

// Item pairs an article identifier with the text submitted on its behalf.
type Item struct {
	ID   string
	Text string
}

const tokensPerWord = 1.3

// EstimateTokens approximates the token count of text from its word count.
// The estimate only needs to be deterministic and monotonic in text length.
func EstimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * tokensPerWord)
}

// Partition yields consecutive batches whose estimated token totals stay
// within maxTokens. Items are assigned greedily in input order; an item whose
// own estimate exceeds the budget is yielded alone rather than split. The
// returned sequence is lazy and can be iterated more than once.
func Partition(items []Item, maxTokens int) iter.Seq[[]Item] {
	return func(yield func([]Item) bool) {
		var current []Item
		currentTokens := 0

		for _, item := range items {
			tokens := EstimateTokens(item.Text)

			if tokens > maxTokens {
				if len(current) > 0 {
					if !yield(current) {
						return
					}
					current = nil
					currentTokens = 0
				}
				if !yield([]Item{item}) {
					return
				}
				continue
			}

			if len(current) > 0 && currentTokens+tokens > maxTokens {
				if !yield(current) {
					return
				}
				current = nil
				currentTokens = 0
			}

			current = append(current, item)
			currentTokens += tokens
		}

		if len(current) > 0 {
			yield(current)
		}
	}
}
