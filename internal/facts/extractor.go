package facts

import (
	"container/list"
	"sync"

	"github.com/coherent-ai/crt/internal/model"
)

// Extractor runs Tier A (always) and Tier B (if enabled) against an
// utterance, caching results by exact text. Extraction is a pure function
// of the text — the cache is an optimization, never a correctness
// dependency, and eviction is the only invalidation path.
type Extractor struct {
	enableTierB bool
	maxChars    int

	mu    sync.Mutex
	cap   int
	order *list.List // front = most recently used
	index map[string]*list.Element
}

type cacheEntry struct {
	text  string
	facts []model.ExtractedFact
}

// NewExtractor builds an Extractor with an LRU cache bounded to capacity
// entries; texts longer than maxChars bypass the cache entirely (they are
// still extracted, just not memoized).
func NewExtractor(enableTierB bool, capacity, maxChars int) *Extractor {
	if capacity <= 0 {
		capacity = 1000
	}
	if maxChars <= 0 {
		maxChars = 10000
	}
	return &Extractor{
		enableTierB: enableTierB,
		maxChars:    maxChars,
		cap:         capacity,
		order:       list.New(),
		index:       make(map[string]*list.Element),
	}
}

// Extract returns the facts for text, consulting the cache first. Unknown
// or slotless input yields an empty (non-nil-safe) slice.
func (e *Extractor) Extract(text string) []model.ExtractedFact {
	if len(text) > e.maxChars {
		return e.extract(text)
	}

	e.mu.Lock()
	if el, ok := e.index[text]; ok {
		e.order.MoveToFront(el)
		facts := el.Value.(*cacheEntry).facts
		e.mu.Unlock()
		return facts
	}
	e.mu.Unlock()

	facts := e.extract(text)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.index[text]; ok {
		return facts // raced with another caller; first writer wins, both results are identical
	}
	el := e.order.PushFront(&cacheEntry{text: text, facts: facts})
	e.index[text] = el
	if e.order.Len() > e.cap {
		oldest := e.order.Back()
		if oldest != nil {
			e.order.Remove(oldest)
			delete(e.index, oldest.Value.(*cacheEntry).text)
		}
	}
	return facts
}

func (e *Extractor) extract(text string) []model.ExtractedFact {
	facts := ExtractTierA(text)
	if e.enableTierB {
		facts = append(facts, ExtractTierB(text)...)
	}
	return facts
}
