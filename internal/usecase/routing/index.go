// Package routing decides which agent answers each conversation turn.
// It offers three policies: a TF-IDF similarity recommender, a fixed
// linear pipeline, and a supervisor agent that picks the next hop.
package routing

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"switchboard-ai/internal/domain"
)

// RelevanceIndex maps each agent to a sparse TF-IDF vector fitted over the
// corpus of agent name + description + system prompt blobs. It is a derived,
// rebuildable artifact: any registry mutation makes it stale, so the registry
// rebuilds and swaps it atomically with the agent snapshot.
type RelevanceIndex struct {
	names   []string             // registry order, the stable tie-break order
	vectors []map[string]float64 // L2-normalized term weights per agent
	idf     map[string]float64
}

// BuildIndex fits a TF-IDF index over the given agents. It returns nil when
// the corpus is empty or degenerate (no usable terms after stop-word
// removal); callers treat a nil index as "absent" and fall back to the
// default agent rather than failing.
func BuildIndex(agents []domain.AgentProfile) *RelevanceIndex {
	if len(agents) == 0 {
		return nil
	}

	docs := make([][]string, len(agents))
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
		docs[i] = tokenize(a.Name + " " + a.Description + " " + a.SystemPrompt)
	}

	// Document frequencies.
	df := map[string]int{}
	for _, doc := range docs {
		seen := map[string]bool{}
		for _, term := range doc {
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}
	if len(df) == 0 {
		return nil
	}

	// Smoothed inverse document frequency: ln((1+n)/(1+df)) + 1.
	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = math.Log((1+n)/(1+float64(count))) + 1
	}

	vectors := make([]map[string]float64, len(docs))
	for i, doc := range docs {
		vectors[i] = weigh(doc, idf)
	}

	return &RelevanceIndex{names: names, vectors: vectors, idf: idf}
}

// Score cleans the query the same way as the corpus text, projects it into
// the fitted vector space, and returns the cosine similarity against every
// agent vector. All similarities are in [0,1]. Agents not present at fit
// time cannot be scored; callers must rebuild the index after any mutation.
func (ix *RelevanceIndex) Score(query string) map[string]float64 {
	scores := make(map[string]float64, len(ix.names))
	qv := weigh(tokenize(query), ix.idf)
	for i, name := range ix.names {
		scores[name] = dot(qv, ix.vectors[i])
	}
	return scores
}

// AgentScore pairs an agent name with its similarity to a query.
type AgentScore struct {
	Name  string
	Score float64
}

// Rank returns all agents ordered by descending similarity to the query.
// Ties keep registry order (earliest agent first).
func (ix *RelevanceIndex) Rank(query string) []AgentScore {
	scores := ix.Score(query)
	ranked := make([]AgentScore, len(ix.names))
	for i, name := range ix.names {
		ranked[i] = AgentScore{Name: name, Score: scores[name]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Agents returns the agent names the index was fitted over, in registry order.
func (ix *RelevanceIndex) Agents() []string {
	out := make([]string, len(ix.names))
	copy(out, ix.names)
	return out
}

// weigh computes an L2-normalized TF-IDF vector for one token list.
// Terms outside the fitted vocabulary are dropped.
func weigh(tokens []string, idf map[string]float64) map[string]float64 {
	tf := map[string]float64{}
	for _, term := range tokens {
		if _, known := idf[term]; known {
			tf[term]++
		}
	}
	if len(tf) == 0 {
		return nil
	}

	var normSq float64
	for term := range tf {
		w := tf[term] * idf[term]
		tf[term] = w
		normSq += w * w
	}
	norm := math.Sqrt(normSq)
	for term := range tf {
		tf[term] /= norm
	}
	return tf
}

// dot computes the inner product of two sparse vectors. Both sides are
// L2-normalized, so this is their cosine similarity.
func dot(a, b map[string]float64) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var sum float64
	for term, wa := range a {
		sum += wa * b[term]
	}
	// Floating point dust can nudge the product past 1.
	if sum > 1 {
		sum = 1
	}
	return sum
}

// tokenize case-folds text, maps punctuation to whitespace, and drops
// English stop-words and single-character tokens.
func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, text)

	fields := strings.Fields(cleaned)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// stopWords is a compact English stop-word list. Common verbs and pronouns
// carry no routing signal and would otherwise dominate short queries.
var stopWords = map[string]bool{
	"the": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "must": true, "shall": true, "can": true, "to": true,
	"of": true, "in": true, "for": true, "on": true, "with": true,
	"at": true, "by": true, "from": true, "as": true, "into": true,
	"through": true, "during": true, "before": true, "after": true,
	"above": true, "below": true, "up": true, "down": true, "out": true,
	"and": true, "but": true, "or": true, "nor": true, "so": true,
	"yet": true, "if": true, "then": true, "else": true, "when": true,
	"where": true, "why": true, "how": true, "all": true, "each": true,
	"every": true, "both": true, "few": true, "more": true, "most": true,
	"other": true, "some": true, "such": true, "no": true, "not": true,
	"only": true, "own": true, "same": true, "than": true, "too": true,
	"very": true, "just": true, "now": true, "this": true, "that": true,
	"these": true, "those": true, "it": true, "its": true, "you": true,
	"your": true, "he": true, "she": true, "we": true, "they": true,
	"my": true, "his": true, "her": true, "our": true, "their": true,
	"me": true, "him": true, "us": true, "them": true, "what": true,
	"which": true, "who": true, "whom": true, "about": true, "against": true,
	"between": true, "over": true, "under": true, "again": true,
	"further": true, "once": true, "here": true, "there": true, "any": true,
}
