// Package contextmgr implements the Context Manager from spec §4.2: token
// accounting calibrated per provider/model, the three trim layers
// (proactive, validation, reactive), and hashtag-injection resolution.
//
// It operates on the session package's own message representation
// ([]*types.Message) but stays decoupled from internal/session: callers
// supply a textOf function that renders a message's parts to text (session
// loads parts lazily from storage, which this package has no business
// knowing about). Because the teacher's transcript model bundles a tool
// call and its result into a single ToolPart living inside one Assistant
// message (rather than spec §3's separate Assistant/ToolResult message
// pair), the "tool-call/result pair is atomic" requirement in spec §4.2
// layer 1 holds automatically at message granularity: dropping or keeping
// one message drops or keeps both halves of the pair together.
package contextmgr

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/clio-agent/clio/pkg/types"
)

// Tunable constants from spec §4.2. The spec itself flags the exact
// weights and the 0.58 threshold as heuristics an implementer should treat
// as parameters rather than copy verbatim (spec §9 Open Questions); they
// are defined here as package vars, not consts, so a deployment can
// recalibrate them against its own corpus without forking the package.
var (
	// ProactiveThresholdFraction triggers the proactive trim loop once
	// estimated tokens exceed this fraction of the budget B.
	ProactiveThresholdFraction = 0.58

	// KeepLastK is the number of most-recent messages always kept by the
	// proactive trim layer.
	KeepLastK = 8

	// ValidationSummaryMaxBytes bounds the synthetic System-continuation
	// summary message the validation layer inserts after dropping further
	// messages.
	ValidationSummaryMaxBytes = 4096

	// HashtagBudgetTokens bounds the total size of all hashtag-injection
	// attachments on one User message.
	HashtagBudgetTokens = 32000

	// KeywordBoost is added to a message's trim score when its text
	// fuzzy-matches one of KeywordList.
	KeywordBoost = 0.3

	// KeywordList is the set of words whose presence boosts a message's
	// retention score (spec §4.2 layer 1).
	KeywordList = []string{"error", "bug", "fail", "fix", "critical"}

	// KeywordFuzzyDistance is the maximum Levenshtein distance, per word,
	// for a fuzzy keyword match ("failed", "erroring" still match "fail"/
	// "error").
	KeywordFuzzyDistance = 2
)

// TextOf renders a message's textual content (including any tool
// input/output summaries) for scoring and token estimation. Supplied by
// the caller since rendering requires loading the message's parts.
type TextOf func(*types.Message) string

// Estimator maintains a character-to-token ratio per provider/model,
// calibrated from actual response usage via an exponentially weighted
// moving average, per spec §4.2.
type Estimator struct {
	mu     sync.Mutex
	ratios map[string]float64
	alpha  float64
}

// defaultCharsPerToken is the seed ratio before any observations exist,
// a reasonable approximation for English prose and source code mixed.
const defaultCharsPerToken = 4.0

// NewEstimator returns an Estimator with the given EWMA smoothing factor
// (0 < alpha <= 1; higher weights recent observations more heavily).
func NewEstimator(alpha float64) *Estimator {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	return &Estimator{ratios: make(map[string]float64), alpha: alpha}
}

// Observe updates the calibrated ratio for providerModel from one actual
// request/response pair: chars is the character length of the text sent,
// tokens is the token count the provider reported consuming for it.
func (e *Estimator) Observe(providerModel string, chars, tokens int) {
	if tokens <= 0 || chars <= 0 {
		return
	}
	observed := float64(chars) / float64(tokens)

	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.ratios[providerModel]
	if !ok {
		e.ratios[providerModel] = observed
		return
	}
	e.ratios[providerModel] = e.alpha*observed + (1-e.alpha)*cur
}

// ratio returns the calibrated chars-per-token ratio for providerModel,
// defaulting if no observations exist yet.
func (e *Estimator) ratio(providerModel string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.ratios[providerModel]; ok && r > 0 {
		return r
	}
	return defaultCharsPerToken
}

// EstimateTokens estimates the token count of text for providerModel using
// the calibrated ratio. Computed lazily; callers that need to avoid
// recomputation across calls should cache the result on the message the
// way the teacher's compact.go caches token counts on types.Message.Tokens.
func (e *Estimator) EstimateTokens(providerModel, text string) int {
	if text == "" {
		return 0
	}
	r := e.ratio(providerModel)
	n := int(float64(len(text))/r + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

// Budget is the model-specific token budget a composed request must fit
// within.
type Budget struct {
	ContextWindow         int
	ExpectedOutputReserve int
}

// B is the usable budget: context window minus the reserve held for the
// model's own output.
func (b Budget) B() int {
	v := b.ContextWindow - b.ExpectedOutputReserve
	if v < 0 {
		return 0
	}
	return v
}

// TrimResult is the outcome of any trim layer: the surviving messages, the
// estimated token total for those messages (plus any synthetic summary),
// and — for the validation/reactive layers — the synthetic
// System-continuation summary text, if one was generated.
type TrimResult struct {
	Kept            []*types.Message
	DroppedSummary  string
	EstimatedTokens int
	Dropped         int
}

func estimateTotal(msgs []*types.Message, textOf TextOf, est *Estimator, providerModel string) int {
	total := 0
	for _, m := range msgs {
		total += est.EstimateTokens(providerModel, textOf(m))
	}
	return total
}

func roleWeight(role string, hasToolOnly bool) float64 {
	switch {
	case hasToolOnly:
		return 0.0 // ToolResult < User < Assistant
	case role == "user":
		return 0.5
	case role == "assistant":
		return 1.0
	default:
		return 0.3
	}
}

func isToolOnly(msg *types.Message, text string) bool {
	return msg.Role == "assistant" && strings.TrimSpace(text) == ""
}

// keywordMatch reports whether text contains a fuzzy match (bounded edit
// distance) of any word in KeywordList.
func keywordMatch(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range KeywordList {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		for _, kw := range KeywordList {
			if levenshtein.ComputeDistance(word, kw) <= KeywordFuzzyDistance {
				return true
			}
		}
	}
	return false
}

// score implements spec §4.2 layer 1's scoring: recency (linear, most
// recent = 1.0), keyword boost, and role weight.
func score(msg *types.Message, text string, idx, total int) float64 {
	recency := 0.0
	if total > 1 {
		recency = float64(idx) / float64(total-1)
	} else {
		recency = 1.0
	}
	s := recency + roleWeight(msg.Role, isToolOnly(msg, text))
	if keywordMatch(text) {
		s += KeywordBoost
	}
	return s
}

// keepSetIndices returns the indices the proactive layer always keeps:
// the System message (index 0), the first User message, and the last
// KeepLastK messages.
func keepSetIndices(msgs []*types.Message) map[int]bool {
	keep := make(map[int]bool)
	if len(msgs) > 0 {
		keep[0] = true
	}
	for i, m := range msgs {
		if m.Role == "user" {
			keep[i] = true
			break
		}
	}
	for i := len(msgs) - KeepLastK; i < len(msgs); i++ {
		if i >= 0 {
			keep[i] = true
		}
	}
	return keep
}

type scoredIdx struct {
	idx   int
	score float64
}

// ProactiveTrim implements spec §4.2 layer 1: if estimated tokens exceed
// ProactiveThresholdFraction·B, drop the lowest-scored non-essential
// messages until the estimate is back under threshold.
func ProactiveTrim(msgs []*types.Message, textOf TextOf, b int, est *Estimator, providerModel string) TrimResult {
	total := estimateTotal(msgs, textOf, est, providerModel)
	threshold := int(float64(b) * ProactiveThresholdFraction)
	if total <= threshold {
		return TrimResult{Kept: msgs, EstimatedTokens: total}
	}

	keep := keepSetIndices(msgs)
	var candidates []scoredIdx
	for i, m := range msgs {
		if keep[i] {
			continue
		}
		text := textOf(m)
		candidates = append(candidates, scoredIdx{i, score(m, text, i, len(msgs))})
	}
	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].score < candidates[b].score })

	dropped := make(map[int]bool)
	cur := total
	for _, c := range candidates {
		if cur <= threshold {
			break
		}
		dropped[c.idx] = true
		cur -= est.EstimateTokens(providerModel, textOf(msgs[c.idx]))
	}

	kept := make([]*types.Message, 0, len(msgs)-len(dropped))
	for i, m := range msgs {
		if !dropped[i] {
			kept = append(kept, m)
		}
	}
	return TrimResult{Kept: kept, EstimatedTokens: cur, Dropped: len(dropped)}
}

// buildSummary renders the bounded synthetic System-continuation summary
// spec §4.2 layer 2 requires: a bulleted list of dropped user requests, the
// count and kinds of dropped tool operations, and the current todo
// snapshot.
func buildSummary(droppedUserTexts []string, toolOpCounts map[string]int, todoSnapshot string) string {
	var b strings.Builder
	b.WriteString("[context trimmed — summary of dropped history]\n")
	if len(droppedUserTexts) > 0 {
		b.WriteString("Dropped user requests:\n")
		for _, t := range droppedUserTexts {
			t = strings.TrimSpace(t)
			if len(t) > 120 {
				t = t[:120] + "…"
			}
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	if len(toolOpCounts) > 0 {
		b.WriteString("Dropped tool operations:\n")
		kinds := make([]string, 0, len(toolOpCounts))
		for k := range toolOpCounts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "- %s x%d\n", k, toolOpCounts[k])
		}
	}
	if todoSnapshot != "" {
		b.WriteString("Current todos:\n")
		b.WriteString(todoSnapshot)
		b.WriteString("\n")
	}

	out := b.String()
	if len(out) > ValidationSummaryMaxBytes {
		out = out[:ValidationSummaryMaxBytes]
	}
	return out
}

// toolOpKindsOf extracts the distinct tool names invoked within msg, for
// the dropped-operations tally in the synthetic summary.
func toolOpKindsOf(msg *types.Message, parts []types.Part) map[string]int {
	counts := make(map[string]int)
	for _, p := range parts {
		if tp, ok := p.(*types.ToolPart); ok {
			counts[tp.Tool]++
		}
	}
	return counts
}

// PartsOf lets callers supply loaded parts for tool-op tallying in the
// validation summary; session already loads parts per message for
// buildCompletionRequest, so this mirrors that shape rather than having
// contextmgr re-load them itself.
type PartsOf func(*types.Message) []types.Part

// ValidationTrim implements spec §4.2 layer 2: run just before the wire
// send. If the proactively-trimmed set still exceeds B, unit-truncate
// further (dropping lowest-scored messages, this time allowing any message
// except the hard-kept System and first User message to be dropped) and
// replace the dropped messages with one synthetic summary inserted right
// after the System message.
func ValidationTrim(msgs []*types.Message, textOf TextOf, partsOf PartsOf, b int, est *Estimator, providerModel, todoSnapshot string) TrimResult {
	total := estimateTotal(msgs, textOf, est, providerModel)
	if total <= b {
		return TrimResult{Kept: msgs, EstimatedTokens: total}
	}

	hardKeep := make(map[int]bool)
	if len(msgs) > 0 {
		hardKeep[0] = true
	}
	firstUserIdx := -1
	for i, m := range msgs {
		if m.Role == "user" {
			hardKeep[i] = true
			firstUserIdx = i
			break
		}
	}

	var candidates []scoredIdx
	for i, m := range msgs {
		if hardKeep[i] {
			continue
		}
		candidates = append(candidates, scoredIdx{i, score(m, textOf(m), i, len(msgs))})
	}
	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].score < candidates[b].score })

	dropped := make(map[int]bool)
	cur := total
	var droppedUserTexts []string
	toolOpCounts := make(map[string]int)
	for _, c := range candidates {
		if cur <= b {
			break
		}
		dropped[c.idx] = true
		m := msgs[c.idx]
		text := textOf(m)
		cur -= est.EstimateTokens(providerModel, text)
		if m.Role == "user" {
			droppedUserTexts = append(droppedUserTexts, text)
		}
		if partsOf != nil {
			for k, n := range toolOpKindsOf(m, partsOf(m)) {
				toolOpCounts[k] += n
			}
		}
	}

	summary := buildSummary(droppedUserTexts, toolOpCounts, todoSnapshot)
	summaryMsg := &types.Message{
		ID:        "trim-summary",
		Role:      "system",
		IsSummary: true,
	}
	_ = firstUserIdx

	kept := make([]*types.Message, 0, len(msgs)-len(dropped)+1)
	for i, m := range msgs {
		if i == 0 && len(msgs) > 0 {
			kept = append(kept, m)
			kept = append(kept, summaryMsg)
			continue
		}
		if dropped[i] {
			continue
		}
		kept = append(kept, m)
	}
	cur += est.EstimateTokens(providerModel, summary)
	summaryMsg.System = &summary

	return TrimResult{Kept: kept, DroppedSummary: summary, EstimatedTokens: cur, Dropped: len(dropped)}
}

// ReactiveTrim implements spec §4.2 layer 3: on a provider context-overflow
// error, progressively trim 50% of non-essential messages (attempt 1), then
// 25% (attempt 2), then the minimal set — System + first User + last 2
// messages + todo summary (attempt 3 and beyond).
func ReactiveTrim(msgs []*types.Message, textOf TextOf, partsOf PartsOf, est *Estimator, providerModel string, attempt int, todoSnapshot string) TrimResult {
	if attempt >= 3 {
		return minimalTrim(msgs, textOf, est, providerModel, todoSnapshot)
	}

	// spec §4.2 layer 3: "50% of non-essential messages, then 25%" reads as
	// the fraction of non-essential messages *retained* at each successive
	// attempt (50% kept, then 25% kept) — each attempt is strictly more
	// aggressive than the last, as a context-overflow retry loop requires.
	dropFraction := 0.5
	if attempt == 2 {
		dropFraction = 0.75
	}
	return trimToFraction(msgs, textOf, partsOf, est, providerModel, dropFraction, todoSnapshot)
}

func trimToFraction(msgs []*types.Message, textOf TextOf, partsOf PartsOf, est *Estimator, providerModel string, fraction float64, todoSnapshot string) TrimResult {
	hardKeep := make(map[int]bool)
	if len(msgs) > 0 {
		hardKeep[0] = true
	}
	for i, m := range msgs {
		if m.Role == "user" {
			hardKeep[i] = true
			break
		}
	}

	var nonEssential []int
	for i := range msgs {
		if !hardKeep[i] {
			nonEssential = append(nonEssential, i)
		}
	}
	sort.SliceStable(nonEssential, func(a, b int) bool {
		return score(msgs[nonEssential[a]], textOf(msgs[nonEssential[a]]), nonEssential[a], len(msgs)) <
			score(msgs[nonEssential[b]], textOf(msgs[nonEssential[b]]), nonEssential[b], len(msgs))
	})

	dropCount := int(float64(len(nonEssential)) * fraction)
	dropped := make(map[int]bool, dropCount)
	var droppedUserTexts []string
	toolOpCounts := make(map[string]int)
	for _, idx := range nonEssential[:dropCount] {
		dropped[idx] = true
		m := msgs[idx]
		if m.Role == "user" {
			droppedUserTexts = append(droppedUserTexts, textOf(m))
		}
		if partsOf != nil {
			for k, n := range toolOpKindsOf(m, partsOf(m)) {
				toolOpCounts[k] += n
			}
		}
	}

	summary := buildSummary(droppedUserTexts, toolOpCounts, todoSnapshot)
	summaryMsg := &types.Message{ID: "trim-summary-reactive", Role: "system", IsSummary: true, System: &summary}

	kept := make([]*types.Message, 0, len(msgs)-len(dropped)+1)
	for i, m := range msgs {
		if i == 0 && len(msgs) > 0 {
			kept = append(kept, m)
			kept = append(kept, summaryMsg)
			continue
		}
		if dropped[i] {
			continue
		}
		kept = append(kept, m)
	}

	total := estimateTotal(kept, textOf, est, providerModel)
	return TrimResult{Kept: kept, DroppedSummary: summary, EstimatedTokens: total, Dropped: len(dropped)}
}

// minimalTrim is the reactive layer's final attempt: System + first User +
// last 2 messages + todo summary, per spec §4.2 layer 3.
func minimalTrim(msgs []*types.Message, textOf TextOf, est *Estimator, providerModel, todoSnapshot string) TrimResult {
	var kept []*types.Message
	if len(msgs) > 0 {
		kept = append(kept, msgs[0])
	}
	for _, m := range msgs {
		if m.Role == "user" {
			kept = append(kept, m)
			break
		}
	}
	if n := len(msgs); n >= 2 {
		kept = append(kept, msgs[n-2:]...)
	} else if n == 1 {
		kept = append(kept, msgs[0])
	}

	summary := buildSummary(nil, nil, todoSnapshot)
	summaryMsg := &types.Message{ID: "trim-summary-minimal", Role: "system", IsSummary: true, System: &summary}
	out := make([]*types.Message, 0, len(kept)+1)
	if len(kept) > 0 {
		out = append(out, kept[0])
		out = append(out, summaryMsg)
		out = append(out, kept[1:]...)
	} else {
		out = append(out, summaryMsg)
	}

	total := estimateTotal(out, textOf, est, providerModel)
	return TrimResult{Kept: out, DroppedSummary: summary, EstimatedTokens: total, Dropped: len(msgs) - len(kept)}
}
