package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"auditlens/internal/domain/entity"
)

// maskPattern pairs a compiled regex with its category. group selects the
// submatch that is masked (0 = whole match); accept can veto a match.
type maskPattern struct {
	re       *regexp.Regexp
	category entity.MaskCategory
	group    int
	accept   func(string) bool
}

// Masker holds the compiled pattern set. It carries no per-call state and
// is safe to share; all counters live on a MaskSession.
type Masker struct {
	patterns []maskPattern
}

// MaskResult is the output of a one-shot Mask call.
type MaskResult struct {
	MaskedText string
	Tokens     []entity.MaskingToken
}

var orgWords = map[string]bool{
	"Department": true, "Team": true, "Division": true, "Unit": true,
	"Office": true, "Committee": true, "Group": true,
}

func NewMasker() *Masker {
	specs := []maskPattern{
		{re: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), category: entity.MaskEmail},
		{re: regexp.MustCompile(`\+?\(?\d[\d\s().\-]{7,}\d`), category: entity.MaskPhone, accept: phoneLike},
		{re: regexp.MustCompile(`\b[A-Z]{2,6}-?\d{3,}(?:-[A-Z0-9]{2,})*\b`), category: entity.MaskID, accept: idLike},
		{re: regexp.MustCompile(`\b\d{1,5}\s+(?:[A-Z][a-z]+\s+){1,4}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Court|Ct)\b`), category: entity.MaskAddress},
		{re: regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`), category: entity.MaskName, group: 1, accept: personLike},
		{re: regexp.MustCompile(`(?i:auditor|manager|director|officer|owner|supervisor|analyst|head)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)`), category: entity.MaskName, group: 1, accept: personLike},
	}
	return &Masker{patterns: specs}
}

func phoneLike(s string) bool {
	digits := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= 9 && digits <= 15 && !yearList(s)
}

// yearList reports whether s is only four-digit years such as "2022 2023 2024".
func yearList(s string) bool {
	groups := strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	for _, g := range groups {
		if len(g) != 4 || (g[:2] != "19" && g[:2] != "20") {
			return false
		}
	}
	return len(groups) > 1
}

// idLike rejects short tokens such as FY2024 that carry query meaning.
func idLike(s string) bool {
	if strings.Contains(s, "-") {
		return true
	}
	digits := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= 5
}

func personLike(s string) bool {
	for _, w := range strings.Fields(s) {
		if orgWords[w] {
			return false
		}
	}
	return true
}

// Mask replaces sensitive spans in text with fresh tokens.
func (m *Masker) Mask(text string) MaskResult {
	s := m.NewSession()
	masked := s.Mask(text)
	return MaskResult{MaskedText: masked, Tokens: s.Tokens()}
}

// Unmask restores tokens produced by Mask.
func (m *Masker) Unmask(maskedText string, tokens []entity.MaskingToken) string {
	return Unmask(maskedText, tokens)
}

// NewSession returns a token sequence owned by a single request.
func (m *Masker) NewSession() *MaskSession {
	return &MaskSession{
		masker:   m,
		counters: make(map[entity.MaskCategory]int),
		byValue:  make(map[tokenKey]string),
	}
}

type tokenKey struct {
	category entity.MaskCategory
	value    string
}

type span struct {
	start, end int
	category   entity.MaskCategory
}

// MaskSession accumulates the tokens of one query. It is not safe for
// concurrent use and must not outlive the request that created it.
type MaskSession struct {
	masker   *Masker
	counters map[entity.MaskCategory]int
	byValue  map[tokenKey]string
	tokens   []entity.MaskingToken
}

// Mask masks text, reusing tokens already issued in this session for
// identical values.
func (s *MaskSession) Mask(text string) string {
	if text == "" {
		return text
	}
	var spans []span
	for _, p := range s.masker.patterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2*p.group], loc[2*p.group+1]
			if start < 0 || start == end {
				continue
			}
			if p.accept != nil && !p.accept(text[start:end]) {
				continue
			}
			if overlaps(spans, start, end) {
				continue
			}
			spans = append(spans, span{start: start, end: end, category: p.category})
		}
	}
	if len(spans) == 0 {
		return text
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, sp := range spans {
		b.WriteString(text[prev:sp.start])
		b.WriteString(s.MaskValue(text[sp.start:sp.end], sp.category))
		prev = sp.end
	}
	b.WriteString(text[prev:])
	return b.String()
}

// MaskValue returns the token for value, issuing a new one if needed.
func (s *MaskSession) MaskValue(value string, category entity.MaskCategory) string {
	if value == "" {
		return value
	}
	key := tokenKey{category: category, value: value}
	if tok, ok := s.byValue[key]; ok {
		return tok
	}
	s.counters[category]++
	tok := fmt.Sprintf("[%s_%d]", strings.ToUpper(string(category)), s.counters[category])
	s.byValue[key] = tok
	s.tokens = append(s.tokens, entity.MaskingToken{Token: tok, OriginalValue: value, Category: category})
	return tok
}

// Tokens returns a copy of every token issued so far.
func (s *MaskSession) Tokens() []entity.MaskingToken {
	out := make([]entity.MaskingToken, len(s.tokens))
	copy(out, s.tokens)
	return out
}

func (s *MaskSession) Unmask(text string) string {
	return Unmask(text, s.tokens)
}

func overlaps(spans []span, start, end int) bool {
	for _, sp := range spans {
		if start < sp.end && sp.start < end {
			return true
		}
	}
	return false
}

// Unmask replaces tokens with their original values, longest token first
// so that no token is rewritten inside another's replacement.
func Unmask(text string, tokens []entity.MaskingToken) string {
	if len(tokens) == 0 || text == "" {
		return text
	}
	sorted := make([]entity.MaskingToken, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Token) > len(sorted[j].Token) })

	pairs := make([]string, 0, len(sorted)*2)
	for _, t := range sorted {
		pairs = append(pairs, t.Token, t.OriginalValue)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
