package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"auditlens/internal/domain/entity"

	"go.uber.org/zap"
)

var testLog = zap.NewNop()

// fakeStore evaluates equality natively and counts calls.
type fakeStore struct {
	mu       sync.Mutex
	findings []entity.Finding
	err      error
	calls    int
	lastSeen []entity.QueryFilter
}

func (s *fakeStore) Query(ctx context.Context, filters []entity.QueryFilter, sort entity.Sort, limit int) ([]entity.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastSeen = filters
	if s.err != nil {
		return nil, s.err
	}
	var out []entity.Finding
	for _, f := range s.findings {
		if entity.MatchesAll(f, filters) {
			out = append(out, f)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeAI struct {
	mu       sync.Mutex
	calls    int
	prompts  []string
	requests []entity.CompletionRequest
	reply    func(req entity.CompletionRequest) (*entity.AIResponse, error)
}

func (a *fakeAI) Complete(ctx context.Context, req entity.CompletionRequest) (*entity.AIResponse, error) {
	a.mu.Lock()
	a.calls++
	a.prompts = append(a.prompts, req.Prompt)
	a.requests = append(a.requests, req)
	reply := a.reply
	a.mu.Unlock()
	if reply != nil {
		return reply(req)
	}
	return &entity.AIResponse{Content: "analysis", TokenCount: 42}, nil
}

func (a *fakeAI) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// fakeExtractor answers with a fixed raw output per query.
type fakeExtractor struct {
	mu      sync.Mutex
	outputs map[string]string
	def     string
	err     error
	calls   int
}

func (e *fakeExtractor) Extract(ctx context.Context, q string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return "", e.err
	}
	if out, ok := e.outputs[q]; ok {
		return out, nil
	}
	return e.def, nil
}

type fakeIndex struct {
	sims    map[string]float32
	err     error
	queries []string
	scopes  []entity.ExtractedFilters
	indexed []entity.Finding
}

func (x *fakeIndex) Similar(ctx context.Context, query string, scope entity.ExtractedFilters, limit int) (map[string]float32, error) {
	x.queries = append(x.queries, query)
	x.scopes = append(x.scopes, scope)
	if x.err != nil {
		return nil, x.err
	}
	return x.sims, nil
}

func (x *fakeIndex) Index(ctx context.Context, findings []entity.Finding) error {
	if x.err != nil {
		return x.err
	}
	x.indexed = append(x.indexed, findings...)
	return nil
}

// fakePseudonymizer keeps per-session mappings in memory.
type fakePseudonymizer struct {
	mu       sync.Mutex
	sessions map[string]map[string]string // session -> original -> pseudonym
	err      error
	next     int
}

func newFakePseudonymizer() *fakePseudonymizer {
	return &fakePseudonymizer{sessions: make(map[string]map[string]string)}
}

func (p *fakePseudonymizer) Pseudonymize(ctx context.Context, findings []entity.Finding, sessionID string) ([]entity.Finding, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, 0, p.err
	}
	m, ok := p.sessions[sessionID]
	if !ok {
		m = make(map[string]string)
		p.sessions[sessionID] = m
	}
	created := 0
	swap := func(v string) string {
		if v == "" {
			return v
		}
		if ps, ok := m[v]; ok {
			return ps
		}
		p.next++
		ps := "PERSON_" + strings.Repeat("x", p.next)
		m[v] = ps
		created++
		return ps
	}
	out := make([]entity.Finding, len(findings))
	for i, f := range findings {
		f.Owner = swap(f.Owner)
		f.Auditor = swap(f.Auditor)
		f.OwnerEmail = swap(f.OwnerEmail)
		out[i] = f
	}
	return out, created, nil
}

func (p *fakePseudonymizer) Depseudonymize(ctx context.Context, text, sessionID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.sessions[sessionID]
	if !ok {
		return "", entity.ErrSessionNotFound
	}
	rev := make(map[string]string, len(m))
	for orig, ps := range m {
		rev[ps] = orig
	}
	for _, ps := range sortedByLenDesc(rev) {
		text = strings.ReplaceAll(text, ps, rev[ps])
	}
	return text, nil
}

func sortedByLenDesc(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && len(keys[j]) > len(keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

type fakeLimiter struct {
	mu        sync.Mutex
	allowed   bool
	err       error
	increment chan int
}

func (l *fakeLimiter) CheckLimit(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowed, l.err
}

func (l *fakeLimiter) Increment(ctx context.Context, id string, tokens int) error {
	if l.increment != nil {
		l.increment <- tokens
	}
	return nil
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]entity.RecognizedIntent
}

func (c *mapCache) Get(ctx context.Context, key string) (entity.RecognizedIntent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *mapCache) Set(ctx context.Context, key string, intent entity.RecognizedIntent, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]entity.RecognizedIntent)
	}
	c.m[key] = intent
}

func sampleFindings() []entity.Finding {
	return []entity.Finding{
		{ID: "f1", Code: "AUD-2024-001", Title: "Weak password policy", Area: "Access control", Description: "Passwords are not rotated.", Department: "IT", Project: "Identity Platform", ProjectType: "Infrastructure", Year: "2024", Severity: "Critical", SeverityScore: 9.1, Status: "Open", Owner: "Jane Doe", OwnerEmail: "jane.doe@corp.example"},
		{ID: "f2", Code: "AUD-2024-002", Title: "Unreviewed firewall rules", Area: "Network", Description: "Firewall rules lack review.", Department: "IT", Project: "Network Refresh", ProjectType: "Infrastructure", Year: "2024", Severity: "High", SeverityScore: 7.5, Status: "Open", Owner: "Raj Patel"},
		{ID: "f3", Code: "AUD-2023-014", Title: "Late vendor payments", Area: "Payables", Description: "Invoices paid after due date.", Department: "Finance", Project: "ERP Upgrade", ProjectType: "Application", Year: "2023", Severity: "Medium", SeverityScore: 5.0, Status: "Closed", Owner: "Ana Lima"},
		{ID: "f4", Code: "AUD-2024-020", Title: "Budget variance not explained", Area: "Planning", Description: "Quarterly variance above threshold without explanation.", Department: "Finance", Project: "Budget Cycle", ProjectType: "Process", Year: "2024", Severity: "High", SeverityScore: 7.0, Status: "In Progress", Owner: "Ana Lima"},
	}
}
