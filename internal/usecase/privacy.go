package usecase

import (
	"context"
	"errors"

	"auditlens/internal/domain/entity"
	"auditlens/internal/domain/repository"
	"auditlens/internal/metrics"

	"go.uber.org/zap"
)

// PseudonymizeResult is the outcome of PrivacyGuard.PseudonymizeRecords.
// Degraded is set when the remote service failed and local masking was
// applied instead.
type PseudonymizeResult struct {
	Records         []entity.Finding
	SessionID       string
	MappingsCreated int
	Degraded        bool
}

// PrivacyGuard coordinates the remote pseudonymizer with local masking.
// Failures never propagate: privacy protection degrades, the query proceeds.
type PrivacyGuard struct {
	remote  repository.Pseudonymizer
	masker  *Masker
	metrics *metrics.Collector
	log     *zap.Logger
}

func NewPrivacyGuard(remote repository.Pseudonymizer, masker *Masker, m *metrics.Collector, log *zap.Logger) *PrivacyGuard {
	return &PrivacyGuard{remote: remote, masker: masker, metrics: m, log: log.Named("privacy")}
}

// PseudonymizeRecords swaps the person fields of findings for session-stable
// pseudonyms. Without a remote, or when it fails, the same fields are masked
// through session, which the caller later uses to unmask the model answer.
func (g *PrivacyGuard) PseudonymizeRecords(ctx context.Context, findings []entity.Finding, sessionID string, session *MaskSession) PseudonymizeResult {
	if len(findings) == 0 {
		return PseudonymizeResult{Records: findings, SessionID: sessionID}
	}
	if g.remote != nil && sessionID != "" {
		out, created, err := g.remote.Pseudonymize(ctx, findings, sessionID)
		if err == nil {
			return PseudonymizeResult{Records: out, SessionID: sessionID, MappingsCreated: created}
		}
		g.log.Warn("remote pseudonymization failed, masking locally",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	g.metrics.MaskingFallback("pseudonymize")
	return PseudonymizeResult{
		Records:   g.maskLocally(findings, session),
		SessionID: sessionID,
		Degraded:  true,
	}
}

func (g *PrivacyGuard) maskLocally(findings []entity.Finding, session *MaskSession) []entity.Finding {
	out := make([]entity.Finding, len(findings))
	for i, f := range findings {
		f.Owner = session.MaskValue(f.Owner, entity.MaskName)
		f.Auditor = session.MaskValue(f.Auditor, entity.MaskName)
		f.OwnerEmail = session.MaskValue(f.OwnerEmail, entity.MaskEmail)
		f.Description = session.Mask(f.Description)
		f.Recommendation = session.Mask(f.Recommendation)
		out[i] = f
	}
	return out
}

// Depseudonymize restores remote pseudonyms in text. An expired session or
// a remote failure leaves the text as is.
func (g *PrivacyGuard) Depseudonymize(ctx context.Context, text, sessionID string) string {
	if g.remote == nil || sessionID == "" || text == "" {
		return text
	}
	out, err := g.remote.Depseudonymize(ctx, text, sessionID)
	if err != nil {
		if errors.Is(err, entity.ErrSessionNotFound) {
			g.log.Info("pseudonym session not found", zap.String("session_id", sessionID))
		} else {
			g.log.Warn("depseudonymization failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		g.metrics.MaskingFallback("depseudonymize")
		return text
	}
	return out
}
