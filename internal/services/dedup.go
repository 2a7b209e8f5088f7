package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/talent-match/internal/models"
	"alfredoptarigan/talent-match/internal/repositories"
)

// maxLineageHops bounds survivor resolution. Merge chains longer than this
// indicate corrupted lineage, not a legitimate pool.
const maxLineageHops = 32

// Relative weights of the merge-score signals. Signals that are unavailable
// for a comparison (no embedding, or no identity key on the incoming
// résumé) are dropped and the rest renormalized, mirroring how fusion
// reweights when a recall path is down.
const (
	exactKeyWeight = 0.6
	cosineWeight   = 0.3
	overlapWeight  = 0.1
)

// DedupOptions are the tunable merge-policy knobs.
type DedupOptions struct {
	MergeThreshold     float64
	NearMissMargin     float64
	EmbeddingThreshold float64
	MaxUpdateRetries   int
}

// IncomingResume is one extracted résumé on its way into the pool.
type IncomingResume struct {
	Facts       *ResumeFacts
	Embedding   []float32
	RawText     string
	ContentHash string
	Source      string
	FileURI     string
	FileType    string
}

// MergeDecision is the outcome of resolving an incoming résumé against the
// existing pool.
type MergeDecision struct {
	// CandidateID is the record representing this résumé: the freshly
	// created record, or the tombstone created for a merged duplicate.
	CandidateID uuid.UUID
	// SurvivorID is the active record for this person after resolution.
	SurvivorID uuid.UUID
	Merged     bool
	Created    bool
	// AlreadyIngested is set when byte-identical content had been resolved
	// before; nothing was written this time.
	AlreadyIngested bool
	Score           float64
}

// DedupEngine finds the existing record for the same person, if any, and
// merges into it with full field-level provenance. All pool mutations go
// through here; matching never writes.
type DedupEngine interface {
	Resolve(ctx context.Context, incoming *IncomingResume) (*MergeDecision, error)
	ResolveSurvivor(id uuid.UUID) (*models.Candidate, error)
}

type dedupEngine struct {
	repo        repositories.CandidateRepository
	auditRepo   repositories.AuditRepository
	vectorIndex VectorIndex
	opts        DedupOptions
	logger      *zap.Logger
}

func NewDedupEngine(
	repo repositories.CandidateRepository,
	auditRepo repositories.AuditRepository,
	vectorIndex VectorIndex,
	opts DedupOptions,
	logger *zap.Logger,
) DedupEngine {
	if opts.MaxUpdateRetries < 1 {
		opts.MaxUpdateRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &dedupEngine{
		repo:        repo,
		auditRepo:   auditRepo,
		vectorIndex: vectorIndex,
		opts:        opts,
		logger:      logger,
	}
}

// Resolve implements DedupEngine.
func (d *dedupEngine) Resolve(ctx context.Context, incoming *IncomingResume) (*MergeDecision, error) {
	if incoming == nil || incoming.Facts == nil {
		return nil, fmt.Errorf("%w: missing extracted facts", ErrValidation)
	}
	if strings.TrimSpace(incoming.RawText) == "" {
		return nil, fmt.Errorf("%w: empty resume text", ErrValidation)
	}
	if incoming.ContentHash == "" {
		incoming.ContentHash = ContentHash(incoming.RawText)
	}

	// Idempotency: byte-identical content resolves to the prior outcome
	// without creating anything new.
	if prior, err := d.priorDecision(incoming.ContentHash); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	email := NormalizeEmail(incoming.Facts.Email)
	phone := NormalizePhone(incoming.Facts.Phone)
	nameKey := NameKey(incoming.Facts.Name)

	matches, cosines, err := d.findMatchCandidates(ctx, incoming, email, phone, nameKey)
	if err != nil {
		return nil, err
	}

	var best *models.Candidate
	var bestScore float64
	for i := range matches {
		score := d.scoreMatch(incoming, &matches[i], email, phone, nameKey, cosines)
		if score > bestScore {
			bestScore = score
			best = &matches[i]
		}
	}

	if best != nil && bestScore >= d.opts.MergeThreshold {
		return d.merge(ctx, incoming, best, bestScore)
	}

	if best != nil && bestScore >= d.opts.MergeThreshold-d.opts.NearMissMargin {
		// Ambiguous: prefer a duplicate record over a wrong merge.
		d.logger.Info("dedup near miss, creating new record",
			zap.String("existing_candidate", best.ID.String()),
			zap.Float64("score", bestScore),
			zap.Float64("threshold", d.opts.MergeThreshold))
	}

	return d.create(incoming, email, phone, nameKey)
}

// priorDecision reconstructs the decision for content that was already
// ingested, keyed by text hash over all stored résumé documents.
func (d *dedupEngine) priorDecision(contentHash string) (*MergeDecision, error) {
	doc, err := d.repo.FindResumeByTextHash(contentHash)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	survivor, err := d.ResolveSurvivor(doc.CandidateID)
	if err != nil {
		return nil, err
	}

	record, err := d.repo.FindByContentHash(contentHash)
	if errors.Is(err, repositories.ErrNotFound) {
		record = survivor
	} else if err != nil {
		return nil, err
	}

	return &MergeDecision{
		CandidateID:     record.ID,
		SurvivorID:      survivor.ID,
		Merged:          record.Status == models.CandidateMerged,
		AlreadyIngested: true,
	}, nil
}

// findMatchCandidates runs the mini dual recall of dedup: exact-key lookup
// first, falling back to embedding similarity only when the incoming résumé
// carries no identity key at all. Cosine scores are collected fail-soft for
// scoring either way.
func (d *dedupEngine) findMatchCandidates(
	ctx context.Context,
	incoming *IncomingResume,
	email, phone, nameKey string,
) ([]models.Candidate, map[uuid.UUID]float64, error) {
	cosines := make(map[uuid.UUID]float64)
	if len(incoming.Embedding) > 0 && d.vectorIndex != nil {
		hits, err := d.vectorIndex.SearchSimilar(ctx, incoming.Embedding, 5)
		if err != nil {
			d.logger.Warn("embedding lookup unavailable during dedup", zap.Error(err))
		} else {
			for _, hit := range hits {
				cosines[hit.CandidateID] = float64(hit.Score)
			}
		}
	}

	matches, err := d.repo.FindByIdentityKeys(email, phone, nameKey)
	if err != nil {
		return nil, nil, err
	}
	if len(matches) > 0 || email != "" || phone != "" || nameKey != "" {
		return matches, cosines, nil
	}

	// No identity keys on the incoming résumé: fall back to strict
	// embedding similarity.
	var ids []uuid.UUID
	for id, score := range cosines {
		if score >= d.opts.EmbeddingThreshold {
			ids = append(ids, id)
		}
	}
	candidates, err := d.repo.FindByIDs(ids)
	if err != nil {
		return nil, nil, err
	}
	active := candidates[:0]
	for _, c := range candidates {
		if c.Status == models.CandidateActive {
			active = append(active, c)
		}
	}
	return active, cosines, nil
}

// scoreMatch combines exact-key hits (weighted highest), embedding cosine
// similarity, and structured-fact overlap into one similarity score.
func (d *dedupEngine) scoreMatch(
	incoming *IncomingResume,
	candidate *models.Candidate,
	email, phone, nameKey string,
	cosines map[uuid.UUID]float64,
) float64 {
	hasKeys := email != "" || phone != "" || nameKey != ""

	var exact float64
	switch {
	case email != "" && candidate.NormalizedEmail == email:
		exact = 1.0
	case phone != "" && candidate.NormalizedPhone == phone:
		exact = 0.9
	case nameKey != "" && candidate.NameKey == nameKey:
		exact = 0.4
	}

	cosine, hasCosine := cosines[candidate.ID]

	overlap := 0.7*skillJaccard(incoming.Facts.Skills, candidate.Skills) +
		0.3*locationMatch(incoming.Facts.Location, candidate.Location)

	var score, totalWeight float64
	if hasKeys {
		score += exactKeyWeight * exact
		totalWeight += exactKeyWeight
	}
	if hasCosine {
		score += cosineWeight * cosine
		totalWeight += cosineWeight
	}
	score += overlapWeight * overlap
	totalWeight += overlapWeight

	if totalWeight == 0 {
		return 0
	}
	return score / totalWeight
}

// merge folds the incoming résumé into the survivor of the matched record.
// Field conflicts resolve to the most recent value, but the losing value's
// provenance row stays in place, demoted to current=false.
func (d *dedupEngine) merge(ctx context.Context, incoming *IncomingResume, match *models.Candidate, score float64) (*MergeDecision, error) {
	survivor, err := d.ResolveSurvivor(match.ID)
	if err != nil {
		return nil, err
	}

	doc := &models.ResumeDocument{
		ID:          uuid.New(),
		CandidateID: survivor.ID,
		FileURI:     incoming.FileURI,
		FileType:    incoming.FileType,
		TextHash:    incoming.ContentHash,
		RawText:     incoming.RawText,
		Source:      incoming.Source,
		CreatedAt:   time.Now(),
	}

	// The field merge runs before the document row is stored: the text
	// hash is the idempotency key, so stamping it before the survivor's
	// fields are updated would make a failed merge look already done and
	// a retry would skip it. The merge itself is safe to re-run.
	mergedFields, err := d.applyFieldMerge(survivor.ID, incoming, doc.ID)
	if err != nil {
		return nil, err
	}

	// Tombstone for the duplicate: retained, never searchable.
	tombstone := d.buildCandidate(incoming, models.CandidateMerged)
	tombstone.MergedInto = &survivor.ID
	if err := d.repo.Create(tombstone); err != nil {
		return nil, err
	}

	edge := &models.MergeLineageEdge{
		ID:       uuid.New(),
		FromID:   tombstone.ID,
		ToID:     survivor.ID,
		MergedAt: time.Now(),
		Notes:    fmt.Sprintf("auto-merge score=%.3f source=%s", score, incoming.Source),
	}
	if _, err := d.repo.AppendLineageEdge(edge); err != nil {
		return nil, err
	}

	if err := d.repo.CreateResumeDocument(doc); err != nil {
		return nil, err
	}

	changes, _ := json.Marshal(map[string]interface{}{
		"from":   tombstone.ID,
		"to":     survivor.ID,
		"score":  score,
		"fields": mergedFields,
	})
	if err := d.auditRepo.Append("candidate", survivor.ID, "merge", string(changes), "dedup-engine"); err != nil {
		d.logger.Warn("failed to write merge audit entry", zap.Error(err))
	}

	d.logger.Info("merged duplicate candidate",
		zap.String("from", tombstone.ID.String()),
		zap.String("into", survivor.ID.String()),
		zap.Float64("score", score),
		zap.Strings("fields", mergedFields))

	return &MergeDecision{
		CandidateID: tombstone.ID,
		SurvivorID:  survivor.ID,
		Merged:      true,
		Score:       score,
	}, nil
}

// applyFieldMerge updates the survivor's canonical fields under the
// optimistic version check, retrying when a concurrent ingestion of the
// same person wins the race first.
func (d *dedupEngine) applyFieldMerge(survivorID uuid.UUID, incoming *IncomingResume, sourceDocID uuid.UUID) ([]string, error) {
	var mergedFields []string

	for attempt := 0; attempt < d.opts.MaxUpdateRetries; attempt++ {
		survivor, err := d.repo.FindByID(survivorID)
		if err != nil {
			return nil, err
		}

		updates := make(map[string]interface{})
		var provenance []*models.Provenance
		mergedFields = mergedFields[:0]

		record := func(field, newValue string) {
			mergedFields = append(mergedFields, field)
			provenance = append(provenance, d.provenanceEntry(survivorID, field, newValue, sourceDocID, incoming.RawText))
		}

		facts := incoming.Facts
		if facts.Name != "" && facts.Name != survivor.Name {
			updates["name"] = facts.Name
			updates["name_key"] = NameKey(facts.Name)
			record("name", facts.Name)
		}
		if email := NormalizeEmail(facts.Email); email != "" && email != survivor.NormalizedEmail {
			updates["email"] = facts.Email
			updates["normalized_email"] = email
			record("email", facts.Email)
		}
		if phone := NormalizePhone(facts.Phone); phone != "" && phone != survivor.NormalizedPhone {
			updates["phone"] = facts.Phone
			updates["normalized_phone"] = phone
			record("phone", facts.Phone)
		}
		if facts.Location != "" && !strings.EqualFold(facts.Location, survivor.Location) {
			updates["location"] = facts.Location
			record("location", facts.Location)
		}
		if facts.YearsExperience != nil &&
			(survivor.YearsExperience == nil || *facts.YearsExperience != *survivor.YearsExperience) {
			updates["years_experience"] = *facts.YearsExperience
			record("years_experience", fmt.Sprintf("%g", *facts.YearsExperience))
		}
		if facts.CurrentTitle != "" && !strings.EqualFold(facts.CurrentTitle, survivor.CurrentTitle) {
			updates["current_title"] = facts.CurrentTitle
			record("current_title", facts.CurrentTitle)
		}
		if facts.CurrentCompany != "" && !strings.EqualFold(facts.CurrentCompany, survivor.CurrentCompany) {
			updates["current_company"] = facts.CurrentCompany
			record("current_company", facts.CurrentCompany)
		}
		if union := unionSkills(survivor.Skills, facts.Skills); len(union) > len(survivor.Skills) {
			updates["skills"] = union
			record("skills", strings.Join(union, ", "))
		}
		if incoming.RawText != survivor.RawText {
			updates["raw_text"] = incoming.RawText
		}

		if len(updates) == 0 {
			return mergedFields, nil
		}

		err = d.repo.UpdateWithVersion(survivor.ID, survivor.Version, updates)
		if errors.Is(err, repositories.ErrVersionConflict) {
			d.logger.Debug("merge lost version race, retrying",
				zap.String("candidate", survivor.ID.String()),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}

		for _, entry := range provenance {
			if err := d.repo.SetFieldProvenance(entry); err != nil {
				return nil, err
			}
		}
		return mergedFields, nil
	}

	return nil, ErrMergeConflict
}

// create registers a brand-new active record with provenance for every
// extracted field.
func (d *dedupEngine) create(incoming *IncomingResume, email, phone, nameKey string) (*MergeDecision, error) {
	candidate := d.buildCandidate(incoming, models.CandidateActive)
	candidate.NormalizedEmail = email
	candidate.NormalizedPhone = phone
	candidate.NameKey = nameKey

	if err := d.repo.Create(candidate); err != nil {
		return nil, err
	}

	doc := &models.ResumeDocument{
		ID:          uuid.New(),
		CandidateID: candidate.ID,
		FileURI:     incoming.FileURI,
		FileType:    incoming.FileType,
		TextHash:    incoming.ContentHash,
		RawText:     incoming.RawText,
		Source:      incoming.Source,
		CreatedAt:   time.Now(),
	}
	if err := d.repo.CreateResumeDocument(doc); err != nil {
		return nil, err
	}

	facts := incoming.Facts
	fields := map[string]string{
		"name":            facts.Name,
		"email":           facts.Email,
		"phone":           facts.Phone,
		"location":        facts.Location,
		"current_title":   facts.CurrentTitle,
		"current_company": facts.CurrentCompany,
	}
	if facts.YearsExperience != nil {
		fields["years_experience"] = fmt.Sprintf("%g", *facts.YearsExperience)
	}
	if len(facts.Skills) > 0 {
		fields["skills"] = strings.Join(facts.Skills, ", ")
	}
	for field, value := range fields {
		if value == "" {
			continue
		}
		entry := d.provenanceEntry(candidate.ID, field, value, doc.ID, incoming.RawText)
		if err := d.repo.SetFieldProvenance(entry); err != nil {
			return nil, err
		}
	}

	if err := d.auditRepo.Append("candidate", candidate.ID, "create", "", "dedup-engine"); err != nil {
		d.logger.Warn("failed to write create audit entry", zap.Error(err))
	}

	return &MergeDecision{
		CandidateID: candidate.ID,
		SurvivorID:  candidate.ID,
		Created:     true,
	}, nil
}

// ResolveSurvivor implements DedupEngine. Lineage is an append-only edge
// log; the current survivor is computed by walking to the fixed point, not
// read from a cached pointer.
func (d *dedupEngine) ResolveSurvivor(id uuid.UUID) (*models.Candidate, error) {
	current, err := d.repo.FindByID(id)
	if err != nil {
		return nil, err
	}

	for hop := 0; hop < maxLineageHops; hop++ {
		if current.Status != models.CandidateMerged {
			return current, nil
		}
		edge, err := d.repo.NextLineageHop(current.ID)
		if errors.Is(err, repositories.ErrNotFound) {
			if current.MergedInto == nil {
				return current, nil
			}
			current, err = d.repo.FindByID(*current.MergedInto)
			if err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		current, err = d.repo.FindByID(edge.ToID)
		if err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("lineage walk from %s exceeded %d hops", id, maxLineageHops)
}

func (d *dedupEngine) buildCandidate(incoming *IncomingResume, status models.CandidateStatus) *models.Candidate {
	facts := incoming.Facts
	now := time.Now()
	return &models.Candidate{
		ID:              uuid.New(),
		Name:            facts.Name,
		Email:           facts.Email,
		Phone:           facts.Phone,
		NormalizedEmail: NormalizeEmail(facts.Email),
		NormalizedPhone: NormalizePhone(facts.Phone),
		NameKey:         NameKey(facts.Name),
		Location:        facts.Location,
		YearsExperience: facts.YearsExperience,
		CurrentTitle:    facts.CurrentTitle,
		CurrentCompany:  facts.CurrentCompany,
		Skills:          facts.Skills,
		RawText:         incoming.RawText,
		ContentHash:     incoming.ContentHash,
		Source:          incoming.Source,
		Status:          status,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (d *dedupEngine) provenanceEntry(candidateID uuid.UUID, field, value string, sourceDocID uuid.UUID, rawText string) *models.Provenance {
	return &models.Provenance{
		ID:          uuid.New(),
		CandidateID: candidateID,
		Field:       field,
		Value:       value,
		SourceID:    sourceDocID,
		Excerpt:     Excerpt(rawText, value, defaultExcerptWindow),
		Current:     true,
		IngestedAt:  time.Now(),
	}
}

// ContentHash returns the hex SHA-256 of the trimmed résumé text, the
// idempotency key for ingestion.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// NormalizeEmail lowercases and trims an email for exact-key matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips everything but digits so formatting differences
// don't defeat exact-key matching.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NameKey collapses a name to a case- and whitespace-insensitive key. Names
// alone are weak identity evidence; the key is weighted far below email and
// phone.
func NameKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func skillJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, s := range a {
		setA[strings.ToLower(s)] = true
	}
	inter := 0
	setB := make(map[string]bool, len(b))
	for _, s := range b {
		key := strings.ToLower(s)
		if setB[key] {
			continue
		}
		setB[key] = true
		if setA[key] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func locationMatch(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return 1
	}
	return 0
}

func unionSkills(existing, added []string) []string {
	out := make([]string, 0, len(existing)+len(added))
	seen := make(map[string]bool, len(existing)+len(added))
	for _, s := range existing {
		key := strings.ToLower(s)
		if !seen[key] {
			seen[key] = true
			out = append(out, s)
		}
	}
	for _, s := range added {
		key := strings.ToLower(s)
		if !seen[key] {
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}
