package main

import (
	"context"

	"go.uber.org/zap"

	"alfredoptarigan/talent-match/internal/config"
	"alfredoptarigan/talent-match/internal/models"
	"alfredoptarigan/talent-match/internal/repositories"
	"alfredoptarigan/talent-match/internal/services"
)

const pageSize = 100

// Rebuilds the vector index from the candidate store. Run after a collection
// wipe or an embedding model change; safe to re-run, upserts are idempotent.
func main() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()

	db, err := config.InitDatabase(cfg)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	candidateRepo := repositories.NewCandidateRepository(db)

	geminiService, err := services.NewGeminiService(cfg.Gemini.APIKey, cfg.Worker.RetryInitialDelay, log)
	if err != nil {
		log.Fatal("failed to initialize Gemini", zap.Error(err))
	}

	vectorIndex, err := services.NewQdrantIndex(
		cfg.Qdrant.URL,
		cfg.Qdrant.APIKey,
		cfg.Qdrant.Collection,
		log,
	)
	if err != nil {
		log.Fatal("failed to initialize Qdrant", zap.Error(err))
	}
	if err := vectorIndex.InitCollection(); err != nil {
		log.Fatal("failed to initialize Qdrant collection", zap.Error(err))
	}

	ctx := context.Background()
	indexed, failed := 0, 0

	for offset := 0; ; offset += pageSize {
		candidates, err := candidateRepo.List(offset, pageSize, models.CandidateActive)
		if err != nil {
			log.Fatal("failed to list candidates", zap.Error(err))
		}
		if len(candidates) == 0 {
			break
		}

		for _, candidate := range candidates {
			embedding, err := geminiService.GenerateEmbedding(ctx, candidate.RawText)
			if err != nil {
				log.Warn("failed to embed candidate",
					zap.String("candidate_id", candidate.ID.String()), zap.Error(err))
				failed++
				continue
			}
			if err := vectorIndex.UpsertCandidate(ctx, candidate.ID, string(candidate.Status), embedding); err != nil {
				log.Warn("failed to upsert candidate",
					zap.String("candidate_id", candidate.ID.String()), zap.Error(err))
				failed++
				continue
			}
			indexed++
		}
	}

	log.Info("reindex complete", zap.Int("indexed", indexed), zap.Int("failed", failed))
}
