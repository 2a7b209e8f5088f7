package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// VectorIndex is the vector similarity capability over the candidate pool.
// Semantic recall and the dedup embedding fallback both read it; the
// ingestion pipeline and the reindex tool write it.
type VectorIndex interface {
	InitCollection() error
	UpsertCandidate(ctx context.Context, candidateID uuid.UUID, status string, embedding []float32) error
	SearchSimilar(ctx context.Context, queryEmbedding []float32, limit int) ([]VectorHit, error)
	DeleteCandidate(ctx context.Context, candidateID uuid.UUID) error
}

type VectorHit struct {
	CandidateID uuid.UUID
	Score       float32
}

type qdrantIndex struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
	logger         *zap.Logger
}

func NewQdrantIndex(urlStr, apiKey, collectionName string, logger *zap.Logger) (VectorIndex, error) {
	// Parse URL to extract host, port, and TLS usage
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsed.Hostname()
	useTLS := parsed.Scheme == "https"

	// For gRPC client, use port 6334 by default (gRPC port)
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &qdrantIndex{
		client:         client,
		collectionName: collectionName,
		vectorSize:     EmbeddingDim,
		logger:         logger,
	}, nil
}

// InitCollection implements VectorIndex.
func (q *qdrantIndex) InitCollection() error {
	ctx := context.Background()

	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if exists {
		q.logger.Info("qdrant collection already exists", zap.String("collection", q.collectionName))
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	q.logger.Info("qdrant collection created", zap.String("collection", q.collectionName))
	return nil
}

// UpsertCandidate implements VectorIndex. One point per candidate, keyed by
// the candidate's UUID so re-indexing overwrites instead of duplicating.
func (q *qdrantIndex) UpsertCandidate(ctx context.Context, candidateID uuid.UUID, status string, embedding []float32) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(candidateID.String()),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: qdrant.NewValueMap(map[string]interface{}{
			"candidate_id": candidateID.String(),
			"status":       status,
		}),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}

	return nil
}

// SearchSimilar implements VectorIndex. Only active candidates are
// returned; merged and deleted records never surface from recall.
func (q *qdrantIndex) SearchSimilar(ctx context.Context, queryEmbedding []float32, limit int) ([]VectorHit, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("status", "active"),
		},
	}

	searchResult, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var hits []VectorHit
	for _, point := range searchResult {
		idValue, ok := point.Payload["candidate_id"]
		if !ok {
			continue
		}
		strValue, ok := idValue.GetKind().(*qdrant.Value_StringValue)
		if !ok {
			continue
		}
		candidateID, err := uuid.Parse(strValue.StringValue)
		if err != nil {
			q.logger.Warn("skipping point with malformed candidate_id",
				zap.String("candidate_id", strValue.StringValue))
			continue
		}

		hits = append(hits, VectorHit{
			CandidateID: candidateID,
			Score:       point.Score,
		})
	}

	return hits, nil
}

// DeleteCandidate implements VectorIndex.
func (q *qdrantIndex) DeleteCandidate(ctx context.Context, candidateID uuid.UUID) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{qdrant.NewID(candidateID.String())},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}

	return nil
}
