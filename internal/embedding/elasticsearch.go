// Package embedding looks schema objects up by meaning in an Elasticsearch
// index that an upstream job fills with table and column descriptions.
package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/models"
)

const (
	DefaultIndex      = "schema_embeddings"
	DefaultMaxResults = 10
)

var ErrSearchFailed = errors.New("semantic search failed")

type Config struct {
	Index      string
	MaxResults int
	// MinScore drops hits whose normalised similarity falls below it.
	MinScore float64
}

// ElasticsearchStore implements the matcher's EmbeddingStorage.
type ElasticsearchStore struct {
	client *elasticsearch.Client
	cfg    Config
	log    logger.Logger
}

func NewElasticsearchStore(client *elasticsearch.Client, cfg Config, log logger.Logger) (*ElasticsearchStore, error) {
	if client == nil {
		return nil, errors.New("elasticsearch client is required")
	}
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	if cfg.MaxResults <= 0 || cfg.MaxResults > 100 {
		cfg.MaxResults = DefaultMaxResults
	}
	return &ElasticsearchStore{
		client: client,
		cfg:    cfg,
		log:    logger.ForComponent(log, "embedding"),
	}, nil
}

// document is the indexed shape of one schema object.
type document struct {
	EntityName   string                 `json:"entity_name"`
	EntityType   string                 `json:"entity_type"`
	Content      string                 `json:"content"`
	SemanticTags []string               `json:"semantic_tags"`
	Metadata     map[string]interface{} `json:"metadata"`
}

type searchResponse struct {
	Hits struct {
		MaxScore float64 `json:"max_score"`
		Hits     []struct {
			Score  float64  `json:"_score"`
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// BuildQuery returns the search body for text.
func BuildQuery(text string, size int) map[string]interface{} {
	return map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     text,
				"fields":    []string{"entity_name^3", "semantic_tags^2", "content"},
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		},
	}
}

// SearchSimilarEntities returns hits ordered by relevance. Scores are divided
// by the best score of the response so they fall in [0,1].
func (s *ElasticsearchStore) SearchSimilarEntities(ctx context.Context, text string) ([]models.SearchResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []models.SearchResult{}, nil
	}

	body, err := json.Marshal(BuildQuery(text, s.cfg.MaxResults))
	if err != nil {
		return nil, fmt.Errorf("%w: encode query: %v", ErrSearchFailed, err)
	}

	req := esapi.SearchRequest{
		Index: []string{s.cfg.Index},
		Body:  strings.NewReader(string(body)),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == 404 {
			return nil, fmt.Errorf("%w: index %s not found", ErrSearchFailed, s.cfg.Index)
		}
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchFailed, err)
	}

	results := make([]models.SearchResult, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		score := 0.0
		if parsed.Hits.MaxScore > 0 {
			score = hit.Score / parsed.Hits.MaxScore
		}
		if score < s.cfg.MinScore || hit.Source.EntityName == "" {
			continue
		}
		results = append(results, models.SearchResult{
			EntityName:      hit.Source.EntityName,
			EntityType:      hit.Source.EntityType,
			SimilarityScore: score,
			Content:         hit.Source.Content,
			Metadata:        hit.Source.Metadata,
			SemanticTags:    hit.Source.SemanticTags,
		})
	}

	s.log.Debug("Semantic search finished", map[string]interface{}{
		"text":    text,
		"hits":    len(parsed.Hits.Hits),
		"results": len(results),
	})
	return results, nil
}
