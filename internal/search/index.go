// Package search mirrors intake records into Elasticsearch for staff-side
// lookup. The PostgreSQL row stays authoritative; the index is best-effort
// and rebuilt on every write.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"intake-service/internal/common/logger"
	"intake-service/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ErrSearchFailed = errors.New("SEARCH_QUERY_FAILED")

// Query narrows a staff search.
type Query struct {
	Keywords string
	Status   string
	Pathway  string
	From     int
	Size     int
}

// Result is one page of search hits.
type Result struct {
	Records   []*models.IntakeRecord `json:"records"`
	TotalHits int                    `json:"totalHits"`
}

type Index struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndex(client *elasticsearch.Client, index string, log logger.Logger) *Index {
	return &Index{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "intake-search"}),
	}
}

// IndexIntake upserts the record document keyed by record id.
func (i *Index) IndexIntake(ctx context.Context, rec *models.IntakeRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal intake document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: rec.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("index intake: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index intake: %s", res.String())
	}
	return nil
}

// SearchIntakes runs a staff search: keyword matching over user, program,
// and employer fields, with optional status and pathway filters.
func (i *Index) SearchIntakes(ctx context.Context, q Query) (*Result, error) {
	if q.Size <= 0 {
		q.Size = 20
	}

	body, err := json.Marshal(buildSearchQuery(q))
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  strings.NewReader(string(body)),
		From:  &q.From,
		Size:  &q.Size,
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, res.String())
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchFailed, err)
	}

	result := &Result{TotalHits: parsed.Hits.Total.Value}
	for _, hit := range parsed.Hits.Hits {
		var rec models.IntakeRecord
		if err := json.Unmarshal(hit.Source, &rec); err != nil {
			i.logger.Warn("skipping malformed search hit", map[string]interface{}{"error": err.Error()})
			continue
		}
		result.Records = append(result.Records, &rec)
	}
	return result, nil
}

func buildSearchQuery(q Query) map[string]interface{} {
	mustClauses := []interface{}{}
	filterClauses := []interface{}{}

	if q.Keywords != "" {
		mustClauses = append(mustClauses, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q.Keywords,
				"fields": []string{"userId^3", "programId^2", "employerName", "workforceAgency"},
				"type":   "best_fields",
			},
		})
	}
	if q.Status != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"status": q.Status},
		})
	}
	if q.Pathway != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"fundingPathway": q.Pathway},
		})
	}

	boolQuery := map[string]interface{}{}
	if len(mustClauses) > 0 {
		boolQuery["must"] = mustClauses
	}
	if len(filterClauses) > 0 {
		boolQuery["filter"] = filterClauses
	}
	if len(boolQuery) == 0 {
		return map[string]interface{}{
			"query": map[string]interface{}{"match_all": map[string]interface{}{}},
			"sort":  []interface{}{map[string]interface{}{"updatedAt": "desc"}},
		}
	}

	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"sort":  []interface{}{map[string]interface{}{"updatedAt": "desc"}},
	}
}
