package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/hospital_desk/internal/models"
	"github.com/Skotchmaster/hospital_desk/internal/repo"
)

const patientMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "long"},
      "firstName":   {"type": "keyword"},
      "lastName":    {"type": "keyword"},
      "tcId":        {"type": "keyword"},
      "phoneNumber": {"type": "keyword"},
      "department":  {"type": "keyword"},
      "complaint":   {"type": "text"},
      "createdAt":   {"type": "date"},
      "createdBy":   {"type": "long"}
    }
  }
}`

type ESConfig struct {
	URL      string
	Username string
	Password string
	Index    string
}

const reindexBatch = 500

// ElasticIndex is a derived copy of the patients table. Hits are re-read from
// store when one is set, so the table stays authoritative.
type ElasticIndex struct {
	client *elasticsearch.Client
	index  string
	store  Store
}

// NewElastic connects to Elasticsearch and checks the cluster answers. store may be nil.
func NewElastic(ctx context.Context, cfg ESConfig, store Store) (*ElasticIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: new client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError("info", res.Status(), res.Body)
	}

	return &ElasticIndex{client: client, index: cfg.Index, store: store}, nil
}

// EnsureIndex creates the patients index with its mapping if it is missing.
func (e *ElasticIndex) EnsureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.index}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch: index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = e.client.Indices.Create(e.index,
		e.client.Indices.Create.WithContext(ctx),
		e.client.Indices.Create.WithBody(strings.NewReader(patientMapping)),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch: create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("create index", res.Status(), res.Body)
	}
	return nil
}

func (e *ElasticIndex) Index(ctx context.Context, p *models.Patient) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	res, err := e.client.Index(e.index, bytes.NewReader(body),
		e.client.Index.WithContext(ctx),
		e.client.Index.WithDocumentID(strconv.FormatUint(uint64(p.ID), 10)),
		e.client.Index.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch: index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index", res.Status(), res.Body)
	}
	return nil
}

func (e *ElasticIndex) Delete(ctx context.Context, id uint) error {
	res, err := e.client.Delete(e.index, strconv.FormatUint(uint64(id), 10),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch: delete: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return responseError("delete", res.Status(), res.Body)
	}
	return nil
}

func (e *ElasticIndex) Search(ctx context.Context, q Query) ([]models.Patient, error) {
	q = q.normalized()
	if q.Text == "" {
		return []models.Patient{}, nil
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildQuery(q)); err != nil {
		return nil, fmt.Errorf("elasticsearch: encode query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError("search", res.Status(), res.Body)
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source models.Patient `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("elasticsearch: decode: %w", err)
	}

	out := make([]models.Patient, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		out[i] = hit.Source
	}
	if e.store == nil {
		return out, nil
	}
	return e.current(ctx, out, q.CreatedBy)
}

// current swaps hits for the stored rows, keeping the hit order. Hits whose
// row is gone or no longer in scope are dropped.
func (e *ElasticIndex) current(ctx context.Context, hits []models.Patient, createdBy *uint) ([]models.Patient, error) {
	ids := make([]uint, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	rows, err := e.store.PatientsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: load hits: %w", err)
	}
	byID := make(map[uint]models.Patient, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}

	out := make([]models.Patient, 0, len(hits))
	for _, h := range hits {
		p, ok := byID[h.ID]
		if !ok || (createdBy != nil && p.CreatedBy != *createdBy) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Reindex writes every stored patient into the index and returns how many
// were sent. Documents of deleted patients are left for Search to drop.
func (e *ElasticIndex) Reindex(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	all, err := e.store.ListPatients(ctx, repo.PatientScope{})
	if err != nil {
		return 0, fmt.Errorf("elasticsearch: list patients: %w", err)
	}
	for start := 0; start < len(all); start += reindexBatch {
		if err := e.bulk(ctx, all[start:min(start+reindexBatch, len(all))]); err != nil {
			return start, err
		}
	}
	return len(all), nil
}

func (e *ElasticIndex) bulk(ctx context.Context, batch []models.Patient) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range batch {
		meta := map[string]any{"index": map[string]any{"_id": strconv.FormatUint(uint64(batch[i].ID), 10)}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(&batch[i]); err != nil {
			return err
		}
	}

	res, err := e.client.Bulk(&buf,
		e.client.Bulk.WithContext(ctx),
		e.client.Bulk.WithIndex(e.index),
		e.client.Bulk.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch: bulk: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("bulk", res.Status(), res.Body)
	}

	var r struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return fmt.Errorf("elasticsearch: decode bulk: %w", err)
	}
	if r.Errors {
		return fmt.Errorf("elasticsearch: bulk: some of %d documents were rejected", len(batch))
	}
	return nil
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

// buildQuery matches either name by substring and tc id by prefix.
func buildQuery(q Query) map[string]any {
	contains := "*" + wildcardEscaper.Replace(q.Text) + "*"

	boolQuery := map[string]any{
		"should": []any{
			map[string]any{"wildcard": map[string]any{"firstName": map[string]any{"value": contains, "case_insensitive": true}}},
			map[string]any{"wildcard": map[string]any{"lastName": map[string]any{"value": contains, "case_insensitive": true}}},
			map[string]any{"prefix": map[string]any{"tcId": map[string]any{"value": q.Text}}},
		},
		"minimum_should_match": 1,
	}
	if q.CreatedBy != nil {
		boolQuery["filter"] = []any{
			map[string]any{"term": map[string]any{"createdBy": *q.CreatedBy}},
		}
	}

	return map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"sort": []any{
			map[string]any{"createdAt": map[string]any{"order": "desc"}},
			map[string]any{"id": map[string]any{"order": "desc"}},
		},
		"size": q.Limit,
	}
}

func responseError(op, status string, body io.Reader) error {
	msg, _ := io.ReadAll(io.LimitReader(body, 1024))
	return fmt.Errorf("elasticsearch: %s: %s: %s", op, status, bytes.TrimSpace(msg))
}
