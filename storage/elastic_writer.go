package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"realestate-ingest/models"
	"realestate-ingest/utils"
)

const (
	elasticBulkSize = 500

	facilityMapping = `{
  "mappings": {
    "properties": {
      "id":                {"type": "keyword"},
      "name":              {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "address":           {"type": "text"},
      "road_address":      {"type": "text"},
      "category":          {"type": "keyword"},
      "sub_category":      {"type": "keyword"},
      "business_status":   {"type": "keyword"},
      "location":          {"type": "geo_point"},
      "coordinate_source": {"type": "keyword"},
      "geohash":           {"type": "keyword"},
      "sources":           {"type": "keyword"}
    }
  }
}`
)

// ElasticWriter indexes located facilities into Elasticsearch so they can be
// searched with geo_distance queries outside this tool.
type ElasticWriter struct {
	client *elasticsearch.Client
	index  string
	logger *utils.Logger
}

// NewElasticWriter creates a client for the given node URL. The index is
// created on first write if it does not exist.
func NewElasticWriter(url, index string, logger *utils.Logger) (*ElasticWriter, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}
	return &ElasticWriter{client: client, index: index, logger: logger}, nil
}

// EnsureIndex creates the facility index with its geo_point mapping.
// An existing index is left untouched.
func (es *ElasticWriter) EnsureIndex(ctx context.Context) error {
	res, err := es.client.Indices.Exists([]string{es.index}, es.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch: check index existence: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = es.client.Indices.Create(
		es.index,
		es.client.Indices.Create.WithBody(strings.NewReader(facilityMapping)),
		es.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch: create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("elasticsearch: create index: %s", string(body))
	}
	return nil
}

type bulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

type bulkResponse struct {
	Errors bool                  `json:"errors"`
	Items  []map[string]bulkItem `json:"items"`
}

// WriteFacilities bulk-indexes facilities by id. Per-item failures reported
// by the bulk API are counted and logged; a failed request fails its chunk.
func (es *ElasticWriter) WriteFacilities(ctx context.Context, facilities []*models.Facility) (WriteResult, error) {
	var res WriteResult
	if len(facilities) == 0 {
		return res, nil
	}
	if err := es.EnsureIndex(ctx); err != nil {
		return res, err
	}

	for i := 0; i < len(facilities); i += elasticBulkSize {
		end := i + elasticBulkSize
		if end > len(facilities) {
			end = len(facilities)
		}
		chunk, err := es.bulk(ctx, facilities[i:end])
		if err != nil {
			es.logger.Error("[elasticsearch] Bulk request failed: %v", err)
			res.Failed += end - i
			continue
		}
		res.Add(chunk)
	}
	return res, ctx.Err()
}

func (es *ElasticWriter) bulk(ctx context.Context, facilities []*models.Facility) (WriteResult, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, f := range facilities {
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_index": es.index, "_id": f.ID.String()},
		}
		if err := enc.Encode(meta); err != nil {
			return WriteResult{}, fmt.Errorf("encode bulk meta: %w", err)
		}
		if err := enc.Encode(toFacilityDocument(f)); err != nil {
			return WriteResult{}, fmt.Errorf("encode facility: %w", err)
		}
	}

	resp, err := es.client.Bulk(bytes.NewReader(buf.Bytes()),
		es.client.Bulk.WithContext(ctx),
		es.client.Bulk.WithIndex(es.index),
	)
	if err != nil {
		return WriteResult{}, fmt.Errorf("bulk index: %w", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		body, _ := io.ReadAll(resp.Body)
		return WriteResult{}, fmt.Errorf("bulk index: status %d, body: %s", resp.StatusCode, string(body))
	}

	var parsed bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return WriteResult{}, fmt.Errorf("decode bulk response: %w", err)
	}

	var res WriteResult
	for _, item := range parsed.Items {
		for _, r := range item {
			if r.Error != nil || r.Status >= 300 {
				reason := ""
				if r.Error != nil {
					reason = r.Error.Type + ": " + r.Error.Reason
				}
				es.logger.Error("[elasticsearch] Failed to index %s: %s", r.ID, reason)
				res.Failed++
				continue
			}
			res.Written++
		}
	}
	return res, nil
}

// Close is a no-op; the HTTP transport holds no resources that need releasing.
func (es *ElasticWriter) Close() error { return nil }
