// Package bigquery is a docstore.Store backed by BigQuery. Every collection
// is a table in one dataset; document fields live in a JSON column and
// conditional writes are revision-guarded DML statements.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/financio/internal/docstore"
	"github.com/dvloznov/financio/internal/logger"
)

// Schema is the layout shared by every collection table.
var Schema = bigquery.Schema{
	{Name: "document_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "revision", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "fields", Type: bigquery.JSONFieldType},
	{Name: "created_ts", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "updated_ts", Type: bigquery.TimestampFieldType, Required: true},
}

// documentRow is a collection table row as read back by queries.
type documentRow struct {
	DocumentID string    `bigquery:"document_id"`
	Revision   int64     `bigquery:"revision"`
	Fields     string    `bigquery:"fields"` // TO_JSON_STRING(fields)
	CreatedTS  time.Time `bigquery:"created_ts"`
	UpdatedTS  time.Time `bigquery:"updated_ts"`
}

// Store implements docstore.Store on BigQuery.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	now       func() time.Time
}

var _ docstore.Store = (*Store)(nil)

// NewStore creates a Store with its own client.
func NewStore(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewStoreWithClient(client, projectID, datasetID), nil
}

// NewStoreWithClient creates a Store over an existing client.
func NewStoreWithClient(client *bigquery.Client, projectID, datasetID string) *Store {
	return &Store{client: client, projectID: projectID, datasetID: datasetID, now: time.Now}
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// EnsureCollections creates the dataset and a table per collection,
// leaving existing ones untouched.
func (s *Store) EnsureCollections(ctx context.Context, collections ...string) error {
	log := logger.FromContext(ctx)

	dataset := s.client.DatasetInProject(s.projectID, s.datasetID)
	if err := dataset.Create(ctx, &bigquery.DatasetMetadata{}); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("EnsureCollections: create dataset %s: %w", s.datasetID, err)
	}

	for _, name := range collections {
		if err := docstore.ValidateName(name); err != nil {
			return fmt.Errorf("EnsureCollections: %w", err)
		}
		err := dataset.Table(name).Create(ctx, &bigquery.TableMetadata{
			Schema:     Schema,
			Clustering: &bigquery.Clustering{Fields: []string{"document_id"}},
		})
		switch {
		case err == nil:
			log.Info().Str("table", name).Msg("Created collection table")
		case isAlreadyExists(err):
			log.Debug().Str("table", name).Msg("Collection table already exists")
		default:
			return fmt.Errorf("EnsureCollections: create table %s: %w", name, err)
		}
	}
	return nil
}

// GetDocument implements docstore.Store.
func (s *Store) GetDocument(ctx context.Context, collection, id string) (docstore.Document, error) {
	table, err := s.table(collection)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("GetDocument: %w", err)
	}

	docs, err := s.read(ctx, selectSQL(table)+` WHERE document_id = @id LIMIT 1`,
		[]bigquery.QueryParameter{{Name: "id", Value: id}})
	if err != nil {
		return docstore.Document{}, fmt.Errorf("GetDocument: %s/%s: %w", collection, id, err)
	}
	if len(docs) == 0 {
		return docstore.Document{}, fmt.Errorf("GetDocument: %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return docs[0], nil
}

// CreateDocument implements docstore.Store.
func (s *Store) CreateDocument(ctx context.Context, collection, id string, fields map[string]any) (docstore.Document, error) {
	table, err := s.table(collection)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("CreateDocument: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	data, err := docstore.EncodeFields(fields)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("CreateDocument: %w", err)
	}

	affected, err := s.exec(ctx, `
		INSERT INTO `+table+` (document_id, revision, fields, created_ts, updated_ts)
		SELECT @id, 1, PARSE_JSON(@fields), @now, @now
		FROM UNNEST([1])
		WHERE NOT EXISTS (SELECT 1 FROM `+table+` WHERE document_id = @id)`,
		[]bigquery.QueryParameter{
			{Name: "id", Value: id},
			{Name: "fields", Value: string(data)},
			{Name: "now", Value: s.now().UTC()},
		})
	if err != nil {
		return docstore.Document{}, fmt.Errorf("CreateDocument: insert %s/%s: %w", collection, id, err)
	}
	if affected == 0 {
		return docstore.Document{}, fmt.Errorf("CreateDocument: %s/%s: %w", collection, id, docstore.ErrAlreadyExists)
	}
	return s.GetDocument(ctx, collection, id)
}

// UpdateDocument implements docstore.Store. BigQuery has no row locks, so
// the merged fields are written with a DML statement that only matches the
// revision that was read.
func (s *Store) UpdateDocument(ctx context.Context, collection, id string, fields map[string]any, opts docstore.UpdateOptions) (docstore.Document, error) {
	table, err := s.table(collection)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: %w", err)
	}

	current, err := s.GetDocument(ctx, collection, id)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: %w", err)
	}
	if opts.IfRevision != nil && *opts.IfRevision != current.Revision {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: %s/%s at revision %d, expected %d: %w",
			collection, id, current.Revision, *opts.IfRevision, docstore.ErrConflict)
	}

	data, err := docstore.EncodeFields(docstore.MergeFields(current.Fields, fields))
	if err != nil {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: %w", err)
	}

	affected, err := s.exec(ctx, `
		UPDATE `+table+`
		SET fields = PARSE_JSON(@fields), revision = revision + 1, updated_ts = @now
		WHERE document_id = @id AND revision = @revision`,
		[]bigquery.QueryParameter{
			{Name: "id", Value: id},
			{Name: "fields", Value: string(data)},
			{Name: "now", Value: s.now().UTC()},
			{Name: "revision", Value: current.Revision},
		})
	if isConcurrentUpdate(err) {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: %s/%s: %w: %v", collection, id, docstore.ErrConflict, err)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: write %s/%s: %w", collection, id, err)
	}
	if affected == 0 {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: %s/%s: %w", collection, id, docstore.ErrConflict)
	}
	return s.GetDocument(ctx, collection, id)
}

// ListDocuments implements docstore.Store.
func (s *Store) ListDocuments(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	table, err := s.table(collection)
	if err != nil {
		return nil, fmt.Errorf("ListDocuments: %w", err)
	}
	query, params, err := BuildListQuery(table, q)
	if err != nil {
		return nil, fmt.Errorf("ListDocuments: %w", err)
	}

	docs, err := s.read(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("ListDocuments: %s: %w", collection, err)
	}
	return docs, nil
}

// BuildListQuery renders q against table as a parameterized query.
// Filters pick a typed comparison from the Go type of the filter value.
// Ordering compares the field's JSON scalar as a string, which is correct
// for the fixed-width timestamps the jobs order by.
func BuildListQuery(table string, q docstore.Query) (string, []bigquery.QueryParameter, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var (
		b      strings.Builder
		params []bigquery.QueryParameter
	)
	b.WriteString(selectSQL(table))

	for i, f := range q.Filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		op := "="
		if f.Op == docstore.OpGreaterThanEqual {
			op = ">="
		}
		name := fmt.Sprintf("p%d", i)
		value := docstore.SQLValue(f.Value)
		fmt.Fprintf(&b, "%s %s @%s", fieldExpr(f.Field, value), op, name)
		params = append(params, bigquery.QueryParameter{Name: name, Value: value})
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY JSON_VALUE(fields, '$.%s') %s, document_id ASC", q.OrderBy, dir)
	} else {
		b.WriteString(" ORDER BY created_ts ASC, document_id ASC")
	}

	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), params, nil
}

func fieldExpr(field string, value any) string {
	switch value.(type) {
	case bool:
		return fmt.Sprintf("LAX_BOOL(fields.%s)", field)
	case int, int32, int64, float32, float64:
		return fmt.Sprintf("LAX_FLOAT64(fields.%s)", field)
	default:
		return fmt.Sprintf("JSON_VALUE(fields, '$.%s')", field)
	}
}

func selectSQL(table string) string {
	return `SELECT document_id, revision, TO_JSON_STRING(fields) AS fields, created_ts, updated_ts FROM ` + table
}

// table returns the quoted, fully qualified table for a collection.
func (s *Store) table(collection string) (string, error) {
	if err := docstore.ValidateName(collection); err != nil {
		return "", err
	}
	return TableRef(s.projectID, s.datasetID, collection), nil
}

// TableRef formats a fully qualified, backtick-quoted table name.
func TableRef(projectID, datasetID, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", projectID, datasetID, table)
}

func (s *Store) read(ctx context.Context, sql string, params []bigquery.QueryParameter) ([]docstore.Document, error) {
	q := s.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}

	var docs []docstore.Document
	for {
		var row documentRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		doc, err := row.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// exec runs a DML statement and returns the number of rows it touched.
func (s *Store) exec(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error) {
	q := s.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics)
	if !ok {
		return 0, errors.New("job returned no query statistics")
	}
	return stats.NumDMLAffectedRows, nil
}

func (r documentRow) document() (docstore.Document, error) {
	fields := map[string]any{}
	if r.Fields != "" && r.Fields != "null" {
		var err error
		if fields, err = docstore.DecodeFields([]byte(r.Fields)); err != nil {
			return docstore.Document{}, fmt.Errorf("document %s: %w", r.DocumentID, err)
		}
	}
	return docstore.Document{
		ID:        r.DocumentID,
		Revision:  r.Revision,
		CreatedAt: r.CreatedTS.UTC(),
		UpdatedAt: r.UpdatedTS.UTC(),
		Fields:    fields,
	}, nil
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

// isConcurrentUpdate reports BigQuery's serialization failure for DML
// racing on the same table.
func isConcurrentUpdate(err error) bool {
	return err != nil && strings.Contains(err.Error(), "concurrent update")
}
