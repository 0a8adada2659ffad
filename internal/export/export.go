// Package export streams a table, optionally filtered by a search term, to
// object storage as JSON lines and hands back a presigned download link.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/tablegate/internal/database"
	"github.com/koustreak/tablegate/internal/errs"
	"github.com/koustreak/tablegate/internal/filestore"
	"github.com/koustreak/tablegate/internal/logger"
	"github.com/koustreak/tablegate/internal/schema"
)

// ContentType of every export object.
const ContentType = "application/x-ndjson"

// Result describes a finished export.
type Result struct {
	Key    string `json:"key"`
	Bucket string `json:"bucket"`
	Size   int64  `json:"size"`
	Rows   int64  `json:"rows"`
	URL    string `json:"url"`
}

// Object is a stored export with a fresh download link.
type Object struct {
	filestore.ObjectInfo
	URL string `json:"url"`
}

// Exporter writes table snapshots into one bucket.
type Exporter struct {
	db     database.DB
	store  filestore.Store
	bucket string
	urlTTL time.Duration

	now   func() time.Time
	newID func() string
}

// New returns an Exporter writing to bucket on store. Download links stay
// valid for urlTTL.
func New(db database.DB, store filestore.Store, bucket string, urlTTL time.Duration) *Exporter {
	return &Exporter{
		db:     db,
		store:  store,
		bucket: bucket,
		urlTTL: urlTTL,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Export uploads every row of table matching search as one JSON object per
// line. Rows are streamed from the cursor straight into the upload.
func (e *Exporter) Export(ctx context.Context, table, search string) (*Result, error) {
	conn, err := e.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	d := e.db.Dialect()
	cols, err := schema.New(conn, d).ListColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	query, args, err := database.Select(table, d).Search(names, strings.TrimSpace(search)).Build()
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	key := e.objectKey(table)
	pr, pw := io.Pipe()

	type streamResult struct {
		rows int64
		err  error
	}
	done := make(chan streamResult, 1)
	go func() {
		n, err := writeLines(pw, rows)
		_ = pw.CloseWithError(err)
		done <- streamResult{rows: n, err: err}
	}()

	info, putErr := e.store.PutObject(ctx, e.bucket, key, pr, -1, ContentType)
	// Unblock the writer if the upload stopped reading early.
	_ = pr.CloseWithError(putErr)
	streamed := <-done

	if streamed.err != nil {
		return nil, classify(streamed.err)
	}
	if putErr != nil {
		return nil, putErr
	}

	url, err := e.store.PresignGetURL(ctx, e.bucket, key, e.urlTTL)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).InfoWith("table exported", map[string]interface{}{
		"table":  table,
		"key":    key,
		"rows":   streamed.rows,
		"bytes":  info.Size,
		"bucket": e.bucket,
	})

	return &Result{
		Key:    key,
		Bucket: e.bucket,
		Size:   info.Size,
		Rows:   streamed.rows,
		URL:    url,
	}, nil
}

// List returns the exports stored for table, oldest key first.
func (e *Exporter) List(ctx context.Context, table string) ([]filestore.ObjectInfo, error) {
	return e.store.ListObjects(ctx, e.bucket, filestore.ListOptions{Prefix: table + "/"})
}

// Stat returns the metadata of one export of table, named by the last
// segment of its key, along with a new presigned link.
func (e *Exporter) Stat(ctx context.Context, table, name string) (*Object, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "invalid export name %q", name)
	}
	key := table + "/" + name

	info, err := e.store.StatObject(ctx, e.bucket, key)
	if err != nil {
		return nil, err
	}
	url, err := e.store.PresignGetURL(ctx, e.bucket, key, e.urlTTL)
	if err != nil {
		return nil, err
	}
	return &Object{ObjectInfo: *info, URL: url}, nil
}

// Ping checks that the object store is reachable.
func (e *Exporter) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func (e *Exporter) objectKey(table string) string {
	stamp := e.now().UTC().Format("20060102T150405Z")
	return fmt.Sprintf("%s/%s-%s.jsonl", table, stamp, e.newID())
}

// writeLines encodes each row as a JSON object followed by a newline and
// closes rows when done.
func writeLines(w io.Writer, rows database.Rows) (int64, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	var n int64
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return n, err
		}
		rec := make(database.Record, len(columns))
		for i, col := range columns {
			rec[i] = database.Field{Column: col, Value: values[i]}
		}
		if err := enc.Encode(rec); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}

func classify(err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	return errs.Wrap(errs.ErrKindQueryFailed, "export stream failed", err)
}
