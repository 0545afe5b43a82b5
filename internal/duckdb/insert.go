package duckdb

import (
	"context"
	"fmt"
	"log"

	"github.com/tinytelemetry/dltscope/internal/model"
	"github.com/tinytelemetry/dltscope/internal/series"
	"github.com/tinytelemetry/dltscope/internal/store"
)

// Row is one record of the index.
type Row struct {
	AppID       string
	ContextID   string
	MessageType string
	Seq         int
	Timestamp   string
	TimeUnix    *float64
	Payload     string
}

func rowFor(appID, ctxID, messageType string, seq int, rec model.Node) (Row, error) {
	payload, err := rec.MarshalJSON()
	if err != nil {
		return Row{}, err
	}
	r := Row{AppID: appID, ContextID: ctxID, MessageType: messageType, Seq: seq, Payload: string(payload)}
	if ts, ok := rec.Get(model.TimestampField); ok {
		if s, ok := ts.Value().(string); ok {
			r.Timestamp = s
		}
	}
	if x, ok := series.TimeOf(rec); ok {
		r.TimeUnix = &x
	}
	return r, nil
}

// IndexFile replaces the index rows of fileID with the records of st.
// Records are inserted in transactions of BatchSize rows; a failing batch
// is retried row by row so one bad record does not drop its neighbours.
func (s *Store) IndexFile(fileID, path, fingerprint string, st *store.Store) (int, error) {
	if _, err := s.DeleteFile(fileID); err != nil {
		return 0, err
	}

	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	inserted := 0
	batch := make([]Row, 0, batchSize)
	flush := func() error {
		n, err := s.InsertRows(fileID, batch)
		inserted += n
		batch = batch[:0]
		return err
	}

	err := st.Walk(func(appID, ctxID, typ string, seq int, rec model.Node) error {
		r, err := rowFor(appID, ctxID, typ, seq, rec)
		if err != nil {
			log.Printf("duckdb: skipping %s record %d: %v", typ, seq, err)
			return nil
		}
		batch = append(batch, r)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err == nil && len(batch) > 0 {
		err = flush()
	}
	if err != nil {
		return inserted, err
	}

	ctx, cancel := s.queryCtx()
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO files (file_id, path, fingerprint, records) VALUES (?, ?, ?, ?)`,
		fileID, path, fingerprint, inserted); err != nil {
		return inserted, fmt.Errorf("duckdb: register file: %w", err)
	}
	return inserted, nil
}

// InsertRows appends rows for fileID. If the batch transaction fails it is
// retried row by row; rows that still fail are logged and dropped. It
// returns the number of rows stored.
func (s *Store) InsertRows(fileID string, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertBatchTx(ctx, fileID, rows); err == nil {
		return len(rows), nil
	}

	var failed int
	for _, r := range rows {
		if rerr := s.insertBatchTx(ctx, fileID, []Row{r}); rerr != nil {
			failed++
			log.Printf("duckdb: dropping record (type=%s seq=%d): %v", r.MessageType, r.Seq, rerr)
		}
	}
	if failed > 0 {
		log.Printf("duckdb: batch partially failed: %d/%d records dropped", failed, len(rows))
	}
	return len(rows) - failed, ctx.Err()
}

// insertBatchTx inserts rows in a single transaction.
func (s *Store) insertBatchTx(ctx context.Context, fileID string, rows []Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (file_id, app_id, context_id, message_type, seq, ts, ts_unix, payload) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		var tsUnix any
		if r.TimeUnix != nil {
			tsUnix = *r.TimeUnix
		}
		if _, err := stmt.ExecContext(ctx,
			fileID, r.AppID, r.ContextID, r.MessageType, r.Seq, r.Timestamp, tsUnix, r.Payload,
		); err != nil {
			return fmt.Errorf("record insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// DeleteFile removes every index row of fileID and returns the number of
// records deleted.
func (s *Store) DeleteFile(fileID string) (int64, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE file_id = ?`, fileID)
	if err != nil {
		return 0, fmt.Errorf("duckdb: delete records: %w", err)
	}
	n, _ := res.RowsAffected()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE file_id = ?`, fileID); err != nil {
		return n, fmt.Errorf("duckdb: delete file: %w", err)
	}
	return n, nil
}
