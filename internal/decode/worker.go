// Package decode runs one source file through conversion, row parsing and
// binary decoding into a sealed store.
package decode

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"

	"github.com/tinytelemetry/dltscope/internal/convert"
	"github.com/tinytelemetry/dltscope/internal/marker"
	"github.com/tinytelemetry/dltscope/internal/model"
	"github.com/tinytelemetry/dltscope/internal/rows"
	"github.com/tinytelemetry/dltscope/internal/schema"
	"github.com/tinytelemetry/dltscope/internal/store"
	"github.com/tinytelemetry/dltscope/internal/workspace"
)

var (
	// ErrConversionFailed means the external converter did not produce rows.
	ErrConversionFailed = errors.New("decode: conversion failed")
	// ErrAlreadyStarted is returned when a worker is run twice.
	ErrAlreadyStarted = errors.New("decode: worker already started")
)

// State is the lifecycle state of a Worker.
type State int32

const (
	Idle State = iota
	Converting
	ParsingRows
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Converting:
		return "converting"
	case ParsingRows:
		return "parsing_rows"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config configures a Worker.
type Config struct {
	Source    string
	Converter convert.Converter
	Resolver  schema.Resolver
	Protocol  marker.Protocol
	Workspace *workspace.Workspace
	// SniffSize is the number of leading bytes used to detect the
	// delimiter. Zero means model.DefaultSniffSize.
	SniffSize int
	// OnDiagnostic receives user-facing messages, such as the first
	// occurrence of each unresolved message type.
	OnDiagnostic func(msg string)
	Metrics      *Metrics
}

// Result is the outcome of one run. Store is nil when Err is set.
type Result struct {
	Source      string
	Store       *store.Store
	Stats       model.DecodeStats
	Fingerprint string
	Err         error
}

// Worker decodes one source file. It owns its store exclusively until the
// result is delivered.
type Worker struct {
	cfg     Config
	state   atomic.Int32
	started atomic.Bool
}

// New validates cfg and returns an idle worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("decode: source path is required")
	}
	if cfg.Converter == nil {
		return nil, fmt.Errorf("decode: converter is required")
	}
	if cfg.Workspace == nil {
		return nil, fmt.Errorf("decode: workspace is required")
	}
	if p := cfg.Protocol; p.Prefix == "" || (p.SingleToken() && p.MessageType == "") {
		cfg.Protocol = marker.Default()
	}
	if cfg.SniffSize <= 0 {
		cfg.SniffSize = model.DefaultSniffSize
	}
	return &Worker{cfg: cfg}, nil
}

// State returns the current state.
func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

// Start runs the worker on its own goroutine. The returned channel
// receives exactly one Result and is then closed.
func (w *Worker) Start(ctx context.Context) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		ch <- w.Run(ctx)
	}()
	return ch
}

// Run decodes the source file. Bad rows are counted and skipped; only a
// failure to convert or open the file fails the run. ctx bounds the
// converter subprocess.
func (w *Worker) Run(ctx context.Context) Result {
	res := Result{Source: w.cfg.Source}
	if !w.started.CompareAndSwap(false, true) {
		res.Err = ErrAlreadyStarted
		return res
	}

	start := time.Now()
	st, stats, fp, err := w.run(ctx)
	res.Stats = stats
	res.Fingerprint = fp
	if err != nil {
		w.setState(Failed)
		w.cfg.Metrics.run(Failed, time.Since(start))
		log.Printf("decode: %s failed: %v", filepath.Base(w.cfg.Source), err)
		res.Err = err
		return res
	}

	st.Seal()
	w.setState(Finished)
	w.cfg.Metrics.run(Finished, time.Since(start))
	log.Printf("decode: %s finished: %d rows, %d decoded, %d untagged, %d unresolved, %d failed in %s",
		filepath.Base(w.cfg.Source), stats.Rows, stats.Decoded, stats.Untagged, stats.Unresolved,
		stats.Unparsable+stats.Malformed+stats.Failed, time.Since(start).Round(time.Millisecond))
	res.Store = st
	return res
}

func (w *Worker) run(ctx context.Context) (*store.Store, model.DecodeStats, string, error) {
	var stats model.DecodeStats

	w.setState(Converting)
	fp, err := Fingerprint(w.cfg.Source)
	if err != nil {
		return nil, stats, "", err
	}

	rowsPath, err := w.cfg.Converter.Convert(ctx, w.cfg.Source, w.cfg.Workspace.Path())
	if err != nil {
		return nil, stats, fp, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	if rowsPath != w.cfg.Source {
		defer os.Remove(rowsPath)
	}

	w.setState(ParsingRows)
	f, err := rows.Open(rowsPath)
	if err != nil {
		return nil, stats, fp, err
	}
	defer f.Close()

	br, dialect, sniffed := rows.Detect(f, w.cfg.SniffSize)
	if !sniffed {
		log.Printf("decode: %s: delimiter not detected, using %q", filepath.Base(w.cfg.Source), dialect.Comma)
	}
	cr := rows.NewReader(br, dialect)

	st := store.New()
	var missing schema.MissingTypes
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.Rows++
				stats.Unparsable++
				w.cfg.Metrics.row(OutcomeUnparseable)
				log.Printf("decode: skipping row: %v", err)
				continue
			}
			return nil, stats, fp, fmt.Errorf("decode: read rows: %w", err)
		}
		stats.Rows++
		w.cfg.Metrics.row(w.handleRow(st, fields, &stats, &missing))
	}
	return st, stats, fp, nil
}

// handleRow decodes one row into st and returns its outcome. A panic in a
// message decoder only costs the row.
func (w *Worker) handleRow(st *store.Store, fields []string, stats *model.DecodeStats, missing *schema.MissingTypes) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("decode: skipping row: decoder panic: %v", r)
			stats.Failed++
			outcome = OutcomeFailed
		}
	}()

	row, err := rows.ParseRow(fields)
	if err != nil {
		stats.Unparsable++
		log.Printf("decode: skipping row: %v", err)
		return OutcomeUnparseable
	}

	tagged, err := w.cfg.Protocol.Parse(row.Payload)
	switch {
	case errors.Is(err, marker.ErrUntagged):
		stats.Untagged++
		return OutcomeUntagged
	case err != nil:
		stats.Malformed++
		log.Printf("decode: skipping row: %v", err)
		return OutcomeMalformed
	}

	decoder, fullName, ok := w.cfg.Resolver.Resolve(tagged.MessageType)
	if !ok {
		stats.Unresolved++
		if missing.Report(fullName) {
			w.cfg.Metrics.unresolvedType()
			msg := fmt.Sprintf("Message type %q not found", w.cfg.Resolver.DisplayName(fullName))
			log.Printf("decode: %s", msg)
			if w.cfg.OnDiagnostic != nil {
				w.cfg.OnDiagnostic(msg)
			}
		}
		return OutcomeUnresolved
	}

	body, err := marker.DecodeBody(tagged.HexBody)
	if err != nil {
		stats.Malformed++
		log.Printf("decode: skipping %s row: %v", tagged.MessageType, err)
		return OutcomeMalformed
	}

	fieldsNode, err := decoder(body)
	if err != nil {
		stats.Failed++
		log.Printf("decode: skipping %s row: %v", tagged.MessageType, err)
		return OutcomeFailed
	}

	rec := model.NewRecord(row.Timestamp, fieldsNode)
	if err := st.Append(row.AppID, row.ContextID, tagged.MessageType, rec); err != nil {
		stats.Failed++
		log.Printf("decode: skipping %s row: %v", tagged.MessageType, err)
		return OutcomeFailed
	}
	stats.Decoded++
	return OutcomeDecoded
}

// Fingerprint returns the hex BLAKE3 digest of the file at path.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("decode: open source: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("decode: fingerprint %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
