package decode

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tinytelemetry/dltscope/internal/convert"
	"github.com/tinytelemetry/dltscope/internal/marker"
	"github.com/tinytelemetry/dltscope/internal/model"
	"github.com/tinytelemetry/dltscope/internal/schema"
	"github.com/tinytelemetry/dltscope/internal/workspace"
)

// jsonDecoder treats message bodies as JSON documents.
func jsonDecoder(body []byte) (model.Node, error) { return model.ParseJSON(body) }

func csvRow(ts, app, ctx, payload string) string {
	fields := []string{"1", "2024/01/15", ts, "ECU1", "0", app, ctx, "log", "info", "verbose", "1", "0", "x", payload}
	return strings.Join(fields, ",")
}

func tagged(typ, body string) string {
	return marker.Default().Encode(typ, hex.EncodeToString([]byte(body)))
}

func writeRows(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.csv")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newWorker(t *testing.T, src string, conv convert.Converter, reg schema.Registry, diag func(string), m *Metrics) *Worker {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ws.Release() })
	w, err := New(Config{
		Source:       src,
		Converter:    conv,
		Resolver:     schema.Resolver{Registry: reg, Namespace: model.DefaultNamespace},
		Workspace:    ws,
		OnDiagnostic: diag,
		Metrics:      m,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func sampleTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl := schema.NewTable()
	if err := tbl.Register("logger.Sample", jsonDecoder); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Register("logger.Boom", func([]byte) (model.Node, error) { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Register("logger.Broken", func([]byte) (model.Node, error) { return model.Node{}, errors.New("bad body") }); err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestRunDecodesTaggedRowsInOrder(t *testing.T) {
	src := writeRows(t,
		csvRow("10:00:01.000000", "APP1", "CTX1", tagged("Sample", `{"x":1}`)),
		csvRow("10:00:02.000000", "APP1", "CTX1", tagged("Sample", `{"x":2}`)),
		csvRow("10:00:03.000000", "APP1", "CTX1", tagged("Sample", `{"x":3}`)),
	)
	w := newWorker(t, src, convert.Passthrough{}, sampleTable(t), nil, nil)

	res := w.Run(context.Background())
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	if w.State() != Finished {
		t.Errorf("State = %v, want finished", w.State())
	}
	if !res.Store.Sealed() {
		t.Error("store not sealed")
	}

	recs := res.Store.Records("APP1", "CTX1", "Sample")
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}
	for i, r := range recs {
		if got := strings.Join(r.Keys(), ","); got != "timestamp,x" {
			t.Errorf("record %d keys = %s", i, got)
		}
		x, _ := r.Get("x")
		if x.Value() != int64(i+1) {
			t.Errorf("record %d x = %v, want %d", i, x.Value(), i+1)
		}
	}
	ts, _ := recs[1].Get("timestamp")
	if ts.Value() != "10:00:02.000000" {
		t.Errorf("timestamp = %v", ts.Value())
	}
	if res.Stats.Rows != 3 || res.Stats.Decoded != 3 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if len(res.Fingerprint) != 64 {
		t.Errorf("fingerprint = %q", res.Fingerprint)
	}
}

func TestRunDecodesSingleTokenMsgPack(t *testing.T) {
	proto, err := marker.NewSingle("Z9dX7pQ3", "SineWave")
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	for i, v := range []float64{0.5, 1, -0.5} {
		body, err := msgpack.Marshal(map[string]any{"amplitude": 1.0, "value": v})
		if err != nil {
			t.Fatal(err)
		}
		ts := []string{"10:00:01.000000", "10:00:02.000000", "10:00:03.000000"}[i]
		lines = append(lines, csvRow(ts, "SINE", "WAVE", proto.Encode("", hex.EncodeToString(body))))
	}
	lines = append(lines, csvRow("10:00:04.000000", "SINE", "WAVE", "Z9dX7pQ3zz"))
	src := writeRows(t, lines...)

	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ws.Release() })
	w, err := New(Config{
		Source:    src,
		Converter: convert.Passthrough{},
		Resolver:  schema.Resolver{Registry: schema.MsgPack{}, Namespace: model.DefaultNamespace},
		Protocol:  proto,
		Workspace: ws,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := w.Run(context.Background())
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	recs := res.Store.Records("SINE", "WAVE", "SineWave")
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}
	v, _ := recs[2].Get("value")
	if v.Value() != -0.5 {
		t.Errorf("value = %v, want -0.5", v.Value())
	}
	ts, _ := recs[0].Get("timestamp")
	if ts.Value() != "10:00:01.000000" {
		t.Errorf("timestamp = %v", ts.Value())
	}
	if res.Stats.Decoded != 3 || res.Stats.Malformed != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
}

func TestRunSkipsBadRows(t *testing.T) {
	src := writeRows(t,
		csvRow("t1", "APP1", "CTX1", tagged("Sample", `{"x":1}`)),
		"too,short,row",
		csvRow("t2", "APP1", "CTX1", "plain log text"),
		csvRow("t3", "APP1", "CTX1", "$%.&Sample-without-separator"),
		csvRow("t4", "APP1", "CTX1", "$%.&Sample&*.%zz"),
		csvRow("t5", "APP1", "CTX1", tagged("Ghost", `{}`)),
		csvRow("t6", "APP1", "CTX1", tagged("Ghost", `{}`)),
		csvRow("t7", "APP1", "CTX2", tagged("Ghost", `{}`)),
		csvRow("t8", "APP1", "CTX1", tagged("Boom", `{}`)),
		csvRow("t9", "APP1", "CTX1", tagged("Broken", `{}`)),
		csvRow("t10", "APP2", "CTX9", tagged("Sample", `{"x":2}`)),
	)

	var diags []string
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	w := newWorker(t, src, convert.Passthrough{}, sampleTable(t), func(msg string) { diags = append(diags, msg) }, m)

	res := w.Run(context.Background())
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}

	want := model.DecodeStats{Rows: 11, Decoded: 2, Unparsable: 1, Untagged: 1, Malformed: 2, Unresolved: 3, Failed: 2}
	if res.Stats != want {
		t.Errorf("stats = %+v, want %+v", res.Stats, want)
	}
	if len(diags) != 1 || diags[0] != `Message type "Ghost" not found` {
		t.Errorf("diagnostics = %q, want one for Ghost", diags)
	}
	if got := strings.Join(res.Store.Apps(), ","); got != "APP1,APP2" {
		t.Errorf("apps = %s", got)
	}
	if res.Store.Contexts("APP1")[0] != "CTX1" || len(res.Store.Contexts("APP1")) != 1 {
		t.Errorf("contexts = %v; failed rows must not create levels", res.Store.Contexts("APP1"))
	}

	if got := testutil.ToFloat64(m.rows.WithLabelValues(OutcomeUnresolved)); got != 3 {
		t.Errorf("unresolved rows metric = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.unresolved); got != 1 {
		t.Errorf("unresolved types metric = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("finished")); got != 1 {
		t.Errorf("finished runs metric = %v, want 1", got)
	}
}

func TestRunSniffsDelimiter(t *testing.T) {
	row := strings.ReplaceAll(csvRow("t1", "APP1", "CTX1", tagged("Sample", `{"x":1}`)), ",", ";")
	src := writeRows(t, row, row)
	w := newWorker(t, src, convert.Passthrough{}, sampleTable(t), nil, nil)

	res := w.Run(context.Background())
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	if n := len(res.Store.Records("APP1", "CTX1", "Sample")); n != 2 {
		t.Errorf("records = %d, want 2", n)
	}
}

func TestRunConversionFailure(t *testing.T) {
	src := writeRows(t, "x")
	conv := convert.NewCommand("false", nil)
	w := newWorker(t, src, conv, sampleTable(t), nil, nil)

	res := w.Run(context.Background())
	if !errors.Is(res.Err, ErrConversionFailed) {
		t.Fatalf("Run error = %v, want ErrConversionFailed", res.Err)
	}
	if w.State() != Failed {
		t.Errorf("State = %v, want failed", w.State())
	}
	if res.Store != nil {
		t.Error("failed run must not return a store")
	}
}

func TestRunWithCommandConverterCleansOutput(t *testing.T) {
	src := writeRows(t, csvRow("t1", "A", "C", tagged("Sample", `{"x":1}`)))
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Release()

	w, err := New(Config{
		Source:    src,
		Converter: convert.NewCommand("cp", []string{"{in}", "{out}"}),
		Resolver:  schema.Resolver{Registry: sampleTable(t), Namespace: "logger"},
		Workspace: ws,
	})
	if err != nil {
		t.Fatal(err)
	}
	res := w.Run(context.Background())
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	if res.Store.Len() != 1 {
		t.Errorf("Len = %d", res.Store.Len())
	}
	if _, err := os.Stat(filepath.Join(ws.Path(), "trace.csv")); !os.IsNotExist(err) {
		t.Errorf("converter output not removed: %v", err)
	}
}

func TestRunMissingSource(t *testing.T) {
	w := newWorker(t, filepath.Join(t.TempDir(), "missing.dlt"), convert.Passthrough{}, sampleTable(t), nil, nil)
	if res := w.Run(context.Background()); res.Err == nil {
		t.Fatal("expected error")
	}
	if w.State() != Failed {
		t.Errorf("State = %v", w.State())
	}
}

func TestStartDeliversOnce(t *testing.T) {
	src := writeRows(t, csvRow("t1", "A", "C", tagged("Sample", `{"x":1}`)))
	w := newWorker(t, src, convert.Passthrough{}, sampleTable(t), nil, nil)

	ch := w.Start(context.Background())
	res, ok := <-ch
	if !ok {
		t.Fatal("channel closed without a result")
	}
	if res.Err != nil || res.Store.Len() != 1 {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := <-ch; ok {
		t.Error("channel delivered a second result")
	}

	if again := w.Run(context.Background()); !errors.Is(again.Err, ErrAlreadyStarted) {
		t.Errorf("second Run error = %v, want ErrAlreadyStarted", again.Err)
	}
}

func TestEmptyFileFinishes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	w := newWorker(t, path, convert.Passthrough{}, sampleTable(t), nil, nil)
	res := w.Run(context.Background())
	if res.Err != nil {
		t.Fatalf("Run: %v", res.Err)
	}
	if res.Store.Len() != 0 || res.Stats.Rows != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestNewValidates(t *testing.T) {
	ws, _ := workspace.New(t.TempDir())
	defer ws.Release()
	cases := []Config{
		{Converter: convert.Passthrough{}, Workspace: ws},
		{Source: "a", Workspace: ws},
		{Source: "a", Converter: convert.Passthrough{}},
	}
	for i, c := range cases {
		if _, err := New(c); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestFingerprintStable(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	os.WriteFile(a, []byte("same"), 0o644)
	os.WriteFile(b, []byte("same"), 0o644)
	fa, err := Fingerprint(a)
	if err != nil {
		t.Fatal(err)
	}
	fb, _ := Fingerprint(b)
	if fa != fb {
		t.Error("identical content must fingerprint identically")
	}
}
