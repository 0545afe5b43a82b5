package socketrpc_test

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/tinytelemetry/dltscope/internal/catalog"
	"github.com/tinytelemetry/dltscope/internal/duckdb"
	"github.com/tinytelemetry/dltscope/internal/marker"
	"github.com/tinytelemetry/dltscope/internal/model"
	"github.com/tinytelemetry/dltscope/internal/socketrpc"
)

func writeTrace(t *testing.T) string {
	t.Helper()
	var lines []string
	for i := 1; i <= 3; i++ {
		body, err := cbor.Marshal(map[string]any{"x": i})
		if err != nil {
			t.Fatal(err)
		}
		payload := marker.Default().Encode("Sample", hex.EncodeToString(body))
		ts := "2024-01-15 10:00:0" + string(rune('0'+i))
		lines = append(lines, strings.Join([]string{"1", "2024/01/15", ts, "ECU1", "0", "APP1", "CTX1", "log", "info", "verbose", "1", "0", "x", payload}, ","))
	}
	path := filepath.Join(t.TempDir(), "trace.csv")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func startTestServer(t *testing.T) (string, *socketrpc.Server, *catalog.Catalog) {
	t.Helper()
	idx, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	cat, err := catalog.New(catalog.Config{WorkDir: t.TempDir(), Codec: catalog.CodecCBOR, Index: idx})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	t.Cleanup(cat.Close)

	sockPath := filepath.Join(t.TempDir(), "test.sock")
	srv := socketrpc.NewServer(sockPath, cat)
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return sockPath, srv, cat
}

func waitReady(t *testing.T, client *socketrpc.Client, id string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		info, err := client.GetFile(id)
		if err != nil {
			t.Fatal(err)
		}
		switch info.Status {
		case model.FileReady:
			return
		case model.FileFailed:
			t.Fatalf("load failed: %s", info.Error)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for file")
}

func TestRoundtrip(t *testing.T) {
	sockPath, srv, _ := startTestServer(t)
	defer srv.Stop()

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	src := writeTrace(t)
	info, err := client.LoadFile(src)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if info.ID != catalog.FileID(src) {
		t.Fatalf("file id = %q, want %q", info.ID, catalog.FileID(src))
	}
	id := info.ID
	waitReady(t, client, id)

	t.Run("ListFiles", func(t *testing.T) {
		files, err := client.ListFiles()
		if err != nil {
			t.Fatal(err)
		}
		if len(files) != 1 || files[0].Records != 3 {
			t.Fatalf("unexpected files: %+v", files)
		}
	})

	t.Run("Tree", func(t *testing.T) {
		tree, err := client.Tree(id)
		if err != nil {
			t.Fatal(err)
		}
		if len(tree) != 1 || tree[0].AppID != "APP1" || tree[0].Contexts[0].Types[0].Records != 3 {
			t.Fatalf("unexpected tree: %+v", tree)
		}
	})

	t.Run("Paths", func(t *testing.T) {
		paths, err := client.Paths(id, "APP1", "CTX1")
		if err != nil {
			t.Fatal(err)
		}
		if strings.Join(paths, "|") != "Sample|Sample > timestamp|Sample > x" {
			t.Fatalf("unexpected paths: %v", paths)
		}
	})

	t.Run("Fields", func(t *testing.T) {
		fields, err := client.Fields(id, "APP1", "CTX1", "Sample")
		if err != nil {
			t.Fatal(err)
		}
		if len(fields) != 1 || fields[0] != "x" {
			t.Fatalf("unexpected fields: %v", fields)
		}
	})

	t.Run("Series", func(t *testing.T) {
		s, err := client.Series(model.SeriesRequest{FileID: id, AppID: "APP1", ContextID: "CTX1", Path: "Sample", Field: "x"})
		if err != nil {
			t.Fatal(err)
		}
		if len(s.Y) != 3 || s.Y[0] != 1 || s.Y[2] != 3 {
			t.Fatalf("unexpected series: %+v", s)
		}
	})

	t.Run("Export", func(t *testing.T) {
		data, err := client.Export(id, "yaml")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "APP1:") {
			t.Fatalf("unexpected export:\n%s", data)
		}
	})

	t.Run("Schema", func(t *testing.T) {
		info, err := client.Schema()
		if err != nil {
			t.Fatal(err)
		}
		if info.Codec != "cbor" {
			t.Fatalf("codec = %q, want cbor", info.Codec)
		}
	})

	t.Run("ExecuteQuery", func(t *testing.T) {
		rows, err := client.ExecuteQuery("SELECT COUNT(*) AS n FROM records")
		if err != nil {
			t.Fatal(err)
		}
		// JSON numbers decode as float64.
		if len(rows) != 1 || rows[0]["n"] != float64(3) {
			t.Fatalf("unexpected rows: %v", rows)
		}
	})

	t.Run("TableRowCounts", func(t *testing.T) {
		counts, err := client.TableRowCounts()
		if err != nil {
			t.Fatal(err)
		}
		if counts["records"] != 3 {
			t.Fatalf("unexpected counts: %v", counts)
		}
	})

	t.Run("RemoveFile", func(t *testing.T) {
		if err := client.RemoveFile(id); err != nil {
			t.Fatal(err)
		}
		if _, err := client.GetFile(id); err == nil {
			t.Fatal("expected error after remove")
		}
	})
}

func TestApplicationErrors(t *testing.T) {
	sockPath, srv, _ := startTestServer(t)
	defer srv.Stop()

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	_, err = client.Tree("missing")
	if err == nil || !strings.Contains(err.Error(), "file not found") {
		t.Fatalf("Tree(missing) err = %v", err)
	}
	rpcErr, ok := err.(*socketrpc.RPCError)
	if !ok || rpcErr.Code != -32000 {
		t.Fatalf("err = %#v, want RPCError -32000", err)
	}

	if _, err := client.ExecuteQuery("DROP TABLE records"); err == nil {
		t.Fatal("expected write query to be rejected")
	}
	if _, err := client.LoadSchema("logger.proto"); err == nil {
		t.Fatal("expected schema load to fail with cbor codec")
	}
}

func TestDialFailure(t *testing.T) {
	_, err := socketrpc.Dial(filepath.Join(t.TempDir(), "nonexistent.sock"))
	if err == nil {
		t.Fatal("expected error dialing nonexistent socket")
	}
}

func TestServerStopCleansSocket(t *testing.T) {
	sockPath, srv, _ := startTestServer(t)
	srv.Stop()

	if _, err := os.Stat(sockPath); !os.IsNotExist(err) {
		t.Fatalf("socket file still present: %v", err)
	}
	if _, err := socketrpc.Dial(sockPath); err == nil {
		t.Fatal("expected dial to fail after server stop")
	}
}

func TestSecondServerRefused(t *testing.T) {
	sockPath, srv, cat := startTestServer(t)
	defer srv.Stop()

	other := socketrpc.NewServer(sockPath, cat)
	if err := other.Start(); err == nil {
		other.Stop()
		t.Fatal("expected second server on the same socket to fail")
	}
}

func TestStopIdempotent(t *testing.T) {
	_, srv, _ := startTestServer(t)
	srv.Stop()
	srv.Stop()
}

func TestStopClosesConns(t *testing.T) {
	sockPath, srv, _ := startTestServer(t)
	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	srv.Stop()

	done := make(chan error, 1)
	go func() {
		_, callErr := client.ListFiles()
		done <- callErr
	}()

	select {
	case callErr := <-done:
		if callErr == nil {
			t.Fatal("expected client call to fail after server stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client call hung after server stop")
	}
}
