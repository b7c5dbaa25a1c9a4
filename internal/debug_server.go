package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key       string
	Type      string
	Namespace string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer exposes a read-only view of the Badger store at
// /inspect and the Prometheus registry at /metrics. It is an operator
// tool, never part of the client-facing protocol.
func StartDebugServer(db *badger.DB, port int, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = DefaultMapper
	}

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "room:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}

// DefaultMapper understands the relay's key families: "user:{name}",
// "room:{id}" and "msg:{room}:{index}".
func DefaultMapper(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Type:      "RAW",
		Namespace: "default",
		Detail:    fmt.Sprintf("Size: %d bytes", len(val)),
	}

	parts := strings.SplitN(key, ":", 2)
	if len(parts) == 2 {
		row.Namespace = parts[0]
	}

	var decoded map[string]any
	if err := json.Unmarshal(val, &decoded); err != nil {
		return row
	}

	switch row.Namespace {
	case "user":
		row.Type = "USER"
		row.Detail = fmt.Sprintf("%v", decoded["username"])
	case "room":
		row.Type = "ROOM"
		row.Detail = fmt.Sprintf("%v", decoded["name"])
	case "msg":
		row.Type = "MESSAGE"
		row.Detail = fmt.Sprintf("%v: %v", decoded["author"], decoded["text"])
	}
	return row
}
