// Command badger_inspect dumps the relay's BadgerDB contents as a table.
// It is an offline operator tool: point it at a (stopped) server's data
// directory to audit accounts, rooms, and message histories.
//
//	go run ./tools -db ./data/badger -prefix msg:
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"chat-relay/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (user:, room: or msg:)")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "ID", "Name / Author", "Detail", "Created"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(val []byte) error {
				row, err := describe(key, val)
				if err != nil {
					// A row that won't decode shouldn't stop the scan.
					fmt.Fprintf(os.Stderr, "skipping %s: %v\n", key, err)
					return nil
				}
				table.Append(row)
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Scan failed: ", err)
	}

	table.Render()
	fmt.Printf("\n%d entries under prefix %q\n", count, *prefix)
}

// describe turns one record into table columns based on its key family.
func describe(key string, val []byte) ([]string, error) {
	switch {
	case strings.HasPrefix(key, "user:"):
		var user repositories.User
		if err := json.Unmarshal(val, &user); err != nil {
			return nil, err
		}
		return []string{key, user.ID, user.Username, "(password hash hidden)", stamp(user.CreatedAt)}, nil

	case strings.HasPrefix(key, "msg:"):
		var message repositories.DiskMessage
		if err := json.Unmarshal(val, &message); err != nil {
			return nil, err
		}
		return []string{key, message.ID.String(), message.Author, message.Text, stamp(message.At)}, nil

	case strings.HasPrefix(key, "room:"):
		var room struct {
			ID        string    `json:"id"`
			Name      string    `json:"name"`
			CreatedAt time.Time `json:"created_at"`
		}
		if err := json.Unmarshal(val, &room); err != nil {
			return nil, err
		}
		return []string{key, room.ID, room.Name, "", stamp(room.CreatedAt)}, nil

	default:
		return []string{key, "", "", fmt.Sprintf("%d bytes", len(val)), ""}, nil
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.RFC3339)
}
