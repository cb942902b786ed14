package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"reading-room/repositories"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// badger_inspect dumps the archived rooms and messages of a reading room database.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan, msg: or room:")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rooms := strings.HasPrefix(*prefix, "room:")
	if rooms {
		table.SetHeader([]string{"Key", "Name", "Created"})
	} else {
		table.SetHeader([]string{"Key", "Seq", "Time", "Author", "Role", "Flags", "Content"})
	}

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			rawKey := string(item.Key())
			err := item.Value(func(v []byte) error {
				row, err := toRow(rawKey, v, rooms)
				if err != nil {
					// a broken entry should not hide the rest of the dump
					fmt.Printf("Error decoding key %s: %v\n", rawKey, err)
					return nil
				}
				table.Append(row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func toRow(key string, value []byte, rooms bool) ([]string, error) {
	if rooms {
		var room repositories.DiskRoom
		if err := json.Unmarshal(value, &room); err != nil {
			return nil, err
		}
		return []string{key, room.Name, room.CreatedAt.Format("2006-01-02 15:04:05")}, nil
	}

	var msg repositories.DiskMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return nil, err
	}
	var flags []string
	if msg.IsFlagged {
		flags = append(flags, "flagged")
	}
	if msg.IsDeleted {
		flags = append(flags, "deleted by "+msg.DeletedBy)
	}
	return []string{
		key,
		fmt.Sprintf("%d", msg.Seq),
		msg.At.Format("15:04:05"),
		msg.AuthorName,
		msg.AuthorRole,
		strings.Join(flags, ","),
		msg.Content,
	}, nil
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		// an unclean shutdown needs a write open to truncate the value log
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
