package main

import (
	"flag"
	"log"
	"os"
	"pet-chat/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/chat", "Path to badger DB")
	prefix := flag.String("prefix", "", "Prefix to scan (conv:, pair:, member:, msg:, unread:, user:)")
	flag.Parse()

	// BypassLockGuard lets the dump run next to a live server
	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLogger(nil))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	rows, err := repositories.Inspect(db, *prefix)
	if err != nil {
		log.Fatal(err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Conversation", "Time", "Detail", "Read"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, row := range rows {
		table.Append([]string{row.Key, row.Kind, short(row.Conversation), row.Timestamp, row.Detail, readState(row.Read)})
	}
	table.Render()
	color.New(color.FgCyan).Printf("%d entries\n", len(rows))
}

func readState(read *bool) string {
	switch {
	case read == nil:
		return "-"
	case *read:
		return color.New(color.FgGreen).Render("read")
	default:
		return color.New(color.FgYellow, color.OpBold).Render("unread")
	}
}

// short keeps the first 8 characters of an id for readability.
func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
