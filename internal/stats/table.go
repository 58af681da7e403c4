package stats

import (
	"fmt"
	"strings"
)

// Table header and total row labels.
const (
	tableDateHeader  = "Server Date"
	tableCountHeader = "Chats"
	tableTotalLabel  = "Total"
)

// TableRows returns the header, one row per day, and the total row.
func TableRows(a Aggregate) []string {
	rows := make([]string, 0, len(a.Days)+2)
	rows = append(rows, fmt.Sprintf("%-10s\t%-5s", tableDateHeader, tableCountHeader))
	for _, d := range a.Days {
		rows = append(rows, fmt.Sprintf("%-10s\t%-5d", d.Date, d.Count))
	}
	rows = append(rows, fmt.Sprintf("%-10s\t%-5d", tableTotalLabel, a.Total))
	return rows
}

// RenderTable renders the aggregate as plain text, one line per row.
func RenderTable(a Aggregate) string {
	return strings.Join(TableRows(a), "\n") + "\n"
}
