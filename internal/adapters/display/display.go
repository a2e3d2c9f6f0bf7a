// Package display renders fulfillment results as text tables for terminal adapters.
package display

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"fulfillment/internal/core"
)

type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// RenderTable renders rows under headers with rounded borders. Short rows are padded.
func RenderTable(headers []string, rows [][]string, aligns []Alignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == AlignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// Progress writes the per-item status of an order.
func Progress(w io.Writer, p *core.OrderProgress) {
	fmt.Fprintf(w, "Order %s (%s): %d/%d scanned", p.OrderNumber, p.Status, p.Scanned, p.Required)
	if p.ReviewCount > 0 {
		fmt.Fprintf(w, ", %d need review", p.ReviewCount)
	}
	if p.Complete {
		fmt.Fprint(w, ", complete")
	}
	fmt.Fprintln(w)

	rows := make([][]string, 0, len(p.Items))
	for _, it := range p.Items {
		status := "open"
		if it.Complete {
			status = "complete"
		}
		rows = append(rows, []string{
			it.ItemID,
			it.TypeTag,
			it.Rule,
			strconv.Itoa(it.Scanned),
			strconv.Itoa(it.Quantity),
			strconv.Itoa(it.Remaining),
			status,
		})
	}
	fmt.Fprintln(w, RenderTable(
		[]string{"ITEM", "TYPE", "RULE", "SCANNED", "QTY", "REMAINING", "STATUS"},
		rows,
		[]Alignment{AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignRight, AlignRight, AlignLeft},
	))
}

// Scans writes the accepted scan records of an order.
func Scans(w io.Writer, records []core.ScanRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No scans recorded.")
		return
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		review := ""
		if r.NeedsReview {
			review = "yes"
		}
		rows = append(rows, []string{
			r.ScannedAt.Format("2006-01-02 15:04:05"),
			r.Barcode,
			r.OrderItemID,
			string(r.Method),
			review,
			r.OperatorID,
		})
	}
	fmt.Fprintln(w, RenderTable([]string{"SCANNED AT", "BARCODE", "ITEM", "METHOD", "REVIEW", "OPERATOR"}, rows, nil))
}

// Shipment writes a finalized shipment and its unit bindings.
func Shipment(w io.Writer, s *core.Shipment) {
	fmt.Fprintf(w, "Shipment %s for order %s at %s\n", s.ID, s.OrderID, s.CreatedAt.Format("2006-01-02 15:04:05"))
	rows := make([][]string, 0, len(s.Bindings))
	for _, b := range s.Bindings {
		rows = append(rows, []string{b.OrderItemID, b.Barcode, b.UnitID})
	}
	fmt.Fprintln(w, RenderTable([]string{"ITEM", "BARCODE", "UNIT"}, rows, nil))
}

// ScanResult writes a one-line summary of a scan outcome.
func ScanResult(w io.Writer, r *core.AcceptResult) {
	switch r.Outcome {
	case core.OutcomeAccepted:
		line := fmt.Sprintf("OK    %s -> %s (%d/%d)", r.Barcode, r.OrderItemID, r.Count, r.Quantity)
		if r.NeedsReview {
			line += " [needs review]"
		}
		fmt.Fprintln(w, line)
	case core.OutcomeAlreadyScanned:
		fmt.Fprintf(w, "DUP   %s already scanned for %s (%d/%d)\n", r.Barcode, r.OrderItemID, r.Count, r.Quantity)
	default:
		fmt.Fprintf(w, "%-5s %s: %s\n", strings.ToUpper(rejectTag(r.Outcome)), r.Barcode, r.Reason)
	}
}

func rejectTag(o core.Outcome) string {
	switch o {
	case core.OutcomeQuantityExceeded:
		return "full"
	case core.OutcomeNoMatch:
		return "miss"
	case core.OutcomeUnitNotEligible:
		return "deny"
	default:
		return string(o)
	}
}
