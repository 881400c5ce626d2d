package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	billing "hostel-billing/internal/billing/domain"
)

// BuildInvoicePDF renders a one-page PDF for an invoice.
func BuildInvoicePDF(invoice *billing.Invoice) ([]byte, error) {
	cur := invoice.Currency
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Room Invoice")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Invoice: %s", invoice.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Hostel: %s", invoice.HostelID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Room: %s", invoice.RoomID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s", invoice.Period()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Version: %d", invoice.Version))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", invoice.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", invoice.CreatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	if !invoice.FinalizedAt.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Finalized: %s", invoice.FinalizedAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Service", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Method", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Quantity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Unit cost", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, d := range invoice.Details {
		pdf.CellFormat(50, 6, d.ServiceName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, string(d.ChargingMethod), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, d.Quantity.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, cur.Format(d.UnitCost), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, cur.Format(d.ActualCost), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Total (%s): %s", cur, cur.Format(invoice.TotalAmount)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Paid (%s): %s", cur, cur.Format(invoice.AmountPaid)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Outstanding (%s): %s", cur, cur.Format(invoice.Outstanding())))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildInvoiceXLSX renders an invoice as a summary and a details sheet.
func BuildInvoiceXLSX(invoice *billing.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	summarySheet := "summary"
	detailsSheet := "details"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(detailsSheet); err != nil {
		return nil, err
	}

	rows := [][2]any{
		{"Invoice", invoice.ID},
		{"Hostel", invoice.HostelID},
		{"Room", invoice.RoomID},
		{"Period", invoice.Period().String()},
		{"Version", invoice.Version},
		{"Status", string(invoice.Status)},
		{"Currency", string(invoice.Currency)},
		{"Total Amount", invoice.TotalAmount.InexactFloat64()},
		{"Amount Paid", invoice.AmountPaid.InexactFloat64()},
		{"Paid", invoice.IsPaid},
		{"Form Of Transfer", invoice.FormOfTransfer},
	}
	_ = f.SetCellValue(summarySheet, "A1", "Room Invoice")
	for i, row := range rows {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+3), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+3), row[1])
	}

	headers := []string{"Service", "Method", "Previous", "Current", "Quantity", "Unit Cost", "Amount", "Rent"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(detailsSheet, cell, h)
	}
	for i, d := range invoice.Details {
		row := i + 2
		_ = f.SetCellValue(detailsSheet, fmt.Sprintf("A%d", row), d.ServiceName)
		_ = f.SetCellValue(detailsSheet, fmt.Sprintf("B%d", row), string(d.ChargingMethod))
		_ = f.SetCellValue(detailsSheet, fmt.Sprintf("C%d", row), d.PreviousReading)
		_ = f.SetCellValue(detailsSheet, fmt.Sprintf("D%d", row), d.CurrentReading)
		_ = f.SetCellValue(detailsSheet, fmt.Sprintf("E%d", row), d.Quantity.InexactFloat64())
		_ = f.SetCellValue(detailsSheet, fmt.Sprintf("F%d", row), d.UnitCost.InexactFloat64())
		_ = f.SetCellValue(detailsSheet, fmt.Sprintf("G%d", row), d.ActualCost.InexactFloat64())
		_ = f.SetCellValue(detailsSheet, fmt.Sprintf("H%d", row), d.IsRentRoom)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildRevenueXLSX renders a revenue report with a per-room sheet for hostel scopes.
func BuildRevenueXLSX(report billing.RoomRevenueReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	summarySheet := "summary"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}

	rows := [][2]any{
		{"Scope", fmt.Sprintf("%s %s", report.Scope.Kind, report.Scope.ID)},
		{"From", report.Period.From.String()},
		{"To", report.Period.To.String()},
		{"Total Room Revenue", report.TotalRoomRevenue.InexactFloat64()},
		{"Total Cost Of Maintenance", report.TotalCostOfMaintenance.InexactFloat64()},
		{"Total All Revenue", report.TotalAllRevenue.InexactFloat64()},
		{"Outstanding", report.OutstandingAmount.InexactFloat64()},
		{"Partially Paid", report.PartiallyPaidAmount.InexactFloat64()},
		{"Paid Invoices", report.PaidInvoicesCount},
		{"Unpaid Invoices", report.UnpaidInvoicesCount},
		{"Generated", report.GeneratedAt.Format(time.RFC3339)},
	}
	_ = f.SetCellValue(summarySheet, "A1", "Revenue Report")
	for i, row := range rows {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+3), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+3), row[1])
	}

	if len(report.Rooms) > 0 {
		roomsSheet := "rooms"
		if _, err := f.NewSheet(roomsSheet); err != nil {
			return nil, err
		}
		headers := []string{"Room", "Revenue", "Outstanding", "Maintenance", "Paid", "Unpaid"}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			_ = f.SetCellValue(roomsSheet, cell, h)
		}
		lo.ForEach(report.Rooms, func(line billing.RoomRevenueLine, i int) {
			row := i + 2
			_ = f.SetCellValue(roomsSheet, fmt.Sprintf("A%d", row), line.RoomID)
			_ = f.SetCellValue(roomsSheet, fmt.Sprintf("B%d", row), line.Revenue.InexactFloat64())
			_ = f.SetCellValue(roomsSheet, fmt.Sprintf("C%d", row), line.Outstanding.InexactFloat64())
			_ = f.SetCellValue(roomsSheet, fmt.Sprintf("D%d", row), line.MaintenanceCost.InexactFloat64())
			_ = f.SetCellValue(roomsSheet, fmt.Sprintf("E%d", row), line.PaidInvoices)
			_ = f.SetCellValue(roomsSheet, fmt.Sprintf("F%d", row), line.UnpaidInvoices)
		})
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
