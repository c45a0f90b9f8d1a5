package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

// StatementDocument — выписка и покупки, вошедшие в неё.
type StatementDocument struct {
	Statement    domain.MonthlyStatement
	CustomerName string
	Transactions []domain.Transaction
}

// StatementPDF рендерит выписку клиента в PDF.
func StatementPDF(doc StatementDocument) ([]byte, error) {
	st := doc.Statement
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Statement %s", st.Month), false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, "Monthly Credit Statement")
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	for _, line := range [][2]string{
		{"Customer", customerLabel(doc)},
		{"Month", st.Month.String()},
		{"Due date", st.DueDate.Format("2006-01-02")},
		{"Status", string(st.PaymentStatus)},
		{"Total due", FormatINRPlain(st.TotalDueMinor)},
		{"Paid", FormatINRPlain(st.PaidAmountMinor)},
		{"Remaining", FormatINRPlain(st.RemainingMinor())},
		{"Transactions until", st.CutoffAt.Format(time.RFC3339)},
	} {
		pdf.CellFormat(45, 6, line[0]+":", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, line[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Shop", "1", 0, "C", false, 0, "")
	pdf.CellFormat(75, 6, "Items", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Amount", "1", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	for _, tx := range doc.Transactions {
		pdf.CellFormat(30, 6, tx.CreatedAt.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, tx.ShopID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(75, 6, itemsSummary(tx), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, FormatINRPlain(tx.TotalAmountMinor), "1", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render statement pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// StatementXLSX рендерит выписку в книгу с листами summary и transactions.
func StatementXLSX(doc StatementDocument) ([]byte, error) {
	st := doc.Statement
	f := excelize.NewFile()
	defer f.Close()

	const summary, items = "summary", "transactions"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(items); err != nil {
		return nil, err
	}

	rows := [][]any{
		{"Monthly Credit Statement"},
		{},
		{"Customer", customerLabel(doc)},
		{"Month", st.Month.String()},
		{"Due date", st.DueDate.Format("2006-01-02")},
		{"Status", string(st.PaymentStatus)},
		{"Total due", FormatINR(st.TotalDueMinor)},
		{"Paid", FormatINR(st.PaidAmountMinor)},
		{"Remaining", FormatINR(st.RemainingMinor())},
		{"Total due (INR)", Rupees(st.TotalDueMinor).InexactFloat64()},
	}
	for i, row := range rows {
		if err := setRow(f, summary, i+1, row); err != nil {
			return nil, err
		}
	}

	if err := setRow(f, items, 1, []any{"Transaction", "Date", "Shop", "Items", "Amount (INR)"}); err != nil {
		return nil, err
	}
	for i, tx := range doc.Transactions {
		row := []any{tx.ID, tx.CreatedAt.Format("2006-01-02"), tx.ShopID, itemsSummary(tx), Rupees(tx.TotalAmountMinor).InexactFloat64()}
		if err := setRow(f, items, i+2, row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("render statement xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	if len(values) == 0 {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func customerLabel(doc StatementDocument) string {
	if doc.CustomerName == "" {
		return doc.Statement.CustomerID
	}
	return fmt.Sprintf("%s (%s)", doc.CustomerName, doc.Statement.CustomerID)
}

func itemsSummary(tx domain.Transaction) string {
	if len(tx.Lines) == 0 {
		return ""
	}
	first := tx.Lines[0]
	name := first.ProductName
	if name == "" {
		name = first.ProductID
	}
	text := fmt.Sprintf("%s x%d", name, first.Qty)
	if len(tx.Lines) > 1 {
		text += fmt.Sprintf(" +%d more", len(tx.Lines)-1)
	}
	return text
}
