package billing

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

const (
	invoiceMargin = 15.0
	lineHeight    = 7.0
)

// RenderInvoice writes d as an A4 PDF invoice. Long item or payment lists
// flow onto further pages.
func RenderInvoice(w io.Writer, hospital string, d *Detail) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(invoiceMargin, invoiceMargin, invoiceMargin)
	pdf.SetAutoPageBreak(true, invoiceMargin+5)
	pdf.SetTitle("Invoice "+d.BillNumber, true)
	pdf.SetCreator(hospital, true)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-invoiceMargin)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("%s  |  Page %d/{nb}", d.BillNumber, pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(hospital), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, "INVOICE", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	kv := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(40, lineHeight, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, lineHeight, tr(value), "", 1, "L", false, 0, "")
	}
	kv("Bill number", d.BillNumber)
	kv("Bill date", d.BillDate.Format("02 Jan 2006 15:04"))
	kv("Patient", strings.TrimSpace(d.PatientName+" ("+d.PatientCode+")"))
	if d.DoctorName != "" {
		kv("Doctor", d.DoctorName)
	}
	if d.IsScheme {
		kv("Scheme", "Yes")
	}
	pdf.Ln(3)

	header := func(cols []string, widths []float64) {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for i, c := range cols {
			align := "L"
			if i > 0 {
				align = "R"
			}
			pdf.CellFormat(widths[i], lineHeight, c, "1", 0, align, true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 10)
	}
	row := func(widths []float64, cells ...string) {
		for i, c := range cells {
			align := "L"
			if i > 0 {
				align = "R"
			}
			pdf.CellFormat(widths[i], lineHeight, tr(c), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	charges := []float64{130, 50}
	header([]string{"Charge", "Amount"}, charges)
	for _, c := range []struct {
		label string
		v     decimal.Decimal
	}{
		{"Consultation fee", d.ConsultationFee},
		{"Entry fee", d.EntryFee},
		{"Room charges", d.RoomCharges},
		{"Medicine charges", d.MedicineCharges},
		{"Lab charges", d.LabCharges},
		{"Other charges", d.OtherCharges},
	} {
		if c.v.IsZero() {
			continue
		}
		row(charges, c.label, c.v.StringFixed(2))
	}
	pdf.Ln(3)

	if len(d.Items) > 0 {
		cols := []float64{85, 20, 35, 40}
		header([]string{"Item", "Qty", "Unit price", "Total"}, cols)
		for _, it := range d.Items {
			row(cols, it.Description, fmt.Sprint(it.Quantity), it.UnitPrice.StringFixed(2), it.Total.StringFixed(2))
		}
		pdf.Ln(3)
	}

	totals := []float64{130, 50}
	for _, t := range []struct {
		label string
		v     decimal.Decimal
	}{
		{"Subtotal", d.Subtotal},
		{"Discount", d.Discount.Neg()},
		{"Tax", d.Tax},
		{"Total", d.TotalAmount},
		{"Claim", d.ClaimAmount.Neg()},
		{"Paid", d.PaidAmount},
		{"Due", d.DueAmount},
	} {
		if t.v.IsZero() && t.label != "Total" && t.label != "Due" {
			continue
		}
		style := ""
		if t.label == "Total" || t.label == "Due" {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.CellFormat(totals[0], lineHeight, t.label, "", 0, "R", false, 0, "")
		pdf.CellFormat(totals[1], lineHeight, t.v.StringFixed(2), "", 1, "R", false, 0, "")
	}
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "", 10)
	kv("Payment method", d.PaymentMethod)
	kv("Payment status", strings.ToUpper(d.PaymentStatus))
	if d.PaymentDate != nil {
		kv("Paid on", d.PaymentDate.Format("02 Jan 2006"))
	}

	if len(d.Payments) > 0 {
		pdf.Ln(3)
		cols := []float64{50, 40, 50, 40}
		header([]string{"Paid at", "Method", "Reference", "Amount"}, cols)
		for _, p := range d.Payments {
			row(cols, p.PaidAt.Format("02 Jan 2006 15:04"), p.PaymentMethod, p.Reference, p.Amount.StringFixed(2))
		}
	}

	if d.Notes != "" {
		pdf.Ln(3)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, tr(d.Notes), "", "L", false)
	}

	return pdf.Output(w)
}
