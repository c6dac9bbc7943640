// Package invoice renders a cost breakdown into a two-sheet SpreadsheetML
// workbook: a customer-facing invoice and an internal audit sheet.
package invoice

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Simplici0/facturador/internal/costing"
	"github.com/Simplici0/facturador/internal/filament"
)

// Document gathers everything the workbook needs. Now is consulted for the
// invoice date; leave it nil for the wall clock.
type Document struct {
	BusinessName string
	Profile      costing.Profile
	Breakdown    costing.Breakdown
	Filaments    []filament.Record
	Now          func() time.Time
}

// Render produces the complete workbook. The result is built in memory, so
// a caller never observes a partially written document.
func Render(doc Document) []byte {
	now := time.Now
	if doc.Now != nil {
		now = doc.Now
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>` + "\n")
	b.WriteString(`<?mso-application progid="Excel.Sheet"?>` + "\n")
	b.WriteString(`<Workbook xmlns="urn:schemas-microsoft-com:office:spreadsheet"` + "\n")
	b.WriteString(` xmlns:o="urn:schemas-microsoft-com:office:office"` + "\n")
	b.WriteString(` xmlns:x="urn:schemas-microsoft-com:office:excel"` + "\n")
	b.WriteString(` xmlns:ss="urn:schemas-microsoft-com:office:spreadsheet"` + "\n")
	b.WriteString(` xmlns:html="http://www.w3.org/TR/REC-html40">` + "\n")

	writeStyles(&b)
	writeInvoiceSheet(&b, doc, now())
	writeInternalSheet(&b, doc.Breakdown)

	b.WriteString("</Workbook>\n")
	return []byte(b.String())
}

func writeStyles(b *strings.Builder) {
	b.WriteString(`<Styles>
 <Style ss:ID="Default" ss:Name="Normal">
  <Alignment ss:Vertical="Bottom"/>
  <Borders/>
  <Font ss:FontName="Calibri" x:Family="Swiss" ss:Size="11" ss:Color="#000000"/>
  <Interior/>
  <NumberFormat/>
  <Protection/>
 </Style>
 <Style ss:ID="sHeader">
  <Font ss:FontName="Calibri" x:Family="Swiss" ss:Size="14" ss:Bold="1"/>
  <Alignment ss:Horizontal="Center"/>
 </Style>
 <Style ss:ID="sBold">
  <Font ss:FontName="Calibri" x:Family="Swiss" ss:Size="11" ss:Bold="1"/>
 </Style>
 <Style ss:ID="sCurrency">
  <NumberFormat ss:Format="$#,##0.00"/>
 </Style>
</Styles>
`)
}

func writeInvoiceSheet(b *strings.Builder, doc Document, date time.Time) {
	b.WriteString(`<Worksheet ss:Name="Invoice">` + "\n")
	b.WriteString(`<Table ss:ExpandedColumnCount="5" x:FullColumns="1" x:FullRows="1" ss:DefaultRowHeight="15">` + "\n")
	b.WriteString(`<Column ss:Width="150"/>` + "\n")
	b.WriteString(`<Column ss:Width="100"/>` + "\n")
	b.WriteString(`<Column ss:Width="100"/>` + "\n")

	b.WriteString(`<Row ss:Height="20">` + "\n")
	b.WriteString(`<Cell ss:MergeAcross="4" ss:StyleID="sHeader"><Data ss:Type="String">INVOICE</Data></Cell>` + "\n")
	b.WriteString("</Row>\n")
	writeBlankRow(b)

	writeLabeledRow(b, "From:", doc.BusinessName)
	writeBlankRow(b)

	writeLabeledRow(b, "To:", doc.Profile.CustomerName)
	writeLabeledRow(b, "Email:", doc.Profile.CustomerEmail)
	writeLabeledRow(b, "Phone:", doc.Profile.CustomerPhone)
	writeBlankRow(b)

	writeLabeledRow(b, "Job Name:", doc.Profile.JobName)
	writeLabeledRow(b, "Description:", doc.Profile.JobDescription)
	writeLabeledRow(b, "Date:", date.Format("2006-01-02"))
	writeBlankRow(b)

	b.WriteString(`<Row ss:StyleID="sBold">` + "\n")
	writeStringCell(b, "Item")
	writeStringCell(b, "Quantity")
	writeStringCell(b, "Unit Price")
	writeStringCell(b, "Total")
	b.WriteString("</Row>\n")

	b.WriteString("<Row>\n")
	writeStringCell(b, "3D Printed Parts")
	fmt.Fprintf(b, `<Cell><Data ss:Type="Number">%d</Data></Cell>`+"\n", doc.Breakdown.TotalParts)
	writeCurrencyCell(b, doc.Breakdown.FinalPricePerPart)
	writeCurrencyCell(b, doc.Breakdown.TotalJobCost)
	b.WriteString("</Row>\n")

	writeBlankRow(b)
	writeBlankRow(b)

	b.WriteString(`<Row ss:StyleID="sBold"><Cell><Data ss:Type="String">Material Breakdown</Data></Cell></Row>` + "\n")
	for _, f := range doc.Filaments {
		b.WriteString("<Row>\n")
		writeStringCell(b, fmt.Sprintf("%s (%s)", f.Name, f.Color))
		writeStringCell(b, fmt.Sprintf("%.2f g", f.WeightGrams))
		b.WriteString("</Row>\n")
	}

	b.WriteString("</Table>\n")
	b.WriteString("</Worksheet>\n")
}

func writeInternalSheet(b *strings.Builder, bd costing.Breakdown) {
	b.WriteString(`<Worksheet ss:Name="Internal Cost Breakdown">` + "\n")
	b.WriteString(`<Table ss:ExpandedColumnCount="2" x:FullColumns="1" x:FullRows="1" ss:DefaultRowHeight="15">` + "\n")
	b.WriteString(`<Column ss:Width="200"/>` + "\n")
	b.WriteString(`<Column ss:Width="100"/>` + "\n")

	b.WriteString(`<Row ss:StyleID="sBold"><Cell><Data ss:Type="String">INTERNAL COST BREAKDOWN</Data></Cell></Row>` + "\n")
	writeBlankRow(b)

	writeCostRow(b, "Material Cost", bd.MaterialCost)
	writeCostRow(b, "Labor Cost", bd.LaborCost)
	writeCostRow(b, "Machine Cost", bd.MachineCost)
	writeCostRow(b, "Tooling Cost", bd.ToolingCost)
	writeCostRow(b, "Post-Processing Cost", bd.PostProcessCost)
	writeBlankRow(b)
	writeCostRow(b, "Subtotal", bd.Subtotal)
	writeCostRow(b, "Failure Adjustment", bd.FailureAdjustment)
	writeCostRow(b, "Cost Per Part", bd.CostPerPart)
	writeCostRow(b, "Markup Amount", bd.MarkupAmount)
	writeCostRow(b, "Final Price Per Part", bd.FinalPricePerPart)
	writeBlankRow(b)
	writeCostRow(b, "Print Time (hours)", bd.PrintTimeHours)
	writeCostRow(b, "Total Job Cost", bd.TotalJobCost)

	b.WriteString("</Table>\n")
	b.WriteString("</Worksheet>\n")
}

func writeLabeledRow(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, `<Row><Cell ss:StyleID="sBold"><Data ss:Type="String">%s</Data></Cell><Cell><Data ss:Type="String">%s</Data></Cell></Row>`+"\n",
		escapeXML(label), escapeXML(value))
}

func writeBlankRow(b *strings.Builder) {
	b.WriteString(`<Row><Cell><Data ss:Type="String"></Data></Cell></Row>` + "\n")
}

func writeStringCell(b *strings.Builder, value string) {
	fmt.Fprintf(b, `<Cell><Data ss:Type="String">%s</Data></Cell>`+"\n", escapeXML(value))
}

func writeCurrencyCell(b *strings.Builder, value float64) {
	fmt.Fprintf(b, `<Cell ss:StyleID="sCurrency"><Data ss:Type="Number">%s</Data></Cell>`+"\n", formatNumber(value))
}

func writeCostRow(b *strings.Builder, label string, value float64) {
	b.WriteString("<Row>\n")
	writeStringCell(b, label)
	writeCurrencyCell(b, value)
	b.WriteString("</Row>\n")
}

// Numeric cells carry full precision; display formatting belongs to the
// spreadsheet styles.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string {
	return xmlReplacer.Replace(s)
}
