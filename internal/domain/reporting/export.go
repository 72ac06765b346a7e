package reporting

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Revenue"

// WriteWorkbook writes points as a two-column xlsx sheet with a total row.
func WriteWorkbook(w io.Writer, title string, points []Point) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.SetDocProps(&excelize.DocProperties{Title: title, Creator: "hms"}); err != nil {
		return fmt.Errorf("set doc props: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return fmt.Errorf("money style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4, Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("total style: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &[]interface{}{"Period", "Revenue"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "B1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", "A", 14); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "B", "B", 16); err != nil {
		return err
	}

	for i, p := range points {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &[]interface{}{p.Period, p.Revenue.InexactFloat64()}); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	last := len(points) + 1
	if len(points) > 0 {
		if err := f.SetCellStyle(sheetName, "B2", fmt.Sprintf("B%d", last), moneyStyle); err != nil {
			return fmt.Errorf("style rows: %w", err)
		}
	}

	totalRow := last + 1
	if err := f.SetCellValue(sheetName, fmt.Sprintf("A%d", totalRow), "Total"); err != nil {
		return err
	}
	totalCell := fmt.Sprintf("B%d", totalRow)
	if err := f.SetCellValue(sheetName, totalCell, Total(points).InexactFloat64()); err != nil {
		return err
	}
	if len(points) > 0 {
		if err := f.SetCellFormula(sheetName, totalCell, fmt.Sprintf("SUM(B2:B%d)", last)); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheetName, fmt.Sprintf("A%d", totalRow), totalCell, totalStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
