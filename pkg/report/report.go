package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/screa/king-claimer/pkg/types"
)

// Sheet is the worksheet the results are written to
const Sheet = "Sheet1"

// Header lists the report columns in order
var Header = []string{"Address", "Amount", "Claim Status"}

// FormatAmount renders an amount with 16 decimals, or "0" when it is exactly zero
func FormatAmount(amount float64) string {
	if amount == 0 {
		return "0"
	}
	return fmt.Sprintf("%.16f", amount)
}

// Row returns the report cells for one result
func Row(r types.ItemResult) []string {
	return []string{r.Identity, FormatAmount(r.Amount), r.Status.String()}
}

// WriteXLSX writes results, already in input order, to an xlsx workbook
func WriteXLSX(path string, results []types.ItemResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := setRow(f, 1, Header); err != nil {
		return err
	}
	for i, r := range results {
		if err := setRow(f, i+2, Row(r)); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(Sheet, "A1", "C1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(Sheet, "A", "A", 46); err != nil {
		return fmt.Errorf("size columns: %w", err)
	}
	if err := f.SetColWidth(Sheet, "B", "C", 24); err != nil {
		return fmt.Errorf("size columns: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(Sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
