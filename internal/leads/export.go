package leads

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"clinic-crm/internal/access"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Leads"

var exportHeader = []string{
	"ID", "Name", "Phone", "Email", "Country", "Source", "Treatment", "Status", "Stage",
	"Assigned To", "Price", "Deposit", "Currency", "Sale Date", "Arrival Date",
	"Next Follow-up", "Created At",
}

// Export renders every lead the filter selects for the caller as an xlsx
// workbook.
func (s *Service) Export(ctx context.Context, actor access.Identity, filter ListFilter) ([]byte, error) {
	query, ok, err := s.resolveFilter(actor, filter)
	if err != nil {
		return nil, err
	}
	items := []Lead{}
	if ok {
		if items, err = s.repo.List(ctx, query, 0, 0); err != nil {
			return nil, err
		}
	}
	return writeWorkbook(items, s.opts.Location)
}

func writeWorkbook(items []Lead, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	if err := writeRow(f, 1, toAny(exportHeader)); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("apply header style: %w", err)
	}

	for i, lead := range items {
		row := []interface{}{
			lead.ID,
			lead.Name,
			lead.Phone,
			lead.Email,
			lead.Country,
			lead.Source,
			lead.Treatment,
			string(lead.Status),
			string(lead.Stage()),
			lead.AssignedTo,
			lead.Price.String(),
			lead.Deposit.String(),
			lead.Currency,
			lead.SaleDate,
			lead.ArrivalDate,
			lead.NextFollowUpDate,
			lead.CreatedAt.In(loc).Format("2006-01-02 15:04"),
		}
		if err := writeRow(f, i+2, row); err != nil {
			return nil, err
		}
	}

	if err := f.SetColWidth(exportSheet, "A", "Q", 18); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func toAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
