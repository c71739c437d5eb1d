package leads

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func readExport(t *testing.T, data []byte) [][]string {
	t.Helper()
	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()

	assert.Equal(t, []string{exportSheet}, book.GetSheetList())
	rows, err := book.GetRows(exportSheet)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, exportHeader, rows[0])
	return rows[1:]
}

func TestExportScopesRowsToCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.create(t, ayla, "Mehmet", "5551234567")
	f.create(t, burak, "Zeynep", "5559876543")

	data, err := f.svc.Export(ctx, ayla, ListFilter{})
	require.NoError(t, err)
	rows := readExport(t, data)
	require.Len(t, rows, 1)
	assert.Equal(t, mine.ID, rows[0][0])
	assert.Equal(t, "Mehmet", rows[0][1])
	assert.Equal(t, "5551234567", rows[0][2])
	assert.Equal(t, "ayla", rows[0][9])
	assert.Equal(t, "EUR", rows[0][12])
	assert.Equal(t, mine.CreatedAt.In(f.svc.opts.Location).Format("2006-01-02 15:04"), rows[0][16])

	data, err = f.svc.Export(ctx, admin, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, readExport(t, data), 2)

	data, err = f.svc.Export(ctx, admin, ListFilter{AssignedTo: "burak"})
	require.NoError(t, err)
	rows = readExport(t, data)
	require.Len(t, rows, 1)
	assert.Equal(t, "Zeynep", rows[0][1])
}

func TestExportEmptyWorkbookKeepsHeader(t *testing.T) {
	f := newFixture(t)

	data, err := f.svc.Export(context.Background(), burak, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, readExport(t, data))
}
