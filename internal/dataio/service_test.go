package dataio

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mouldworks/mouldworks/internal/inventory"
	"github.com/mouldworks/mouldworks/internal/masterdata/locations"
	mdshared "github.com/mouldworks/mouldworks/internal/masterdata/shared"
)

type fakeItems struct {
	nextID int64
	items  []inventory.Item
}

func (f *fakeItems) All(_ context.Context) ([]inventory.Item, error) {
	return f.items, nil
}

func (f *fakeItems) Create(_ context.Context, item inventory.Item, _ int64) (inventory.Item, error) {
	f.nextID++
	item.ID = f.nextID
	f.items = append(f.items, item)
	return item, nil
}

func (f *fakeItems) Update(_ context.Context, id int64, item inventory.Item, _ int64) error {
	for i := range f.items {
		if f.items[i].ID == id {
			item.ID = id
			f.items[i] = item
			return nil
		}
	}
	return inventory.ErrNotFound
}

type fakeLocations struct {
	nextID int64
	locs   []locations.Location
}

func (f *fakeLocations) All(_ context.Context) ([]locations.Location, error) {
	return f.locs, nil
}

func (f *fakeLocations) Create(_ context.Context, loc locations.Location, _ int64) (locations.Location, error) {
	f.nextID++
	loc.ID = f.nextID
	f.locs = append(f.locs, loc)
	return loc, nil
}

func (f *fakeLocations) Update(_ context.Context, id int64, loc locations.Location, _ int64) error {
	for i := range f.locs {
		if f.locs[i].ID == id {
			loc.ID = id
			f.locs[i] = loc
			return nil
		}
	}
	return mdshared.ErrNotFound
}

func newTestService() (*Service, *fakeItems, *fakeLocations) {
	svc := NewService(nil)
	items := &fakeItems{}
	locs := &fakeLocations{}
	svc.RegisterItems(items)
	svc.RegisterLocations(locs)
	return svc, items, locs
}

func TestTemplateMarksRequiredColumns(t *testing.T) {
	svc, _, _ := newTestService()
	data, err := svc.Template("locations")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "code*,name*,zone,location_type,max_capacity", lines[0])
	require.Contains(t, lines[1], "C-01")

	_, err = svc.Template("widgets")
	require.ErrorIs(t, err, ErrUnknownEntity)
}

func TestImportCreatesThenUpdates(t *testing.T) {
	svc, items, _ := newTestService()
	ctx := context.Background()

	csvData := "sku*,name*,category,unit_cost\n" +
		"CLP-4020,Clip Housing,clips,0.12\n" +
		"BRK-1010,Bracket,brackets,0.45\n"
	result, err := svc.Import(ctx, "items", strings.NewReader(csvData), 1)
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)
	require.Equal(t, 0, result.Updated)
	require.Equal(t, 0, result.Errors)
	require.Len(t, items.items, 2)

	// Re-importing the same file updates in place, no duplicates.
	result, err = svc.Import(ctx, "items", strings.NewReader(csvData), 1)
	require.NoError(t, err)
	require.Equal(t, 0, result.Created)
	require.Equal(t, 2, result.Updated)
	require.Len(t, items.items, 2)
}

func TestImportMatchesCaseInsensitive(t *testing.T) {
	svc, items, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Import(ctx, "items",
		strings.NewReader("sku,name\nclp-4020,Clip Housing\n"), 1)
	require.NoError(t, err)

	result, err := svc.Import(ctx, "items",
		strings.NewReader("sku,name\nCLP-4020,Clip Housing Mk2\n"), 1)
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)
	require.Len(t, items.items, 1)
	require.Equal(t, "Clip Housing Mk2", items.items[0].Name)
}

func TestImportNonEmptyFieldsOnly(t *testing.T) {
	svc, items, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Import(ctx, "items",
		strings.NewReader("sku,name,category,unit_cost\nCLP-4020,Clip Housing,clips,0.12\n"), 1)
	require.NoError(t, err)

	// Blank cells leave stored values alone.
	_, err = svc.Import(ctx, "items",
		strings.NewReader("sku,name,category,unit_cost\nCLP-4020,Clip Housing,,0.15\n"), 1)
	require.NoError(t, err)
	require.Equal(t, "clips", items.items[0].Category)
	require.Equal(t, "0.15", items.items[0].UnitCost.String())
}

func TestImportHeaderNormalization(t *testing.T) {
	svc, items, _ := newTestService()

	// BOM on the first header, asterisks, mixed case, padding.
	csvData := "\uFEFFSKU*, Name* ,CATEGORY\nCLP-4020,Clip Housing,clips\n"
	result, err := svc.Import(context.Background(), "items", strings.NewReader(csvData), 1)
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	require.Equal(t, "CLP-4020", items.items[0].SKU)
	require.Equal(t, "clips", items.items[0].Category)
}

func TestImportKeepsGoingOnRowErrors(t *testing.T) {
	svc, items, _ := newTestService()

	csvData := "sku,name,unit_cost\n" +
		"CLP-4020,Clip Housing,0.12\n" +
		",Missing SKU,0.10\n" +
		"BRK-1010,Bracket,not-a-number\n" +
		"WSH-2030,Washer,0.02\n"
	result, err := svc.Import(context.Background(), "items", strings.NewReader(csvData), 1)
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)
	require.Equal(t, 2, result.Errors)
	require.Len(t, items.items, 2)
	require.Contains(t, result.ErrorMessages[0], "Row 3:")
	require.Contains(t, result.ErrorMessages[0], "sku")
	require.Contains(t, result.ErrorMessages[1], "Row 4:")
}

func TestImportSkipsBlankRows(t *testing.T) {
	svc, _, _ := newTestService()

	csvData := "sku,name\nCLP-4020,Clip Housing\n,\n"
	result, err := svc.Import(context.Background(), "items", strings.NewReader(csvData), 1)
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	require.Equal(t, 0, result.Errors)
}

func TestImportEmptyFile(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Import(context.Background(), "items", strings.NewReader(""), 1)
	require.ErrorIs(t, err, ErrValidation)
}

func TestExportRoundTrips(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Import(ctx, "locations",
		strings.NewReader("code,name,zone,location_type\nC-01,Container 1,yard,container\n"), 1)
	require.NoError(t, err)

	data, err := svc.Export(ctx, "locations")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Equal(t, "code,name,zone,location_type,max_capacity", lines[0])
	require.Equal(t, "C-01,Container 1,yard,container,", lines[1])

	// An exported file imports back as pure updates.
	result, err := svc.Import(ctx, "locations", bytes.NewReader(data), 1)
	require.NoError(t, err)
	require.Equal(t, 0, result.Created)
	require.Equal(t, 1, result.Updated)
}

func TestBackupBundlesEveryEntity(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Import(ctx, "items", strings.NewReader("sku,name\nCLP-4020,Clip Housing\n"), 1)
	require.NoError(t, err)

	data, err := svc.Backup(ctx, 1)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	names := []string{zr.File[0].Name, zr.File[1].Name}
	require.Contains(t, names[0]+names[1], "items-")
	require.Contains(t, names[0]+names[1], "locations-")
}
