package gallery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogLayout(t *testing.T) {
	cols := Catalog("")
	require.Len(t, cols, 3)
	assert.Equal(t, "Early Season", cols[0].Stage.Name)
	assert.Equal(t, "Late Season", cols[2].Stage.Name)
	require.Len(t, cols[1].Items, 3)
	it := cols[1].Items[1]
	assert.Equal(t, "Aido_38_soil_segmentation_2.gif", it.File)
	assert.Equal(t, "Aido_38 Mid Season", it.Caption)
	assert.False(t, it.Available)
	assert.Len(t, Missing(""), 9)
}

func TestCatalogAvailability(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Iceberg_230_soil_segmentation_1.gif"), []byte("GIF89a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Xanadu_143_soil_segmentation_3.gif"), 0o755))

	cols := Catalog(dir)
	assert.True(t, cols[0].Items[0].Available)
	assert.False(t, cols[2].Items[2].Available, "directories are not images")
	missing := Missing(dir)
	assert.Len(t, missing, 8)
	assert.NotContains(t, missing, "Iceberg_230_soil_segmentation_1.gif")
}
