package datasource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanderheijden86/composer/pkg/model"
	"github.com/vanderheijden86/composer/pkg/testutil"
)

func TestLoadFormats(t *testing.T) {
	dir := t.TempDir()
	want := testutil.Sample()

	jsonPath := testutil.WriteDocument(t, filepath.Join(dir, "page.json"), want)
	yamlPath := testutil.WriteDocument(t, filepath.Join(dir, "page.yaml"), want)
	dbPath := filepath.Join(dir, "page.db")
	require.NoError(t, WriteSQLite(context.Background(), dbPath, want))

	for _, path := range []string{jsonPath, yamlPath, dbPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadSQLiteStyleForms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.sqlite")
	require.NoError(t, WriteSQLite(context.Background(), path, []model.Entity{{ID: "a", Kind: model.KindPage}}))

	r, err := NewSQLiteReader(DataSource{Type: SourceTypeSQLite, Path: path})
	require.NoError(t, err)
	defer r.Close()
	got, err := r.LoadEntities(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Style)
	assert.Nil(t, got[0].Props)

	assert.Equal(t, []string{"a", "b"}, parseStyle(`["a","b"]`))
	assert.Equal(t, []string{"a", "b"}, parseStyle(" a  b "))
	assert.Nil(t, parseStyle(""))

	_, err = NewSQLiteReader(DataSource{Type: SourceTypeJSON, Path: path})
	assert.Error(t, err)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "notes.txt"))
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"entities": [`), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	got, err := Load(empty)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadDropsEntitiesWithoutID(t *testing.T) {
	path := testutil.WriteDocument(t, filepath.Join(t.TempDir(), "page.json"), []model.Entity{
		{ID: "a", Kind: model.KindPage},
		{Kind: model.KindComponent},
	})
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, testutil.IDs(got))
}

func TestLoadDirOrdersByFileName(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteDocument(t, filepath.Join(dir, "b.yaml"), []model.Entity{
		{ID: "b1", Kind: model.KindPage},
		{ID: "shared", Kind: model.KindPage, Name: "from b"},
	})
	testutil.WriteDocument(t, filepath.Join(dir, "a.json"), []model.Entity{
		{ID: "a1", Kind: model.KindPage},
		{ID: "shared", Kind: model.KindPage, Name: "from a"},
	})
	require.NoError(t, WriteSQLite(context.Background(), filepath.Join(dir, "c.db"),
		[]model.Entity{{ID: "c1", Kind: model.KindPage}}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("#"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.json"), []byte("{"), 0o644))

	got, err := LoadDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "shared", "b1", "c1"}, testutil.IDs(got))
	assert.Equal(t, "from a", testutil.Find(got, "shared").Name)

	viaPath, err := LoadPath(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, got, viaPath)
}

func TestLoadDirFailsOnBadDocument(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteDocument(t, filepath.Join(dir, "a.json"), testutil.Sample())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte("nope"), 0o644))

	_, err := LoadDir(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.json")
}

func TestLoadDirHonorsCancellation(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteDocument(t, filepath.Join(dir, "a.json"), testutil.Sample())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LoadDir(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectAndValidateSource(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteDocument(t, filepath.Join(dir, "page.yml"), testutil.Sample())

	src, err := DetectSource(path)
	require.NoError(t, err)
	assert.Equal(t, SourceTypeYAML, src.Type)
	assert.Positive(t, src.Size)

	require.NoError(t, ValidateSource(&src))
	assert.True(t, src.Valid)
	assert.Equal(t, 5, src.EntityCount)
	assert.Contains(t, src.String(), "valid")

	badPath := testutil.WriteDocument(t, filepath.Join(dir, "bad.json"), []model.Entity{
		{ID: "x", Kind: "widget"},
		{ID: "y", ParentID: "y"},
	})
	bad, err := DetectSource(badPath)
	require.NoError(t, err)
	require.Error(t, ValidateSource(&bad))
	assert.False(t, bad.Valid)
	assert.Contains(t, bad.ValidationError, "unknown kind")
	assert.Contains(t, bad.ValidationError, "itself")

	_, err = DetectSource(dir)
	assert.Error(t, err)
}

func TestDiff(t *testing.T) {
	before := testutil.Sample()
	after := testutil.Sample()
	after = after[:len(after)-1] // drop title
	after[3].Props = map[string]string{"content": "Go"}
	after[2].ParentID = "root"
	after = append(after, model.Entity{ID: "footer", ParentID: "root", Kind: model.KindContainer})

	d := Diff(before, after)
	assert.Equal(t, []string{"footer"}, d.Added)
	assert.Equal(t, []string{"title"}, d.Removed)
	assert.Equal(t, []string{"card"}, d.Moved)
	assert.Equal(t, []string{"button"}, d.Changed)
	assert.True(t, d.Structural())
	assert.Contains(t, d.Summary(), "1 added (footer)")

	same := Diff(before, testutil.Sample())
	assert.False(t, same.HasChanges())
	assert.Equal(t, "no changes (5 entities)", same.Summary())
}

func TestSaveRoundTrips(t *testing.T) {
	dir := t.TempDir()
	want := testutil.Sample()
	for _, name := range []string{"out.json", "out.yml", "out.sqlite"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Save(context.Background(), path, want))
			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	err := Save(context.Background(), filepath.Join(dir, "out.txt"), want)
	assert.ErrorIs(t, err, ErrUnsupported)
}
