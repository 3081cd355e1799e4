package module

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/smog/pkg/value"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestResolveUserDirFlatFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "greet.so"), "var hi = 1;")

	l := New(value.NewInterner(), dir)
	got, err := l.resolve("greet")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "greet.so"), got)
}

func TestResolveIndexFileForDottedPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pkg", "sub", "index.so"), "var x = 1;")

	l := New(value.NewInterner(), dir)
	got, err := l.resolve("pkg.sub")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "pkg", "sub", "index.so"), got)
}

func TestResolveVendorTakesPriorityOverUser(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "vendor", "lib.so"), "var v = 1;")
	writeFile(t, filepath.Join(dir, "lib.so"), "var u = 1;")

	l := New(value.NewInterner(), dir)
	got, err := l.resolve("lib")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "vendor", "lib.so"), got, "vendor copy should win")
}

func TestResolveRelativeSingleDotIsCurrentDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	writeFile(t, filepath.Join(sub, "helper.so"), "var h = 1;")

	l := New(value.NewInterner(), dir)
	l.dirStack = []string{sub}
	got, err := l.resolve(".helper")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sub, "helper.so"), got)
}

func TestResolveRelativeDoubleDotWalksUp(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	writeFile(t, filepath.Join(dir, "sibling.so"), "var s = 1;")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	l := New(value.NewInterner(), dir)
	l.dirStack = []string{sub}
	got, err := l.resolve("..sibling")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sibling.so"), got)
}

func TestResolveNotFound(t *testing.T) {
	l := New(value.NewInterner(), t.TempDir())
	_, err := l.resolve("missing")
	assert.Error(t, err)
}

func TestLoadNativeUnregistered(t *testing.T) {
	l := New(value.NewInterner(), t.TempDir())
	_, err := l.LoadNative(nil, "_nope")
	assert.Error(t, err)
}

func TestModuleLocalName(t *testing.T) {
	for _, tt := range []struct{ path, want string }{
		{"a.b.c", "c"},
		{".x", "x"},
		{"..y.z", "z"},
		{"solo", "solo"},
	} {
		assert.Equal(t, tt.want, moduleLocalName(tt.path), tt.path)
	}
}
