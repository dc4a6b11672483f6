package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/neurodesk/templateparser/pkg/cache"
	"github.com/neurodesk/templateparser/pkg/template"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeTemplate(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "page.tpl", "Hello [name]")
	writeTemplate(t, dir, "partials/footer.html", "-- [site]")
	writeTemplate(t, dir, "exact", "exact name")

	r := New(dir, WithLogger(zaptest.NewLogger(t)))

	for name, want := range map[string]string{
		"page":            "Hello [name]",
		"partials/footer": "-- [site]",
		"exact":           "exact name",
	} {
		tpl, err := r.Load(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, tpl.String(), name)
	}

	again, err := r.Load("page")
	require.NoError(t, err)
	first, err := r.Load("page")
	require.NoError(t, err)
	assert.Same(t, first, again)
}

func TestLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	for _, name := range []string{"missing", "../outside", "/etc/passwd"} {
		_, err := r.Load(name)
		assert.ErrorIs(t, err, template.ErrTemplateNotFound, name)
	}

	_, err := New("").Load("anything")
	assert.ErrorIs(t, err, template.ErrTemplateNotFound)
}

func TestLoadParseError(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "bad.tpl", "{{ if [x] }}never closed")
	_, err := New(dir).Load("bad")
	assert.ErrorIs(t, err, template.ErrUnclosedBlock)
}

func TestAddTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "page.tpl", "from disk")
	r := New(dir)
	require.NoError(t, r.Add("page", "from memory"))

	tpl, err := r.Load("page")
	require.NoError(t, err)
	assert.Equal(t, "from memory", tpl.String())

	assert.ErrorIs(t, r.Add("broken", "{{ endfor }}"), template.ErrUnexpectedDirective)
}

func TestRenderWithInline(t *testing.T) {
	c := cache.New()
	r := New("", WithCache(c))
	require.NoError(t, r.Add("layout", "<h1>[title]</h1>{{ for item in [items] }}{{ inline row }}{{ endfor }}"))
	require.NoError(t, r.Add("row", "<li>[item]</li>"))

	out, err := r.Render("layout", template.FromMap(map[string]any{
		"title": "List",
		"items": []string{"a", "b"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "<h1>List</h1><li>a</li><li>b</li>", out)
	assert.Equal(t, 2, c.Len())
}

func TestCachedTemplatesKeepTheirNames(t *testing.T) {
	c := cache.New()
	core, logs := observer.New(zapcore.DebugLevel)
	r := New("", WithCache(c), WithLogger(zap.New(core)))
	require.NoError(t, r.Add("first", "{{ if [x] > 1 }}big{{ endif }}"))
	require.NoError(t, r.Add("second", "{{ if [x] > 1 }}big{{ endif }}"))
	assert.Equal(t, 1, c.Len())

	first, err := r.Load("first")
	require.NoError(t, err)
	second, err := r.Load("second")
	require.NoError(t, err)
	assert.Equal(t, "first", first.Name)
	assert.Equal(t, "second", second.Name)

	_, err = r.Render("second", template.NewReplacements())
	require.ErrorIs(t, err, template.ErrUnresolvedTag)
	failed := logs.FilterMessage("render failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "second", failed[0].ContextMap()["template"])
}

func TestWatchReloadsChangedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "page.tpl", "version one")

	r := New(dir, WithLogger(zaptest.NewLogger(t)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Watch(ctx))
	defer func() { require.NoError(t, r.Close()) }()
	assert.ErrorIs(t, r.Watch(ctx), ErrWatching)

	tpl, err := r.Load("page")
	require.NoError(t, err)
	assert.Equal(t, "version one", tpl.String())

	require.NoError(t, os.WriteFile(path, []byte("version two"), 0o644))
	require.Eventually(t, func() bool {
		tpl, err := r.Load("page")
		return err == nil && tpl.String() == "version two"
	}, 5*time.Second, 20*time.Millisecond)

	// Let trailing write events drain, then make sure the new version is loaded.
	time.Sleep(100 * time.Millisecond)
	_, err = r.Load("page")
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	time.Sleep(100 * time.Millisecond)
	tpl, err = r.Load("page")
	require.NoError(t, err, "removed file keeps serving the last good template")
	assert.Equal(t, "version two", tpl.String())
}

func TestCloseWithoutWatch(t *testing.T) {
	assert.NoError(t, New(t.TempDir()).Close())
}
