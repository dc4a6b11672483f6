package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/neurodesk/templateparser/pkg/cache"
	"github.com/neurodesk/templateparser/pkg/template"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRenderFile(t *testing.T) {
	dir := t.TempDir()
	page := writeFile(t, filepath.Join(dir, "page.tpl"),
		"Hi [name]!{{ for x in [items] }} [x]{{ endfor }}{{ if [admin] }} (admin){{ endif }}{{ inline footer }}")
	writeFile(t, filepath.Join(dir, "footer.txt"), " -- [site]")
	data := writeFile(t, filepath.Join(dir, "data.yaml"), "name: Ada\nitems: [1, 2]\nadmin: false\nsite: example\n")

	out, err := run(t, "render", page, "--data", data, "--set", "admin=true", "--set", "site=docs")
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada! 1 2 (admin) -- docs", out)
}

func TestRenderWithConfig(t *testing.T) {
	dir := t.TempDir()
	tpls := filepath.Join(dir, "templates")
	writeFile(t, filepath.Join(tpls, "hello.tpl"), "[greeting], [name]")
	storeDir := filepath.Join(dir, "pages")
	cfg := writeFile(t, filepath.Join(dir, "tagrender.yaml"),
		"template_dir: "+tpls+"\nstore_dir: "+storeDir+"\ndefaults:\n  greeting: Hello\n  name: world\n")

	out, err := run(t, "--config", cfg, "render", "hello", "--set", "name=Bob", "--store")
	require.NoError(t, err)
	assert.Equal(t, "Hello, Bob", out)

	s, err := cache.NewStore(storeDir)
	require.NoError(t, err)
	page, ok, err := s.Get(cache.PageKey("Hello, Bob"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hello, Bob", page)
}

func TestRenderStoreNeedsDir(t *testing.T) {
	page := writeFile(t, filepath.Join(t.TempDir(), "p.tpl"), "x")
	_, err := run(t, "render", page, "--store")
	assert.ErrorContains(t, err, "store_dir")
}

func TestRenderError(t *testing.T) {
	page := writeFile(t, filepath.Join(t.TempDir(), "p.tpl"), "{{ if [missing] > 1 }}x{{ endif }}")
	_, err := run(t, "render", page)
	assert.ErrorIs(t, err, template.ErrUnresolvedTag)
}

func TestRenderBadSet(t *testing.T) {
	page := writeFile(t, filepath.Join(t.TempDir(), "p.tpl"), "x")
	_, err := run(t, "render", page, "--set", "novalue")
	assert.ErrorContains(t, err, "want key=value")
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, filepath.Join(dir, "good.tpl"), "[a] [b]")
	bad := writeFile(t, filepath.Join(dir, "bad.tpl"), "{{ for x in [xs] }}")

	out, err := run(t, "check", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok   "+good+" (2 tags)")

	out, err = run(t, "check", good, bad)
	assert.ErrorContains(t, err, "1 of 2 templates failed")
	assert.Contains(t, out, "FAIL "+bad)
}

func TestTree(t *testing.T) {
	page := writeFile(t, filepath.Join(t.TempDir(), "p.tpl"), "A{{ if [x] }}B{{ endif }}")
	out, err := run(t, "tree", page)
	require.NoError(t, err)
	assert.Equal(t, "Template\n  Text(\"A\")\n  Conditional(if)\n    If(\"[x]\")\n      Text(\"B\")\n", out)
}

func TestConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, "--config", filepath.Join(dir, "missing.yaml"), "tree", "x")
	assert.Error(t, err, "explicit config must exist")

	unknown := writeFile(t, filepath.Join(dir, "unknown.yaml"), "template_dirs: x\n")
	_, err = run(t, "--config", unknown, "tree", "x")
	assert.ErrorContains(t, err, "decoding config file")

	badExt := writeFile(t, filepath.Join(dir, "ext.yaml"), "extensions: [tpl]\n")
	_, err = run(t, "--config", badExt, "tree", "x")
	assert.ErrorContains(t, err, "extensions[0]")

	badDefault := writeFile(t, filepath.Join(dir, "def.yaml"), "defaults:\n  x: \"{{ endif }}\"\n")
	_, err = run(t, "--config", badDefault, "tree", "x")
	assert.ErrorContains(t, err, "must not contain template directives")
}
