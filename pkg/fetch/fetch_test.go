package fetch

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
)

var payload = []byte("ninjabrain bot jar contents")

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newCtx(t *testing.T) context.Context {
	t.Helper()
	return api.WithLingleContext(context.Background(), api.LingleCtxParams{
		Paths: api.Paths{Home: t.TempDir()},
		Quiet: true,
	})
}

func newServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDownload(t *testing.T) {
	ctx := newCtx(t)
	var hits int32
	server := newServer(t, &hits)
	f := New(5*time.Second, nil)
	dest := filepath.Join(t.TempDir(), "apps", "nb.jar")

	digest, err := f.Download(ctx, server.URL+"/nb.jar", dest, digestOf(payload))
	require.NoError(t, err)
	assert.Equal(t, digestOf(payload), digest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestDownloadChecksumMismatch(t *testing.T) {
	ctx := newCtx(t)
	var hits int32
	server := newServer(t, &hits)
	f := New(5*time.Second, nil)
	dest := filepath.Join(t.TempDir(), "nb.jar")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0644))

	_, err := f.Download(ctx, server.URL+"/nb.jar", dest, "deadbeef")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrChecksum))
	assert.Equal(t, exitcode.Network, exitcode.From(err))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data), "a failed download leaves the previous file alone")

	_, err = f.Download(ctx, server.URL+"/missing", dest, "")
	assert.Equal(t, exitcode.Network, exitcode.From(err))
}

func TestDownloadOnce(t *testing.T) {
	ctx := newCtx(t)
	store, err := storage.Open(api.PathsFrom(ctx).StateDB())
	require.NoError(t, err)
	defer store.Close()

	var hits int32
	server := newServer(t, &hits)
	f := New(5*time.Second, store)
	dest := filepath.Join(t.TempDir(), "nb.jar")
	url := server.URL + "/nb.jar"

	_, skipped, err := f.DownloadOnce(ctx, "nb", url, dest, "")
	require.NoError(t, err)
	assert.False(t, skipped)

	digest, skipped, err := f.DownloadOnce(ctx, "nb", url, dest, "")
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Equal(t, digestOf(payload), digest)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	stamp, err := store.GetStamp(ctx, "nb")
	require.NoError(t, err)
	assert.Equal(t, url+"#"+digestOf(payload), stamp)

	require.NoError(t, os.Remove(dest))
	_, skipped, err = f.DownloadOnce(ctx, "nb", url, dest, "")
	require.NoError(t, err)
	assert.False(t, skipped, "a missing file is fetched again")
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

type tarEntry struct {
	name     string
	body     string
	mode     int64
	linkname string
	dir      bool
}

func writeTar(t *testing.T, w io.Writer, entries []tarEntry) {
	t.Helper()
	tw := tar.NewWriter(w)
	for _, entry := range entries {
		hdr := &tar.Header{Name: entry.name, Mode: entry.mode, Size: int64(len(entry.body)), Typeflag: tar.TypeReg}
		switch {
		case entry.dir:
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0755
		case entry.linkname != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = entry.linkname
			hdr.Size = 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(entry.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
}

var pluginEntries = []tarEntry{
	{name: "release/", dir: true},
	{name: "release/linux-pipewire-audio/bin/64bit/linux-pipewire-audio.so", body: "ELF", mode: 0755},
	{name: "release/linux-pipewire-audio/data/locale/en-US.ini", body: "x=y", mode: 0644},
	{name: "release/linux-pipewire-audio/bin/current", linkname: "64bit"},
}

func TestExtractTarGz(t *testing.T) {
	ctx := newCtx(t)
	dir := t.TempDir()
	archive := filepath.Join(dir, "plugin.tar.gz")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	writeTar(t, gz, pluginEntries)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, Extract(ctx, archive, dest, ExtractOptions{Strip: 1}))

	so := filepath.Join(dest, "linux-pipewire-audio", "bin", "64bit", "linux-pipewire-audio.so")
	info, err := os.Stat(so)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	link, err := os.Readlink(filepath.Join(dest, "linux-pipewire-audio", "bin", "current"))
	require.NoError(t, err)
	assert.Equal(t, "64bit", link)

	found, err := FindDir(dest, "linux-pipewire-audio")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "linux-pipewire-audio"), found)

	_, err = FindDir(dest, "nope")
	assert.True(t, eris.Is(err, os.ErrNotExist))
}

func TestExtractTarXz(t *testing.T) {
	ctx := newCtx(t)
	dir := t.TempDir()
	archive := filepath.Join(dir, "plugin.tar.xz")

	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	writeTar(t, xw, pluginEntries)
	require.NoError(t, xw.Close())
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, Extract(ctx, archive, dest, ExtractOptions{}))
	assert.FileExists(t, filepath.Join(dest, "release", "linux-pipewire-audio", "data", "locale", "en-US.ini"))
}

func TestExtractRejectsTraversal(t *testing.T) {
	ctx := newCtx(t)
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	writeTar(t, gz, []tarEntry{{name: "../../evil.sh", body: "rm -rf", mode: 0755}})
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0644))

	err := Extract(ctx, archive, filepath.Join(dir, "out"), ExtractOptions{})
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "evil.sh"))
}

func TestExtractZipMarkExec(t *testing.T) {
	ctx := newCtx(t)
	dir := t.TempDir()
	archive := filepath.Join(dir, "tool.zip")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{"tool/run.sh": "#!/bin/sh\n", "tool/README": "hi"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	_, err := zw.Create("tool/empty/")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, Extract(ctx, archive, dest, ExtractOptions{Strip: 1, MarkExec: []string{"run.sh"}}))

	info, err := os.Stat(filepath.Join(dest, "run.sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0100)
	assert.FileExists(t, filepath.Join(dest, "README"))
}

func TestKindFor(t *testing.T) {
	kind, err := KindFor("https://example.com/a.tar.bz2")
	require.NoError(t, err)
	assert.Equal(t, TarBz, kind)

	_, err = KindFor("a.rar")
	assert.Error(t, err)
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a", "b"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a", "b", "file"), []byte("data"), 0600))
	require.NoError(t, os.Symlink("b", filepath.Join(src, "a", "link")))

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, CopyTree(src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "a", "b", "file"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	link, err := os.Readlink(filepath.Join(dst, "a", "link"))
	require.NoError(t, err)
	assert.Equal(t, "b", link)
}
