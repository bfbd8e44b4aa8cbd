package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
)

// Kind identifies an archive format
type Kind string

const (
	Zip   Kind = "zip"
	TarGz Kind = "tar.gz"
	TarBz Kind = "tar.bz2"
	TarXz Kind = "tar.xz"
)

// KindFor detects the archive format from a file name or URL
func KindFor(name string) (Kind, error) {
	switch {
	case strings.HasSuffix(name, ".zip"):
		return Zip, nil
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return TarGz, nil
	case strings.HasSuffix(name, ".tar.bz2"):
		return TarBz, nil
	case strings.HasSuffix(name, ".tar.xz"):
		return TarXz, nil
	}
	return "", eris.Errorf("Archive format of %s not supported", name)
}

type ExtractOptions struct {
	// Kind overrides format detection from the archive name
	Kind Kind
	// Strip removes this many leading path components from every entry
	Strip int
	// MarkExec lists paths (relative to the destination) which get the executable bit. Zip files don't carry
	// permissions.
	MarkExec []string
}

type extractor func(f *os.File, bar *progressbar.ProgressBar, dest string, opts ExtractOptions) error

// Extract unpacks archivePath into dest
func Extract(ctx context.Context, archivePath, dest string, opts ExtractOptions) error {
	kind := opts.Kind
	if kind == "" {
		var err error
		kind, err = KindFor(archivePath)
		if err != nil {
			return err
		}
	}

	var extract extractor
	switch kind {
	case Zip:
		extract = extractZip
	case TarGz:
		extract = func(f *os.File, bar *progressbar.ProgressBar, dest string, opts ExtractOptions) error {
			reader, err := gzip.NewReader(f)
			if err != nil {
				return eris.Wrap(err, "Failed to open gzip stream")
			}
			defer reader.Close()

			return extractTar(reader, f, bar, dest, opts)
		}
	case TarBz:
		extract = func(f *os.File, bar *progressbar.ProgressBar, dest string, opts ExtractOptions) error {
			return extractTar(bzip2.NewReader(f), f, bar, dest, opts)
		}
	case TarXz:
		extract = func(f *os.File, bar *progressbar.ProgressBar, dest string, opts ExtractOptions) error {
			reader, err := xz.NewReader(f)
			if err != nil {
				return eris.Wrap(err, "Failed to open xz stream")
			}

			return extractTar(reader, f, bar, dest, opts)
		}
	default:
		return eris.Errorf("Archive format %s not supported", kind)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to open %s", archivePath))
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to stat %s", archivePath))
	}

	api.Log(ctx).Debug().Str("archive", archivePath).Str("dest", dest).Msg("Extracting")
	bar := api.NewProgressBar(ctx, stat.Size(), "      extract")
	err = extract(f, bar, dest, opts)
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to extract %s", archivePath))
	}
	bar.Finish()

	for _, binPath := range opts.MarkExec {
		binPath = filepath.Join(dest, binPath)
		fi, err := os.Stat(binPath)
		if err != nil {
			return eris.Wrapf(err, "Failed to read permissions for %s", binPath)
		}

		err = os.Chmod(binPath, fi.Mode()|0700)
		if err != nil {
			return eris.Wrapf(err, "Failed to mark %s as executable", binPath)
		}
	}

	return nil
}

// entryDest maps an archive entry to its location below destPath. An empty result means the entry vanished
// completely through stripping.
func entryDest(destPath, item string, strip int) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimLeft(item, "/")))
	parts := strings.Split(cleaned, string(filepath.Separator))
	if len(parts) <= strip {
		return "", nil
	}

	dest := filepath.Join(destPath, filepath.Join(parts[strip:]...))
	if dest == destPath {
		return "", nil
	}

	if !within(destPath, dest) {
		return "", eris.Errorf("Archive entry %s points outside of the destination", item)
	}
	return dest, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// checkParent makes sure symlinks created by earlier entries don't redirect dest out of destPath
func checkParent(destPath, dest string) error {
	root, err := filepath.EvalSymlinks(destPath)
	if err != nil {
		return eris.Wrapf(err, "Failed to resolve %s", destPath)
	}

	parent, err := filepath.EvalSymlinks(filepath.Dir(dest))
	if err != nil {
		return eris.Wrapf(err, "Failed to resolve %s", filepath.Dir(dest))
	}

	if !within(root, parent) {
		return eris.Errorf("Archive entry %s is placed outside of the destination through a symlink", dest)
	}
	return nil
}

func openExtractorDest(destPath, item string, strip int, mode fs.FileMode) (*os.File, string, error) {
	dest, err := entryDest(destPath, item, strip)
	if err != nil || dest == "" {
		return nil, "", err
	}

	destParent := filepath.Dir(dest)
	err = os.MkdirAll(destParent, os.FileMode(0755))
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create directory %s", destParent)
	}

	err = checkParent(destPath, dest)
	if err != nil {
		return nil, "", err
	}

	// never write through a symlink left at the entry's own path
	if fi, err := os.Lstat(dest); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		err = os.Remove(dest)
		if err != nil {
			return nil, "", eris.Wrapf(err, "Failed to remove symlink %s", dest)
		}
	}

	destHandle, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create file %s", dest)
	}

	return destHandle, dest, nil
}

func copyEntry(r io.Reader, w io.Writer, f *os.File, bar *progressbar.ProgressBar, name string) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, wErr := w.Write(buf[:n])
			if wErr != nil {
				return eris.Wrapf(wErr, "Failed to write extracted file %s", name)
			}
		}

		if err != nil {
			if err == io.EOF {
				break
			}
			return eris.Wrapf(err, "Failed to read archive entry %s", name)
		}

		pos, err := f.Seek(0, io.SeekCurrent)
		if err == nil {
			bar.Set64(pos)
		}
	}
	return nil
}

func extractZip(f *os.File, bar *progressbar.ProgressBar, destPath string, opts ExtractOptions) error {
	stat, err := f.Stat()
	if err != nil {
		return err
	}

	archive, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return eris.Wrap(err, "Failed to open zip archive")
	}

	for _, item := range archive.File {
		if strings.HasSuffix(item.Name, "/") {
			continue
		}

		err := func() error {
			destHandle, dest, err := openExtractorDest(destPath, item.Name, opts.Strip, 0644)
			if err != nil || destHandle == nil {
				return err
			}
			defer destHandle.Close()

			itemHandle, err := item.Open()
			if err != nil {
				return eris.Wrap(err, "Failed to open archive entry")
			}
			defer itemHandle.Close()

			err = copyEntry(itemHandle, destHandle, f, bar, item.Name)
			if err != nil {
				return err
			}
			return eris.Wrapf(destHandle.Close(), "Failed to close %s", dest)
		}()
		if err != nil {
			return err
		}
	}

	return nil
}

func extractTar(r io.Reader, f *os.File, bar *progressbar.ProgressBar, destPath string, opts ExtractOptions) error {
	archive := tar.NewReader(r)

	for {
		item, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return eris.Wrap(err, "Failed to read archive entry")
		}

		fi := item.FileInfo()
		if fi.IsDir() {
			continue
		}

		if item.Typeflag == tar.TypeSymlink {
			dest, err := entryDest(destPath, item.Name, opts.Strip)
			if err != nil {
				return err
			}
			if dest == "" {
				continue
			}

			if filepath.IsAbs(item.Linkname) || !within(destPath, filepath.Join(filepath.Dir(dest), item.Linkname)) {
				return eris.Errorf("Symlink %s points outside of the destination (%s)", item.Name, item.Linkname)
			}

			err = os.MkdirAll(filepath.Dir(dest), 0755)
			if err != nil {
				return eris.Wrapf(err, "Failed to create directory %s", filepath.Dir(dest))
			}

			err = checkParent(destPath, dest)
			if err != nil {
				return err
			}

			os.Remove(dest)
			err = os.Symlink(item.Linkname, dest)
			if err != nil {
				return eris.Wrapf(err, "Failed to create symlink %s pointing to %s", dest, item.Linkname)
			}
			continue
		}

		// hard links, devices and fifos are skipped
		if item.Typeflag != tar.TypeReg {
			continue
		}

		mode := fi.Mode().Perm()
		if mode == 0 {
			mode = 0644
		}

		err = func() error {
			destHandle, dest, err := openExtractorDest(destPath, item.Name, opts.Strip, mode)
			if err != nil || destHandle == nil {
				return err
			}
			defer destHandle.Close()

			err = os.Chmod(dest, mode)
			if err != nil {
				return eris.Wrapf(err, "Failed to set permissions on %s", dest)
			}

			err = copyEntry(archive, destHandle, f, bar, item.Name)
			if err != nil {
				return err
			}
			return eris.Wrapf(destHandle.Close(), "Failed to close %s", dest)
		}()
		if err != nil {
			return err
		}
	}

	return nil
}
