package fetch

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
)

var errFound = eris.New("found")

// FindDir returns the first directory named name below root (root included) in lexical walk order
func FindDir(root, name string) (string, error) {
	result := ""
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == name {
			result = path
			return errFound
		}
		return nil
	})

	if err != nil && !eris.Is(err, errFound) {
		return "", exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to search %s", root))
	}
	if result == "" {
		return "", exitcode.Wrap(exitcode.IO, eris.Wrapf(os.ErrNotExist, "No directory named %s in %s", name, root))
	}
	return result, nil
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "Failed to open %s", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", dst)
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	if err != nil {
		return eris.Wrapf(err, "Failed to copy %s to %s", src, dst)
	}
	return eris.Wrapf(out.Close(), "Failed to write %s", dst)
}

// CopyTree copies the directory src to dst. Symlinks are recreated, not followed.
func CopyTree(src, dst string) error {
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			os.Remove(target)
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return copyFile(path, target, info.Mode())
		}
		return nil
	})

	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to copy %s to %s", src, dst))
	}
	return nil
}
