// Package submission packs the latest run for a speedrun.com submission.
package submission

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
)

const (
	LatestWorldFile = "latest_world.json"
	lastWorlds      = 5
	lastLogs        = 3
)

type dirInfo struct {
	name  string
	mtime int64
}

// LatestWorld returns the cleaned world_path recorded by SpeedRunIGT
func LatestWorld(ctx context.Context) (string, error) {
	jsonPath := filepath.Join(api.PathsFrom(ctx).SpeedrunIGT(), LatestWorldFile)
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return "", exitcode.Errorf(exitcode.State, "%s not found. Finish a run with SpeedRunIGT first.", jsonPath)
		}
		return "", exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to read %s", jsonPath))
	}

	if !gjson.ValidBytes(data) {
		return "", exitcode.Errorf(exitcode.State, "%s is not valid JSON", jsonPath)
	}

	world := gjson.GetBytes(data, "world_path")
	if world.Type != gjson.String || world.String() == "" {
		return "", exitcode.Errorf(exitcode.State, "%s doesn't contain a world_path", jsonPath)
	}
	return filepath.Clean(world.String()), nil
}

// Build creates SRC-Submission-<date>-<time>.zip in outDir and returns its path. The archive holds the latest world,
// the five worlds played before it (Last5/), worlds created after it (Background/) and the newest three logs.
func Build(ctx context.Context, outDir string) (string, error) {
	return build(ctx, outDir, time.Now())
}

func build(ctx context.Context, outDir string, now time.Time) (string, error) {
	ctx = api.WithTask(ctx, "submission")

	if info, err := os.Stat(outDir); err != nil || !info.IsDir() {
		return "", exitcode.Errorf(exitcode.Misuse, "Output directory %s does not exist", outDir)
	}

	worldPath, err := LatestWorld(ctx)
	if err != nil {
		return "", err
	}

	savesDir := filepath.Dir(worldPath)
	mcDir := filepath.Dir(savesDir)
	worldName := filepath.Base(worldPath)

	latest, err := os.Stat(worldPath)
	if err != nil || !latest.IsDir() {
		return "", exitcode.Errorf(exitcode.State, "The latest world %s does not exist anymore", worldPath)
	}
	latestMtime := latest.ModTime().Unix()

	older, newer, err := neighbours(savesDir, worldName, latestMtime)
	if err != nil {
		return "", err
	}

	// closest to the latest world first
	sort.SliceStable(older, func(a, b int) bool {
		return older[a].mtime > older[b].mtime
	})
	if len(older) > lastWorlds {
		older = older[:lastWorlds]
	}

	logs, err := newestFiles(filepath.Join(mcDir, "logs"), lastLogs)
	if err != nil {
		return "", err
	}

	name := "SRC-Submission-" + now.Format("2006-01-02-15-04-05") + ".zip"
	dest := filepath.Join(outDir, name)

	tmp, err := os.CreateTemp(outDir, "."+name+".*.part")
	if err != nil {
		return "", exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to create %s", dest))
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	archive := zip.NewWriter(tmp)
	api.Log(ctx).Info().Str("world", worldName).Msg("Packing latest world")
	err = addNestedZip(archive, worldName+".zip", savesDir, worldName)
	if err != nil {
		return "", err
	}

	for _, world := range older {
		api.Log(ctx).Debug().Str("world", world.name).Msg("Packing previous world")
		err = addNestedZip(archive, "Last5/"+world.name+".zip", savesDir, world.name)
		if err != nil {
			return "", err
		}
	}

	for _, world := range newer {
		api.Log(ctx).Debug().Str("world", world.name).Msg("Packing background world")
		err = addNestedZip(archive, "Background/"+world.name+".zip", savesDir, world.name)
		if err != nil {
			return "", err
		}
	}

	for _, logPath := range logs {
		err = addFile(archive, "logs/"+filepath.Base(logPath), logPath)
		if err != nil {
			return "", err
		}
	}

	err = archive.Close()
	if err == nil {
		err = tmp.Close()
	}
	if err != nil {
		return "", exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to write %s", dest))
	}

	err = os.Rename(tmp.Name(), dest)
	if err != nil {
		return "", exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to move archive to %s", dest))
	}

	api.Log(ctx).Info().Str("path", dest).Int("previous", len(older)).Int("background", len(newer)).
		Int("logs", len(logs)).Msg("Submission archive created")
	return dest, nil
}

// neighbours splits the other world directories into those modified before and after the latest world. Symlinked
// practice maps are ignored.
func neighbours(savesDir, latest string, latestMtime int64) (older, newer []dirInfo, err error) {
	entries, err := os.ReadDir(savesDir)
	if err != nil {
		return nil, nil, exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to list %s", savesDir))
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == latest {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		mtime := info.ModTime().Unix()
		switch {
		case mtime < latestMtime:
			older = append(older, dirInfo{entry.Name(), mtime})
		case mtime > latestMtime:
			newer = append(newer, dirInfo{entry.Name(), mtime})
		}
	}
	return older, newer, nil
}

// newestFiles returns up to n regular files of dir, newest first. A missing dir yields no files.
func newestFiles(dir string, n int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to list %s", dir))
	}

	files := make([]dirInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, dirInfo{entry.Name(), info.ModTime().UnixNano()})
	}

	sort.SliceStable(files, func(a, b int) bool {
		return files[a].mtime > files[b].mtime
	})
	if len(files) > n {
		files = files[:n]
	}

	result := make([]string, len(files))
	for idx, file := range files {
		result[idx] = filepath.Join(dir, file.name)
	}
	return result, nil
}

// addNestedZip stores baseDir/dir as a zip archive named entryName inside archive. Paths in the nested archive
// start with dir.
func addNestedZip(archive *zip.Writer, entryName, baseDir, dir string) error {
	w, err := archive.CreateHeader(&zip.FileHeader{
		Name:     entryName,
		Method:   zip.Store,
		Modified: time.Now(),
	})
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to add %s", entryName))
	}

	nested := zip.NewWriter(w)
	err = addTree(nested, baseDir, dir)
	if err != nil {
		return err
	}
	return exitcode.Wrap(exitcode.IO, eris.Wrapf(nested.Close(), "Failed to finish %s", entryName))
}

func addTree(archive *zip.Writer, baseDir, dir string) error {
	root := filepath.Join(baseDir, dir)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			hdr, err := zip.FileInfoHeader(info)
			if err != nil {
				return err
			}
			hdr.Name = name + "/"
			_, err = archive.CreateHeader(hdr)
			return err
		case d.Type().IsRegular():
			return addFile(archive, name, path)
		}
		return nil
	})

	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to pack %s", root))
	}
	return nil
}

func addFile(archive *zip.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to open %s", path))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to stat %s", path))
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to build zip header for %s", path))
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := archive.CreateHeader(hdr)
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to add %s", name))
	}

	_, err = io.Copy(w, f)
	return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to pack %s", path))
}
