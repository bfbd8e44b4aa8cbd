package install

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
)

// InstallApp downloads the first .jar of the latest release of entry.Repo into the apps directory
func (i *Installer) InstallApp(ctx context.Context, entry *Entry) (storage.AppRecord, error) {
	release, err := i.GitHub.LatestRelease(ctx, entry.Repo)
	if err != nil {
		return storage.AppRecord{}, err
	}

	asset, ok := release.Asset(".jar")
	if !ok {
		return storage.AppRecord{}, exitcode.Errorf(exitcode.Network, "No .jar found in the latest %s release (%s)",
			entry.Repo, release.TagName)
	}

	dest := filepath.Join(api.PathsFrom(ctx).AppsDir(), filepath.Base(asset.Name))
	digest, skipped, err := i.Fetcher.DownloadOnce(ctx, "app:"+entry.Name, asset.DownloadURL, dest, "")
	if err != nil {
		return storage.AppRecord{}, eris.Wrapf(err, "Failed to download %s", asset.Name)
	}
	if skipped {
		api.Log(ctx).Info().Str("app", entry.Name).Msg("Already up to date")
	}

	record := storage.AppRecord{
		Name:        entry.Name,
		Version:     release.Version(),
		Path:        dest,
		Sha256:      digest,
		InstalledAt: time.Now().UTC(),
	}
	if i.Store != nil {
		err = i.Store.RecordApp(ctx, record)
		if err != nil {
			return record, err
		}
	}

	api.Log(ctx).Info().Str("app", entry.Name).Str("version", record.Version).Str("path", dest).Msg("Installed")
	return record, nil
}

// installApps fetches apps concurrently. Failures end up in report in the order of apps.
func (i *Installer) installApps(ctx context.Context, apps []*Entry, prog *progress, report *Report) {
	errs := make([]error, len(apps))
	var progLock sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(appDownloadWorkers)
	for idx, app := range apps {
		idx, app := idx, app
		eg.Go(func() error {
			progLock.Lock()
			prog.next(ctx, "Downloading "+app.Name)
			progLock.Unlock()

			_, errs[idx] = i.InstallApp(api.WithTask(egCtx, app.Name), app)
			return nil
		})
	}
	_ = eg.Wait()

	for idx, app := range apps {
		if errs[idx] != nil {
			report.fail(app.Code, app.Name, errs[idx])
		} else {
			report.succeed(app.Name)
		}
	}
}
