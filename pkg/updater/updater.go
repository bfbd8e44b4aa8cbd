// Package updater replaces the running lingle binary with the newest GitHub release.
package updater

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/fetch"
	"github.com/Flammable-Bunny/Lingle/pkg/github"
)

// Update describes the newest usable release
type Update struct {
	Available bool
	Current   string
	Latest    string
	URL       string
}

type Updater struct {
	GitHub  *github.Client
	Fetcher *fetch.Fetcher
	// Repo is the "owner/name" releases are read from
	Repo    string
	Current string
	// Arch defaults to runtime.GOARCH
	Arch string
	// Executable defaults to os.Executable
	Executable func() (string, error)
}

// AssetName is the release asset carrying the binary for arch
func AssetName(arch string) string {
	return "lingle-linux-" + arch
}

func (u *Updater) assetName() string {
	if u.Arch == "" {
		return AssetName(runtime.GOARCH)
	}
	return AssetName(u.Arch)
}

// Check looks for a release newer than the running version. With force any release counts as newer, which is
// also the only way to update a development build.
func (u *Updater) Check(ctx context.Context, force bool) (Update, error) {
	result := Update{Current: u.Current}

	releases, err := u.GitHub.Releases(ctx, u.Repo)
	if err != nil {
		return result, exitcode.Wrap(exitcode.Update, err)
	}

	for _, release := range releases {
		if release.Draft || release.Prerelease || release.TagName == "" {
			continue
		}

		asset, ok := release.Asset(u.assetName())
		if !ok {
			continue
		}

		latest, err := semver.NewVersion(release.TagName)
		if err != nil {
			api.Log(ctx).Debug().Str("tag", release.TagName).Msg("Skipping release without semantic version")
			continue
		}

		result.Latest = latest.String()
		result.URL = asset.DownloadURL

		current, err := semver.NewVersion(u.Current)
		switch {
		case force:
			result.Available = true
		case err != nil:
			api.Log(ctx).Debug().Str("version", u.Current).Msg("Development build, use --force to update")
		default:
			result.Available = latest.GreaterThan(current)
		}
		return result, nil
	}

	api.Log(ctx).Debug().Str("repo", u.Repo).Msg("No release with a linux binary found")
	return result, nil
}

// Apply downloads the update and atomically replaces the running executable. The new version is used from the next
// start on. It returns the path of the replaced binary.
func (u *Updater) Apply(ctx context.Context, update Update) (string, error) {
	if !update.Available || update.URL == "" {
		return "", exitcode.New(exitcode.Update, "No update available")
	}

	executable := u.Executable
	if executable == nil {
		executable = os.Executable
	}

	exe, err := executable()
	if err != nil {
		return "", exitcode.Wrap(exitcode.Update, eris.Wrap(err, "Failed to locate the running executable"))
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", exitcode.Wrap(exitcode.Update, eris.Wrapf(err, "Failed to resolve %s", exe))
	}

	staged := exe + ".new"
	_, err = u.Fetcher.Download(ctx, update.URL, staged, "")
	if err != nil {
		return "", exitcode.Wrap(exitcode.Update, err)
	}
	defer os.Remove(staged)

	err = os.Chmod(staged, 0755)
	if err != nil {
		return "", exitcode.Wrap(exitcode.Update, eris.Wrapf(err, "Failed to mark %s as executable", staged))
	}

	err = os.Rename(staged, exe)
	if err != nil {
		return "", exitcode.Wrap(exitcode.Update, eris.Wrapf(err, "Failed to replace %s", exe))
	}

	api.Log(ctx).Info().Str("version", update.Latest).Str("path", exe).Msg("Updated. Restart lingle to use the new version.")
	return exe, nil
}
