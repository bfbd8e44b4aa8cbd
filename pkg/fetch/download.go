// Package fetch downloads release artifacts and unpacks archives.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
)

// ErrChecksum is returned when a download doesn't match the expected digest
var ErrChecksum = eris.New("checksum mismatch")

type Fetcher struct {
	HTTP *http.Client
	// Store enables download stamps. Without it every download is repeated.
	Store *storage.Store
}

func New(timeout time.Duration, store *storage.Store) *Fetcher {
	return &Fetcher{
		HTTP:  &http.Client{Timeout: timeout},
		Store: store,
	}
}

func (f *Fetcher) client() *http.Client {
	if f.HTTP == nil {
		return http.DefaultClient
	}
	return f.HTTP
}

// Download stores url at dest and returns the sha256 of the content. The data is written to a temporary file next
// to dest which replaces dest only once the download finished and (if wantSHA256 is set) the checksum matched.
func (f *Fetcher) Download(ctx context.Context, url, dest, wantSHA256 string) (string, error) {
	err := os.MkdirAll(filepath.Dir(dest), 0755)
	if err != nil {
		return "", exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to create %s", filepath.Dir(dest)))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrapf(err, "Failed to build request for %s", url)
	}
	req.Header.Set("User-Agent", "lingle")

	api.Log(ctx).Debug().Str("url", url).Str("dest", dest).Msg("Downloading")
	resp, err := f.client().Do(req)
	if err != nil {
		return "", exitcode.Wrap(exitcode.Network, eris.Wrapf(err, "Failed to start download for %s", url))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", exitcode.Wrap(exitcode.Network, eris.Errorf("Download of %s failed: %s", url, resp.Status))
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return "", exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to create temporary file for %s", dest))
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	hash := sha256.New()
	step := api.TaskStep{Description: "     download " + filepath.Base(dest), From: 0, To: 1}
	_, err = api.ProgressCopier(ctx, step, resp.ContentLength, resp.Body, io.MultiWriter(tmp, hash))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", exitcode.Wrap(exitcode.Network, eris.Wrapf(err, "Failed during download of %s", url))
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	if wantSHA256 != "" && !strings.EqualFold(digest, wantSHA256) {
		return digest, exitcode.Wrap(exitcode.Network, eris.Wrapf(ErrChecksum, "%s: expected %s, got %s", url,
			wantSHA256, digest))
	}

	err = tmp.Close()
	if err != nil {
		return "", exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to write %s", tmpPath))
	}

	err = os.Chmod(tmpPath, 0644)
	if err != nil {
		return "", exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to set permissions on %s", tmpPath))
	}

	err = os.Rename(tmpPath, dest)
	if err != nil {
		return "", exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to move download to %s", dest))
	}

	return digest, nil
}

func stampToken(url, sha string) string {
	return url + "#" + sha
}

// DownloadOnce works like Download but skips the transfer if the same url (and checksum) was already fetched
// for name and dest still exists. It reports whether the download was skipped.
func (f *Fetcher) DownloadOnce(ctx context.Context, name, url, dest, wantSHA256 string) (string, bool, error) {
	if f.Store != nil {
		stamp, err := f.Store.GetStamp(ctx, name)
		if err != nil {
			return "", false, err
		}

		if _, err := os.Stat(dest); err == nil && stamp != "" && strings.HasPrefix(stamp, url+"#") {
			recorded := strings.TrimPrefix(stamp, url+"#")
			if wantSHA256 == "" || strings.EqualFold(recorded, wantSHA256) {
				api.Log(ctx).Debug().Str("name", name).Msg("Already downloaded")
				return recorded, true, nil
			}
		}
	}

	digest, err := f.Download(ctx, url, dest, wantSHA256)
	if err != nil {
		return digest, false, err
	}

	if f.Store != nil {
		err = f.Store.SetStamp(ctx, name, stampToken(url, digest))
		if err != nil {
			return digest, false, err
		}
	}
	return digest, false, nil
}
