// Package scripts renders the shell scripts and unit files lingle installs on the host.
package scripts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/runner"
)

const (
	TmpfsEnableName     = "tmpfsenable.sh"
	TmpfsDisableName    = "tmpfsdisable.sh"
	PracticeLinksName   = "link_practice_maps.sh"
	StartupServiceName  = "lingle-startup.service"
	StartupServicePath  = "/etc/systemd/system/" + StartupServiceName
	DebounceQuirksPath  = "/etc/libinput/local-overrides.quirks"
	FstabComment        = "# LINGLE tmpfs"
	debounceQuirksValue = "[Never Debounce]\nMatchUdevType=mouse\nModelBouncingKeys=1\n"
)

var funcs = template.FuncMap{
	"quote": runner.Quote,
}

// user and target are resolved by lingle because the script runs inside a root shell
const tmpfsHeader = `#!/bin/bash
set -euo pipefail

USER_NAME={{ quote .User }}
USER_UID="$(id -u "${USER_NAME}")"
USER_GID="$(id -g "${USER_NAME}")"
TARGET={{ quote .Target }}
SIZE={{ quote .Size }}

COMMENT="` + FstabComment + `"
LINE="tmpfs ${TARGET} tmpfs defaults,size=${SIZE},uid=${USER_UID},gid=${USER_GID},mode={{ .Mode }} 0 0"
`

var tmpfsEnableTmpl = template.Must(template.New(TmpfsEnableName).Funcs(funcs).Parse(tmpfsHeader + `
if ! grep -qF "${LINE}" /etc/fstab; then
  echo "${COMMENT}" >> /etc/fstab
  echo "${LINE}" >> /etc/fstab
fi

mkdir -p "${TARGET}"
if ! mountpoint -q "${TARGET}"; then
  mount -t tmpfs -o "size=${SIZE},uid=${USER_UID},gid=${USER_GID},mode={{ .Mode }}" tmpfs "${TARGET}"
fi
`))

var tmpfsDisableTmpl = template.Must(template.New(TmpfsDisableName).Funcs(funcs).Parse(tmpfsHeader + `
if mountpoint -q "${TARGET}"; then
  umount "${TARGET}"
fi

if grep -qF "${COMMENT}" /etc/fstab; then
  sed -i "/${COMMENT}/d" /etc/fstab
fi
if grep -qF "${LINE}" /etc/fstab; then
  sed -i "\|${LINE}|d" /etc/fstab
fi
`))

var practiceLinksTmpl = template.Must(template.New(PracticeLinksName).Funcs(funcs).Parse(`#!/bin/bash
set -e

LINGLE_DIR={{ quote .LingleDir }}
SAVES_DIR={{ quote .SavesDir }}

for k in $(seq 1 {{ .Count }})
do
  mkdir -p "${LINGLE_DIR}/${k}"
{{- range .Maps }}
  ln -sfn "${SAVES_DIR}/"{{ quote . }} "${LINGLE_DIR}/${k}/"{{ quote . }}
{{- end }}
done
`))

var startupServiceTmpl = template.Must(template.New(StartupServiceName).Parse(`[Unit]
Description=Lingle Practice Map Linker (System)
After=network-online.target local-fs.target
Wants=network-online.target

[Service]
Type=oneshot
User={{ .User }}
Environment=HOME={{ .Home }}
ExecStart={{ .Script }}
RemainAfterExit=yes

[Install]
WantedBy=multi-user.target
`))

// TmpfsParams configure the tmpfs scripts
type TmpfsParams struct {
	User string
	// Target is the mount point, ~/Lingle of the resolved home
	Target string
	Size   string
	Mode   string
}

type practiceLinksParams struct {
	LingleDir string
	SavesDir  string
	Count     int
	Maps      []string
}

type serviceParams struct {
	User   string
	Home   string
	Script string
}

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf strings.Builder
	err := tmpl.Execute(&buf, data)
	if err != nil {
		return "", eris.Wrapf(err, "Failed to render %s", tmpl.Name())
	}
	return buf.String(), nil
}

func renderScript(tmpl *template.Template, data interface{}) (string, error) {
	script, err := render(tmpl, data)
	if err != nil {
		return "", err
	}

	err = runner.ValidateScript(tmpl.Name(), script)
	if err != nil {
		return "", err
	}
	return script, nil
}

func (p TmpfsParams) check() error {
	if !filepath.IsAbs(p.Target) {
		return eris.Errorf("The tmpfs mount point must be an absolute path, got %q", p.Target)
	}
	return nil
}

func TmpfsEnable(params TmpfsParams) (string, error) {
	if err := params.check(); err != nil {
		return "", err
	}
	return renderScript(tmpfsEnableTmpl, params)
}

func TmpfsDisable(params TmpfsParams) (string, error) {
	if err := params.check(); err != nil {
		return "", err
	}
	return renderScript(tmpfsDisableTmpl, params)
}

// PracticeMapLinks links every map into the tmpfs slots 1..count
func PracticeMapLinks(paths api.Paths, count int, maps []string) (string, error) {
	if count < 0 {
		count = 0
	}

	return renderScript(practiceLinksTmpl, practiceLinksParams{
		LingleDir: paths.LingleDir(),
		SavesDir:  paths.SavesDir(),
		Count:     count,
		Maps:      maps,
	})
}

// StartupService renders the systemd unit which runs scriptPath on boot
func StartupService(user, home, scriptPath string) (string, error) {
	if strings.ContainsAny(user+home+scriptPath, "\n") {
		return "", eris.New("Unit parameters must not contain line breaks")
	}

	return render(startupServiceTmpl, serviceParams{User: user, Home: home, Script: scriptPath})
}

// DebounceQuirks returns the libinput quirks file which disables mouse button debouncing
func DebounceQuirks() string {
	return debounceQuirksValue
}

// Write stores an executable script at path. Shell scripts are validated before they're written.
func Write(path, content string) error {
	if strings.HasPrefix(content, "#!") {
		err := runner.ValidateScript(filepath.Base(path), content)
		if err != nil {
			return err
		}
	}

	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return eris.Wrapf(err, "Failed to create directory for %s", path)
	}

	err = os.WriteFile(path, []byte(content), 0755)
	if err != nil {
		return eris.Wrapf(err, "Failed to write %s", path)
	}

	// WriteFile doesn't touch the mode of existing files
	return eris.Wrapf(os.Chmod(path, 0755), "Failed to mark %s as executable", path)
}

// EnsureScripts creates lingle's data directories and rewrites the tmpfs scripts. An empty Target defaults to
// the LingleDir of the context's paths.
func EnsureScripts(ctx context.Context, params TmpfsParams) error {
	paths := api.PathsFrom(ctx)
	if params.Target == "" {
		params.Target = paths.LingleDir()
	}
	for _, dir := range []string{paths.ScriptsDir(), paths.SavesDir()} {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return eris.Wrapf(err, "Failed to create %s", dir)
		}
	}

	enable, err := TmpfsEnable(params)
	if err != nil {
		return err
	}

	disable, err := TmpfsDisable(params)
	if err != nil {
		return err
	}

	err = Write(filepath.Join(paths.ScriptsDir(), TmpfsEnableName), enable)
	if err != nil {
		return err
	}

	api.Log(ctx).Debug().Str("dir", paths.ScriptsDir()).Msg("Scripts are up to date")
	return Write(filepath.Join(paths.ScriptsDir(), TmpfsDisableName), disable)
}
