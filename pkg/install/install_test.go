package install

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/fetch"
	"github.com/Flammable-Bunny/Lingle/pkg/github"
	"github.com/Flammable-Bunny/Lingle/pkg/runner"
	"github.com/Flammable-Bunny/Lingle/pkg/scripts"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
	"github.com/Flammable-Bunny/Lingle/pkg/system"
)

func newCtx(t *testing.T, assumeYes bool) context.Context {
	t.Helper()
	return api.WithLingleContext(context.Background(), api.LingleCtxParams{
		Paths:     api.Paths{Home: t.TempDir()},
		Quiet:     true,
		AssumeYes: assumeYes,
	})
}

func pluginArchive(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	files := map[string]string{
		"linux-pipewire-audio/bin/64bit/linux-pipewire-audio.so": "ELF",
		"linux-pipewire-audio/data/locale/en-US.ini":             "x=y",
	}
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(body)),
			Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

const releaseTmpl = `{"tag_name": "%s", "assets": [%s]}`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	var server *httptest.Server
	plugin := pluginArchive(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/dl/linux-pipewire-audio-1.2.1.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(plugin)
	})
	mux.HandleFunc("/dl/app.asar", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("openasar"))
	})
	mux.HandleFunc("/dl/modcheck-1.2.jar", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("modcheck jar"))
	})
	mux.HandleFunc("/repos/tildejustin/modcheck/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		asset := fmt.Sprintf(`{"name": "modcheck-1.2.jar", "browser_download_url": "%s/dl/modcheck-1.2.jar"}`,
			server.URL)
		fmt.Fprintf(w, releaseTmpl, "v1.2", asset)
	})
	mux.HandleFunc("/repos/Ninjabrain1/Ninjabrain-Bot/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, releaseTmpl, "1.5.1", `{"name": "source.zip", "browser_download_url": "x"}`)
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newInstaller(t *testing.T, server *httptest.Server, host system.Host, store *storage.Store) (*Installer,
	*runner.Recorder) {
	t.Helper()

	rec := &runner.Recorder{}
	inst := &Installer{
		Runner:            rec,
		Fetcher:           fetch.New(5*time.Second, store),
		Store:             store,
		Host:              host,
		PacmanConf:        filepath.Join(t.TempDir(), "pacman.conf"),
		OpenAsarURL:       "http://invalid.localhost/app.asar",
		PipeWirePluginURL: "http://invalid.localhost/plugin.tar.gz",
	}
	if server != nil {
		inst.GitHub = github.NewClient(server.URL, 5*time.Second)
		inst.OpenAsarURL = server.URL + "/dl/app.asar"
		inst.PipeWirePluginURL = server.URL + "/dl/linux-pipewire-audio-1.2.1.tar.gz"
	}
	return inst, rec
}

func TestCatalog(t *testing.T) {
	cat, err := DefaultCatalog()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Waywall + GLFW", "Prism Launcher", "Discord + OpenAsar", "OBS Studio", "Decrease Linux Debounce Time",
		"Nvidia Dependencies", "Jemalloc", "ModCheck", "Ninjabrain Bot", "Paceman Tracker", "MapCheck", "Git",
		"Podman", "Docker", "Go",
	}, cat.Names())

	prism := cat.Find("prism launcher")
	require.NotNil(t, prism)
	pkgs, ok := prism.PackagesFor(system.Apt)
	assert.True(t, ok)
	assert.Equal(t, []string{"prismlauncher", "openjdk-17-jdk"}, pkgs)

	pkgs, ok = prism.PackagesFor(system.Dnf)
	assert.True(t, ok)
	assert.Empty(t, pkgs)

	_, ok = prism.PackagesFor(system.Apk)
	assert.False(t, ok)

	docker := cat.Find("Docker")
	pkgs, _ = docker.PackagesFor(system.Apt)
	assert.Equal(t, []string{"docker.io"}, pkgs)

	assert.Equal(t, "Ninjabrain1/Ninjabrain-Bot", cat.Find("Ninjabrain Bot").Repo)
	assert.Equal(t, CodeMapCheckInstall, cat.Find("MapCheck").Code)
	assert.Equal(t, CodeInstallFailed, cat.Find("Git").Code)
	assert.Nil(t, cat.Find("Minecraft"))
}

func TestParseCatalogRejectsBrokenEntries(t *testing.T) {
	_, err := ParseCatalog([]byte("packages:\n  - name: A\n    kind: app\n"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("packages:\n  - name: A\n    kind: package\n  - name: a\n    kind: package\n"))
	assert.Error(t, err)
}

func TestPlan(t *testing.T) {
	plan, err := NewPlan([]string{"OBS Studio", "ModCheck", "Waywall + GLFW", "modcheck"}, system.Pacman)
	require.NoError(t, err)

	names := make([]string, len(plan.Selected))
	for idx, entry := range plan.Selected {
		names[idx] = entry.Name
	}
	assert.Equal(t, []string{"Waywall + GLFW", "OBS Studio", "ModCheck"}, names)
	assert.Equal(t, 7+3+1, plan.Steps)
	assert.True(t, plan.Has(KindOBS))
	assert.False(t, plan.Has(KindPrism))
	assert.Len(t, plan.All(KindApp), 1)

	_, err = NewPlan([]string{"Steam"}, system.Pacman)
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))

	_, err = NewPlan(nil, system.Pacman)
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))
}

func TestInsertChaoticAUR(t *testing.T) {
	block := "\n[chaotic-aur]\nInclude = /etc/pacman.d/chaotic-mirrorlist\n"

	tests := []struct {
		name    string
		conf    string
		want    string
		changed bool
	}{
		{
			name: "after multilib",
			conf: "[core]\nInclude = /etc/pacman.d/mirrorlist\n\n[multilib]\nInclude = /etc/pacman.d/mirrorlist\n" +
				"[custom]\nServer = file:///repo\n",
			want: "[core]\nInclude = /etc/pacman.d/mirrorlist\n\n[multilib]\nInclude = /etc/pacman.d/mirrorlist\n" +
				block + "[custom]\nServer = file:///repo\n",
			changed: true,
		},
		{
			name:    "multilib is the last section",
			conf:    "[core]\nInclude = /etc/pacman.d/mirrorlist\n[multilib]\nInclude = /etc/pacman.d/mirrorlist\n",
			want:    "[core]\nInclude = /etc/pacman.d/mirrorlist\n[multilib]\nInclude = /etc/pacman.d/mirrorlist\n" + block,
			changed: true,
		},
		{
			name:    "no multilib",
			conf:    "[options]\nArchitecture = auto\n",
			want:    "[options]\nArchitecture = auto\n" + block,
			changed: true,
		},
		{
			name:    "already present",
			conf:    "[options]\n[chaotic-aur]\nInclude = /etc/pacman.d/chaotic-mirrorlist\n",
			want:    "[options]\n[chaotic-aur]\nInclude = /etc/pacman.d/chaotic-mirrorlist\n",
			changed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := InsertChaoticAUR(tt.conf)
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReportOutcome(t *testing.T) {
	report := &Report{}
	assert.Equal(t, Success, report.Outcome())

	report.fail(CodeInstallFailed, "Jemalloc", fmt.Errorf("exit code 1"))
	assert.Equal(t, Failed, report.Outcome())
	assert.Equal(t, []string{"[Error 1003] Jemalloc: exit code 1"}, report.Messages())

	report.succeed("Git")
	assert.Equal(t, Partial, report.Outcome())
	assert.Contains(t, report.String(), "Installed: Git")

	report.fail(CodeGeneralSetup, "Waywall + GLFW", withCode(CodePacurInstall, fmt.Errorf("go missing")))
	assert.Equal(t, CodePacurInstall, report.Errors[1].Code)
}

func TestInstallApt(t *testing.T) {
	ctx := newCtx(t, false)
	server := newServer(t)
	inst, rec := newInstaller(t, server, system.Host{Distro: "ubuntu", GPU: "amd"}, nil)

	asar := filepath.Join(t.TempDir(), "app.asar")
	require.NoError(t, os.WriteFile(asar, []byte("stock"), 0644))
	inst.DiscordTargets = []string{filepath.Join(t.TempDir(), "missing.asar"), asar}

	plan, err := NewPlan([]string{"Prism Launcher", "Discord + OpenAsar", "OBS Studio", "Jemalloc", "Git"}, system.Apt)
	require.NoError(t, err)

	report := inst.Install(ctx, plan)
	assert.Empty(t, report.Messages())
	assert.Equal(t, Success, report.Outcome())
	assert.Equal(t, []string{"Prism Launcher", "OBS Studio", "Discord + OpenAsar", "Git", "Jemalloc"}, report.Installed)

	lines := rec.Lines()
	require.Len(t, lines, 4)
	assert.Equal(t, "root: "+pipeWirePackages[system.Apt], lines[0])
	assert.Equal(t, "root: apt update && apt install -y prismlauncher openjdk-17-jdk obs-studio discord git", lines[1])
	assert.Contains(t, lines[2], "cp -f")
	assert.Contains(t, lines[2], asar+".backup")
	assert.Equal(t, "root: apt update && apt install -y libjemalloc2", lines[3])

	plugin := filepath.Join(api.PathsFrom(ctx).OBSPlugins(), "linux-pipewire-audio", "bin", "64bit",
		"linux-pipewire-audio.so")
	assert.FileExists(t, plugin)
}

func TestInstallFailuresContinue(t *testing.T) {
	ctx := newCtx(t, false)
	inst, rec := newInstaller(t, nil, system.Host{Distro: "arch", GPU: "amd"}, nil)
	rec.Handler = func(cmd runner.Cmd) (runner.Result, error) {
		if strings.Contains(cmd.Stdin, "discord") {
			return runner.Result{ExitCode: 1, Output: "target not found: discord"}, nil
		}
		return runner.Result{}, nil
	}

	plan, err := NewPlan([]string{"Discord + OpenAsar", "Jemalloc", "Nvidia Dependencies"}, system.Pacman)
	require.NoError(t, err)

	report := inst.Install(ctx, plan)
	assert.Equal(t, Partial, report.Outcome())
	assert.Equal(t, []string{"Jemalloc"}, report.Installed)

	require.Len(t, report.Errors, 2)
	assert.Equal(t, CodeInstallFailed, report.Errors[0].Code)
	assert.Equal(t, "Package install", report.Errors[0].Name)
	assert.Contains(t, report.Errors[0].String(), "target not found: discord")
	assert.Equal(t, "[Error 1003] Nvidia Dependencies: NVIDIA GPU not detected. This feature is only for NVIDIA users.",
		report.Errors[1].String())

	assert.NotContains(t, rec.Joined(), "app.asar", "OpenAsar is skipped when Discord couldn't be installed")
	assert.Contains(t, rec.Joined(), "root: pacman -S --noconfirm jemalloc")
}

func TestInstallWithoutPackageManager(t *testing.T) {
	ctx := newCtx(t, false)
	inst, rec := newInstaller(t, nil, system.Host{}, nil)

	plan, err := NewPlan([]string{"Git"}, "")
	require.NoError(t, err)

	report := inst.Install(ctx, plan)
	assert.Equal(t, Failed, report.Outcome())
	require.Len(t, report.Errors, 1)
	assert.Equal(t, CodePkgMgrNotDetected, report.Errors[0].Code)
	assert.Empty(t, rec.Calls())
}

func TestInstallNvidiaAndDebounce(t *testing.T) {
	ctx := newCtx(t, false)
	inst, rec := newInstaller(t, nil, system.Host{Distro: "fedora", GPU: "nvidia"}, nil)

	plan, err := NewPlan([]string{"Nvidia Dependencies", "Decrease Linux Debounce Time"}, system.Dnf)
	require.NoError(t, err)

	report := inst.Install(ctx, plan)
	assert.Equal(t, Success, report.Outcome())

	lines := rec.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], scripts.DebounceQuirksPath)
	assert.Contains(t, lines[0], "ModelBouncingKeys=1")
	assert.Equal(t, "root: dnf install -y akmod-nvidia xorg-x11-drv-nvidia-cuda", lines[1])
}

func TestInstallPrismOnFedora(t *testing.T) {
	ctx := newCtx(t, false)
	inst, rec := newInstaller(t, nil, system.Host{Distro: "fedora", GPU: "intel"}, nil)

	plan, err := NewPlan([]string{"Prism Launcher"}, system.Dnf)
	require.NoError(t, err)

	report := inst.Install(ctx, plan)
	assert.Equal(t, []string{"Prism Launcher"}, report.Installed)
	assert.Equal(t, []string{
		"root: dnf copr enable -y g3tchoo/prismlauncher",
		"root: dnf install -y prismlauncher java-21-openjdk",
	}, rec.Lines())
}

func TestInstallOBSWithChaoticAUR(t *testing.T) {
	ctx := newCtx(t, false)
	server := newServer(t)
	inst, rec := newInstaller(t, server, system.Host{Distro: "arch"}, nil)
	require.NoError(t, os.WriteFile(inst.PacmanConf, []byte("[core]\n[multilib]\nInclude = x\n"), 0644))
	rec.Handler = func(cmd runner.Cmd) (runner.Result, error) {
		if cmd.Name == "yay" {
			return runner.Result{}, exitcode.New(exitcode.Dependency, "yay is not installed")
		}
		return runner.Result{}, nil
	}

	plan, err := NewPlan([]string{"OBS Studio"}, system.Pacman)
	require.NoError(t, err)

	report := inst.Install(ctx, plan)
	assert.Equal(t, Success, report.Outcome(), report.String())

	joined := rec.Joined()
	assert.Contains(t, joined, "root: pacman-key --recv-key 3056513887B78AEB --keyserver keyserver.ubuntu.com")
	assert.Contains(t, joined, "chaotic-mirrorlist.pkg.tar.zst")
	assert.Contains(t, joined, "install -m 0644")
	assert.Contains(t, joined, "root: pacman -S --noconfirm chaotic-aur/obs-studio-stable")
	assert.Contains(t, joined, "paru -S --noconfirm obs-pipewire-audio-capture-git")
	assert.Contains(t, joined, "root: "+pipeWirePackages[system.Pacman])
}

func TestInstallApps(t *testing.T) {
	ctx := newCtx(t, false)
	store, err := storage.Open(api.PathsFrom(ctx).StateDB())
	require.NoError(t, err)
	defer store.Close()

	server := newServer(t)
	inst, _ := newInstaller(t, server, system.Host{Distro: "arch"}, store)

	plan, err := NewPlan([]string{"Ninjabrain Bot", "ModCheck"}, system.Pacman)
	require.NoError(t, err)

	report := inst.Install(ctx, plan)
	assert.Equal(t, Partial, report.Outcome())
	assert.Equal(t, []string{"ModCheck"}, report.Installed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, CodeNinjabrainInstall, report.Errors[0].Code)

	jar := filepath.Join(api.PathsFrom(ctx).AppsDir(), "modcheck-1.2.jar")
	data, err := os.ReadFile(jar)
	require.NoError(t, err)
	assert.Equal(t, "modcheck jar", string(data))

	app, err := store.GetApp(ctx, "ModCheck")
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.Equal(t, "1.2", app.Version)
	assert.Equal(t, jar, app.Path)
	assert.Len(t, app.Sha256, 64)
}

func preparePacurCache(t *testing.T, home string) string {
	t.Helper()
	docker := filepath.Join(home, "go", "pkg", "mod", "github.com", "pacur", "pacur@v0.0.0-20250101", "docker")
	for _, target := range []string{"archlinux", "centos-8", "fedora-42", "debian-trixie"} {
		require.NoError(t, os.MkdirAll(filepath.Join(docker, target), 0755))
	}
	return docker
}

func TestBuildWaywall(t *testing.T) {
	ctx := newCtx(t, false)
	home := api.PathsFrom(ctx).Home
	docker := preparePacurCache(t, home)

	inst, rec := newInstaller(t, nil, system.Host{Distro: "arch"}, nil)
	rec.Handler = func(cmd runner.Cmd) (runner.Result, error) {
		switch {
		case cmd.Name == "git" && cmd.Args[1] == WaywallRepo:
			require.NoError(t, os.MkdirAll(cmd.Args[2], 0755))
			require.NoError(t, os.WriteFile(filepath.Join(cmd.Args[2], "build-packages.sh"), nil, 0755))
		case cmd.Name == "git" && cmd.Args[1] == WaywallConfigRepo:
			require.NoError(t, os.MkdirAll(cmd.Args[2], 0755))
		case cmd.Name == "bash" && strings.HasSuffix(cmd.Args[0], "build-packages.sh"):
			out := filepath.Join(cmd.Dir, "waywall-build")
			require.NoError(t, os.MkdirAll(out, 0755))
			require.NoError(t, os.WriteFile(filepath.Join(out, "waywall-0.5-1-x86_64.pkg.tar.zst"), nil, 0644))
		}
		return runner.Result{}, nil
	}

	plan, err := NewPlan([]string{"Waywall + GLFW"}, system.Pacman)
	require.NoError(t, err)

	report := inst.Install(ctx, plan)
	assert.Equal(t, Success, report.Outcome(), report.String())
	assert.Equal(t, []string{"Waywall + GLFW"}, report.Installed)

	lines := rec.Lines()
	require.Len(t, lines, 9)
	assert.Equal(t, "root: pacman -S --noconfirm git podman docker go", lines[0])
	assert.Equal(t, "bash -c "+runner.Quote(pacurInstall), lines[1])
	assert.Contains(t, lines[2], filepath.Join(docker, "centos-8"))
	assert.NotContains(t, lines[2], filepath.Join(docker, "archlinux"))
	assert.Contains(t, lines[2], "sed -i")
	assert.Contains(t, lines[3], "update.sh")
	assert.Contains(t, lines[4], "build.sh")
	assert.Contains(t, lines[5], "git clone")
	assert.Contains(t, lines[5], WaywallRepo)
	assert.Contains(t, lines[6], "--arch")
	assert.Contains(t, lines[7], "root: pacman -U --noconfirm")
	assert.Contains(t, lines[7], "waywall-0.5-1-x86_64.pkg.tar.zst")
	assert.Contains(t, lines[8], WaywallConfigRepo)
	assert.DirExists(t, api.PathsFrom(ctx).WaywallDir())
}

func TestBuildWaywallWithoutPacur(t *testing.T) {
	ctx := newCtx(t, false)
	inst, _ := newInstaller(t, nil, system.Host{Distro: "ubuntu"}, nil)

	plan, err := NewPlan([]string{"Waywall + GLFW"}, system.Apt)
	require.NoError(t, err)

	report := inst.Install(ctx, plan)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, CodePacurDirNotFound, report.Errors[0].Code)
	assert.Equal(t, Failed, report.Outcome(), "the helper packages alone don't count as installed")
}

func TestWaywallUnsupportedDistro(t *testing.T) {
	ctx := newCtx(t, false)
	inst, rec := newInstaller(t, nil, system.Host{Distro: "opensuse"}, nil)

	plan, err := NewPlan([]string{"Waywall + GLFW"}, system.Zypper)
	require.NoError(t, err)

	report := inst.Install(ctx, plan)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, CodeUnsupportedDistro, report.Errors[0].Code)
	assert.Empty(t, rec.Calls())
}

func TestEnsureDeps(t *testing.T) {
	inst, rec := newInstaller(t, nil, system.Host{Distro: "arch", PackageManager: system.Pacman}, nil)
	deps := &Deps{
		Installer: inst,
		Lookup: func(names ...string) []string {
			return []string{"git", "pkexec"}
		},
	}

	_, err := deps.EnsureDeps(newCtx(t, false), RequiredCommands...)
	assert.Equal(t, exitcode.Dependency, exitcode.From(err))
	assert.Empty(t, rec.Calls())

	var asked []string
	deps.Confirm = func(missing []string) bool {
		asked = missing
		return true
	}
	installed, err := deps.EnsureDeps(newCtx(t, false), RequiredCommands...)
	require.NoError(t, err)
	assert.Equal(t, []string{"git", "pkexec"}, asked)
	assert.Equal(t, []string{"git", "pkexec"}, installed)
	assert.Equal(t, []string{"root: pacman -S --noconfirm git polkit"}, rec.Lines())

	deps.Confirm = nil
	deps.Lookup = func(names ...string) []string { return nil }
	installed, err = deps.EnsureDeps(newCtx(t, true), RequiredCommands...)
	require.NoError(t, err)
	assert.Empty(t, installed)
	assert.Len(t, rec.Calls(), 1)
}
