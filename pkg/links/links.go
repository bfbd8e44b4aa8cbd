// Package links points Prism instances at the tmpfs and links practice maps into every slot.
package links

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/runner"
	"github.com/Flammable-Bunny/Lingle/pkg/scripts"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
)

// Service implements the instance and practice map operations
type Service struct {
	Store  *storage.Store
	Runner runner.Runner
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, eris.Wrapf(err, "Failed to list %s", dir)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		info, err := os.Stat(filepath.Join(dir, entry.Name()))
		if err != nil || !info.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.Strings(names)
	return names, nil
}

// ListInstances returns the names of all Prism Launcher instances
func (s *Service) ListInstances(ctx context.Context) ([]string, error) {
	paths := api.PathsFrom(ctx)
	names, err := listDirs(paths.PrismInstances())
	if err != nil {
		return nil, err
	}

	// Prism keeps its instance groups and icons next to the instances
	instances := names[:0]
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(paths.InstanceDir(name), "instance.cfg")); err == nil {
			instances = append(instances, name)
		}
	}
	return instances, nil
}

// ListPracticeMaps returns the maps available in lingle's saves directory
func (s *Service) ListPracticeMaps(ctx context.Context) ([]string, error) {
	return listDirs(api.PathsFrom(ctx).SavesDir())
}

// CreateSlots makes sure the tmpfs directories 1..count exist
func CreateSlots(ctx context.Context, count int) error {
	paths := api.PathsFrom(ctx)
	for idx := 1; idx <= count; idx++ {
		err := os.MkdirAll(paths.Slot(idx), 0755)
		if err != nil {
			return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to create %s", paths.Slot(idx)))
		}
	}
	return nil
}

// SymlinkInstances replaces the saves folder of every instance with a link to its tmpfs slot. The n-th instance
// gets ~/Lingle/n. Existing saves are deleted.
func (s *Service) SymlinkInstances(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return exitcode.New(exitcode.Misuse, "No instances selected")
	}

	paths := api.PathsFrom(ctx)
	missing := make([]string, 0)
	for _, name := range names {
		if name == "" || strings.ContainsRune(name, filepath.Separator) {
			return exitcode.Errorf(exitcode.Misuse, "Invalid instance name %q", name)
		}

		info, err := os.Stat(paths.InstanceDir(name))
		if err != nil || !info.IsDir() {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return exitcode.Errorf(exitcode.Instance, "Unknown instances: %s", strings.Join(missing, ", "))
	}

	for idx, name := range names {
		slot := paths.Slot(idx + 1)
		err := os.MkdirAll(slot, 0755)
		if err != nil {
			return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to create %s", slot))
		}

		saves := paths.InstanceSaves(name)
		err = replaceWithLink(saves, slot)
		if err != nil {
			return exitcode.Wrap(exitcode.Symlink, eris.Wrapf(err, "Failed to link %s", name))
		}

		api.Log(ctx).Info().Str("instance", name).Msgf("Linked saves to %s", slot)
	}

	_, err := s.Store.UpdateState(ctx, func(state *storage.State) error {
		state.InstanceCount = len(names)
		return nil
	})
	return err
}

func replaceWithLink(link, target string) error {
	info, err := os.Lstat(link)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		current, err := os.Readlink(link)
		if err == nil && current == target {
			return nil
		}
		err = os.Remove(link)
		if err != nil {
			return eris.Wrapf(err, "Failed to remove old link %s", link)
		}
	case err == nil:
		err = os.RemoveAll(link)
		if err != nil {
			return eris.Wrapf(err, "Failed to delete %s", link)
		}
	case !eris.Is(err, os.ErrNotExist):
		return eris.Wrapf(err, "Failed to check %s", link)
	}

	err = os.MkdirAll(filepath.Dir(link), 0755)
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", filepath.Dir(link))
	}

	err = os.Symlink(target, link)
	if err != nil && !eris.Is(err, os.ErrExist) {
		return eris.Wrapf(err, "Failed to create link %s", link)
	}
	return nil
}

// SelectMaps stores the practice maps which should be linked into every slot
func (s *Service) SelectMaps(ctx context.Context, names []string) error {
	available, err := s.ListPracticeMaps(ctx)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(available))
	for _, name := range available {
		known[name] = true
	}

	selected := make([]string, 0, len(names))
	seen := make(map[string]bool)
	for _, name := range names {
		if !known[name] {
			return exitcode.Errorf(exitcode.Misuse, "Practice map %q not found in %s", name, api.PathsFrom(ctx).SavesDir())
		}
		if !seen[name] {
			seen[name] = true
			selected = append(selected, name)
		}
	}

	_, err = s.Store.UpdateState(ctx, func(state *storage.State) error {
		state.SelectedMaps = selected
		state.PracticeMaps = len(selected) > 0
		return nil
	})
	return err
}

// LinkPracticeMapsNow links the selected maps into every slot. Existing links are replaced while real worlds
// with the same name are left alone. It returns the number of links created.
func (s *Service) LinkPracticeMapsNow(ctx context.Context) (int, error) {
	state, err := s.Store.GetState(ctx)
	if err != nil {
		return 0, err
	}

	if state.InstanceCount <= 0 || len(state.SelectedMaps) == 0 {
		return 0, nil
	}

	paths := api.PathsFrom(ctx)
	created := 0
	for k := 1; k <= state.InstanceCount; k++ {
		slot := paths.Slot(k)
		err := os.MkdirAll(slot, 0755)
		if err != nil {
			return created, exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to create %s", slot))
		}

		for _, name := range state.SelectedMaps {
			target := filepath.Join(paths.SavesDir(), name)
			link := filepath.Join(slot, name)

			info, err := os.Lstat(link)
			if err == nil {
				if info.Mode()&os.ModeSymlink == 0 {
					api.Log(ctx).Warn().Str("path", link).Msg("Not replacing existing world with practice map link")
					continue
				}

				err = os.Remove(link)
				if err != nil {
					return created, exitcode.Wrap(exitcode.Symlink, eris.Wrapf(err, "Failed to remove %s", link))
				}
			}

			err = os.Symlink(target, link)
			if err != nil {
				return created, exitcode.Wrap(exitcode.Symlink, eris.Wrapf(err, "Failed to link %s", link))
			}
			created++
		}
	}

	return created, nil
}

// PreparePracticeMapLinks writes link_practice_maps.sh and runs it. Nothing happens unless practice maps and the
// tmpfs are both enabled. It returns whether the script ran.
func (s *Service) PreparePracticeMapLinks(ctx context.Context) (bool, error) {
	state, err := s.Store.GetState(ctx)
	if err != nil {
		return false, err
	}

	if !state.PracticeMaps || !state.Tmpfs {
		return false, nil
	}

	path, err := s.writeLinkScript(ctx, state)
	if err != nil {
		return false, err
	}

	res, err := s.Runner.Run(ctx, runner.Cmd{Name: "/bin/bash", Args: []string{path}})
	return true, runner.Check(res, err, exitcode.Symlink, "Linking practice maps")
}

func (s *Service) writeLinkScript(ctx context.Context, state *storage.State) (string, error) {
	paths := api.PathsFrom(ctx)
	script, err := scripts.PracticeMapLinks(paths, state.InstanceCount, state.SelectedMaps)
	if err != nil {
		return "", err
	}

	path := filepath.Join(paths.ScriptsDir(), scripts.PracticeLinksName)
	err = scripts.Write(path, script)
	if err != nil {
		return "", exitcode.Wrap(exitcode.IO, err)
	}
	return path, nil
}

// InstallStartupService installs and starts a systemd unit which recreates the practice map links on boot
func (s *Service) InstallStartupService(ctx context.Context, user string) error {
	state, err := s.Store.GetState(ctx)
	if err != nil {
		return err
	}

	paths := api.PathsFrom(ctx)
	script, err := s.writeLinkScript(ctx, state)
	if err != nil {
		return err
	}

	unit, err := scripts.StartupService(user, paths.Home, script)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "lingle-startup-*.service")
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrap(err, "Failed to create temporary unit file"))
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString(unit)
	tmp.Close()
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to write %s", tmp.Name()))
	}

	installCmd := strings.Join([]string{
		"install -D -m 0644 " + runner.Quote(tmp.Name()) + " " + scripts.StartupServicePath,
		"systemctl daemon-reload",
		"systemctl enable --now " + scripts.StartupServiceName,
	}, " && ")

	res, err := s.Runner.RunElevated(ctx, installCmd)
	err = runner.Check(res, err, exitcode.Permission, "Installing "+scripts.StartupServiceName)
	if err != nil {
		return eris.Wrap(err, "Make sure a polkit authentication agent is running")
	}
	return nil
}
