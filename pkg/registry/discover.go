package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
)

// DiscoveryError reports one failed discovery source without aborting the
// rest of the pipeline, per spec.md §4.1 ("discovery errors are never
// fatal").
type DiscoveryError struct {
	Source string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery[%s]: %v", e.Source, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Discover loads every tool source in the order spec.md §4.1 fixes:
// built-ins, plugin packages (discovered via the plugin-manifest tree),
// microtool directories, remote tools config, and templates. Errors from
// any one source are collected and logged as discovery:error events rather
// than aborting the pipeline — Discover always returns whatever it managed
// to register.
func (r *Registry) Discover(ctx context.Context) []error {
	var errs []error

	r.registerBuiltins()

	if r.pluginManifestDir != "" {
		if found, err := findPluginManifests(r.pluginManifestDir); err != nil {
			errs = append(errs, r.logDiscoveryError("plugin_manifest", err))
		} else {
			for name, path := range found {
				info, statErr := os.Stat(path)
				if statErr != nil {
					errs = append(errs, r.logDiscoveryError("plugin_manifest:"+name, statErr))
					continue
				}
				if prev, ok := r.pluginMTimes[path]; ok && !info.ModTime().After(prev) {
					continue // unchanged since last load, skip per spec.md §4.1
				}
				manifest, err := loadPluginManifest(path)
				if err != nil {
					errs = append(errs, r.logDiscoveryError("plugin_manifest:"+name, err))
					continue
				}
				if err := r.launchPlugin(ctx, manifest); err != nil {
					errs = append(errs, r.logDiscoveryError("plugin:"+name, err))
					continue
				}
				r.pluginMTimes[path] = info.ModTime()
			}
		}
	}

	if len(r.microtoolDirs) > 0 {
		for _, err := range r.discoverMicrotools(r.microtoolDirs) {
			errs = append(errs, r.logDiscoveryError("microtool", err))
		}
	}

	if r.remoteConfigPath != "" {
		entries, err := loadRemoteToolsConfig(r.remoteConfigPath)
		if err != nil {
			errs = append(errs, r.logDiscoveryError("remote_tools_config", err))
		} else {
			for _, err := range r.discoverRemoteTools(entries) {
				errs = append(errs, r.logDiscoveryError("remote_tools_config", err))
			}
			if info, statErr := os.Stat(r.remoteConfigPath); statErr == nil {
				r.remoteConfigMTime = info.ModTime()
			}
		}
	}

	if r.templatesPath != "" {
		defs, err := loadTemplates(r.templatesPath)
		if err != nil {
			errs = append(errs, r.logDiscoveryError("templates", err))
		} else {
			r.discoverTemplates(r.templatesPath, defs)
		}
	}

	if r.hotReload {
		r.startWatcher()
	}

	return errs
}

func (r *Registry) logDiscoveryError(source string, err error) error {
	slog.Error("registry: discovery error", "source", source, "error", err)
	return &DiscoveryError{Source: source, Err: err}
}

// ReloadIfNeeded re-runs the remote tools config (source 5) plus a full
// re-scan of microtool directories (source 3), per spec.md §4.1. It is a
// no-op unless the remote config's mtime has advanced since the last
// Discover or ReloadIfNeeded call. Plugin manifests are not re-read here;
// only Discover loads them.
func (r *Registry) ReloadIfNeeded(ctx context.Context) ([]error, bool) {
	if r.remoteConfigPath == "" {
		return nil, false
	}
	info, err := os.Stat(r.remoteConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false
		}
		return []error{r.logDiscoveryError("remote_tools_config", err)}, false
	}
	if !info.ModTime().After(r.remoteConfigMTime) {
		return nil, false
	}

	var errs []error
	entries, err := loadRemoteToolsConfig(r.remoteConfigPath)
	if err != nil {
		errs = append(errs, r.logDiscoveryError("remote_tools_config", err))
	} else {
		for _, err := range r.discoverRemoteTools(entries) {
			errs = append(errs, r.logDiscoveryError("remote_tools_config", err))
		}
	}
	r.remoteConfigMTime = info.ModTime()

	for _, err := range r.discoverMicrotools(r.microtoolDirs) {
		errs = append(errs, r.logDiscoveryError("microtool", err))
	}

	return errs, true
}

// startWatcher enables fsnotify-backed reload triggering on top of the
// mtime-poll path ReloadIfNeeded always supports. Watch failures are
// logged, not fatal — the poll fallback still works.
func (r *Registry) startWatcher() {
	r.mu.Lock()
	if r.watcher != nil {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("registry: fsnotify watcher unavailable, falling back to mtime polling", "error", err)
		return
	}
	if r.remoteConfigPath != "" {
		_ = watcher.Add(r.remoteConfigPath)
	}
	if r.pluginManifestDir != "" {
		_ = watcher.Add(r.pluginManifestDir)
	}

	r.mu.Lock()
	r.watcher = watcher
	r.mu.Unlock()

	go func() {
		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				if errs, _ := r.ReloadIfNeeded(context.Background()); len(errs) > 0 {
					slog.Warn("registry: hot reload reported errors", "count", len(errs))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("registry: fsnotify error", "error", err)
			}
		}
	}()
}
