// Package config loads the external collaborator the core consumes but
// never produces (§6 "Config (consumed, not produced)"): the list of
// configured repositories, their server templates, the cache directory,
// default architecture, and default cache compressor.
//
// Layering follows the teacher's cmd/main.go: an embedded default, then an
// on-disk INI repo list if one is found, then environment variables, with
// later layers winning. CLI flags (parsed in cmd/pkgfile) are applied last
// of all, outside this package.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-ini/ini"
	"github.com/pelletier/go-toml/v2"

	"github.com/dittofile/pkgfile/internal/archio"
	"github.com/dittofile/pkgfile/internal/pkgfileerrs"
)

// RepoEntry is one configured repository (§3, §6): a name, the server URL
// templates tried in order, and an optional per-repo arch override.
type RepoEntry struct {
	Name    string
	Servers []string
	Arch    string
}

// defaultTOML mirrors the embedded config.default.toml's shape, used only
// to unmarshal the fallback before it's flattened into a Snapshot.
type defaultTOML struct {
	CacheDir string `toml:"cache_dir"`
	Arch     string `toml:"arch"`
	Compress string `toml:"compress"`
	Repos    []defaultTOMLRepo
}

type defaultTOMLRepo struct {
	Name    string   `toml:"name"`
	Servers []string `toml:"servers"`
}

// Snapshot is the config collaborator's output: everything the scheduler,
// fetch, and query layers need and nothing they compute themselves.
type Snapshot struct {
	Repos       []RepoEntry
	CacheDir    string
	DefaultArch string
	Compressor  archio.Compressor
}

const (
	envCacheDir   = "PKGFILE_CACHEDIR"
	envArch       = "PKGFILE_ARCH"
	envConfigPath = "PKGFILE_CONFIG"
)

// Load builds a Snapshot. iniPath, if non-empty (or set via
// PKGFILE_CONFIG), is read as an INI repo list (pacman.conf-shaped: one
// section per repo, repeated Server= keys tried in order, plus an
// [options] section for CacheDir/Arch/Compress); otherwise defaultTOML is
// parsed as the fallback (the binary's embedded config.default.toml,
// passed in by the caller since embedding belongs to the main package,
// not this one). Environment variables PKGFILE_CACHEDIR/PKGFILE_ARCH
// override whichever CacheDir/Arch resulted, the same env-shadows-file
// layering as the teacher's cmd/main.go.
func Load(iniPath string, defaultTOMLBytes []byte) (*Snapshot, error) {
	var snap *Snapshot
	var err error

	if path := resolveConfigPath(iniPath); path != "" {
		snap, err = loadINI(path)
	} else {
		snap, err = loadDefault(defaultTOMLBytes)
	}
	if err != nil {
		return nil, err
	}

	if v := os.Getenv(envCacheDir); v != "" {
		snap.CacheDir = v
	}
	if v := os.Getenv(envArch); v != "" {
		snap.DefaultArch = v
	}

	if len(snap.Repos) == 0 {
		return nil, pkgfileerrs.ErrNoRepos
	}

	return snap, nil
}

func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return os.Getenv(envConfigPath)
}

// loadINI parses a pacman.conf-shaped repo list: each non-options section
// is a repo name, its Server keys (shadow-collected, so repeated Server=
// lines all survive) are the templates tried in order (§6 "list of
// repositories ... in configured order"). Grounded on
// clearlinux-mixer-tools/builder/repo_control.go's ini.Load/Section/Key
// usage, generalized from a single baseurl key to repeated Server keys.
func loadINI(path string) (*Snapshot, error) {
	file, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, path)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", pkgfileerrs.ErrConfig, path, err)
	}

	snap := &Snapshot{DefaultArch: "x86_64", Compressor: archio.Gzip}

	if opts, err := file.GetSection("options"); err == nil {
		if v := opts.Key("CacheDir").String(); v != "" {
			snap.CacheDir = v
		}
		if v := opts.Key("Arch").String(); v != "" {
			snap.DefaultArch = v
		}
		if v := opts.Key("Compress").String(); v != "" {
			c, ok := archio.ParseCompressor(v)
			if !ok {
				return nil, fmt.Errorf("%w: unrecognised Compress tag %q in %s", pkgfileerrs.ErrConfig, v, path)
			}
			snap.Compressor = c
		}
	}

	for _, sec := range file.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection || name == "options" {
			continue
		}

		servers := sec.Key("Server").ValueWithShadows()
		if len(servers) == 0 {
			return nil, fmt.Errorf("%w: repo %q in %s has no Server entries", pkgfileerrs.ErrConfig, name, path)
		}

		snap.Repos = append(snap.Repos, RepoEntry{
			Name:    name,
			Servers: servers,
			Arch:    sec.Key("Arch").String(),
		})
	}

	if snap.CacheDir == "" {
		return nil, fmt.Errorf("%w: %s has no CacheDir set in [options]", pkgfileerrs.ErrConfig, path)
	}

	return snap, nil
}

// loadDefault parses the embedded config.default.toml, the teacher's
// embed-then-no-file-found fallback (cmd/main.go's defaultConfig), ported
// from JSON to TOML per SPEC_FULL.md's ambient-stack decision.
func loadDefault(defaultTOMLBytes []byte) (*Snapshot, error) {
	var raw defaultTOML
	if err := toml.Unmarshal(defaultTOMLBytes, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse embedded default config: %v", pkgfileerrs.ErrConfig, err)
	}

	compressor := archio.Gzip
	if raw.Compress != "" {
		c, ok := archio.ParseCompressor(raw.Compress)
		if !ok {
			return nil, fmt.Errorf("%w: unrecognised Compress tag %q in embedded default config", pkgfileerrs.ErrConfig, raw.Compress)
		}
		compressor = c
	}

	snap := &Snapshot{
		CacheDir:    raw.CacheDir,
		DefaultArch: raw.Arch,
		Compressor:  compressor,
	}
	for _, r := range raw.Repos {
		snap.Repos = append(snap.Repos, RepoEntry{Name: r.Name, Servers: r.Servers})
	}
	return snap, nil
}

// ParseCommaList splits a comma-separated environment/flag value, trimming
// whitespace around each element and dropping empty ones, after the
// teacher's strings.Split(dists, ",") idiom in cmd/main.go.
func ParseCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
