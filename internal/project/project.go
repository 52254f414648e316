// Package project saves the open providers of an application, their unsaved writes and their
// bookmarks into a single tar archive, and restores them.
//
// The archive holds manifest.toml and, for each provider n, providers/<n>/config.json,
// providers/<n>/overlay.json and providers/<n>/bookmarks.json.
package project

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/jeffwilliams/hexcore/internal/app"
	"github.com/jeffwilliams/hexcore/internal/errs"
	"github.com/jeffwilliams/hexcore/internal/provider"
)

const Version = 1

const (
	manifestFile  = "manifest.toml"
	configFile    = "config.json"
	overlayFile   = "overlay.json"
	bookmarksFile = "bookmarks.json"

	// Members larger than this are rejected when reading.
	maxMemberSize = 1 << 30
)

var (
	ErrUnsupportedVersion = errors.New("unsupported project version")
	ErrCorrupt            = errors.New("corrupt project archive")
)

type Manifest struct {
	Version int `toml:"version"`
	// Current is the index of the selected provider, or -1.
	Current   int     `toml:"current"`
	Layout    string  `toml:"layout"`
	Providers []Entry `toml:"providers"`
}

type Entry struct {
	Dir  string `toml:"dir"`
	Name string `toml:"name"`
	Type string `toml:"type"`
}

// ProviderState is everything saved for one provider.
type ProviderState struct {
	Config    provider.Config
	Overlay   []provider.Run
	Bookmarks []app.Bookmark
}

// An Archive is the decoded content of a project file.
type Archive struct {
	Manifest  Manifest
	Providers []ProviderState
}

// Capture records the state of the providers open in a. layout is stored as is for the front end.
func Capture(a *app.App, layout string) (*Archive, error) {
	ar := &Archive{Manifest: Manifest{Version: Version, Current: -1, Layout: layout}}
	cur := a.Current()

	for i, p := range a.Providers() {
		c, err := p.Config()
		if err != nil {
			return nil, err
		}
		ar.Manifest.Providers = append(ar.Manifest.Providers, Entry{
			Dir:  fmt.Sprintf("providers/%d", i),
			Name: p.Name(),
			Type: c.Type,
		})
		ar.Providers = append(ar.Providers, ProviderState{
			Config:    c,
			Overlay:   p.Overlay(),
			Bookmarks: a.Bookmarks(p).All(),
		})
		if p == cur {
			ar.Manifest.Current = i
		}
	}
	dbg("captured %d providers", len(ar.Providers))
	return ar, nil
}

// Write encodes the archive as tar to w.
func (ar *Archive) Write(w io.Writer) error {
	tw := tar.NewWriter(w)
	now := time.Now()

	put := func(name string, data []byte) error {
		hdr := &tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(data)),
			ModTime:  now,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err := tw.Write(data)
		return err
	}

	m, err := toml.Marshal(ar.Manifest)
	if err != nil {
		return err
	}
	if err = put(manifestFile, m); err != nil {
		return err
	}

	for i, ps := range ar.Providers {
		dir := ar.Manifest.Providers[i].Dir
		members := []struct {
			name string
			v    interface{}
		}{
			{configFile, ps.Config},
			{overlayFile, ps.Overlay},
			{bookmarksFile, ps.Bookmarks},
		}
		for _, mb := range members {
			b, err := json.MarshalIndent(mb.v, "", "  ")
			if err != nil {
				return err
			}
			if err = put(path.Join(dir, mb.name), b); err != nil {
				return err
			}
		}
	}
	return tw.Close()
}

// Read decodes an archive written by Write.
func Read(r io.Reader) (*Archive, error) {
	files := map[string][]byte{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Size > maxMemberSize {
			return nil, fmt.Errorf("%w: member %s is too large", ErrCorrupt, hdr.Name)
		}
		b, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, hdr.Name, err)
		}
		files[path.Clean(hdr.Name)] = b
	}

	m, ok := files[manifestFile]
	if !ok {
		return nil, fmt.Errorf("%w: no %s", ErrCorrupt, manifestFile)
	}
	ar := &Archive{}
	if err := toml.Unmarshal(m, &ar.Manifest); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, manifestFile, err)
	}
	if ar.Manifest.Version != Version {
		return nil, fmt.Errorf("%w: %d (this build reads version %d)", ErrUnsupportedVersion, ar.Manifest.Version, Version)
	}
	if ar.Manifest.Current >= len(ar.Manifest.Providers) || ar.Manifest.Current < -1 {
		return nil, fmt.Errorf("%w: current provider %d out of range", ErrCorrupt, ar.Manifest.Current)
	}

	for _, e := range ar.Manifest.Providers {
		var ps ProviderState
		cf, ok := files[path.Join(e.Dir, configFile)]
		if !ok {
			return nil, fmt.Errorf("%w: no config for provider '%s'", ErrCorrupt, e.Name)
		}
		if err := json.Unmarshal(cf, &ps.Config); err != nil {
			return nil, fmt.Errorf("%w: config of '%s': %w", ErrCorrupt, e.Name, err)
		}
		if b, ok := files[path.Join(e.Dir, overlayFile)]; ok {
			if err := json.Unmarshal(b, &ps.Overlay); err != nil {
				return nil, fmt.Errorf("%w: overlay of '%s': %w", ErrCorrupt, e.Name, err)
			}
		}
		if b, ok := files[path.Join(e.Dir, bookmarksFile)]; ok {
			if err := json.Unmarshal(b, &ps.Bookmarks); err != nil {
				return nil, fmt.Errorf("%w: bookmarks of '%s': %w", ErrCorrupt, e.Name, err)
			}
		}
		ar.Providers = append(ar.Providers, ps)
	}
	return ar, nil
}

// Restore opens the providers of the archive in a, reapplies their unsaved writes and bookmarks
// and selects the saved current provider. Providers that fail to load are skipped; their errors
// are returned together once the others are open.
func (ar *Archive) Restore(a *app.App) error {
	e := errs.New()
	byOldID := map[uint64]*provider.Provider{}
	resolve := func(id uint64) (*provider.Provider, bool) {
		p, ok := byOldID[id]
		return p, ok
	}

	// Views are opened after the providers they look into.
	order := make([]int, len(ar.Providers))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return ar.Providers[order[i]].Config.Type != provider.TypeView &&
			ar.Providers[order[j]].Config.Type == provider.TypeView
	})

	loaded := make([]*provider.Provider, len(ar.Providers))
	for _, i := range order {
		ps := ar.Providers[i]
		name := ar.Manifest.Providers[i].Name

		p, err := a.Registry.FromConfig(ps.Config, a.Options().Provider, resolve)
		if err != nil {
			e.Add(fmt.Errorf("provider '%s': %w", name, err))
			continue
		}
		if err = a.Add(p); err != nil {
			e.Add(fmt.Errorf("provider '%s': %w", name, err))
			continue
		}
		byOldID[ps.Config.ID] = p
		loaded[i] = p

		if len(ps.Overlay) > 0 {
			if err = p.SetOverlay(ps.Overlay); err != nil {
				e.Add(fmt.Errorf("unsaved changes of '%s': %w", name, err))
			}
		}
		bs := a.Bookmarks(p)
		for _, b := range ps.Bookmarks {
			bs.Add(b)
		}
		dbg("restored provider '%s' with %d overlay runs and %d bookmarks", name, len(ps.Overlay), len(ps.Bookmarks))
	}

	if c := ar.Manifest.Current; c >= 0 && loaded[c] != nil {
		e.Add(a.SetCurrent(loaded[c]))
	}
	return e.NilIfEmpty()
}

// Save writes the state of a to the project file.
func Save(a *app.App, file, layout string) (err error) {
	ar, err := Capture(a, layout)
	if err != nil {
		return err
	}

	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return ar.Write(f)
}

// Open reads the project file without restoring it.
func Open(file string) (*Archive, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Load restores the project file into a.
func Load(a *app.App, file string) (*Archive, error) {
	ar, err := Open(file)
	if err != nil {
		return nil, err
	}
	return ar, ar.Restore(a)
}
