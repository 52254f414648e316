package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ddkwork/golibrary/mylog"
	"github.com/pelletier/go-toml"

	"github.com/jeffwilliams/hexcore/internal/app"
	"github.com/jeffwilliams/hexcore/internal/diff"
	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/search"
)

var ConfDir string

func init() {
	if runtime.GOOS == "windows" {
		ConfDir = fmt.Sprintf("%s/.hexcore", os.Getenv("USERPROFILE"))
	} else {
		ConfDir = fmt.Sprintf("%s/.hexcore", os.Getenv("HOME"))
	}
}

func SshKeyDir() string {
	return fmt.Sprintf("%s/%s", ConfDir, "sshkeys")
}

// LoadSshKeys adds every key file in the ssh key directory to the ssh client cache.
func LoadSshKeys() {
	d := SshKeyDir()
	entries, err := os.ReadDir(d)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	mylog.Check(err)

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		log(LogCatgConf, "Loading ssh key %s\n", e.Name())
		path := filepath.Join(d, e.Name())
		if err := provider.DefaultSshClientCache.AddKeyFromFile(e.Name(), path); err != nil {
			log(LogCatgSsh, "Loading ssh key %s failed: %v\n", e.Name(), err)
		}
	}
}

func SettingsConfigFile() string {
	return fmt.Sprintf("%s/%s", ConfDir, "settings.toml")
}

type Settings struct {
	Provider ProviderSettings
	Search   SearchSettings
	Diff     DiffSettings
	Tasks    TaskSettings
	Ssh      SshSettings
}

type ProviderSettings struct {
	PageSize           uint64 `toml:"page-size"`
	CachePageSize      uint64 `toml:"cache-page-size"`
	CachePages         int    `toml:"cache-pages"`
	RelativeAddressing bool   `toml:"relative-addressing"`
}

type SearchSettings struct {
	BufferSize      int `toml:"buffer-size"`
	MinStringLength int `toml:"min-string-length"`
}

type DiffSettings struct {
	Algorithm  string `toml:"algorithm"`
	WindowSize uint64 `toml:"window-size"`
}

type TaskSettings struct {
	Workers int `toml:"workers"`
}

type SshSettings struct {
	Shell     string
	CacheSize int `toml:"cache-size"`
}

// AppOptions returns the application options the settings call for.
func (s Settings) AppOptions() app.Options {
	o := app.DefaultOptions
	o.Provider.PageSize = s.Provider.PageSize
	if s.Provider.CachePageSize > 0 {
		o.Provider.CachePageSize = s.Provider.CachePageSize
	}
	if s.Provider.CachePages > 0 {
		o.Provider.CachePages = s.Provider.CachePages
	}
	o.Provider.RelativeAddressing = s.Provider.RelativeAddressing
	o.Workers = s.Tasks.Workers
	return o
}

func (s Settings) DiffOptions() diff.Options {
	return diff.Options{WindowSize: s.Diff.WindowSize}
}

// Apply pushes the settings that live in package variables to their packages.
func (s Settings) Apply() {
	if s.Search.BufferSize > 0 {
		search.ReaderBufferSize = s.Search.BufferSize
	}
	if s.Ssh.Shell != "" {
		provider.SshShell = s.Ssh.Shell
	}
	if s.Ssh.CacheSize > 0 {
		provider.DefaultSshClientCache = provider.NewSshClientCache(s.Ssh.CacheSize)
	}
}

// LoadSettingsFromFile decodes the file at path over settings. Keys missing from the file keep
// their current values.
func LoadSettingsFromFile(path string, settings *Settings) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { mylog.Check(f.Close()) }()

	dec := toml.NewDecoder(f)
	return dec.Decode(settings)
}

func GenerateSampleSettings() string {
	return `# Sample hexcore settings file
[provider]
# Split providers into pages of this many bytes. The default, 0, shows each provider as a
# single page
#page-size=0

# Size in bytes of the pages each provider caches. It must be a power of two. The default is 65536
#cache-page-size=65536

# Number of pages each provider caches. The default is 16
#cache-pages=16

# Show addresses relative to the start of the provider instead of its base address.
# The default is false
#relative-addressing=false

[search]
# Size in bytes of the buffer searches read through. The default is 1048576
#buffer-size=1048576

# Shortest string reported by the strings search mode. The default is 5
#min-string-length=5

[diff]
# The algorithm used by the diff command: bytewise, myers or semantic.
# The default is "bytewise"
#algorithm="bytewise"

# Compare inputs in windows of this many bytes when using myers or semantic. Windows of
# 32768 to 131072 bytes keep very large comparisons tractable. The default, 0, compares the
# whole inputs at once
#window-size=0

[tasks]
# Number of background workers. The default, 0, uses one per CPU
#workers=0

[ssh]
# shell specifies the shell used to run the commands that read and write remote files.
# The default is "sh"
#shell="sh"

# cache-size is the max number of ssh sessions kept open at once. Each user, host, port, proxy
# combination requires a different connection
#cache-size=5
`
}
