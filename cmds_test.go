package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ddkwork/golibrary/mylog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffwilliams/hexcore/internal/app"
	"github.com/jeffwilliams/hexcore/internal/pl"
	"github.com/jeffwilliams/hexcore/internal/project"
	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
	"github.com/jeffwilliams/hexcore/internal/search"
)

func withApplication(t *testing.T) {
	a := app.New(app.Options{Provider: provider.DefaultOptions, Workers: 2})
	application = a
	t.Cleanup(func() { assert.NoError(t, a.Shutdown()) })
}

// setOption sets a command line option for the duration of the test.
func setOption[T any](t *testing.T, opt *T, v T) {
	old := *opt
	*opt = v
	t.Cleanup(func() { *opt = old })
}

func writeFile(t *testing.T, name string, data []byte) string {
	path := filepath.Join(t.TempDir(), name)
	mylog.Check(os.WriteFile(path, data, 0644))
	return path
}

func runCmd(t *testing.T, do func(ctx *CmdContext) error, args ...string) (string, error) {
	var out bytes.Buffer
	err := do(&CmdContext{Args: args, Out: &out})
	return out.String(), err
}

func TestFindSettings(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		typ      string
		args     []string
		expected search.Settings
	}{
		{
			name: "strings",
			mode: "strings",
			expected: search.Settings{
				Mode:    search.ModeStrings,
				Strings: search.Strings{MinLength: 5, Type: search.ASCII, Classes: search.AllClasses},
			},
		},
		{
			name: "utf16 strings",
			mode: "strings",
			typ:  "utf16le",
			expected: search.Settings{
				Mode:    search.ModeStrings,
				Strings: search.Strings{MinLength: 5, Type: search.UTF16LE, Classes: search.AllClasses},
			},
		},
		{
			name: "sequence",
			mode: "sequence",
			args: []string{"MZ"},
			expected: search.Settings{
				Mode:     search.ModeSequence,
				Sequence: search.Sequence{Bytes: []byte("MZ")},
			},
		},
		{
			name: "regex",
			mode: "regex",
			args: []string{"[a-z]+"},
			expected: search.Settings{
				Mode:  search.ModeRegex,
				Regex: search.Regex{Pattern: "[a-z]+"},
			},
		},
		{
			name: "pattern",
			mode: "pattern",
			args: []string{"AA ?B"},
			expected: search.Settings{
				Mode: search.ModeBinaryPattern,
				Binary: search.Binary{
					Pattern:   search.BinaryPattern{{Mask: 0xFF, Value: 0xAA}, {Mask: 0x0F, Value: 0x0B}},
					Alignment: 1,
				},
			},
		},
		{
			name: "value range",
			mode: "value",
			typ:  "u16",
			args: []string{"10", "0x20"},
			expected: search.Settings{
				Mode:  search.ModeValue,
				Value: search.Value{Type: search.U16, Min: "10", Max: "0x20"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setOption(t, optMode, tc.mode)
			setOption(t, optType, tc.typ)
			s, err := findSettings(tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, s)
		})
	}
}

func TestFindSettingsErrors(t *testing.T) {
	tests := []struct {
		name string
		mode string
		typ  string
		args []string
	}{
		{name: "unknown mode", mode: "fuzzy"},
		{name: "missing needle", mode: "sequence"},
		{name: "bad string type", mode: "strings", typ: "ebcdic"},
		{name: "bad value type", mode: "value", typ: "u7", args: []string{"1"}},
		{name: "bad pattern", mode: "pattern", args: []string{"AAA"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setOption(t, optMode, tc.mode)
			setOption(t, optType, tc.typ)
			_, err := findSettings(tc.args)
			assert.Error(t, err)
		})
	}
}

func TestParseHelpers(t *testing.T) {
	r, err := parseRegion("0x10:32")
	require.NoError(t, err)
	assert.Equal(t, region.Region{Address: 16, Size: 32}, r)

	_, err = parseRegion("0x10")
	assert.Error(t, err)
	_, err = parseRegion("0x10:z")
	assert.Error(t, err)

	a, err := parseAddress("0x1_000")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), a)

	b, err := parseHexBytes("de ad 0xBE EF")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, b)
	_, err = parseHexBytes("abc")
	assert.Error(t, err)
}

func TestUsageError(t *testing.T) {
	assert.Equal(t, "usage: hexcore patch <file> <address> <hexbytes>", usageError{"patch"}.Error())
	assert.Equal(t, "usage: hexcore find <file> [what] [max]", usageError{"find"}.Error())
}

func TestCmdFind(t *testing.T) {
	withApplication(t)
	file := writeFile(t, "data.bin", []byte("xhi\x00hi"))
	setOption(t, optMode, "sequence")
	setOption(t, optBookmark, "hit")

	out, err := runCmd(t, CmdFind, file, "hi")
	require.NoError(t, err)
	assert.Equal(t, "0x00000001\t2\t\"hi\"\n0x00000004\t2\t\"hi\"\n", out)

	p := application.Current()
	var names []string
	for _, b := range application.Bookmarks(p).All() {
		names = append(names, b.Name)
	}
	assert.Equal(t, []string{"hit0", "hit1"}, names)

	_, err = runCmd(t, CmdFind)
	assert.IsType(t, usageError{}, err)
}

func TestCmdFindRegion(t *testing.T) {
	withApplication(t)
	file := writeFile(t, "data.bin", []byte("hi hi hi"))
	setOption(t, optMode, "sequence")
	setOption(t, optRegion, "2:6")
	setOption(t, optExport, "csv")

	out, err := runCmd(t, CmdFind, file, "hi")
	require.NoError(t, err)
	assert.Equal(t, "address,size,type,value\n0x00000003,2,ascii,hi\n0x00000006,2,ascii,hi\n", out)
}

func TestCmdPatch(t *testing.T) {
	withApplication(t)
	file := writeFile(t, "data.bin", []byte{0, 1, 2, 3})

	out, err := runCmd(t, CmdPatch, file, "1", "AABB")
	require.NoError(t, err)
	assert.Equal(t, "wrote 2 bytes at 0x00000001 of data.bin\n", out)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0xAA, 0xBB, 3}, data)

	_, err = runCmd(t, CmdPatch, file, "1")
	assert.IsType(t, usageError{}, err)
}

func TestCmdDiff(t *testing.T) {
	withApplication(t)
	a := writeFile(t, "a.bin", []byte{1, 2, 3, 4})
	b := writeFile(t, "b.bin", []byte{1, 0xFF, 3, 4, 5})

	out, err := runCmd(t, CmdDiff, a, b)
	require.NoError(t, err)
	assert.Equal(t, "--- a.bin\n+++ b.bin\n"+
		"- 0x00000001 1 mismatch\n"+
		"+ 0x00000001 1 mismatch\n"+
		"+ 0x00000004 1 insertion\n", out)

	out, err = runCmd(t, CmdDiff, a, a)
	require.NoError(t, err)
	assert.Equal(t, "a.bin and a.bin are identical\n", out)

	setOption(t, optAlgorithm, "nope")
	_, err = runCmd(t, CmdDiff, a, b)
	assert.ErrorContains(t, err, "unknown diff algorithm 'nope'")
}

func TestCmdParse(t *testing.T) {
	src := "struct S { u8 a; be u16 b; }; S s @ 0x10;"
	file := writeFile(t, "s.hexpat", []byte(src))

	out, err := runCmd(t, CmdParse, file)
	require.NoError(t, err)
	program, err := pl.ParseSource(src)
	require.NoError(t, err)
	assert.Equal(t, pl.Print(program), out)

	bad := writeFile(t, "bad.hexpat", []byte("u8 x"))
	_, err = runCmd(t, CmdParse, bad)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), bad+":"))
	assert.Contains(t, err.Error(), "missing ';' at end of expression")
}

func TestProjectCommands(t *testing.T) {
	withApplication(t)
	data := writeFile(t, "data.bin", []byte("hello"))
	setOption(t, optMode, "sequence")
	setOption(t, optBookmark, "l")

	p, err := openLocation(data, false)
	require.NoError(t, err)
	require.NoError(t, p.Write(0, []byte("J")))
	_, err = runCmd(t, CmdFind, "#0", "ll")
	require.NoError(t, err)

	archive := filepath.Join(t.TempDir(), "p.hexproj")
	require.NoError(t, saveProject(archive))

	out, err := runCmd(t, CmdProject, archive)
	require.NoError(t, err)
	assert.Equal(t, "version 1, layout 'cli'\n"+
		"*#0 data.bin ("+provider.TypeFile+") base 0x00000000, 1 unsaved bytes in 1 runs\n"+
		"    [0x2, 0x4) l0\n", out)

	withApplication(t)
	require.NoError(t, loadProject(archive))
	out, err = runCmd(t, CmdFind, "#0", "Je")
	require.NoError(t, err)
	assert.Equal(t, "0x00000000\t2\t\"Je\"\n", out)
}

func TestWriteProject(t *testing.T) {
	ar := &project.Archive{
		Manifest: project.Manifest{Version: 1, Current: -1, Layout: "tabs", Providers: []project.Entry{
			{Dir: "providers/0", Name: "mem", Type: provider.TypeMemory},
		}},
		Providers: []project.ProviderState{{
			Config: provider.Config{Type: provider.TypeMemory, BaseAddress: 0x400},
			Bookmarks: []app.Bookmark{
				{Region: region.Region{Address: 0x400, Size: 4}, Name: "magic", Comment: "file magic", Locked: true},
			},
		}},
	}

	var buf bytes.Buffer
	writeProject(&buf, ar)
	assert.Equal(t, "version 1, layout 'tabs'\n"+
		" #0 mem ("+provider.TypeMemory+") base 0x00000400, 0 unsaved bytes in 0 runs\n"+
		"    [0x400, 0x404) magic: file magic (locked)\n", buf.String())
}

func TestLoadSettingsFromFile(t *testing.T) {
	file := writeFile(t, "settings.toml", []byte(`
[provider]
page-size = 4096
relative-addressing = true

[diff]
algorithm = "myers"

[tasks]
workers = 3

[ssh]
shell = "bash"
`))

	s := Settings{Search: SearchSettings{MinStringLength: 5}, Ssh: SshSettings{Shell: "sh", CacheSize: 5}}
	require.NoError(t, LoadSettingsFromFile(file, &s))

	assert.Equal(t, uint64(4096), s.Provider.PageSize)
	assert.True(t, s.Provider.RelativeAddressing)
	assert.Equal(t, "myers", s.Diff.Algorithm)
	assert.Equal(t, 3, s.Tasks.Workers)
	assert.Equal(t, "bash", s.Ssh.Shell)
	assert.Equal(t, 5, s.Ssh.CacheSize)
	assert.Equal(t, 5, s.Search.MinStringLength)

	o := s.AppOptions()
	assert.Equal(t, uint64(4096), o.Provider.PageSize)
	assert.Equal(t, provider.DefaultCachePageSize, int(o.Provider.CachePageSize))
	assert.True(t, o.Provider.RelativeAddressing)
	assert.Equal(t, 3, o.Workers)
}

func TestSampleSettingsParse(t *testing.T) {
	file := writeFile(t, "settings.toml", []byte(GenerateSampleSettings()))
	s := Settings{Ssh: SshSettings{Shell: "bash"}}
	require.NoError(t, LoadSettingsFromFile(file, &s))
	assert.Equal(t, Settings{Ssh: SshSettings{Shell: "bash"}}, s)
}
