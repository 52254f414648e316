package provider

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffwilliams/hexcore/internal/region"
)

func TestParseIntelHex(t *testing.T) {
	src := `:0400100001020304E2
:020000040001F9
:02000000AABB99
:00000001FF
`
	img, err := ParseIntelHex(strings.NewReader(src))
	require.NoError(t, err)

	chunks := img.Chunks()
	require.Len(t, chunks, 2)
	assert.Equal(t, uint64(0x10), chunks[0].From)
	assert.Equal(t, []byte{1, 2, 3, 4}, chunks[0].Value)
	assert.Equal(t, uint64(0x10000), chunks[1].From)
	assert.Equal(t, uint64(0x10002), img.Size())

	buf := make([]byte, 6)
	n, err := img.ReadAt(buf, 0x0E)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte{0, 0, 1, 2, 3, 4}, buf)
}

func TestParseIntelHexErrors(t *testing.T) {
	tests := []struct {
		name, src, reason string
	}{
		{"no colon", "0400100001020304E2\n", "record does not start with ':'"},
		{"checksum", ":0400100001020304E3\n", "checksum mismatch"},
		{"length", ":0500100001020304E2\n", "record length mismatch"},
		{"hex", ":04001000010203ZZE2\n", "invalid hex digits"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseIntelHex(strings.NewReader(tc.src))
			var re *RecordError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, 1, re.Line)
			assert.Equal(t, tc.reason, re.Reason)
		})
	}
}

func TestParseSrec(t *testing.T) {
	src := `S00600004844521B
S1070100AABBCCDDE9
S5030001FB
S9030000FC
`
	img, err := ParseSrec(strings.NewReader(src))
	require.NoError(t, err)

	chunks := img.Chunks()
	require.Len(t, chunks, 1)
	assert.Equal(t, uint64(0x100), chunks[0].From)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, chunks[0].Value)
}

func TestRecordsBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.hex")
	require.NoError(t, os.WriteFile(path, []byte(":0400100001020304E2\n:00000001FF\n"), 0o644))

	p := New(NewIntelHex(path), DefaultOptions)
	require.NoError(t, p.Open())
	assert.Equal(t, uint64(0x14), p.ActualSize())
	assert.Equal(t, Readable, p.Capabilities())

	buf := make([]byte, 2)
	_, err := p.Read(0x11, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3}, buf)
}

func TestViewBackend(t *testing.T) {
	parent := openMemory(t, []byte{0, 1, 2, 3, 4, 5, 6, 7})
	view := New(NewView(parent, region.Region{Address: 2, Size: 4}), DefaultOptions)
	require.NoError(t, view.Open())

	assert.Equal(t, uint64(4), view.ActualSize())
	assert.Equal(t, []byte{2, 3, 4, 5}, readAll(t, view))

	require.NoError(t, view.Write(1, []byte{0xFF}))
	require.NoError(t, view.Save())
	assert.Equal(t, []byte{0, 1, 2, 0xFF, 4, 5, 6, 7}, readAll(t, parent))
	assert.True(t, parent.Dirty())

	assert.ErrorIs(t, view.Write(3, []byte{1, 2}), ErrOutOfBounds)
}

func TestViewOutsideParent(t *testing.T) {
	parent := openMemory(t, []byte{0, 1, 2})
	view := New(NewView(parent, region.Region{Address: 2, Size: 4}), DefaultOptions)
	assert.ErrorIs(t, view.Open(), ErrOutOfBounds)
}

func TestRegistry(t *testing.T) {
	names := DefaultRegistry.List("hexcore.provider.m")
	assert.Equal(t, []string{TypeMemory, TypeMotorolaSrec}, names)
	assert.Len(t, DefaultRegistry.List(""), 7)

	_, err := DefaultRegistry.New("hexcore.provider.process")
	assert.ErrorIs(t, err, ErrUnknownType)

	r := NewRegistry()
	r.Register("x.custom", func() Backend { return NewMemory("custom", []byte{1}) })
	b, err := r.New("x.custom")
	require.NoError(t, err)
	assert.Equal(t, "custom", b.Name())
	r.Unregister("x.custom")
	assert.Equal(t, 0, r.Len())
}

func TestConfigRoundTrip(t *testing.T) {
	p := openMemory(t, []byte{1, 2, 3})
	p.SetBaseAddress(0x400)

	c, err := p.Config()
	require.NoError(t, err)
	assert.Equal(t, TypeMemory, c.Type)

	q, err := DefaultRegistry.FromConfig(c, DefaultOptions, nil)
	require.NoError(t, err)
	require.NoError(t, q.Open())
	assert.Equal(t, uint64(0x400), q.BaseAddress())
	assert.Equal(t, []byte{1, 2, 3}, readAll(t, q))
	assert.NotEqual(t, p.ID(), q.ID())
}

func TestViewConfigResolvesParent(t *testing.T) {
	parent := openMemory(t, []byte{0, 1, 2, 3})
	view := New(NewView(parent, region.Region{Address: 1, Size: 2}), DefaultOptions)
	c, err := view.Config()
	require.NoError(t, err)

	resolve := func(id uint64) (*Provider, bool) {
		return parent, id == parent.ID()
	}
	q, err := DefaultRegistry.FromConfig(c, DefaultOptions, resolve)
	require.NoError(t, err)
	require.NoError(t, q.Open())
	assert.Equal(t, []byte{1, 2}, readAll(t, q))
}

func TestFromConfigRejectsBadSettings(t *testing.T) {
	_, err := DefaultRegistry.FromConfig(Config{Type: TypeFile, Backend: []byte(`{"path": 5}`)}, DefaultOptions, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestReader(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	p := openMemory(t, data)
	r := NewReader(p, region.Region{Address: 10, Size: 20}, 8)

	var fwd []byte
	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		fwd = append(fwd, b)
	}
	assert.Equal(t, data[10:30], fwd)

	r.SetReverse(true)
	var rev []byte
	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		rev = append(rev, b)
	}
	require.Len(t, rev, 20)
	for i := range rev {
		assert.Equal(t, data[29-i], rev[i])
	}

	w, err := r.Window(25, 10)
	require.NoError(t, err)
	assert.Equal(t, data[25:30], w)

	r.SetReverse(false)
	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data[10:30], all)
}

// fakeRemote serves the stat, dd and truncate commands the ssh backend issues from memory.
type fakeRemote struct {
	data []byte
	cmds []string
}

var (
	ddRead  = regexp.MustCompile(`^dd if=.* bs=\d+ iflag=skip_bytes,count_bytes skip=(\d+) count=(\d+)`)
	ddWrite = regexp.MustCompile(`^dd of=.* bs=\d+ oflag=seek_bytes seek=(\d+) conv=notrunc`)
	trunc   = regexp.MustCompile(`^truncate -s (\d+) `)
)

func (f *fakeRemote) Run(cmd string, stdin []byte) ([]byte, error) {
	f.cmds = append(f.cmds, cmd)
	switch {
	case strings.HasPrefix(cmd, "stat "):
		return []byte(fmt.Sprintf("%d\n", len(f.data))), nil
	case ddRead.MatchString(cmd):
		m := ddRead.FindStringSubmatch(cmd)
		skip, _ := strconv.Atoi(m[1])
		count, _ := strconv.Atoi(m[2])
		end := min(len(f.data), skip+count)
		return append([]byte{}, f.data[skip:end]...), nil
	case ddWrite.MatchString(cmd):
		seek, _ := strconv.Atoi(ddWrite.FindStringSubmatch(cmd)[1])
		if need := seek + len(stdin); need > len(f.data) {
			f.data = append(f.data, make([]byte, need-len(f.data))...)
		}
		copy(f.data[seek:], stdin)
		return nil, nil
	case trunc.MatchString(cmd):
		n, _ := strconv.Atoi(trunc.FindStringSubmatch(cmd)[1])
		if n < len(f.data) {
			f.data = f.data[:n]
		} else {
			f.data = append(f.data, make([]byte, n-len(f.data))...)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected command %s", cmd)
}

func TestSshBackend(t *testing.T) {
	remote := &fakeRemote{data: []byte("remote data")}
	endpt := SshEndpt{Dest: SshHop{User: "me", Host: "box", Port: "22"}}
	p := New(NewSshWithRunner(remote, endpt, "/tmp/it's.bin"), DefaultOptions)
	require.NoError(t, p.Open())

	assert.Equal(t, uint64(11), p.ActualSize())
	assert.Equal(t, "box:it's.bin", p.Name())
	assert.Equal(t, []byte("remote data"), readAll(t, p))
	assert.Contains(t, remote.cmds[0], `'/tmp/it'\''s.bin'`)

	require.NoError(t, p.Write(0, []byte("R")))
	require.NoError(t, p.Write(11, []byte("!")))
	require.NoError(t, p.Save())
	assert.Equal(t, "Remote data!", string(remote.data))
}

func TestSshEndptString(t *testing.T) {
	e := SshEndpt{Dest: SshHop{"a", "dest", "22"}}
	assert.Equal(t, "a@dest:22", e.String())
	e.Proxy = SshHop{"b", "jump", "2222"}
	assert.Equal(t, "a@dest:22%b@jump:2222", e.String())
	assert.True(t, e.HasProxy())
}

func TestCapabilitiesString(t *testing.T) {
	assert.Equal(t, "readable|writable", (Readable | Writable).String())
	assert.Equal(t, "none", Capabilities(0).String())
}
