package diff

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
)

func openMemory(t *testing.T, data []byte) *provider.Provider {
	p := provider.New(provider.NewMemory("test", data), provider.DefaultOptions)
	require.NoError(t, p.Open())
	return p
}

func withPageSize(t *testing.T, n int) {
	old := PageSize
	PageSize = n
	t.Cleanup(func() { PageSize = old })
}

func analyze(t *testing.T, alg Algorithm, a, b []byte) *Result {
	res, err := alg.Analyze(context.Background(), openMemory(t, a), openMemory(t, b), nil)
	require.NoError(t, err)
	return res
}

func entry(k Kind, addr, size uint64) Entry {
	return Entry{Region: region.Region{Address: addr, Size: size}, Kind: k}
}

func TestBytewise(t *testing.T) {
	tests := []struct {
		name string
		a, b []byte
		expA []Entry
		expB []Entry
	}{
		{
			name: "b is longer",
			a:    []byte{0x01, 0x02, 0x03, 0x04},
			b:    []byte{0x01, 0xFF, 0x03, 0x04, 0x05},
			expA: []Entry{entry(Mismatch, 1, 1)},
			expB: []Entry{entry(Mismatch, 1, 1), entry(Insertion, 4, 1)},
		},
		{
			name: "a is longer",
			a:    []byte{1, 2, 3},
			b:    []byte{9},
			expA: []Entry{entry(Mismatch, 0, 1), entry(Deletion, 1, 2)},
			expB: []Entry{entry(Mismatch, 0, 1)},
		},
		{
			name: "runs are coalesced",
			a:    []byte{0, 1, 2, 3, 4, 5, 6},
			b:    []byte{0, 9, 9, 3, 9, 9, 9},
			expA: []Entry{entry(Mismatch, 1, 2), entry(Mismatch, 4, 3)},
			expB: []Entry{entry(Mismatch, 1, 2), entry(Mismatch, 4, 3)},
		},
		{
			name: "equal",
			a:    []byte("same"),
			b:    []byte("same"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := analyze(t, Bytewise{}, tc.a, tc.b)
			assert.Equal(t, tc.expA, res.A.Entries())
			assert.Equal(t, tc.expB, res.B.Entries())
		})
	}
}

func TestBytewiseRunSpansPages(t *testing.T) {
	withPageSize(t, 3)
	a := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	b := []byte{0, 1, 0, 0, 0, 0, 6, 7, 8, 0}
	res := analyze(t, Bytewise{}, a, b)
	assert.Equal(t, []Entry{entry(Mismatch, 2, 4), entry(Mismatch, 9, 1)}, res.A.Entries())
}

func TestBytewiseCoversExactlyTheDifferences(t *testing.T) {
	withPageSize(t, 16)
	rnd := rand.New(rand.NewSource(1))

	for i := 0; i < 20; i++ {
		a := make([]byte, 50+rnd.Intn(50))
		b := make([]byte, 50+rnd.Intn(50))
		for j := range a {
			a[j] = byte(rnd.Intn(3))
		}
		for j := range b {
			b[j] = byte(rnd.Intn(3))
		}

		res := analyze(t, Bytewise{}, a, b)
		for addr := 0; addr < max(len(a), len(b)); addr++ {
			differ := addr >= len(a) || addr >= len(b) || a[addr] != b[addr]
			_, onA := res.A.KindAt(uint64(addr))
			_, onB := res.B.KindAt(uint64(addr))
			assert.Equal(t, differ, onA || onB, "address %d", addr)
		}
	}
}

func TestBytewiseUsesBaseAddresses(t *testing.T) {
	pa := openMemory(t, []byte{1, 2, 3})
	pa.SetBaseAddress(0x100)
	pb := openMemory(t, []byte{1, 0, 3})

	res, err := Bytewise{}.Analyze(context.Background(), pa, pb, nil)
	require.NoError(t, err)
	assert.Equal(t, []Entry{entry(Mismatch, 0x101, 1)}, res.A.Entries())
	assert.Equal(t, []Entry{entry(Mismatch, 1, 1)}, res.B.Entries())
}

func TestMyers(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		expA []Entry
		expB []Entry
	}{
		{
			name: "insertion",
			a:    "abcdef",
			b:    "abXcdef",
			expB: []Entry{entry(Insertion, 2, 1)},
		},
		{
			name: "deletion",
			a:    "abcdef",
			b:    "abdef",
			expA: []Entry{entry(Deletion, 2, 1)},
		},
		{
			name: "replacement",
			a:    "abcdef",
			b:    "abXdef",
			expA: []Entry{entry(Mismatch, 2, 1)},
			expB: []Entry{entry(Mismatch, 2, 1)},
		},
		{
			name: "replacement with surplus",
			a:    "abcdef",
			b:    "abXYZdef",
			expA: []Entry{entry(Mismatch, 2, 1)},
			expB: []Entry{entry(Mismatch, 2, 1), entry(Insertion, 3, 2)},
		},
		{
			name: "a is empty",
			a:    "",
			b:    "abc",
			expB: []Entry{entry(Insertion, 0, 3)},
		},
		{
			name: "equal",
			a:    "abc",
			b:    "abc",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := analyze(t, Myers{}, []byte(tc.a), []byte(tc.b))
			assert.Equal(t, tc.expA, res.A.Entries())
			assert.Equal(t, tc.expB, res.B.Entries())
		})
	}
}

// replay applies s to a and returns the result and the number of edited bytes.
func replay(a, b []byte, s script) ([]byte, int) {
	var out []byte
	pa, pb, cost := 0, 0, 0
	for _, e := range s {
		switch e.op {
		case opEqual:
			out = append(out, a[pa:pa+e.n]...)
			pa += e.n
			pb += e.n
		case opDelete:
			pa += e.n
			cost += e.n
		case opInsert:
			out = append(out, b[pb:pb+e.n]...)
			pb += e.n
			cost += e.n
		}
	}
	return out, cost
}

func editDistance(a, b []byte) int {
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}
	return len(a) + len(b) - 2*lcs[0][0]
}

func TestShortestEditIsMinimal(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	m := meter{ctx: context.Background()}

	for i := 0; i < 200; i++ {
		a := make([]byte, rnd.Intn(40))
		b := make([]byte, rnd.Intn(40))
		for j := range a {
			a[j] = byte('a' + rnd.Intn(4))
		}
		for j := range b {
			b[j] = byte('a' + rnd.Intn(4))
		}

		s, err := shortestEdit(m, 0, a, b)
		require.NoError(t, err)
		got, cost := replay(a, b, s)
		assert.Equal(t, string(b), string(got), "%q -> %q", a, b)
		assert.Equal(t, editDistance(a, b), cost, "%q -> %q", a, b)
	}
}

func TestMyersWindows(t *testing.T) {
	res := analyze(t, Myers{WindowSize: 4}, []byte("aaaabbbbcccc"), []byte("aaaXbbbbcccc"))
	assert.Equal(t, []Entry{entry(Mismatch, 3, 1)}, res.A.Entries())
	assert.Equal(t, []Entry{entry(Mismatch, 3, 1)}, res.B.Entries())

	res = analyze(t, Myers{WindowSize: 4}, []byte("aaaabb"), []byte("aaaabbbbcc"))
	assert.Empty(t, res.A.Entries())
	assert.Equal(t, []Entry{entry(Insertion, 6, 4)}, res.B.Entries())
}

func TestSemantic(t *testing.T) {
	res := analyze(t, Semantic{}, []byte("abc\x80\x81def"), []byte("abc\x80\x81XYZdef"))
	assert.Empty(t, res.A.Entries())
	assert.Equal(t, []Entry{entry(Insertion, 5, 3)}, res.B.Entries())

	res = analyze(t, Semantic{}, []byte("same"), []byte("same"))
	assert.Empty(t, res.A.Entries())
	assert.Empty(t, res.B.Entries())
}

func TestSemanticReplacedBlock(t *testing.T) {
	a := make([]byte, 300)
	for i := range a {
		a[i] = byte(i)
	}
	b := append(append(append([]byte{}, a[:100]...), 0xFE, 0xFF), a[120:]...)

	res := analyze(t, Semantic{}, a, b)
	assert.Equal(t, []Entry{entry(Mismatch, 100, 2), entry(Deletion, 102, 18)}, res.A.Entries())
	assert.Equal(t, []Entry{entry(Mismatch, 100, 2)}, res.B.Entries())
}

func TestSideLookups(t *testing.T) {
	res := analyze(t, Bytewise{}, []byte{0, 1, 2, 3, 4, 5}, []byte{0, 9, 2, 3, 9, 5, 6})

	k, ok := res.B.KindAt(1)
	assert.True(t, ok)
	assert.Equal(t, Mismatch, k)
	_, ok = res.B.KindAt(2)
	assert.False(t, ok)

	next, ok := res.B.Next(1)
	require.True(t, ok)
	assert.Equal(t, entry(Mismatch, 4, 1), next)

	prev, ok := res.B.Prev(4)
	require.True(t, ok)
	assert.Equal(t, entry(Mismatch, 1, 1), prev)

	assert.Equal(t, []Entry{entry(Mismatch, 4, 1), entry(Insertion, 6, 1)},
		res.B.Overlapping(region.Region{Address: 3, Size: 4}))
}

func TestCancelledAnalysis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, alg := range []Algorithm{Bytewise{}, Myers{}, Semantic{}} {
		t.Run(alg.Name(), func(t *testing.T) {
			_, err := alg.Analyze(ctx, openMemory(t, []byte("abc")), openMemory(t, []byte("abd")), nil)
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestProgress(t *testing.T) {
	withPageSize(t, 4)
	var seen []uint64
	_, err := Bytewise{}.Analyze(context.Background(), openMemory(t, make([]byte, 10)), openMemory(t, make([]byte, 9)),
		func(processed, total uint64) {
			assert.Equal(t, uint64(10), total)
			seen = append(seen, processed)
		})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 4, 8, 10}, seen)
}

func TestNew(t *testing.T) {
	alg, err := New("", Options{})
	require.NoError(t, err)
	assert.Equal(t, "bytewise", alg.Name())

	alg, err = New("myers", Options{WindowSize: 64})
	require.NoError(t, err)
	assert.Equal(t, Myers{WindowSize: 64}, alg)

	_, err = New("lcs", Options{})
	assert.EqualError(t, err, "unknown diff algorithm 'lcs'. Expected one of bytewise, myers, semantic")
}
