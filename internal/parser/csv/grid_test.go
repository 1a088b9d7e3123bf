package csv

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadGrid(t *testing.T) {
	t.Parallel()

	cfg := Config{Delimiter: ',', Quote: '"', DoubleQuote: true}
	data := []byte("exported by tool\na,b,c\n1,2,3\n4,5\n6,7,8,9\n")

	strict := ReadGrid(data, cfg, 3, false, 1)
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"1", "2", "3"}}, strict.Rows)
	assert.Equal(t, 2, strict.Dropped)
	assert.Equal(t, 4, strict.Records())
	assert.Equal(t, []int{6, 6, 4, 8}, strict.Lens)

	flex := ReadGrid(data, cfg, 3, true, 1)
	require.Len(t, flex.Rows, 4)
	assert.Equal(t, []string{"4", "5", ""}, flex.Rows[2])
	assert.Equal(t, []string{"6", "7", "8"}, flex.Rows[3])
	assert.Zero(t, flex.Dropped)
}

func TestReadGrid_Unterminated(t *testing.T) {
	t.Parallel()

	g := ReadGrid([]byte("a,b\n1,\"x\n"), Config{Delimiter: ',', Quote: '"', DoubleQuote: true}, 2, false, 0)
	assert.Equal(t, 1, g.Unterminated)
	assert.Len(t, g.Rows, 2)
}

// TestFieldCounts_FastPathMatchesScanner checks that bytes.Count over
// quote-free input agrees with the state machine, for every delimiter.
func TestFieldCounts_FastPathMatchesScanner(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	alphabet := []byte("ab1 ,;\t|:\r\n\n")
	for iter := 0; iter < 3000; iter++ {
		data := make([]byte, rng.Intn(120))
		for i := range data {
			data[i] = alphabet[rng.Intn(len(alphabet))]
		}
		for _, delim := range []byte{',', '\t', ';', '|', ':', ' '} {
			cfg := Config{Delimiter: delim, Quote: '"', DoubleQuote: true}
			fc, fl := fieldCountsFast(data, delim)
			sc, sl := fieldCountsScan(data, cfg)
			require.Equal(t, sc, fc, "delim=%q data=%q", delim, data)
			require.Equal(t, sl, fl, "delim=%q data=%q", delim, data)
		}
	}
}

func TestFieldCounts_QuotedUsesScanner(t *testing.T) {
	t.Parallel()

	counts, _ := FieldCounts([]byte("a;\"x;y\";c\n1;2;3\n"), Config{Delimiter: ';', Quote: '"', DoubleQuote: true})
	assert.Equal(t, []int{3, 3}, counts)
}

func TestDropUnterminated(t *testing.T) {
	t.Parallel()

	// The last record is cut inside its quoted note.
	data := []byte("id,note,score\n1,\"a\nb\",5\n2,\"c\n")
	cfg := Config{Delimiter: ',', Quote: '"', DoubleQuote: true}

	counts, _ := FieldCounts(data, cfg)
	assert.Equal(t, []int{3, 3, 2}, counts)
	g := ReadGrid(data, cfg, 3, true, 0)
	assert.Equal(t, 1, g.Unterminated)
	assert.Len(t, g.Rows, 3)
	assert.Zero(t, g.Cut)

	cfg.DropUnterminated = true
	counts, _ = FieldCounts(data, cfg)
	assert.Equal(t, []int{3, 3}, counts)
	g = ReadGrid(data, cfg, 3, false, 0)
	assert.Equal(t, 1, g.Unterminated)
	assert.Equal(t, [][]string{{"id", "note", "score"}, {"1", "a\nb", "5"}}, g.Rows)
	assert.Equal(t, []int{14, 10}, g.Lens)
	assert.Equal(t, 5, g.Cut)
	assert.Zero(t, g.Dropped)
}
