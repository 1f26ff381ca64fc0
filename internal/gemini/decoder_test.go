package gemini

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func record(text string) string {
	return fmt.Sprintf("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":%q}]}}]}\n\n", text)
}

func collect(t *testing.T, body io.Reader) []string {
	t.Helper()
	var got []string
	err := decodeStream(body, zap.NewNop(), func(delta string) bool {
		got = append(got, delta)
		return true
	})
	require.NoError(t, err)
	return got
}

// chunkedReader returns the stream in caller-chosen slices, simulating
// arbitrary network read boundaries.
type chunkedReader struct {
	chunks []string
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n == len(r.chunks[0]) {
		r.chunks = r.chunks[1:]
	} else {
		r.chunks[0] = r.chunks[0][n:]
	}
	return n, nil
}

func TestDecodeStream_DeliversDeltasInOrder(t *testing.T) {
	stream := record("Hello") + record(", ") + record("world")

	got := collect(t, strings.NewReader(stream))

	require.Equal(t, []string{"Hello", ", ", "world"}, got)
}

func TestDecodeStream_DoneSentinelStopsImmediately(t *testing.T) {
	stream := record("before") + "data: [DONE]\n\n" + record("after")

	got := collect(t, strings.NewReader(stream))

	require.Equal(t, []string{"before"}, got)
}

func TestDecodeStream_MalformedRecordIsSkipped(t *testing.T) {
	stream := record("one") + "data: {not json\n\n" + record("two")

	got := collect(t, strings.NewReader(stream))

	require.Equal(t, []string{"one", "two"}, got)
}

func TestDecodeStream_IgnoresNonDataLines(t *testing.T) {
	stream := ": comment\n\nevent: message\n" + record("only")

	got := collect(t, strings.NewReader(stream))

	require.Equal(t, []string{"only"}, got)
}

func TestDecodeStream_EmptyCandidatesYieldNoDelta(t *testing.T) {
	stream := "data: {\"candidates\":[]}\n" +
		"data: {\"candidates\":[{\"content\":{\"parts\":[]}}]}\n" +
		record("tail")

	got := collect(t, strings.NewReader(stream))

	require.Equal(t, []string{"tail"}, got)
}

func TestDecodeStream_ReassemblesAcrossReads(t *testing.T) {
	full := record("partial line survives") + record("second")

	// Split the stream at every possible boundary; each split must decode
	// identically to a single read.
	for cut := 1; cut < len(full); cut++ {
		r := &chunkedReader{chunks: []string{full[:cut], full[cut:]}}
		got := collect(t, r)
		require.Equalf(t, []string{"partial line survives", "second"}, got, "split at byte %d", cut)
	}
}

func TestDecodeStream_ManyTinyReads(t *testing.T) {
	full := record("abcdef")
	var chunks []string
	for i := 0; i < len(full); i += 3 {
		end := i + 3
		if end > len(full) {
			end = len(full)
		}
		chunks = append(chunks, full[i:end])
	}

	got := collect(t, &chunkedReader{chunks: chunks})

	require.Equal(t, []string{"abcdef"}, got)
}

func TestDecodeStream_CRLFFraming(t *testing.T) {
	stream := strings.ReplaceAll(record("crlf"), "\n", "\r\n")

	got := collect(t, strings.NewReader(stream))

	require.Equal(t, []string{"crlf"}, got)
}

func TestDecodeStream_EmitAbortStopsDecoding(t *testing.T) {
	stream := record("one") + record("two")

	var got []string
	err := decodeStream(strings.NewReader(stream), zap.NewNop(), func(delta string) bool {
		got = append(got, delta)
		return false
	})

	require.NoError(t, err)
	require.Equal(t, []string{"one"}, got)
}
