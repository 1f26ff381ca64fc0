package gemini

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"go.uber.org/zap"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// decodeStream drives SSE decoding of body to exhaustion, invoking emit for
// every extracted text delta in arrival order. Network reads may split a
// record anywhere, so a partial trailing line is carried over between reads.
//
// Decoding stops when the [DONE] sentinel is seen, when the body reaches
// natural end-of-stream, or when emit returns false (abort). A malformed JSON
// record is logged and skipped; it never aborts the stream.
func decodeStream(body io.Reader, log *zap.Logger, emit func(delta string) bool) error {
	var buf []byte
	chunk := make([]byte, 4*1024)

	for {
		n, err := body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)

			lines := bytes.Split(buf, []byte{'\n'})
			last := len(lines) - 1
			for _, line := range lines[:last] {
				done, delta := decodeRecord(line, log)
				if done {
					return nil
				}
				if delta != "" && !emit(delta) {
					return nil
				}
			}
			// The final fragment may be an incomplete line; keep it as the
			// seed for the next read.
			buf = append(buf[:0], lines[last]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// decodeRecord parses one complete line. Lines that do not start with the
// "data: " prefix (blank lines, comments, other SSE fields) are ignored.
func decodeRecord(line []byte, log *zap.Logger) (done bool, delta string) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return false, ""
	}
	payload := line[len(dataPrefix):]
	if string(payload) == doneSentinel {
		return true, ""
	}

	var decoded streamResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		log.Warn("skipping malformed stream record", zap.Error(err))
		return false, ""
	}
	if len(decoded.Candidates) == 0 {
		return false, ""
	}
	parts := decoded.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return false, ""
	}
	return false, parts[0].Text
}
