package docker

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"iter"

	"github.com/rs/zerolog/log"
)

const maxChunk = 1 << 20

// Values yields the JSON values of a newline-delimited stream in order. A
// line may hold several values and surrounding whitespace. Malformed JSON is
// logged and the rest of its line skipped. A read error ends the sequence as
// its final element. The sequence can be consumed once.
func Values(r io.Reader) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxChunk)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			dec := json.NewDecoder(bytes.NewReader(line))
			for {
				var v json.RawMessage
				err := dec.Decode(&v)
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					log.Warn().Err(err).Bytes("chunk", line).Msg("skipping malformed engine output")
					break
				}
				if !yield(v, nil) {
					return
				}
			}
		}
		if err := sc.Err(); err != nil {
			yield(nil, err)
		}
	}
}
