package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	frameStart    = '$'
	frameTag      = "ENS"
	maxFrameBytes = 64 * 1024
)

// LineCodec decodes the checksummed ASCII ensemble sentence emitted by the
// simulator:
//
//	$ENS,<number>,<RFC3339Nano time>,<voltage>[,<name>=<value>...]*<XX>\r\n
//
// XX is the hex XOR of every byte between '$' and '*'. The number/time pair
// or the voltage may be left empty. Bytes outside a sentence (command echoes,
// BREAK banners) are skipped, as are sentences with other tags.
type LineCodec struct {
	buf []byte
}

func NewLineCodec() *LineCodec {
	return &LineCodec{}
}

func (c *LineCodec) Add(p []byte) ([]Ensemble, error) {
	c.buf = append(c.buf, p...)

	var (
		out  []Ensemble
		errs []error
	)
	for {
		start := bytes.IndexByte(c.buf, frameStart)
		if start < 0 {
			c.buf = c.buf[:0]
			break
		}
		c.buf = c.buf[start:]

		end := bytes.IndexByte(c.buf, '\n')
		if end < 0 {
			if len(c.buf) > maxFrameBytes {
				errs = append(errs, &ProtocolError{Reason: fmt.Sprintf("unterminated frame over %d bytes discarded", maxFrameBytes)})
				c.buf = c.buf[:0]
			}
			break
		}

		line := strings.TrimRight(string(c.buf[:end]), "\r")
		c.buf = c.buf[end+1:]

		ens, ok, err := parseSentence(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			out = append(out, ens)
		}
	}

	// Keep the backing array from growing without bound across calls.
	if cap(c.buf) > maxFrameBytes && len(c.buf) < cap(c.buf)/4 {
		c.buf = append([]byte(nil), c.buf...)
	}

	return out, errors.Join(errs...)
}

// Buffered returns the number of bytes held for an incomplete frame.
func (c *LineCodec) Buffered() int { return len(c.buf) }

func (c *LineCodec) DecodeBreak(text string) BreakResult {
	return ParseBreak(text)
}

// parseSentence returns ok=false for well-formed sentences with another tag.
func parseSentence(line string) (Ensemble, bool, error) {
	star := strings.LastIndexByte(line, '*')
	if star < 0 || star+3 != len(line) {
		return Ensemble{}, false, &ProtocolError{Frame: line, Reason: "missing checksum"}
	}
	body := line[1:star]
	want, err := strconv.ParseUint(line[star+1:], 16, 8)
	if err != nil {
		return Ensemble{}, false, &ProtocolError{Frame: line, Reason: "bad checksum digits"}
	}
	if got := Checksum(body); got != byte(want) {
		return Ensemble{}, false, &ProtocolError{Frame: line, Reason: fmt.Sprintf("checksum %02X, want %02X", got, want)}
	}

	parts := strings.Split(body, ",")
	if parts[0] != frameTag {
		return Ensemble{}, false, nil
	}
	if len(parts) < 4 {
		return Ensemble{}, false, &ProtocolError{Frame: line, Reason: "too few fields"}
	}

	var ens Ensemble
	if parts[1] != "" || parts[2] != "" {
		num, err := strconv.Atoi(parts[1])
		if err != nil {
			return Ensemble{}, false, &ProtocolError{Frame: line, Reason: "bad ensemble number"}
		}
		ts, err := time.Parse(time.RFC3339Nano, parts[2])
		if err != nil {
			return Ensemble{}, false, &ProtocolError{Frame: line, Reason: "bad timestamp"}
		}
		ens.Data = &EnsembleData{Number: num, Time: ts}
	}
	if parts[3] != "" {
		v, err := strconv.ParseFloat(parts[3], 64)
		if err != nil {
			return Ensemble{}, false, &ProtocolError{Frame: line, Reason: "bad voltage"}
		}
		ens.Setup = &SystemSetup{Voltage: v}
	}
	for _, kv := range parts[4:] {
		name, val, found := strings.Cut(kv, "=")
		if !found || name == "" {
			return Ensemble{}, false, &ProtocolError{Frame: line, Reason: fmt.Sprintf("bad field %q", kv)}
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return Ensemble{}, false, &ProtocolError{Frame: line, Reason: fmt.Sprintf("bad value for %s", name)}
		}
		if ens.Fields == nil {
			ens.Fields = make(map[string]float64)
		}
		ens.Fields[name] = f
	}
	return ens, true, nil
}

// Checksum is the XOR of every byte in body.
func Checksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return sum
}

// EncodeFrame renders e as a LineCodec sentence including the trailing CRLF.
func EncodeFrame(e Ensemble) []byte {
	var b strings.Builder
	b.WriteString(frameTag)
	b.WriteByte(',')
	if e.HasData() {
		b.WriteString(strconv.Itoa(e.Data.Number))
		b.WriteByte(',')
		b.WriteString(e.Data.Time.UTC().Format(time.RFC3339Nano))
	} else {
		b.WriteByte(',')
	}
	b.WriteByte(',')
	if e.Setup != nil {
		b.WriteString(strconv.FormatFloat(e.Setup.Voltage, 'f', -1, 64))
	}

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteByte(',')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(e.Fields[name], 'f', -1, 64))
	}

	body := b.String()
	return []byte(fmt.Sprintf("$%s*%02X\r\n", body, Checksum(body)))
}
