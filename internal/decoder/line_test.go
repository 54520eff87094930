package decoder

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleEnsembles(n int) []Ensemble {
	base := time.Date(2024, 3, 1, 12, 0, 0, 123456000, time.UTC)
	out := make([]Ensemble, n)
	for i := range out {
		out[i] = Ensemble{
			Data:   &EnsembleData{Number: i + 1, Time: base.Add(time.Duration(i) * time.Second)},
			Setup:  &SystemSetup{Voltage: 12.0 + float64(i)/10},
			Fields: map[string]float64{"heading": float64(i * 10), "pitch": -1.5},
		}
	}
	return out
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := NewLineCodec()
	in := sampleEnsembles(1)[0]

	got, err := c.Add(EncodeFrame(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, in.Data.Number, got[0].Data.Number)
	require.True(t, in.Data.Time.Equal(got[0].Data.Time))
	v, ok := got[0].Voltage()
	require.True(t, ok)
	require.Equal(t, 12.0, v)
	require.Equal(t, in.Fields, got[0].Fields)
	require.Zero(t, c.Buffered())
}

func TestReassemblyAcrossArbitrarySplits(t *testing.T) {
	var stream []byte
	want := sampleEnsembles(20)
	for _, e := range want {
		stream = append(stream, EncodeFrame(e)...)
	}

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 25; trial++ {
		c := NewLineCodec()
		var got []Ensemble
		for rest := stream; len(rest) > 0; {
			n := 1 + rng.Intn(40)
			if n > len(rest) {
				n = len(rest)
			}
			ens, err := c.Add(rest[:n])
			require.NoError(t, err)
			got = append(got, ens...)
			rest = rest[n:]
		}
		require.Len(t, got, len(want))
		for i := range want {
			require.Equal(t, want[i].Data.Number, got[i].Data.Number, "trial %d ensemble %d", trial, i)
		}
	}
}

func TestSkipsTextBetweenFrames(t *testing.T) {
	c := NewLineCodec()
	frame := EncodeFrame(sampleEnsembles(1)[0])
	input := append([]byte("CSHOW\r\nOK\r\n"), frame...)
	input = append(input, []byte("\r\nRowe Technologies ADCP\r\n")...)

	got, err := c.Add(input)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestIgnoresOtherSentences(t *testing.T) {
	c := NewLineCodec()
	body := "PRTI01,1,2,3"
	line := []byte("$" + body + "*" + hex2(Checksum(body)) + "\r\n")

	got, err := c.Add(line)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestChecksumMismatch(t *testing.T) {
	c := NewLineCodec()
	frame := EncodeFrame(sampleEnsembles(1)[0])
	frame[5] ^= 0x01 // corrupt a digit of the ensemble number

	good := EncodeFrame(sampleEnsembles(2)[1])
	got, err := c.Add(append(frame, good...))
	require.Error(t, err)

	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	require.Contains(t, perr.Reason, "checksum")
	require.Len(t, got, 1, "the valid frame after the corrupt one still decodes")
	require.Equal(t, 2, got[0].Data.Number)
}

func TestMissingChecksum(t *testing.T) {
	c := NewLineCodec()
	_, err := c.Add([]byte("$ENS,1,2024-01-01T00:00:00Z,12.0\r\n"))
	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, "missing checksum", perr.Reason)
}

func TestOptionalSections(t *testing.T) {
	c := NewLineCodec()

	noVoltage := Ensemble{Data: &EnsembleData{Number: 5, Time: time.Unix(0, 0).UTC()}}
	noData := Ensemble{Setup: &SystemSetup{Voltage: 11.5}}

	got, err := c.Add(append(EncodeFrame(noVoltage), EncodeFrame(noData)...))
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.True(t, got[0].HasData())
	_, ok := got[0].Voltage()
	require.False(t, ok)

	require.False(t, got[1].HasData())
	v, ok := got[1].Voltage()
	require.True(t, ok)
	require.Equal(t, 11.5, v)
}

func TestOversizedPartialIsDiscarded(t *testing.T) {
	c := NewLineCodec()
	junk := make([]byte, maxFrameBytes+10)
	junk[0] = '$'
	for i := 1; i < len(junk); i++ {
		junk[i] = 'A'
	}

	_, err := c.Add(junk)
	require.Error(t, err)
	require.Zero(t, c.Buffered())

	got, err := c.Add(EncodeFrame(sampleEnsembles(1)[0]))
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func hex2(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0x0f]})
}
