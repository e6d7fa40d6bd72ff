package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	// PlaceholderSampleRate is the rate used for generated silence.
	PlaceholderSampleRate = 16000
	// PlaceholderDuration keeps the stand-in clip short but playable.
	PlaceholderDuration = 300 * time.Millisecond
	// PlaceholderFormat is the file extension of placeholder clips.
	PlaceholderFormat = "wav"
)

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeWAV(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// silence returns d worth of zeroed PCM16LE mono samples.
func silence(d time.Duration, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = PlaceholderSampleRate
	}
	if d <= 0 {
		return nil
	}
	samples := int(d.Seconds() * float64(sampleRate))
	return make([]byte, samples*2)
}

// WritePlaceholder writes a short silent WAV clip at path, creating parent
// directories as needed. It stands in for audio a provider failed to produce.
func WritePlaceholder(path string) error {
	wav, err := EncodeWAVPCM16LE(silence(PlaceholderDuration, PlaceholderSampleRate), PlaceholderSampleRate)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, wav, 0o644)
}

func writeWAV(out io.Writer, pcm []byte, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = PlaceholderSampleRate
	}

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	w := bufio.NewWriter(out)
	write := func(v any) error { return binary.Write(w, binary.LittleEndian, v) }

	if _, err := w.WriteString("RIFF"); err != nil {
		return err
	}
	if err := write(uint32(36) + dataSize); err != nil {
		return err
	}
	if _, err := w.WriteString("WAVEfmt "); err != nil {
		return err
	}
	for _, v := range []any{
		uint32(16),
		uint16(audioFormat),
		uint16(numChannels),
		uint32(sampleRate),
		byteRate,
		blockAlign,
		uint16(bitsPerSample),
	} {
		if err := write(v); err != nil {
			return err
		}
	}

	if _, err := w.WriteString("data"); err != nil {
		return err
	}
	if err := write(dataSize); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}
