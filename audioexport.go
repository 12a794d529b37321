package echos

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Wav encodes the buffer as a stereo .wav file at the given sample rate,
// either as 16-bit PCM or as 32-bit IEEE float.
func Wav(buffer AudioBuffer, sampleRate int, pcm16 bool) ([]byte, error) {
	data := buffer.Interleave(nil)
	buf := new(bytes.Buffer)
	wavHeader(len(data), sampleRate, pcm16, buf)
	if err := rawToBuffer(data, pcm16, buf); err != nil {
		return nil, fmt.Errorf("Wav failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Raw encodes the buffer as interleaved little-endian samples without a
// header.
func Raw(buffer AudioBuffer, pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := rawToBuffer(buffer.Interleave(nil), pcm16, buf); err != nil {
		return nil, fmt.Errorf("Raw failed: %w", err)
	}
	return buf.Bytes(), nil
}

func rawToBuffer(data []float32, pcm16 bool, buf *bytes.Buffer) error {
	var err error
	if pcm16 {
		int16data := make([]int16, len(data))
		for i, v := range data {
			int16data[i] = int16(min(max(int(v*math.MaxInt16), math.MinInt16), math.MaxInt16))
		}
		err = binary.Write(buf, binary.LittleEndian, int16data)
	} else {
		err = binary.Write(buf, binary.LittleEndian, data)
	}
	if err != nil {
		return fmt.Errorf("could not binary write data to binary buffer: %w", err)
	}
	return nil
}

// wavHeader writes the RIFF header for sampleCount interleaved stereo samples.
func wavHeader(sampleCount, sampleRate int, pcm16 bool, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	const numChannels = 2
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*sampleCount
		fmtChunkSize = 16
		waveFormat = 1 // PCM
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*sampleCount
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
		factChunk = true
	}
	put := func(v any) { binary.Write(buf, binary.LittleEndian, v) }
	buf.WriteString("RIFF")
	put(uint32(chunkSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	put(uint32(fmtChunkSize))
	put(uint16(waveFormat))
	put(uint16(numChannels))
	put(uint32(sampleRate))
	put(uint32(sampleRate * numChannels * bytesPerSample)) // avgBytesPerSec
	put(uint16(numChannels * bytesPerSample))              // blockAlign
	put(uint16(8 * bytesPerSample))                        // bits per sample
	if fmtChunkSize > 16 {
		put(uint16(0)) // size of extension
	}
	if factChunk {
		buf.WriteString("fact")
		put(uint32(4))
		put(uint32(sampleCount / numChannels)) // frames
	}
	buf.WriteString("data")
	put(uint32(bytesPerSample * sampleCount))
}
