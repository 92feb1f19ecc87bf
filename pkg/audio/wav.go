package audio

import (
	"encoding/binary"
	"errors"
)

// fallbackDecodeRate is assumed for WAV payloads whose data chunk arrives
// ahead of fmt. Local synthesis engines emit 22.05 kHz mono by default.
const fallbackDecodeRate = 22050

// EncodeWAV packs a clip into a minimal RIFF/WAVE container: a 44-byte
// header followed by 16-bit little-endian mono PCM. An empty clip yields a
// valid container with an empty data chunk.
func EncodeWAV(clip Clip) []byte {
	pcm := Float32ToPCM16(clip.Samples)
	buf := make([]byte, 44+len(pcm))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(clip.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(clip.SampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV unpacks a RIFF/WAVE container into a mono clip at the
// container's native rate. Multi-channel payloads are downmixed by
// averaging; sample data must be 16-bit little-endian PCM.
//
// Some engines emit the data chunk ahead of fmt. The decoder then assumes
// 22.05 kHz mono rather than rejecting the payload.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, errors.New("audio: not a RIFF/WAVE container")
	}

	rate, channels := 0, 0

	// Sub-chunks follow the 12-byte preamble; each is word-aligned, so odd
	// sizes carry one pad byte.
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))

		switch id {
		case "fmt ":
			if size < 16 || off+8+16 > len(data) {
				return Clip{}, errors.New("audio: wav fmt chunk truncated")
			}
			body := data[off+8:]
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			rate = int(binary.LittleEndian.Uint32(body[4:8]))

		case "data":
			if rate == 0 {
				rate, channels = fallbackDecodeRate, 1
			}
			if channels < 1 {
				channels = 1
			}
			pcm := data[off+8:]
			if off+8+size <= len(data) {
				pcm = data[off+8 : off+8+size]
			}
			return Clip{Samples: PCM16ToFloat32Mono(pcm, channels), SampleRate: rate}, nil
		}

		off += 8 + size
		if size%2 != 0 {
			off++
		}
	}
	return Clip{}, errors.New("audio: wav data chunk missing")
}
