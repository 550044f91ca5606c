package content

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// videoMeta is what the MP4 probe extracts. duration is in whole seconds,
// rounded up.
type videoMeta struct {
	duration int
	width    int
	height   int
}

var errNoMovieHeader = errors.New("no movie header found")

// probeVideo reads the MP4 box structure for the movie duration and the
// first track's dimensions. It handles only the plain ISO base media layout;
// anything else returns an error and the caller falls back to defaults.
func probeVideo(path string) (videoMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return videoMeta{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return videoMeta{}, err
	}
	moov, err := findBox(f, 0, info.Size(), "moov")
	if err != nil {
		return videoMeta{}, err
	}

	var meta videoMeta
	if body, err := readBox(f, moov, "mvhd"); err == nil {
		meta.duration, err = parseMvhd(body)
		if err != nil {
			return videoMeta{}, err
		}
	} else {
		return videoMeta{}, errNoMovieHeader
	}
	if trak, err := findBox(f, moov.bodyStart, moov.bodyEnd, "trak"); err == nil {
		if body, err := readBox(f, trak, "tkhd"); err == nil {
			meta.width, meta.height = parseTkhd(body)
		}
	}
	return meta, nil
}

type boxRange struct {
	bodyStart int64
	bodyEnd   int64
}

// findBox scans [start, end) for a top-level box with the given type.
func findBox(f *os.File, start, end int64, typ string) (boxRange, error) {
	var hdr [8]byte
	for off := start; off+8 <= end; {
		if _, err := f.ReadAt(hdr[:], off); err != nil {
			return boxRange{}, err
		}
		size := int64(binary.BigEndian.Uint32(hdr[:4]))
		bodyStart := off + 8
		if size == 1 {
			var ext [8]byte
			if _, err := f.ReadAt(ext[:], off+8); err != nil {
				return boxRange{}, err
			}
			size = int64(binary.BigEndian.Uint64(ext[:]))
			bodyStart = off + 16
		} else if size == 0 {
			size = end - off
		}
		if size < 8 {
			return boxRange{}, fmt.Errorf("malformed box at offset %d", off)
		}
		if string(hdr[4:8]) == typ {
			return boxRange{bodyStart: bodyStart, bodyEnd: off + size}, nil
		}
		off += size
	}
	return boxRange{}, fmt.Errorf("box %q not found", typ)
}

// readBox finds a child box inside parent and returns its body bytes.
func readBox(f *os.File, parent boxRange, typ string) ([]byte, error) {
	r, err := findBox(f, parent.bodyStart, parent.bodyEnd, typ)
	if err != nil {
		return nil, err
	}
	body := make([]byte, r.bodyEnd-r.bodyStart)
	if _, err := f.ReadAt(body, r.bodyStart); err != nil && err != io.EOF {
		return nil, err
	}
	return body, nil
}

// parseMvhd returns the movie duration in seconds, rounded up.
func parseMvhd(body []byte) (int, error) {
	if len(body) < 1 {
		return 0, errors.New("empty mvhd")
	}
	version := body[0]
	var timescale, duration uint64
	switch version {
	case 0:
		if len(body) < 20 {
			return 0, errors.New("short mvhd v0")
		}
		timescale = uint64(binary.BigEndian.Uint32(body[12:16]))
		duration = uint64(binary.BigEndian.Uint32(body[16:20]))
	case 1:
		if len(body) < 32 {
			return 0, errors.New("short mvhd v1")
		}
		timescale = uint64(binary.BigEndian.Uint32(body[20:24]))
		duration = binary.BigEndian.Uint64(body[24:32])
	default:
		return 0, fmt.Errorf("unknown mvhd version %d", version)
	}
	if timescale == 0 {
		return 0, errors.New("mvhd timescale is zero")
	}
	return int((duration + timescale - 1) / timescale), nil
}

// parseTkhd returns the track's presentation width and height. The values are
// 16.16 fixed point at the end of the box.
func parseTkhd(body []byte) (width, height int) {
	if len(body) < 1 {
		return 0, 0
	}
	var wOff int
	switch body[0] {
	case 0:
		wOff = 76
	case 1:
		wOff = 88
	default:
		return 0, 0
	}
	if len(body) < wOff+8 {
		return 0, 0
	}
	width = int(binary.BigEndian.Uint32(body[wOff:wOff+4]) >> 16)
	height = int(binary.BigEndian.Uint32(body[wOff+4:wOff+8]) >> 16)
	return width, height
}
