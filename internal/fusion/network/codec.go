// Package network carries rasters and odometry over UDP datagrams between
// the fusion engine and its producers and consumers.
package network

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/gridfuse/internal/fusion"
)

// Wire magics distinguishing datagram kinds.
var (
	rasterMagic = [4]byte{'G', 'F', 'R', '1'}
	odomMagic   = [4]byte{'G', 'F', 'O', '1'}
)

// MaxNameLen bounds the channel/output name carried in a raster datagram.
const MaxNameLen = 255

// Cell values travel as int8: 0..100 cost, -1 unknown. A canonical
// 151x151 raster plus header stays well under the UDP datagram limit.

// EncodeRaster serialises a raster for the wire, tagged with the given
// name (the channel for inputs, the output name for fused results).
func EncodeRaster(name string, r *fusion.Raster) ([]byte, error) {
	if r.Empty() {
		return nil, fmt.Errorf("encode raster %q: empty raster", name)
	}
	if len(name) > MaxNameLen {
		return nil, fmt.Errorf("encode raster: name %q too long", name)
	}
	if len(r.Cells) != r.Width*r.Height {
		return nil, fmt.Errorf("encode raster %q: %d cells for %dx%d grid", name, len(r.Cells), r.Width, r.Height)
	}

	buf := bytes.NewBuffer(make([]byte, 0, 64+len(r.Cells)))
	buf.Write(rasterMagic[:])
	buf.WriteByte(byte(len(name)))
	buf.WriteString(name)

	var head [44]byte
	binary.LittleEndian.PutUint64(head[0:], uint64(r.Stamp.UnixNano()))
	binary.LittleEndian.PutUint16(head[8:], uint16(r.Width))
	binary.LittleEndian.PutUint16(head[10:], uint16(r.Height))
	binary.LittleEndian.PutUint64(head[12:], math.Float64bits(r.Resolution))
	binary.LittleEndian.PutUint64(head[20:], math.Float64bits(r.OriginX))
	binary.LittleEndian.PutUint64(head[28:], math.Float64bits(r.OriginY))
	binary.LittleEndian.PutUint64(head[36:], uint64(len(r.Cells)))
	buf.Write(head[:])

	for _, v := range r.Cells {
		buf.WriteByte(byte(int8(quantizeCost(v))))
	}
	return buf.Bytes(), nil
}

// DecodeRaster parses a raster datagram back into a Raster. The name the
// packet was tagged with is returned alongside.
func DecodeRaster(pkt []byte) (string, *fusion.Raster, error) {
	if len(pkt) < 5 || !bytes.Equal(pkt[:4], rasterMagic[:]) {
		return "", nil, fmt.Errorf("decode raster: not a raster datagram")
	}
	nameLen := int(pkt[4])
	rest := pkt[5:]
	if len(rest) < nameLen+44 {
		return "", nil, fmt.Errorf("decode raster: truncated header")
	}
	name := string(rest[:nameLen])
	head := rest[nameLen : nameLen+44]
	cells := rest[nameLen+44:]

	stamp := int64(binary.LittleEndian.Uint64(head[0:]))
	width := int(binary.LittleEndian.Uint16(head[8:]))
	height := int(binary.LittleEndian.Uint16(head[10:]))
	resolution := math.Float64frombits(binary.LittleEndian.Uint64(head[12:]))
	originX := math.Float64frombits(binary.LittleEndian.Uint64(head[20:]))
	originY := math.Float64frombits(binary.LittleEndian.Uint64(head[28:]))
	count := int(binary.LittleEndian.Uint64(head[36:]))

	if width <= 0 || height <= 0 || count != width*height {
		return "", nil, fmt.Errorf("decode raster %q: inconsistent dimensions %dx%d (%d cells)", name, width, height, count)
	}
	if len(cells) != count {
		return "", nil, fmt.Errorf("decode raster %q: %d cell bytes, expected %d", name, len(cells), count)
	}
	if resolution <= 0 || math.IsNaN(resolution) {
		return "", nil, fmt.Errorf("decode raster %q: bad resolution %f", name, resolution)
	}

	r := fusion.NewRaster(width, height, resolution)
	r.Channel = name
	r.OriginX = originX
	r.OriginY = originY
	r.Stamp = time.Unix(0, stamp)
	for i, b := range cells {
		v := float64(int8(b))
		if v < 0 {
			v = fusion.CostUnknown
		}
		r.Cells[i] = v
	}
	return name, r, nil
}

// EncodeOdometry serialises one planar pose sample.
func EncodeOdometry(p fusion.Pose) []byte {
	var pkt [36]byte
	copy(pkt[:4], odomMagic[:])
	binary.LittleEndian.PutUint64(pkt[4:], uint64(p.Stamp.UnixNano()))
	binary.LittleEndian.PutUint64(pkt[12:], math.Float64bits(p.X))
	binary.LittleEndian.PutUint64(pkt[20:], math.Float64bits(p.Y))
	binary.LittleEndian.PutUint64(pkt[28:], math.Float64bits(p.Yaw))
	return pkt[:]
}

// DecodeOdometry parses a pose datagram.
func DecodeOdometry(pkt []byte) (fusion.Pose, error) {
	if len(pkt) != 36 || !bytes.Equal(pkt[:4], odomMagic[:]) {
		return fusion.Pose{}, fmt.Errorf("decode odometry: not an odometry datagram")
	}
	return fusion.Pose{
		Stamp: time.Unix(0, int64(binary.LittleEndian.Uint64(pkt[4:]))),
		X:     math.Float64frombits(binary.LittleEndian.Uint64(pkt[12:])),
		Y:     math.Float64frombits(binary.LittleEndian.Uint64(pkt[20:])),
		Yaw:   math.Float64frombits(binary.LittleEndian.Uint64(pkt[28:])),
	}, nil
}

// IsOdometry reports whether a datagram carries a pose sample.
func IsOdometry(pkt []byte) bool {
	return len(pkt) >= 4 && bytes.Equal(pkt[:4], odomMagic[:])
}

// quantizeCost rounds a cell value into the int8 wire range.
func quantizeCost(v float64) int {
	if v < 0 {
		return -1
	}
	q := int(math.Round(v))
	if q > int(fusion.CostMax) {
		q = int(fusion.CostMax)
	}
	return q
}
