package network

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/gridfuse/internal/fusion"
)

func testRaster() *fusion.Raster {
	r := fusion.NewRaster(4, 3, 0.4)
	r.Channel = "occupancy"
	r.OriginX = -20
	r.OriginY = -30
	r.Stamp = time.Date(2026, 3, 10, 12, 0, 0, 123456789, time.UTC)
	for i := range r.Cells {
		r.Cells[i] = float64(i * 9)
	}
	r.Cells[0] = fusion.CostUnknown
	return r
}

func TestRasterRoundTrip(t *testing.T) {
	want := testRaster()
	pkt, err := EncodeRaster("occupancy", want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	name, got, err := DecodeRaster(pkt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if name != "occupancy" {
		t.Errorf("name = %q, want occupancy", name)
	}
	if !got.Stamp.Equal(want.Stamp) {
		t.Errorf("stamp = %v, want %v", got.Stamp, want.Stamp)
	}
	got.Stamp, want.Stamp = time.Time{}, time.Time{}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("raster mismatch (-want +got):\n%s", diff)
	}
}

func TestRasterQuantization(t *testing.T) {
	r := fusion.NewRaster(3, 1, 0.4)
	r.Cells = []float64{42.6, 250, -7}

	pkt, err := EncodeRaster("drivable", r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, got, err := DecodeRaster(pkt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Values round to whole costs, cap at the cost ceiling, and any
	// negative collapses to the unknown sentinel.
	want := []float64{43, 100, fusion.CostUnknown}
	if diff := cmp.Diff(want, got.Cells); diff != "" {
		t.Errorf("cells mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeRasterRejectsBadInput(t *testing.T) {
	if _, err := EncodeRaster("x", &fusion.Raster{Width: 2, Height: 2}); err == nil {
		t.Error("expected error for an empty raster")
	}

	r := fusion.NewRaster(2, 2, 0.4)
	if _, err := EncodeRaster(strings.Repeat("n", MaxNameLen+1), r); err == nil {
		t.Error("expected error for an oversized name")
	}

	r.Cells = r.Cells[:2]
	if _, err := EncodeRaster("x", r); err == nil {
		t.Error("expected error for a cell count that disagrees with the shape")
	}
}

func TestDecodeRasterRejectsMalformed(t *testing.T) {
	good, err := EncodeRaster("occupancy", testRaster())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cases := []struct {
		name string
		pkt  []byte
	}{
		{"empty", nil},
		{"wrong magic", []byte("XXXX rest")},
		{"odometry magic", EncodeOdometry(fusion.Pose{})},
		{"truncated header", good[:8]},
		{"truncated cells", good[:len(good)-3]},
	}
	for _, tc := range cases {
		if _, _, err := DecodeRaster(tc.pkt); err == nil {
			t.Errorf("%s: expected decode error", tc.name)
		}
	}
}

func TestDecodeRasterRejectsInconsistentDimensions(t *testing.T) {
	pkt, err := EncodeRaster("occupancy", testRaster())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Corrupt the declared width; the cell count no longer matches.
	nameLen := int(pkt[4])
	pkt[5+nameLen+8] = 0xFF
	if _, _, err := DecodeRaster(pkt); err == nil {
		t.Error("expected decode error for inconsistent dimensions")
	}
}

func TestOdometryRoundTrip(t *testing.T) {
	want := fusion.Pose{
		X:     12.5,
		Y:     -3.25,
		Yaw:   1.5,
		Stamp: time.Date(2026, 3, 10, 12, 0, 0, 500, time.UTC),
	}
	pkt := EncodeOdometry(want)
	if !IsOdometry(pkt) {
		t.Fatal("encoded pose not recognised as odometry")
	}

	got, err := DecodeOdometry(pkt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Stamp.Equal(want.Stamp) {
		t.Errorf("stamp = %v, want %v", got.Stamp, want.Stamp)
	}
	if got.X != want.X || got.Y != want.Y || got.Yaw != want.Yaw {
		t.Errorf("pose = %+v, want %+v", got, want)
	}
}

func TestDecodeOdometryRejectsMalformed(t *testing.T) {
	if _, err := DecodeOdometry(EncodeOdometry(fusion.Pose{})[:20]); err == nil {
		t.Error("expected error for a truncated pose datagram")
	}
	rasterPkt, _ := EncodeRaster("occupancy", testRaster())
	if _, err := DecodeOdometry(rasterPkt[:36]); err == nil {
		t.Error("expected error for a raster datagram")
	}
	if IsOdometry(rasterPkt) {
		t.Error("raster datagram misidentified as odometry")
	}
}
