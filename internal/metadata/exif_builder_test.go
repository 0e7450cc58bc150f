package metadata

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

const (
	tiffTypeASCII    = 2
	tiffTypeLong     = 4
	tiffTypeRational = 5

	tagMake             = 0x010F
	tagModel            = 0x0110
	tagSoftware         = 0x0131
	tagExifPointer      = 0x8769
	tagGPSPointer       = 0x8825
	tagDateTimeOriginal = 0x9003
	tagGPSLatitude      = 0x0002
	tagGPSLongitude     = 0x0004
)

type exifFixture struct {
	Make             string
	Model            string
	Software         string
	DateTimeOriginal string
	Latitude         []Rational
	Longitude        []Rational
}

type tiffEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func asciiEntry(tag uint16, value string) tiffEntry {
	data := append([]byte(value), 0)
	return tiffEntry{tag: tag, typ: tiffTypeASCII, count: uint32(len(data)), data: data}
}

func longEntry(tag uint16, value uint32) tiffEntry {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, value)
	return tiffEntry{tag: tag, typ: tiffTypeLong, count: 1, data: data}
}

func rationalEntry(tag uint16, values []Rational) tiffEntry {
	data := make([]byte, 0, 8*len(values))
	for _, value := range values {
		data = binary.LittleEndian.AppendUint32(data, uint32(value.Num))
		data = binary.LittleEndian.AppendUint32(data, uint32(value.Den))
	}
	return tiffEntry{tag: tag, typ: tiffTypeRational, count: uint32(len(values)), data: data}
}

// encodeIFD lays out one directory starting at offset within the tiff stream.
func encodeIFD(entries []tiffEntry, offset uint32) []byte {
	dataStart := offset + 2 + 12*uint32(len(entries)) + 4
	var head, data bytes.Buffer
	_ = binary.Write(&head, binary.LittleEndian, uint16(len(entries)))
	for _, entry := range entries {
		_ = binary.Write(&head, binary.LittleEndian, entry.tag)
		_ = binary.Write(&head, binary.LittleEndian, entry.typ)
		_ = binary.Write(&head, binary.LittleEndian, entry.count)
		if len(entry.data) <= 4 {
			inline := make([]byte, 4)
			copy(inline, entry.data)
			head.Write(inline)
			continue
		}
		_ = binary.Write(&head, binary.LittleEndian, dataStart+uint32(data.Len()))
		data.Write(entry.data)
		if data.Len()%2 == 1 {
			data.WriteByte(0)
		}
	}
	_ = binary.Write(&head, binary.LittleEndian, uint32(0))
	return append(head.Bytes(), data.Bytes()...)
}

func buildTIFF(fixture exifFixture) []byte {
	var exifEntries []tiffEntry
	if fixture.DateTimeOriginal != "" {
		exifEntries = append(exifEntries, asciiEntry(tagDateTimeOriginal, fixture.DateTimeOriginal))
	}
	var gpsEntries []tiffEntry
	if fixture.Latitude != nil {
		gpsEntries = append(gpsEntries, rationalEntry(tagGPSLatitude, fixture.Latitude))
	}
	if fixture.Longitude != nil {
		gpsEntries = append(gpsEntries, rationalEntry(tagGPSLongitude, fixture.Longitude))
	}

	ifd0 := func(exifOffset, gpsOffset uint32) []tiffEntry {
		var entries []tiffEntry
		if fixture.Make != "" {
			entries = append(entries, asciiEntry(tagMake, fixture.Make))
		}
		if fixture.Model != "" {
			entries = append(entries, asciiEntry(tagModel, fixture.Model))
		}
		if fixture.Software != "" {
			entries = append(entries, asciiEntry(tagSoftware, fixture.Software))
		}
		if len(exifEntries) > 0 {
			entries = append(entries, longEntry(tagExifPointer, exifOffset))
		}
		if len(gpsEntries) > 0 {
			entries = append(entries, longEntry(tagGPSPointer, gpsOffset))
		}
		return entries
	}

	const ifd0Offset = 8
	placeholder := encodeIFD(ifd0(0, 0), ifd0Offset)
	exifOffset := uint32(ifd0Offset + len(placeholder))
	exifDir := encodeIFD(exifEntries, exifOffset)
	gpsOffset := exifOffset + uint32(len(exifDir))
	gpsDir := encodeIFD(gpsEntries, gpsOffset)

	var out bytes.Buffer
	out.WriteString("II")
	_ = binary.Write(&out, binary.LittleEndian, uint16(42))
	_ = binary.Write(&out, binary.LittleEndian, uint32(ifd0Offset))
	out.Write(encodeIFD(ifd0(exifOffset, gpsOffset), ifd0Offset))
	out.Write(exifDir)
	out.Write(gpsDir)
	return out.Bytes()
}

// writeExifJPEG stores a small JPEG whose APP1 segment carries the fixture.
func writeExifJPEG(t *testing.T, dir, name string, fixture exifFixture) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 90, A: 255})
		}
	}
	var encoded bytes.Buffer
	if err := jpeg.Encode(&encoded, img, nil); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}

	payload := append([]byte("Exif\x00\x00"), buildTIFF(fixture)...)
	var out bytes.Buffer
	out.Write(encoded.Bytes()[:2])
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(encoded.Bytes()[2:])

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func rationals(values ...int64) []Rational {
	out := make([]Rational, 0, len(values)/2)
	for i := 0; i+1 < len(values); i += 2 {
		out = append(out, Rational{Num: values[i], Den: values[i+1]})
	}
	return out
}
