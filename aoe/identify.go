package aoe // import "github.com/chronos-tachyon/aoe-cas/aoe"

import "github.com/chronos-tachyon/aoe-cas/block"

// identifyDeviceLen is the fixed size of an IDENTIFY DEVICE response.
const identifyDeviceLen = 512

// BuildIdentifyDevice renders the 512-byte IDENTIFY DEVICE response for
// info, per the ATA identification word layout: model at words 27-46,
// serial at words 10-19, firmware at words 23-26, LBA28 total sectors at
// words 60-61, LBA48 total sectors at words 100-103 (only when info.LBA48
// is set; otherwise those words stay zero), sector size at word 106.
func BuildIdentifyDevice(info block.DeviceInfo) []byte {
	data := make([]byte, identifyDeviceLen)

	// Word 0: general configuration; left zero (ATA device, not removable).

	putATAString(data[20:40], info.Serial)   // words 10-19
	putATAString(data[46:54], info.Firmware) // words 23-26
	putATAString(data[54:94], info.Model)    // words 27-46

	// Word 47: read/write multiple sector count; report 1.
	data[94] = 0x00
	data[95] = 0x01

	// Word 49: capabilities; LBA + DMA supported.
	data[98] = 0x00
	data[99] = 0x03

	// Word 53: field validity; words 64-70 and word 88 valid.
	data[106] = 0x06
	data[107] = 0x00

	lba28 := info.TotalSectors
	if lba28 > 0x0FFFFFFF {
		lba28 = 0x0FFFFFFF
	}
	putUint32LE(data[120:124], uint32(lba28)) // words 60-61

	// Word 83: command set supported; LBA48 bit.
	data[166] = 0x00
	data[167] = 0x04

	// Word 86: command set enabled; LBA48 bit.
	data[172] = 0x00
	data[173] = 0x04

	if info.LBA48 {
		putUint48LE(data[200:208], info.TotalSectors) // words 100-103
	}

	if info.SectorSize == 4096 {
		// Word 106: bit 12 set (logical sector size > 256 words).
		data[212] = 0x00
		data[213] = 0x10
	}

	return data
}

// putATAString writes s into dst, space-padded to len(dst) bytes, using
// the ATA convention of byte-swapping within each 16-bit word.
func putATAString(dst []byte, s string) {
	src := []byte(s)
	for i := 0; i < len(dst); i += 2 {
		switch {
		case i+1 < len(src):
			dst[i] = src[i+1]
			dst[i+1] = src[i]
		case i < len(src):
			dst[i] = ' '
			dst[i+1] = src[i]
		default:
			dst[i] = ' '
			dst[i+1] = ' '
		}
	}
}

func putUint32LE(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

func putUint48LE(dst []byte, v uint64) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
	dst[4] = byte(v >> 32)
	dst[5] = byte(v >> 40)
	dst[6] = 0
	dst[7] = 0
}
