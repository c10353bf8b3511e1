package psi

import (
	"github.com/zsiec/siflow/block"
)

// MPEG-2 CRC32 with polynomial 0x04C11DB7.
var crc32Table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		crc32Table[i] = crc
	}
}

// CRCInit is the initial value of an MPEG-2 CRC32 computation.
const CRCInit = uint32(0xFFFFFFFF)

// UpdateCRC32 feeds data into a running MPEG-2 CRC32.
func UpdateCRC32(crc uint32, data []byte) uint32 {
	for _, b := range data {
		crc = (crc << 8) ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}

// CRC32 computes the MPEG-2 CRC32 of data.
func CRC32(data []byte) uint32 {
	return UpdateCRC32(CRCInit, data)
}

// CheckCRC reports whether the section held by ref ends with a valid CRC32.
// Running the CRC over a whole section including its trailer yields zero.
func CheckCRC(ref *block.Ref) bool {
	size := ref.Size()
	if size < HeaderSize+CRCSize {
		return false
	}
	length, ok := peekLength(ref)
	if !ok || 3+length != size {
		return false
	}
	crc := CRCInit
	for chunk := range ref.Chunks() {
		crc = UpdateCRC32(crc, chunk)
	}
	return crc == 0
}
