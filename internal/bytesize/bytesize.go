// Package bytesize provides a byte count type that config files can express
// in human units ("64Ki", "2GiB", "500MB") or as a plain number.
package bytesize

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// ByteSize is a size in bytes.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000 * B
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB

	KiB ByteSize = 1024 * B
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
)

// Parse converts s to a ByteSize. Binary suffixes (Ki, MiB) scale by 1024,
// decimal ones (K, MB) by 1000.
func Parse(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// UnmarshalText lets ByteSize be decoded by mapstructure and yaml.
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = n
	return nil
}

// MarshalText renders the size in binary units.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// String returns a human-readable representation such as "64 KiB".
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Int64 returns the size as an int64, saturating at math.MaxInt64.
func (b ByteSize) Int64() int64 {
	if uint64(b) > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(b)
}

// Int returns the size as an int, saturating at math.MaxInt.
func (b ByteSize) Int() int {
	if uint64(b) > math.MaxInt {
		return math.MaxInt
	}
	return int(b)
}
