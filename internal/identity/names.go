package identity

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// WholeDevice is the volume index of a filesystem spanning an entire device
// with no partition table.
const WholeDevice = -1

// ParseVolumeNumber returns the trailing decimal number of the last path
// component of name, or 0 if there is none.
//
// It fails if the component starts with a digit or if the number does not
// fit in an int32.
//
//	ParseVolumeNumber("/dev/sdt5") == 5
//	ParseVolumeNumber("/dev/sdt")  == 0
//	ParseVolumeNumber("/dev/5sdt") -> ErrLeadingDigit
func ParseVolumeNumber(name string) (int, error) {
	base := filepath.Base(name)
	if name == "" || base == "." || base == "/" {
		return 0, ErrEmptyName
	}
	if isDigit(base[0]) {
		return 0, fmt.Errorf("%w: %q", ErrLeadingDigit, name)
	}

	i := len(base)
	for i > 0 && isDigit(base[i-1]) {
		i--
	}
	if i == len(base) {
		return 0, nil
	}

	n, err := strconv.ParseInt(base[i:], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNumberOutOfRange, name)
	}
	return int(n), nil
}

// RootDevlinkName strips the trailing "-partN" suffix from a partition
// device link, returning the link of the containing device.
//
//	RootDevlinkName("usb-Foo-part3") == "usb-Foo"
//	RootDevlinkName("usb-Foo")       -> ErrMalformedDevlink
func RootDevlinkName(devlink string) (string, error) {
	dash := strings.LastIndexByte(devlink, '-')
	if dash <= 0 {
		return "", fmt.Errorf("%w: %q", ErrMalformedDevlink, devlink)
	}

	suffix, ok := strings.CutPrefix(devlink[dash+1:], "part")
	if !ok || suffix == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedDevlink, devlink)
	}
	for i := 0; i < len(suffix); i++ {
		if !isDigit(suffix[i]) {
			return "", fmt.Errorf("%w: %q", ErrMalformedDevlink, devlink)
		}
	}

	return devlink[:dash], nil
}

// IsPartitionLink reports whether devlink carries a "-partN" suffix.
func IsPartitionLink(devlink string) bool {
	_, err := RootDevlinkName(devlink)
	return err == nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
