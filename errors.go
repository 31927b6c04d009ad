/*
@Author: Lzww
@LastEditTime: 2025-10-12 21:03:55
@Description: Errors
@Language: Go 1.23.4
*/

package wavelimiter

import "github.com/pkg/errors"

var (
	errNilKernel = errors.New("nil kernel")

	// ErrInvalidConfig is the cause of every configuration validation failure
	ErrInvalidConfig = errors.New("invalid wave limiter config")

	// ErrUnknownAlgorithm is returned when Config.Algorithm names no limiter
	ErrUnknownAlgorithm = errors.New("unknown wave limiter algorithm")

	// ErrDumpDisabled is returned by DataDumper.Flush when dumping is off
	ErrDumpDisabled = errors.New("data dumper disabled")
)

func invalidConfigf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}
