package indicators

import (
	"fmt"

	"cryptoSignalBot/internal/ports"
)

// Window sizes the engine accepts. Inputs of any other length are rejected.
const (
	RSIPeriod      = 14
	RSIInputLength = RSIPeriod + 2 // Two consecutive readings
	BandWindow     = 20
)

// ErrUnavailable is returned instead of a value when the input window has the
// wrong length. It wraps ports.ErrInsufficientData.
var ErrUnavailable = fmt.Errorf("indicator unavailable: %w", ports.ErrInsufficientData)

func unavailable(name string, got, want int) error {
	return fmt.Errorf("%s needs exactly %d closes, got %d: %w", name, want, got, ErrUnavailable)
}
