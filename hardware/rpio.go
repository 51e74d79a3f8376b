package hardware

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// RpioBus writes frames through go-rpio's SPI0. go-rpio keeps global
// state, so only one RpioBus may be open at a time.
type RpioBus struct {
	mu     sync.Mutex
	open   bool
	buffer []byte
}

func OpenRpioBus(frequency int) (*RpioBus, error) {
	slog.Info("Initialise SPI via go-rpio", "frequency", frequency)
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open rpio: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return nil, fmt.Errorf("failed to begin spi: %w", err)
	}
	rpio.SpiSpeed(frequency)
	return &RpioBus{open: true}, nil
}

func (s *RpioBus) Tx(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return fmt.Errorf("spi bus is closed")
	}
	// SpiExchange overwrites its argument with the bytes read back.
	s.buffer = append(s.buffer[:0], data...)
	rpio.SpiExchange(s.buffer)
	return nil
}

func (s *RpioBus) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	rpio.SpiEnd(rpio.Spi0)
	return rpio.Close()
}
