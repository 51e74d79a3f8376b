package hardware

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// PeriphBus writes frames through a periph.io SPI port.
type PeriphBus struct {
	mu   sync.Mutex
	port spi.PortCloser
	conn spi.Conn
}

// OpenPeriphBus initialises the periph.io host drivers and opens the
// SPI port named dev ("" picks the first one).
func OpenPeriphBus(dev string, frequency int) (*PeriphBus, error) {
	slog.Info("Initialise SPI via periph.io", "device", dev, "frequency", frequency)
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to init periph: %w", err)
	}
	port, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("failed to open spi: %w", err)
	}
	bus, err := NewPeriphBus(port, frequency)
	if err != nil {
		port.Close()
		return nil, err
	}
	return bus, nil
}

// NewPeriphBus connects to an already opened port.
func NewPeriphBus(port spi.PortCloser, frequency int) (*PeriphBus, error) {
	conn, err := port.Connect(physic.Frequency(frequency)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to spi device: %w", err)
	}
	return &PeriphBus{port: port, conn: conn}, nil
}

func (s *PeriphBus) Tx(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("spi bus is closed")
	}
	if err := s.conn.Tx(data, nil); err != nil {
		return fmt.Errorf("spi transaction failed: %w", err)
	}
	return nil
}

func (s *PeriphBus) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.conn = nil
	return err
}
