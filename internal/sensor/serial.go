package sensor

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/Agrid-Dev/reflowctl/internal/clock"
)

const (
	DefaultBaudRate   = 115200
	DefaultStaleAfter = 2 * time.Second
)

// SerialReader takes readings from a thermocouple amplifier bridged over a
// serial line. The bridge prints one reading in °C per line; "nan" or
// "open" mark a disconnected probe.
type SerialReader struct {
	mu         sync.Mutex
	rc         io.ReadCloser
	clk        clock.Source
	staleAfter time.Duration
	log        *slog.Logger

	value float64
	err   error
	at    clock.Millis
	have  bool
	done  chan struct{}
}

// OpenSerial opens the named port and starts reading from it.
func OpenSerial(port string, baud int, clk clock.Source, log *slog.Logger) (*SerialReader, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return NewSerialReader(p, clk, DefaultStaleAfter, log), nil
}

// NewSerialReader starts consuming lines from rc.
func NewSerialReader(rc io.ReadCloser, clk clock.Source, staleAfter time.Duration, log *slog.Logger) *SerialReader {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if log == nil {
		log = slog.Default()
	}
	s := &SerialReader{
		rc:         rc,
		clk:        clk,
		staleAfter: staleAfter,
		log:        log.With("module", "sensor"),
		done:       make(chan struct{}),
	}
	go s.readLines()
	return s
}

func (s *SerialReader) readLines() {
	defer close(s.done)
	sc := bufio.NewScanner(s.rc)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := parseLine(line)
		if err != nil {
			s.log.Debug("ignoring serial line", "line", line, "error", err)
		}
		s.mu.Lock()
		s.value, s.err, s.at, s.have = v, err, s.clk.Now(), true
		s.mu.Unlock()
	}
	if err := sc.Err(); err != nil {
		s.log.Warn("serial read stopped", "error", err)
	}
}

// ReadCelsius returns the most recent reading.
func (s *SerialReader) ReadCelsius() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.have {
		return 0, ErrNoReading
	}
	if age := s.clk.Now().Sub(s.at); age > s.staleAfter {
		return s.value, fmt.Errorf("%w: %v old", ErrStaleReading, age)
	}
	return s.value, s.err
}

func (s *SerialReader) Close() error {
	err := s.rc.Close()
	<-s.done
	return err
}

func parseLine(line string) (float64, error) {
	switch strings.ToLower(line) {
	case "nan", "open", "err":
		return 0, fmt.Errorf("%w: %q", ErrInvalidReading, line)
	}
	line = strings.TrimSuffix(strings.TrimSuffix(line, "C"), "°")
	v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReading, line)
	}
	return v, nil
}
