package modbusctrl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"

	mbserver "github.com/tbrandon/mbserver"

	"github.com/Agrid-Dev/reflowctl/internal/oven"
	"github.com/Agrid-Dev/reflowctl/internal/ports"
)

// Register map.
//
// Coil 0: running. Write 1 starts the selected reflow slot, write 0 aborts.
//
// Input registers (read only):
//
//	0 measured temperature   1 setpoint            2 output (%)
//	3 phase index (-1 idle)  4 primary duty (%)    5 secondary duty (%)
//	6 mode                   7 last result         8 elapsed seconds
//	9 fault flags (bit 0 sensor fault, bit 1 run stopped on a fault)
//
// Holding registers:
//
//	0 oven target temperature  1 oven max minutes  2 reflow slot
//
// Writing HR 0 or HR 1 starts oven mode, writing HR 2 starts a reflow.
// Temperatures and the output are scaled by TemperatureScale.
const (
	numInputRegisters   = 10
	numHoldingRegisters = 3
)

const (
	faultSensor = 1 << iota
	faultRun
)

// Config for the Modbus controller.
type Config struct {
	DeviceID string
	Addr     string
	UnitID   byte // UnitID (Modbus slave/unit ID). Use an integer 1..247.
	Logger   *slog.Logger
}

type Controller struct {
	svc ports.OvenService
	cfg Config
	log *slog.Logger

	serv *mbserver.Server
}

func New(svc ports.OvenService, cfg Config) (*Controller, error) {
	if cfg.UnitID == 0 {
		return nil, errors.New("modbus: UnitID is required (non-zero)")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:1502"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{svc: svc, cfg: cfg, log: log.With("module", "modbus")}, nil
}

// Run starts the Modbus server and registers handlers that apply writes immediately and
// provide reads directly from the oven service. It blocks until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	serv := mbserver.NewServer()
	c.serv = serv

	// Register handlers BEFORE starting the TCP listener to avoid races inside mbserver
	// between handler registration and the server's goroutines.
	serv.RegisterFunctionHandler(1, c.readCoils)
	serv.RegisterFunctionHandler(3, c.readHoldingRegisters)
	serv.RegisterFunctionHandler(4, c.readInputRegisters)
	serv.RegisterFunctionHandler(5, c.writeSingleCoil)
	serv.RegisterFunctionHandler(6, c.writeSingleRegister)
	serv.RegisterFunctionHandler(16, c.writeMultipleRegisters)

	if err := serv.ListenTCP(c.cfg.Addr); err != nil {
		return fmt.Errorf("mbserver listen tcp %s: %w", c.cfg.Addr, err)
	}

	<-ctx.Done()
	serv.Close()
	return ctx.Err()
}

// Read Coils (function 1).
func (c *Controller) readCoils(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := binary.BigEndian.Uint16(data[0:2])
	qty := binary.BigEndian.Uint16(data[2:4])
	if qty == 0 || qty > 2000 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	if start != 0 || qty != 1 {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	coilByte := byte(0)
	if c.svc.Get().Mode != oven.ModeIdle {
		coilByte = 0x01
	}
	return []byte{1, coilByte}, &mbserver.Success
}

// Read Holding Registers (function 3).
func (c *Controller) readHoldingRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, ex := readRange(frame, numHoldingRegisters)
	if ex != nil {
		return []byte{}, ex
	}
	hold := c.svc.HoldDefaults()
	all := [numHoldingRegisters]uint16{
		encodeTemp(float64(hold.TargetTemp)),
		uint16(hold.Minutes),
		uint16(c.svc.Selected()),
	}
	return encodeRegisters(all[start : start+qty]), &mbserver.Success
}

// Read Input Registers (function 4).
func (c *Controller) readInputRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, ex := readRange(frame, numInputRegisters)
	if ex != nil {
		return []byte{}, ex
	}
	s := c.svc.Get()
	var faults uint16
	if !s.SensorOK {
		faults |= faultSensor
	}
	if s.Result == oven.ResultFault {
		faults |= faultRun
	}
	all := [numInputRegisters]uint16{
		encodeTemp(s.Measured),
		encodeTemp(s.Setpoint),
		encodeTemp(s.Output),
		uint16(int16(s.PhaseIndex)),
		uint16(s.PrimaryDuty),
		uint16(s.SecondaryDuty),
		uint16(s.Mode),
		uint16(s.Result),
		uint16(min(s.Elapsed.Seconds(), math.MaxUint16)),
		faults,
	}
	return encodeRegisters(all[start : start+qty]), &mbserver.Success
}

// Write Single Coil (function 5).
func (c *Controller) writeSingleCoil(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	if addr != 0 {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	switch value {
	case 0x0000:
		c.svc.Abort()
	case 0xFF00:
		if err := c.svc.StartReflow(c.svc.Selected()); err != nil {
			c.log.Warn("start rejected", "error", err)
			return []byte{}, &mbserver.IllegalDataValue
		}
	default:
		return []byte{}, &mbserver.IllegalDataValue
	}

	// echo request (address + value)
	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

// Write Single Register (function 6).
func (c *Controller) writeSingleRegister(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	if ex := c.applyRegisters(int(addr), []uint16{value}); ex != nil {
		return []byte{}, ex
	}

	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

// Write Multiple Registers (function 16).
func (c *Controller) writeMultipleRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	d := frame.GetData()
	if len(d) < 5 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := binary.BigEndian.Uint16(d[0:2])
	quantity := binary.BigEndian.Uint16(d[2:4])
	byteCount := int(d[4])
	if byteCount != int(quantity)*2 || len(d) < 5+byteCount {
		return []byte{}, &mbserver.IllegalDataValue
	}
	vals := make([]uint16, quantity)
	for i := range vals {
		vals[i] = binary.BigEndian.Uint16(d[5+i*2 : 5+i*2+2])
	}
	if ex := c.applyRegisters(int(start), vals); ex != nil {
		return []byte{}, ex
	}

	resp := make([]byte, 4)
	binary.BigEndian.PutUint16(resp[0:2], start)
	binary.BigEndian.PutUint16(resp[2:4], quantity)
	return resp, &mbserver.Success
}

// applyRegisters writes a contiguous block of holding registers. Oven target
// and minutes written together start oven mode once; a register not in the
// block keeps its stored default.
func (c *Controller) applyRegisters(start int, vals []uint16) *mbserver.Exception {
	if len(vals) == 0 || start < 0 || start+len(vals) > numHoldingRegisters {
		return &mbserver.IllegalDataAddress
	}
	hold := c.svc.HoldDefaults()
	target, minutes := float64(hold.TargetTemp), hold.Minutes
	startHold := false
	slot := -1
	for i, v := range vals {
		switch start + i {
		case 0:
			target = decodeTemp(v)
			startHold = true
		case 1:
			minutes = int(v)
			startHold = true
		case 2:
			slot = int(v)
		}
	}
	if startHold && slot >= 0 {
		return &mbserver.IllegalDataValue
	}
	var err error
	switch {
	case startHold:
		err = c.svc.StartHold(target, minutes)
	case slot >= 0:
		err = c.svc.StartReflow(slot)
	}
	if err != nil {
		c.log.Warn("write rejected", "register", start, "error", err)
		return &mbserver.IllegalDataValue
	}
	return nil
}

func readRange(frame mbserver.Framer, size int) (start, qty int, ex *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return 0, 0, &mbserver.IllegalDataValue
	}
	start = int(binary.BigEndian.Uint16(data[0:2]))
	qty = int(binary.BigEndian.Uint16(data[2:4]))
	if qty == 0 || qty > 125 {
		return 0, 0, &mbserver.IllegalDataValue
	}
	if start+qty > size {
		return 0, 0, &mbserver.IllegalDataAddress
	}
	return start, qty, nil
}

// encodeRegisters builds a read response: byte count + register bytes.
func encodeRegisters(regs []uint16) []byte {
	resp := make([]byte, 1+len(regs)*2)
	resp[0] = byte(len(regs) * 2)
	for i, r := range regs {
		binary.BigEndian.PutUint16(resp[1+i*2:1+i*2+2], r)
	}
	return resp
}

const TemperatureScale int = 10

func encodeTemp(v float64) uint16 {
	r := min(max(int(math.Round(v*float64(TemperatureScale))), math.MinInt16), math.MaxInt16)
	return uint16(int16(r))
}

func decodeTemp(u uint16) float64 {
	i := int16(u)
	return float64(i) / float64(TemperatureScale)
}
