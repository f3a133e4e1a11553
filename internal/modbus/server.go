// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package modbus exposes a read-only Modbus TCP view of the gateway for
// building integrations (PLCs, SCADA panels) that expect Modbus rather
// than JSON. It is read-only by design: a lighting board's state is
// owned by its Board Actor and driven exclusively through the unified
// API, so every Modbus write function returns an exception instead of
// silently being swallowed or racing the actor's own writes.
package modbus

import (
	"encoding/binary"
	"log/slog"
	"sort"

	"github.com/tbrandon/mbserver"
)

// registersPerBoard is the holding-register block size: power,
// brightness, effect, red, green, blue.
const registersPerBoard = 6

// BoardSnapshot is the read-only view of one board's cached state this
// server exposes over Modbus.
type BoardSnapshot struct {
	ID         string
	Online     bool
	Power      bool
	Brightness uint8
	Effect     uint8
	Color      [3]uint8
}

// Config configures the Modbus TCP server.
type Config struct {
	Addr string `toml:"addr"` // ":502" or ":5020"
}

// Server is a read-only Modbus TCP facade over board state.
//
// Register mapping (boards sorted by ID for a stable layout):
//   - Holding registers [i*6 : i*6+6) = board i's power, brightness,
//     effect, red, green, blue
//   - Coil i = board i's power state; coil len(boards) = performance_mode
type Server struct {
	cfg      Config
	boards   func() []BoardSnapshot
	perfMode func() bool
	logger   *slog.Logger
	mb       *mbserver.Server
}

// NewServer constructs a Modbus TCP server. boards and perfMode are
// called on every request, so callers can back them with a live,
// mutex-guarded snapshot function.
func NewServer(cfg Config, boards func() []BoardSnapshot, perfMode func() bool, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, boards: boards, perfMode: perfMode, logger: logger}
}

// Start starts the Modbus TCP server.
func (s *Server) Start() error {
	s.mb = mbserver.NewServer()

	s.mb.RegisterFunctionHandler(1, s.handleReadCoils)               // FC01
	s.mb.RegisterFunctionHandler(3, s.handleReadHoldingRegisters)     // FC03
	s.mb.RegisterFunctionHandler(5, s.handleRejectWrite)              // FC05
	s.mb.RegisterFunctionHandler(6, s.handleRejectWrite)              // FC06
	s.mb.RegisterFunctionHandler(16, s.handleRejectWrite)             // FC16

	addr := s.cfg.Addr
	if addr == "" {
		addr = ":502"
	}

	s.logger.Info("Modbus TCP server starting", "addr", addr)
	go func() {
		if err := s.mb.ListenTCP(addr); err != nil {
			s.logger.Error("Modbus TCP server error", "error", err)
		}
	}()
	return nil
}

// Stop stops the Modbus TCP server.
func (s *Server) Stop() {
	if s.mb != nil {
		s.mb.Close()
		s.logger.Info("Modbus TCP server stopped")
	}
}

func (s *Server) sortedBoards() []BoardSnapshot {
	boards := s.boards()
	sort.Slice(boards, func(i, j int) bool { return boards[i].ID < boards[j].ID })
	return boards
}

// FC01: Read Coils — board power states plus one trailing
// performance_mode coil.
func (s *Server) handleReadCoils(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	startAddr := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])
	return encodeCoils(s.sortedBoards(), s.perfMode(), startAddr, quantity)
}

// FC03: Read Holding Registers — per-board power/brightness/effect/RGB
// snapshot, registersPerBoard registers per board.
func (s *Server) handleReadHoldingRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	startAddr := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])
	return encodeHoldingRegisters(s.sortedBoards(), startAddr, quantity)
}

// handleRejectWrite backs every write function code: board state is
// owned by the Board Actor and driven through the unified API only.
func (s *Server) handleRejectWrite(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	s.logger.Debug("Modbus write rejected: read-only server")
	return []byte{}, &mbserver.IllegalFunction
}

// encodeCoils builds the FC01 response body. Coils [0, len(boards)) are
// board power states; coil len(boards) is performance_mode.
func encodeCoils(boards []BoardSnapshot, perfMode bool, startAddr, quantity uint16) ([]byte, *mbserver.Exception) {
	total := uint16(len(boards)) + 1
	if uint32(startAddr)+uint32(quantity) > uint32(total) {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	byteCount := (quantity + 7) / 8
	resp := make([]byte, 1+byteCount)
	resp[0] = byte(byteCount)

	for i := uint16(0); i < quantity; i++ {
		addr := startAddr + i
		var on bool
		if int(addr) < len(boards) {
			on = boards[addr].Power
		} else {
			on = perfMode
		}
		if on {
			resp[1+i/8] |= 1 << (i % 8)
		}
	}
	return resp, &mbserver.Success
}

// encodeHoldingRegisters builds the FC03 response body, registersPerBoard
// registers per board: power, brightness, effect, red, green, blue.
func encodeHoldingRegisters(boards []BoardSnapshot, startAddr, quantity uint16) ([]byte, *mbserver.Exception) {
	total := uint16(len(boards)) * registersPerBoard
	if uint32(startAddr)+uint32(quantity) > uint32(total) {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	resp := make([]byte, 1+quantity*2)
	resp[0] = byte(quantity * 2)

	for i := uint16(0); i < quantity; i++ {
		reg := startAddr + i
		b := boards[reg/registersPerBoard]
		var val uint16
		switch reg % registersPerBoard {
		case 0:
			if b.Power {
				val = 1
			}
		case 1:
			val = uint16(b.Brightness)
		case 2:
			val = uint16(b.Effect)
		case 3:
			val = uint16(b.Color[0])
		case 4:
			val = uint16(b.Color[1])
		case 5:
			val = uint16(b.Color[2])
		}
		binary.BigEndian.PutUint16(resp[1+i*2:], val)
	}
	return resp, &mbserver.Success
}
