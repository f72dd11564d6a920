// internal/transport/goburrow.go
package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

type handler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// ModbusClient speaks Modbus TCP or Modbus RTU on a serial line.
type ModbusClient struct {
	handler handler
	client  modbus.Client
}

type TCPConfig struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration
}

type SerialConfig struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
	UnitID   uint8
	Timeout  time.Duration
}

func NewTCP(cfg TCPConfig) (*ModbusClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("transport: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID

	return &ModbusClient{handler: h, client: modbus.NewClient(h)}, nil
}

func NewRTU(cfg SerialConfig) (*ModbusClient, error) {
	if cfg.Device == "" {
		return nil, errors.New("transport: serial device required")
	}

	h := modbus.NewRTUClientHandler(cfg.Device)
	h.BaudRate = cfg.BaudRate
	h.DataBits = cfg.DataBits
	h.Parity = cfg.Parity
	h.StopBits = cfg.StopBits
	h.SlaveId = cfg.UnitID
	h.Timeout = cfg.Timeout

	return &ModbusClient{handler: h, client: modbus.NewClient(h)}, nil
}

func (c *ModbusClient) Connect() error {
	return c.handler.Connect()
}

func (c *ModbusClient) Disconnect() error {
	return c.handler.Close()
}

func (c *ModbusClient) ReadInput(start, count uint16) ([]uint16, error) {
	b, err := c.client.ReadInputRegisters(start, count)
	if err != nil {
		return nil, fmt.Errorf("transport: read input %d+%d: %w", start, count, err)
	}
	return bytesToWords(b), nil
}

func (c *ModbusClient) ReadHolding(start, count uint16) ([]uint16, error) {
	b, err := c.client.ReadHoldingRegisters(start, count)
	if err != nil {
		return nil, fmt.Errorf("transport: read holding %d+%d: %w", start, count, err)
	}
	return bytesToWords(b), nil
}

func (c *ModbusClient) WriteHolding(addr, value uint16) error {
	if _, err := c.client.WriteSingleRegister(addr, value); err != nil {
		return fmt.Errorf("transport: write holding %d: %w", addr, err)
	}
	return nil
}
