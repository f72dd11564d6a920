// internal/transport/rtuovertcp.go
package transport

import (
	"errors"
	"fmt"
	"time"

	smodbus "github.com/simonvetter/modbus"
)

// RTUOverTCPClient speaks RTU framing through a transparent
// RS485-to-TCP converter.
type RTUOverTCPClient struct {
	client *smodbus.ModbusClient
}

type RTUOverTCPConfig struct {
	Endpoint string
	BaudRate int
	UnitID   uint8
	Timeout  time.Duration
}

func NewRTUOverTCP(cfg RTUOverTCPConfig) (*RTUOverTCPClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("transport: endpoint required")
	}

	c, err := smodbus.NewClient(&smodbus.ClientConfiguration{
		URL:     "rtuovertcp://" + cfg.Endpoint,
		Speed:   uint(cfg.BaudRate),
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: rtuovertcp client: %w", err)
	}
	if err := c.SetUnitId(cfg.UnitID); err != nil {
		return nil, fmt.Errorf("transport: rtuovertcp unit id: %w", err)
	}

	return &RTUOverTCPClient{client: c}, nil
}

func (c *RTUOverTCPClient) Connect() error {
	return c.client.Open()
}

func (c *RTUOverTCPClient) Disconnect() error {
	return c.client.Close()
}

func (c *RTUOverTCPClient) ReadInput(start, count uint16) ([]uint16, error) {
	words, err := c.client.ReadRegisters(start, count, smodbus.INPUT_REGISTER)
	if err != nil {
		return nil, fmt.Errorf("transport: read input %d+%d: %w", start, count, err)
	}
	return words, nil
}

func (c *RTUOverTCPClient) ReadHolding(start, count uint16) ([]uint16, error) {
	words, err := c.client.ReadRegisters(start, count, smodbus.HOLDING_REGISTER)
	if err != nil {
		return nil, fmt.Errorf("transport: read holding %d+%d: %w", start, count, err)
	}
	return words, nil
}

func (c *RTUOverTCPClient) WriteHolding(addr, value uint16) error {
	if err := c.client.WriteRegister(addr, value); err != nil {
		return fmt.Errorf("transport: write holding %d: %w", addr, err)
	}
	return nil
}
