package httpservice

import (
	"fmt"
	"time"
)

type Config struct {
	Port              uint32
	EnablePprof       bool
	HeartbeatInterval time.Duration
	ReadHeaderTimeout time.Duration
}

func (c Config) Validate() error {
	if c.Port == 0 {
		return fmt.Errorf("missing port")
	}
	if c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func (c Config) address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c Config) readHeaderTimeout() time.Duration {
	if c.ReadHeaderTimeout <= 0 {
		return 10 * time.Second
	}
	return c.ReadHeaderTimeout
}
