package grpcservice

import (
	"crypto/tls"
	"fmt"
	"net"
	"path/filepath"
	"time"
)

const (
	tlsKeyFile  = "key.pem"
	tlsCertFile = "cert.pem"
	tlsFolder   = "tls"

	defaultHeartbeatInterval = 10 * time.Second
)

type Config struct {
	Datadir           string
	Port              uint32
	NoTLS             bool
	HeartbeatInterval time.Duration
}

func (c Config) Validate() error {
	lis, err := net.Listen("tcp", c.address())
	if err != nil {
		return fmt.Errorf("invalid port: %s", err)
	}
	// nolint:all
	lis.Close()

	if !c.NoTLS {
		if _, err := c.tlsConfig(); err != nil {
			return fmt.Errorf("invalid tls config: %s", err)
		}
	}
	return nil
}

func (c Config) insecure() bool {
	return c.NoTLS
}

func (c Config) address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c Config) heartbeat() time.Duration {
	if c.HeartbeatInterval <= 0 {
		return defaultHeartbeatInterval
	}
	return c.HeartbeatInterval
}

func (c Config) tlsDatadir() string {
	return filepath.Join(c.Datadir, tlsFolder)
}

// tlsConfig loads the key pair found in the tls folder of the datadir.
func (c Config) tlsConfig() (*tls.Config, error) {
	if c.insecure() {
		return nil, nil
	}
	certificate, err := tls.LoadX509KeyPair(
		filepath.Join(c.tlsDatadir(), tlsCertFile),
		filepath.Join(c.tlsDatadir(), tlsKeyFile),
	)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1", "h2"},
		Certificates: []tls.Certificate{certificate},
	}, nil
}

func (c Config) gatewayAddress() string {
	return fmt.Sprintf("127.0.0.1:%d", c.Port)
}
