package easyduplex

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"github.com/BurntSushi/toml"
	"github.com/DarthPestilane/easyduplex/logger"
	"net"
	"os"
	"strings"
	"time"
)

// Role is which side of the transport a configured Client takes.
type Role string

const (
	RoleConnect Role = "connect"
	RoleAccept  Role = "accept"
)

// TLSSettings configures transport security.
type TLSSettings struct {
	Enabled            bool
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
	// Mutual requires a client certificate on accept, and presents one on connect.
	Mutual bool
}

// Config describes a Client, usually loaded from a TOML file with LoadConfig.
type Config struct {
	Name              string
	Address           string
	Role              Role
	Codec             string
	LogLevel          string
	ReadBufferSize    int
	WriteBufferSize   int
	MaxDataSize       int
	ConnectTimeout    time.Duration
	DisconnectTimeout time.Duration
	TLS               TLSSettings
}

// DefaultConfig returns the defaults LoadConfig starts from.
func DefaultConfig() Config {
	return Config{
		Role:              RoleConnect,
		Codec:             "json",
		LogLevel:          "info",
		ReadBufferSize:    DefaultBufferSize,
		WriteBufferSize:   DefaultBufferSize,
		ConnectTimeout:    5 * time.Second,
		DisconnectTimeout: 5 * time.Second,
	}
}

type fileConfig struct {
	Name              string `toml:"name"`
	Address           string `toml:"address"`
	Role              string `toml:"role"`
	Codec             string `toml:"codec"`
	LogLevel          string `toml:"log_level"`
	ReadBufferSize    int    `toml:"read_buffer_size"`
	WriteBufferSize   int    `toml:"write_buffer_size"`
	MaxDataSize       int    `toml:"max_data_size"`
	ConnectTimeout    string `toml:"connect_timeout"`
	DisconnectTimeout string `toml:"disconnect_timeout"`
	TLS               struct {
		Enabled            bool   `toml:"enabled"`
		CertFile           string `toml:"cert_file"`
		KeyFile            string `toml:"key_file"`
		CAFile             string `toml:"ca_file"`
		ServerName         string `toml:"server_name"`
		InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
		Mutual             bool   `toml:"mutual"`
	} `toml:"tls"`
}

// LoadConfig reads the TOML file at path over DefaultConfig, and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) != 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("role") {
		cfg.Role = Role(strings.ToLower(strings.TrimSpace(raw.Role)))
	}
	if meta.IsDefined("codec") {
		cfg.Codec = strings.TrimSpace(raw.Codec)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("read_buffer_size") {
		cfg.ReadBufferSize = raw.ReadBufferSize
	}
	if meta.IsDefined("write_buffer_size") {
		cfg.WriteBufferSize = raw.WriteBufferSize
	}
	if meta.IsDefined("max_data_size") {
		cfg.MaxDataSize = raw.MaxDataSize
	}
	if meta.IsDefined("connect_timeout") {
		if cfg.ConnectTimeout, err = time.ParseDuration(strings.TrimSpace(raw.ConnectTimeout)); err != nil {
			return Config{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
	}
	if meta.IsDefined("disconnect_timeout") {
		if cfg.DisconnectTimeout, err = time.ParseDuration(strings.TrimSpace(raw.DisconnectTimeout)); err != nil {
			return Config{}, fmt.Errorf("parse disconnect_timeout: %w", err)
		}
	}
	if meta.IsDefined("tls") {
		cfg.TLS = TLSSettings{
			Enabled:            raw.TLS.Enabled,
			CertFile:           strings.TrimSpace(raw.TLS.CertFile),
			KeyFile:            strings.TrimSpace(raw.TLS.KeyFile),
			CAFile:             strings.TrimSpace(raw.TLS.CAFile),
			ServerName:         strings.TrimSpace(raw.TLS.ServerName),
			InsecureSkipVerify: raw.TLS.InsecureSkipVerify,
			Mutual:             raw.TLS.Mutual,
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects incomplete or inconsistent settings.
func (c Config) Validate() error {
	var errs []error
	if _, err := ParseAddress(c.Address); err != nil {
		errs = append(errs, fmt.Errorf("address: %w", err))
	}
	if c.Role != RoleConnect && c.Role != RoleAccept {
		errs = append(errs, fmt.Errorf("role: must be %q or %q, got %q", RoleConnect, RoleAccept, c.Role))
	}
	if _, err := NewCodec(c.Codec); err != nil {
		errs = append(errs, fmt.Errorf("codec: %w", err))
	}
	if _, err := logger.New(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.ReadBufferSize < 0 || c.WriteBufferSize < 0 || c.MaxDataSize < 0 {
		errs = append(errs, errors.New("buffer and data sizes must not be negative"))
	}
	if c.ConnectTimeout < 0 || c.DisconnectTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if t := c.TLS; t.Enabled {
		needPair := c.Role == RoleAccept || t.Mutual
		if needPair && (t.CertFile == "" || t.KeyFile == "") {
			errs = append(errs, errors.New("tls: cert_file and key_file are required"))
		}
		if c.Role == RoleAccept && t.Mutual && t.CAFile == "" {
			errs = append(errs, errors.New("tls: ca_file is required to verify client certificates"))
		}
		if t.InsecureSkipVerify && t.CAFile != "" {
			errs = append(errs, errors.New("tls: insecure_skip_verify and ca_file are mutually exclusive"))
		}
	}
	return errors.Join(errs...)
}

// TLSConfig builds the *tls.Config of the configured role, or nil when TLS is disabled.
func (c Config) TLSConfig() (*tls.Config, error) {
	if !c.TLS.Enabled {
		return nil, nil
	}
	if c.Role == RoleAccept {
		return c.serverTLSConfig()
	}
	return c.clientTLSConfig()
}

func (c Config) serverTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	}
	if c.TLS.Mutual {
		pool, err := loadCertPool(c.TLS.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
		cfg.ClientCAs = pool
	}
	return cfg, nil
}

func (c Config) clientTLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.TLS.InsecureSkipVerify,
		ServerName:         c.TLS.ServerName,
	}
	if cfg.ServerName == "" {
		if host, _, err := net.SplitHostPort(c.Address); err == nil {
			cfg.ServerName = host
		}
	}
	if c.TLS.CAFile != "" {
		pool, err := loadCertPool(c.TLS.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if c.TLS.Mutual {
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load tls key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tls ca bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(caPEM); !ok {
		return nil, fmt.Errorf("parse tls ca bundle: %s", path)
	}
	return pool, nil
}

// ClientOption builds the options of a Client as configured.
func (c Config) ClientOption() (*ClientOption, error) {
	codec, err := NewCodec(c.Codec)
	if err != nil {
		return nil, err
	}
	lg, err := logger.New(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return &ClientOption{
		SessionOption: SessionOption{
			Name:            c.Name,
			Logger:          lg,
			ReadBufferSize:  c.ReadBufferSize,
			WriteBufferSize: c.WriteBufferSize,
		},
		Packer: &DefaultPacker{MaxDataSize: c.MaxDataSize},
		Codec:  codec,
	}, nil
}

// Start opens client's session as configured: it connects to, or accepts on,
// Address within ConnectTimeout. A zero ConnectTimeout means no limit.
func (c Config) Start(ctx context.Context, client *Client) error {
	addr, err := ParseAddress(c.Address)
	if err != nil {
		return err
	}
	tlsConfig, err := c.TLSConfig()
	if err != nil {
		return err
	}
	if c.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ConnectTimeout)
		defer cancel()
	}
	if c.Role == RoleAccept {
		return client.Accept(ctx, addr, tlsConfig)
	}
	return client.Connect(ctx, addr, tlsConfig)
}

// Stop disconnects client within DisconnectTimeout.
func (c Config) Stop(client *Client) error {
	ctx := context.Background()
	if c.DisconnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.DisconnectTimeout)
		defer cancel()
	}
	return client.Disconnect(ctx)
}
