package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/spf13/viper"
)

const (
	KeyServerAddress = "CHAINCODE_SERVER_ADDRESS"
	KeyCCID          = "CHAINCODE_ID"
	KeyTLSDisabled   = "CHAINCODE_TLS_DISABLED"
	KeyTLSKey        = "CHAINCODE_TLS_KEY"
	KeyTLSCert       = "CHAINCODE_TLS_CERT"
	KeyTLSClientCA   = "CHAINCODE_TLS_CLIENT_CA_CERT"
	KeyLogLevel      = "CORE_CHAINCODE_LOGGING_LEVEL"
)

// Config holds the settings the chaincode process reads at startup.
type Config struct {
	// ServerAddress switches the chaincode to run as an external service.
	// When empty the peer launches the chaincode and owns the connection.
	ServerAddress string

	CCID string

	TLSDisabled     bool
	TLSKeyFile      string
	TLSCertFile     string
	TLSClientCAFile string

	// LogLevel is a flogging spec such as "info" or "carbonregistry.amm=debug:info".
	LogLevel string
}

// ExternalService reports whether the chaincode should serve its own gRPC endpoint.
func (c *Config) ExternalService() bool {
	return c.ServerAddress != ""
}

// Load reads the configuration from the environment, falling back to
// defaults for any unset variable.
//
// Environment variables:
//   - CHAINCODE_SERVER_ADDRESS: listen address for chaincode-as-a-service (default: unset)
//   - CHAINCODE_ID: package id the peer knows the service by
//   - CHAINCODE_TLS_DISABLED: "true" or "false" (default: "true")
//   - CHAINCODE_TLS_KEY, CHAINCODE_TLS_CERT: PEM files for the server keypair
//   - CHAINCODE_TLS_CLIENT_CA_CERT: PEM file of the CA trusted for peer client certs
//   - CORE_CHAINCODE_LOGGING_LEVEL: flogging spec (default: "info")
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault(KeyServerAddress, "")
	v.SetDefault(KeyCCID, "")
	v.SetDefault(KeyTLSDisabled, true)
	v.SetDefault(KeyTLSKey, "")
	v.SetDefault(KeyTLSCert, "")
	v.SetDefault(KeyTLSClientCA, "")
	v.SetDefault(KeyLogLevel, "info")

	cfg := &Config{
		ServerAddress:   strings.TrimSpace(v.GetString(KeyServerAddress)),
		CCID:            strings.TrimSpace(v.GetString(KeyCCID)),
		TLSDisabled:     v.GetBool(KeyTLSDisabled),
		TLSKeyFile:      v.GetString(KeyTLSKey),
		TLSCertFile:     v.GetString(KeyTLSCert),
		TLSClientCAFile: v.GetString(KeyTLSClientCA),
		LogLevel:        strings.TrimSpace(v.GetString(KeyLogLevel)),
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.ExternalService() {
		return nil
	}
	if c.CCID == "" {
		return fmt.Errorf("%s is required when %s is set", KeyCCID, KeyServerAddress)
	}
	if !c.TLSDisabled && (c.TLSKeyFile == "" || c.TLSCertFile == "") {
		return fmt.Errorf("%s and %s are required when TLS is enabled", KeyTLSKey, KeyTLSCert)
	}
	return nil
}

// TLSProperties loads the key material named by the config for shim.ChaincodeServer.
func (c *Config) TLSProperties() (shim.TLSProperties, error) {
	props := shim.TLSProperties{Disabled: c.TLSDisabled}
	if c.TLSDisabled {
		return props, nil
	}
	var err error
	if props.Key, err = os.ReadFile(c.TLSKeyFile); err != nil {
		return props, fmt.Errorf("failed to read TLS key: %w", err)
	}
	if props.Cert, err = os.ReadFile(c.TLSCertFile); err != nil {
		return props, fmt.Errorf("failed to read TLS certificate: %w", err)
	}
	if c.TLSClientCAFile != "" {
		if props.ClientCACerts, err = os.ReadFile(c.TLSClientCAFile); err != nil {
			return props, fmt.Errorf("failed to read TLS client CA: %w", err)
		}
	}
	return props, nil
}
