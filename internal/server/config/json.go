package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/nav2424/rift-sub004/internal/flagx"
	"github.com/nav2424/rift-sub004/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "5m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP   string         `json:"endpoint_addr_http"`
	DatabaseDSN        string         `json:"database_dsn"`
	SecretKey          string         `json:"secret_key"`
	ContentRefTTL      timex.Duration `json:"content_ref_ttl"`
	SigningPrivateKey  string         `json:"signing_private_key"`
	SigningPublicKey   string         `json:"signing_public_key"`
	IdentifierHashSalt string         `json:"identifier_hash_salt"`
	VaultMasterKey     string         `json:"vault_master_key"`
	VaultKeySalt       string         `json:"vault_key_salt"`
	S3RootUser         string         `json:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
	PresignTTL         timex.Duration `json:"presign_ttl"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is:
//
//	The -c or -config command-line flags.
//	If it is not set, no JSON file is loaded.
//
// If the file cannot be read or contains invalid JSON, the function panics.
// The caller is expected to merge these values with defaults and
// command-line flags as part of the full configuration process.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.ContentRefTTL = time.Duration(c.ContentRefTTL.Duration)
	config.SigningPrivateKey = c.SigningPrivateKey
	config.SigningPublicKey = c.SigningPublicKey
	config.IdentifierHashSalt = c.IdentifierHashSalt
	config.VaultMasterKey = c.VaultMasterKey
	config.VaultKeySalt = c.VaultKeySalt
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.PresignTTL = time.Duration(c.PresignTTL.Duration)
}
