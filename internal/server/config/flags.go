package config

import (
	"flag"
	"os"
	"time"

	"github.com/nav2424/rift-sub004/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   content-reference HMAC secret key
//	-t int      content reference validity, minutes
//	-k string   root signing private key (base64 ed25519)
//	-v string   root signing public key (base64 ed25519)
//	-i string   identifier hash salt
//	-m string   vault master key passphrase
//	-n string   vault key derivation salt
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-w int      presigned URL validity, minutes
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-s", "-t", "-k", "-v", "-i", "-m", "-n", "-u", "-p", "-b", "-g", "-e", "-w",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	contentRefTTL := fs.Int("t", int(config.ContentRefTTL.Minutes()), "content_ref_ttl (in minutes)")

	fs.StringVar(&config.SigningPrivateKey, "k", config.SigningPrivateKey, "root signing private key (base64)")
	fs.StringVar(&config.SigningPublicKey, "v", config.SigningPublicKey, "root signing public key (base64)")
	fs.StringVar(&config.IdentifierHashSalt, "i", config.IdentifierHashSalt, "identifier hash salt")
	fs.StringVar(&config.VaultMasterKey, "m", config.VaultMasterKey, "vault master key passphrase")
	fs.StringVar(&config.VaultKeySalt, "n", config.VaultKeySalt, "vault key derivation salt")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	presignTTL := fs.Int("w", int(config.PresignTTL.Minutes()), "presign_ttl (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ContentRefTTL = time.Duration(*contentRefTTL) * time.Minute
	config.PresignTTL = time.Duration(*presignTTL) * time.Minute
}
