package models

import "time"

// Asset types.
const (
	AssetTypeFile   = "file"
	AssetTypeImage  = "image"
	AssetTypeSecret = "secret"
)

// Sensitivity classes. One-time-reveal semantics apply to SensitivityReveal;
// SensitivityWatermarked requires the overlay pipeline on every serve.
const (
	SensitivityStandard    = "standard"
	SensitivityWatermarked = "watermarked"
	SensitivityReveal      = "one_time_reveal"
)

// VaultAsset is the sensitive payload referenced by events. Raw bytes live
// in object storage under StorageKey; text secrets are sealed into
// EncryptedPayload instead.
type VaultAsset struct {
	ID            string
	TransactionID string
	AssetType     string
	Sensitivity   string
	// ContentHash is the hex SHA-256 of the original bytes, used for
	// integrity checks against object storage.
	ContentHash string
	// StorageKey is the object-storage key of the payload. Never exposed
	// to clients; disclosure hands out short-lived references instead.
	StorageKey string
	// EncryptedPayload and PayloadNonce hold AES-GCM sealed text secrets.
	EncryptedPayload []byte
	PayloadNonce     []byte
	CreatedAt        time.Time
}

// OneTimeReveal reports whether disclosure of this asset is limited to a
// single reveal per authorized viewer.
func (a *VaultAsset) OneTimeReveal() bool {
	return a.Sensitivity == SensitivityReveal
}
