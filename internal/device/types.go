package device

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Device represents a metering board known to the platform.
//
// A device is created through the MQTT registration handshake and is
// addressed on the wire by its short PublicID, never by the internal ID.
// Credential pairs (hotspot, client, admin) mirror what the firmware
// stores locally so they can be replayed to a re-flashed board.
type Device struct {
	// ID is the internal unique identifier (UUID).
	ID string `json:"id"`

	// MACAddress is the hardware address reported during registration.
	// Unique across all devices.
	MACAddress string `json:"macAddress"`

	// BoardNumber is the manufacturer serial printed on the board.
	BoardNumber string `json:"boardNumber"`

	// PublicID is the short identifier embedded in MQTT topic names
	// (e.g. "Ab3" in "device/Ab3/online"). Unique across all devices.
	PublicID string `json:"publicId"`

	// SecretKey is issued at registration and returned to the device
	// in the handshake response.
	SecretKey string `json:"-"`

	// IsClientModeOn reports whether the board is currently serving its
	// local configuration portal. While true, subscription changes are
	// rejected. Cleared whenever the device announces itself online.
	IsClientModeOn bool `json:"isClientModeOn"`

	// Hotspot credentials used by the board's fallback access point.
	HotspotID       *string `json:"hotspotId,omitempty"`
	HotspotPassword *string `json:"-"`

	// Client portal credentials.
	ClientID       *string `json:"clientId,omitempty"`
	ClientPassword *string `json:"-"`

	// Admin portal credentials.
	AdminID       *string `json:"adminId,omitempty"`
	AdminPassword *string `json:"-"`

	// Wifi credentials the board uses to reach the broker.
	WifiSSID     *string `json:"wifiSsid,omitempty"`
	WifiPassword *string `json:"-"`

	// CompanyID scopes the device to the owning tenant.
	CompanyID *string `json:"companyId,omitempty"`

	// RegisteredBy records the user or service account that accepted
	// the registration.
	RegisteredBy *string `json:"registeredBy,omitempty"`

	// IsDeleted marks a soft-deleted device. Soft-deleted devices are
	// excluded from lookups but their rows are retained.
	IsDeleted bool `json:"isDeleted"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UpdateParams carries a sparse device update. Nil fields are left
// untouched; non-nil fields overwrite the stored value, including
// overwriting with an empty string.
type UpdateParams struct {
	BoardNumber     *string
	HotspotID       *string
	HotspotPassword *string
	ClientID        *string
	ClientPassword  *string
	AdminID         *string
	AdminPassword   *string
	WifiSSID        *string
	WifiPassword    *string
	CompanyID       *string
}

// IsZero reports whether the update contains no changes.
func (p UpdateParams) IsZero() bool {
	return p.BoardNumber == nil &&
		p.HotspotID == nil && p.HotspotPassword == nil &&
		p.ClientID == nil && p.ClientPassword == nil &&
		p.AdminID == nil && p.AdminPassword == nil &&
		p.WifiSSID == nil && p.WifiPassword == nil &&
		p.CompanyID == nil
}

// macPattern matches six colon- or hyphen-separated hex octets.
var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)

// NormalizeMAC validates and canonicalises a MAC address to
// lowercase colon-separated form.
// Returns ErrInvalidMAC if the input is not a valid MAC address.
func NormalizeMAC(mac string) (string, error) {
	mac = strings.TrimSpace(mac)
	if !macPattern.MatchString(mac) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	return strings.ToLower(strings.ReplaceAll(mac, "-", ":")), nil
}

// GenerateID returns a new internal device identifier.
func GenerateID() string {
	return uuid.New().String()
}

// publicIDAlphabet excludes visually ambiguous characters (0/O, 1/l/I)
// since public IDs may be read off a label by an installer.
const publicIDAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GeneratePublicID returns a random short identifier of the given length
// drawn from the public ID alphabet.
func GeneratePublicID(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("public id length must be positive, got %d", length)
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}

	id := make([]byte, length)
	for i, b := range buf {
		id[i] = publicIDAlphabet[int(b)%len(publicIDAlphabet)]
	}
	return string(id), nil
}

// secretKeyBytes is the entropy of a generated secret key (32 bytes,
// hex-encoded to 64 characters).
const secretKeyBytes = 32

// GenerateSecretKey returns a new random device secret.
func GenerateSecretKey() (string, error) {
	buf := make([]byte, secretKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
