package token

import (
	"errors"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidRoomName is returned for room names the call service would reject.
var ErrInvalidRoomName = errors.New("invalid room name")

var roomNameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidRoomName reports whether name is an acceptable room name.
func ValidRoomName(name string) bool {
	return roomNameRegex.MatchString(name)
}

// MeetingClaims are the claims of a self-signed meeting token.
type MeetingClaims struct {
	jwt.RegisteredClaims
	Room     string `json:"r"`
	Owner    bool   `json:"o"`
	DomainID string `json:"d,omitempty"`
}

// Issuer signs meeting tokens with the call service API key.
type Issuer struct {
	apiKey   []byte
	domainID string
	expiry   time.Duration
	now      func() time.Time
}

// NewIssuer creates an Issuer. Tokens expire after expiry.
func NewIssuer(apiKey, domainID string, expiry time.Duration) *Issuer {
	return &Issuer{
		apiKey:   []byte(apiKey),
		domainID: domainID,
		expiry:   expiry,
		now:      time.Now,
	}
}

// Issue returns a signed token for roomName and its expiry time.
func (i *Issuer) Issue(roomName string, isOwner bool) (string, time.Time, error) {
	if !ValidRoomName(roomName) {
		return "", time.Time{}, ErrInvalidRoomName
	}

	now := i.now()
	expiresAt := now.Add(i.expiry)

	claims := MeetingClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Room:     roomName,
		Owner:    isOwner,
		DomainID: i.domainID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.apiKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
