package tokenserver

import "time"

// DefaultIssuer is the issuer embedded in access tokens minted by the server.
const DefaultIssuer = "jbsession-tokenserver"

// ServerConfig configures token signing and lifetime.
type ServerConfig struct {
	SigningKey []byte
	Issuer     string
	TokenTTL   time.Duration
}
