package uuid

import (
	"crypto/md5"
	"crypto/sha1"

	google "github.com/google/uuid"
)

var (
	NamespaceDNS  = UUID(google.NameSpaceDNS)
	NamespaceURL  = UUID(google.NameSpaceURL)
	NamespaceOID  = UUID(google.NameSpaceOID)
	NamespaceX500 = UUID(google.NameSpaceX500)
)

// NewMD5 returns the version 3 UUID of name within namespace.
func NewMD5(namespace UUID, name string) UUID {
	return UUID(google.NewHash(md5.New(), google.UUID(namespace), []byte(name), VersionMD5))
}

// NewSHA1 returns the version 5 UUID of name within namespace.
func NewSHA1(namespace UUID, name string) UUID {
	return UUID(google.NewHash(sha1.New(), google.UUID(namespace), []byte(name), VersionSHA1))
}

// Namespace resolves the well-known namespace names, or parses value as a UUID.
func Namespace(value string) (UUID, error) {
	switch value {
	case "dns", "DNS":
		return NamespaceDNS, nil
	case "url", "URL":
		return NamespaceURL, nil
	case "oid", "OID":
		return NamespaceOID, nil
	case "x500", "X500":
		return NamespaceX500, nil
	default:
		return Parse(value)
	}
}
