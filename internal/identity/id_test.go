package identity_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"attriflow/internal/identity"
)

func TestBuildCustomerSignature(t *testing.T) {
	site := "shop.example.com"
	ipAddress := "203.0.113.7"
	userAgent := "Mozilla/5.0"
	salt := "test-salt"

	t.Run("generates consistent signature for same inputs", func(t *testing.T) {
		id1 := identity.BuildCustomerSignature(site, ipAddress, userAgent, salt)
		id2 := identity.BuildCustomerSignature(site, ipAddress, userAgent, salt)

		assert.Equal(t, id1, id2, "Same inputs should generate same signature")
		assert.NotEmpty(t, id1)
	})

	t.Run("carries the anonymous prefix", func(t *testing.T) {
		id := identity.BuildCustomerSignature(site, ipAddress, userAgent, salt)

		assert.True(t, strings.HasPrefix(id, identity.AnonymousPrefix))
		assert.Len(t, id, len(identity.AnonymousPrefix)+64, "SHA-256 hex digest after the prefix")
	})

	t.Run("generates different signatures for different IPs", func(t *testing.T) {
		id1 := identity.BuildCustomerSignature(site, ipAddress, userAgent, salt)
		id2 := identity.BuildCustomerSignature(site, "203.0.113.8", userAgent, salt)

		assert.NotEqual(t, id1, id2)
	})

	t.Run("generates different signatures for different user agents", func(t *testing.T) {
		id1 := identity.BuildCustomerSignature(site, ipAddress, userAgent, salt)
		id2 := identity.BuildCustomerSignature(site, ipAddress, "Different Agent", salt)

		assert.NotEqual(t, id1, id2)
	})

	t.Run("generates different signatures for different salts", func(t *testing.T) {
		id1 := identity.BuildCustomerSignature(site, ipAddress, userAgent, "salt1")
		id2 := identity.BuildCustomerSignature(site, ipAddress, userAgent, "salt2")

		assert.NotEqual(t, id1, id2)
	})
}

func TestCustomerAlias(t *testing.T) {
	t.Run("generates consistent alias for same customer", func(t *testing.T) {
		alias1 := identity.CustomerAlias("anon_abc123")
		alias2 := identity.CustomerAlias("anon_abc123")

		assert.Equal(t, alias1, alias2)
		assert.NotEmpty(t, alias1)
	})

	t.Run("generates different aliases for different customers", func(t *testing.T) {
		alias1 := identity.CustomerAlias("customer-1")
		alias2 := identity.CustomerAlias("customer-2")

		assert.NotEqual(t, alias1, alias2)
	})

	t.Run("alias format is two words", func(t *testing.T) {
		alias := identity.CustomerAlias("some-customer")

		assert.Regexp(t, `^[A-Z][a-z]+ [A-Z][a-z]+$`, alias)
	})
}
