package ipfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck_NoLists_AllowsByDefault(t *testing.T) {
	assert.True(t, Check("1.2.3.4", nil, nil))
}

func TestCheck_DenyListOnly(t *testing.T) {
	deny := []string{"10.0.0.0/8"}
	assert.False(t, Check("10.1.2.3", nil, deny))
	assert.True(t, Check("192.168.1.1", nil, deny))
}

func TestCheck_AllowListEnforced(t *testing.T) {
	allow := []string{"10.0.0.0/8"}
	assert.True(t, Check("10.1.2.3", allow, nil))
	assert.False(t, Check("192.168.1.1", allow, nil))
}

func TestCheck_AllowAndDenyBothMatch_MoreSpecificAllowWins(t *testing.T) {
	allow := []string{"10.1.0.0/16"}
	deny := []string{"10.0.0.0/8"}
	assert.True(t, Check("10.1.2.3", allow, deny))
}

func TestCheck_AllowAndDenyBothMatch_MoreSpecificDenyWins(t *testing.T) {
	allow := []string{"10.0.0.0/8"}
	deny := []string{"10.1.0.0/16"}
	assert.False(t, Check("10.1.2.3", allow, deny))
}

func TestCheck_SpecificityTieGoesToAllow(t *testing.T) {
	allow := []string{"10.1.2.0/24"}
	deny := []string{"10.1.2.0/24"}
	assert.True(t, Check("10.1.2.3", allow, deny))
}

func TestCheck_Wildcard(t *testing.T) {
	assert.True(t, Check("8.8.8.8", []string{"*"}, nil))
}

func TestCheck_BareAddressBecomesHostRoute(t *testing.T) {
	allow := []string{"10.1.2.3"}
	assert.True(t, Check("10.1.2.3", allow, nil))
	assert.False(t, Check("10.1.2.4", allow, nil))
}

func TestCheck_MalformedIP_FailsClosed(t *testing.T) {
	assert.False(t, Check("not-an-ip", nil, nil))
}

func TestCheck_MonotonicityUnderMoreSpecificAllow(t *testing.T) {
	// A previously-allowed IP must stay allowed when a more specific allow
	// (that also contains it) is added, absent a more specific deny.
	before := Check("10.1.2.3", []string{"10.0.0.0/8"}, nil)
	after := Check("10.1.2.3", []string{"10.0.0.0/8", "10.1.2.0/24"}, nil)
	assert.True(t, before)
	assert.True(t, after)
}

func TestWhitelisted(t *testing.T) {
	assert.True(t, Whitelisted("/"))
	assert.True(t, Whitelisted("/healthz"))
	assert.True(t, Whitelisted("/metrics"))
	assert.True(t, Whitelisted("/t/abc123"))
	assert.False(t, Whitelisted("/api/list"))
}
