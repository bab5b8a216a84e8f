package rules

import (
	"testing"

	"github.com/chfs/chfs/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate_DeniesUnauthenticated(t *testing.T) {
	e := New(nil, nil)
	ok, reason := e.Evaluate("", model.PermRead, "pub", "/a", "1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, ReasonAuthRequired, reason)
}

func TestEvaluate_AllowsMatchingRule(t *testing.T) {
	e := New([]model.Rule{
		{Who: "alice", Allow: []model.Permission{model.PermRead, model.PermWrite}, Roots: []string{"pub"}, Paths: []string{"/"}, IPAllow: []string{"*"}},
	}, []string{"pub"})

	ok, _ := e.Evaluate("alice", model.PermRead, "pub", "/a/b.txt", "1.2.3.4")
	assert.True(t, ok)
}

func TestEvaluate_DeniesWrongOp(t *testing.T) {
	e := New([]model.Rule{
		{Who: "alice", Allow: []model.Permission{model.PermRead}, Roots: []string{"pub"}, Paths: []string{"/"}, IPAllow: []string{"*"}},
	}, []string{"pub"})

	ok, reason := e.Evaluate("alice", model.PermWrite, "pub", "/a", "1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, ReasonOpDenied, reason)
}

func TestEvaluate_DeniesWrongShare(t *testing.T) {
	e := New([]model.Rule{
		{Who: "alice", Allow: []model.Permission{model.PermRead}, Roots: []string{"pub"}, Paths: []string{"/"}, IPAllow: []string{"*"}},
	}, []string{"pub", "other"})

	ok, reason := e.Evaluate("alice", model.PermRead, "other", "/a", "1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, ReasonShareDenied, reason)
}

func TestEvaluate_WildcardWho(t *testing.T) {
	e := New([]model.Rule{
		{Who: "*", Allow: []model.Permission{model.PermRead}, Roots: []string{"*"}, Paths: []string{"*"}, IPAllow: []string{"*"}},
	}, []string{"pub"})

	ok, _ := e.Evaluate("anyone", model.PermRead, "pub", "/x/y", "1.2.3.4")
	assert.True(t, ok)
}

func TestPathMatches_TrailingSlashPrefix(t *testing.T) {
	assert.True(t, pathMatches([]string{"/docs/"}, "/docs/a.txt"))
	assert.True(t, pathMatches([]string{"/docs"}, "/docs/a.txt"))
	assert.False(t, pathMatches([]string{"/docs"}, "/documents/a.txt"))
}

func TestAccessibleRoots_WildcardExpandsToConfiguredShares(t *testing.T) {
	e := New([]model.Rule{
		{Who: "alice", Allow: []model.Permission{model.PermRead}, Roots: []string{"*"}, Paths: []string{"*"}, IPAllow: []string{"*"}},
	}, []string{"pub", "private"})

	roots := e.AccessibleRoots("alice", "1.2.3.4")
	assert.ElementsMatch(t, []string{"pub", "private"}, roots)
}

func TestAccessibleRoots_IPFilteredOut(t *testing.T) {
	e := New([]model.Rule{
		{Who: "alice", Allow: []model.Permission{model.PermRead}, Roots: []string{"pub"}, Paths: []string{"*"}, IPAllow: []string{"10.0.0.0/8"}},
	}, []string{"pub"})

	roots := e.AccessibleRoots("alice", "1.2.3.4")
	assert.Empty(t, roots)
}

func TestOpForAction(t *testing.T) {
	assert.Equal(t, model.PermRead, OpForAction("list"))
	assert.Equal(t, model.PermRead, OpForAction("download"))
	assert.Equal(t, model.PermWrite, OpForAction("upload"))
	assert.Equal(t, model.PermWrite, OpForAction("mkdir"))
	assert.Equal(t, model.PermWrite, OpForAction("rename"))
	assert.Equal(t, model.PermDelete, OpForAction("delete"))
}
