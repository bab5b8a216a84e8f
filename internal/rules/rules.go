// Package rules implements the Rule Evaluator of §4.3: it maps
// (principal, operation, share, path, origin) to an allow/deny decision
// with a reason, and computes the set of shares a principal may reach.
//
// Ported from app/rules.py's RuleEvaluator, generalized to the Go Rule/
// Permission types in internal/model.
package rules

import (
	"strings"

	"github.com/chfs/chfs/internal/ipfilter"
	"github.com/chfs/chfs/internal/model"
)

// Reason strings surfaced to callers and, via internal/api, mapped to the
// error taxonomy of §7.
const (
	ReasonAuthRequired = "AUTH_REQUIRED"
	ReasonNoRule       = "NO_RULE"
	ReasonOpDenied     = "OP_NOT_ALLOWED"
	ReasonShareDenied  = "SHARE_NOT_ALLOWED"
	ReasonPathDenied   = "PATH_NOT_ALLOWED"
	ReasonIPDenied     = "IP_NOT_ALLOWED"
)

// Evaluator holds the current rule set and the configured share names,
// used to resolve the "*" wildcard in accessible_roots.
type Evaluator struct {
	Rules      []model.Rule
	ShareNames []string
}

// New builds an Evaluator from a rule set and the list of configured share
// names (needed to expand the "*" wildcard in accessible roots).
func New(rules []model.Rule, shareNames []string) *Evaluator {
	return &Evaluator{Rules: rules, ShareNames: shareNames}
}

// Evaluate implements evaluate(user, op, share, rel, ip) → (bool, reason).
// user == "" means unauthenticated and always denies with AUTH_REQUIRED.
func (e *Evaluator) Evaluate(user string, op model.Permission, share, rel, ip string) (bool, string) {
	if user == "" {
		return false, ReasonAuthRequired
	}

	lastReason := ReasonNoRule
	for _, r := range e.Rules {
		if r.Who != user && r.Who != "*" {
			continue
		}
		ok, reason := matchRule(r, op, share, rel, ip)
		if ok {
			return true, ""
		}
		lastReason = reason
	}
	return false, lastReason
}

func matchRule(r model.Rule, op model.Permission, share, rel, ip string) (bool, string) {
	if !op.Has(r.Allow) {
		return false, ReasonOpDenied
	}
	if !sharesMatch(r.Roots, share) {
		return false, ReasonShareDenied
	}
	if !pathMatches(r.Paths, rel) {
		return false, ReasonPathDenied
	}
	if !ipfilter.Check(ip, r.IPAllow, r.IPDeny) {
		return false, ReasonIPDenied
	}
	return true, ""
}

func sharesMatch(roots []string, share string) bool {
	for _, root := range roots {
		if root == "*" || root == share {
			return true
		}
	}
	return false
}

// pathMatches implements the path-glob semantics of §3: e ∈ {"*", "/*"};
// or p == e; or e ends in "/" and p has that prefix; or p == e or p starts
// with e + "/".
func pathMatches(paths []string, rel string) bool {
	p := normalizePath(rel)
	for _, e := range paths {
		e = normalizePath(e)
		if e == "*" || e == "/*" {
			return true
		}
		if p == e {
			return true
		}
		if strings.HasSuffix(e, "/") && strings.HasPrefix(p, e) {
			return true
		}
		if strings.HasPrefix(p, e+"/") {
			return true
		}
	}
	return false
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// AccessibleRoots implements accessible_roots(user, ip): the union of
// roots across matching rules (rule-local IP filter satisfied); a "*"
// entry expands to, and is intersected with, the configured share names.
func (e *Evaluator) AccessibleRoots(user, ip string) []string {
	set := map[string]bool{}
	star := false

	for _, r := range e.Rules {
		if r.Who != user && r.Who != "*" {
			continue
		}
		if !ipfilter.Check(ip, r.IPAllow, r.IPDeny) {
			continue
		}
		for _, root := range r.Roots {
			if root == "*" {
				star = true
				continue
			}
			set[root] = true
		}
	}

	if star {
		for _, name := range e.ShareNames {
			set[name] = true
		}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	return out
}

// OpForAction maps an HTTP API action name to the permission it requires,
// per §3's "Operations map": list/download → R; upload/mkdir/rename → W;
// delete → D.
func OpForAction(action string) model.Permission {
	switch action {
	case "list", "download":
		return model.PermRead
	case "upload", "mkdir", "rename":
		return model.PermWrite
	case "delete":
		return model.PermDelete
	default:
		return model.PermRead
	}
}
