package auth

import (
	"path"
	"strings"
)

// PermissionPrefix is prepended to an owning-context tag to form the
// permission needed to read and write elements carrying that tag.
const PermissionPrefix = "bucket:read,write"

// Evaluator decides whether a principal holds a permission.
type Evaluator interface {
	IsPermitted(principal, permission string) bool
}

// Permission converts an owning-context tag such as "/a/b" into
// "bucket:read,write:a:b".
func Permission(tag string) string {
	if !strings.HasPrefix(tag, "/") {
		tag = "/" + tag
	}
	return PermissionPrefix + strings.ReplaceAll(tag, "/", ":")
}

// Allowed reports whether principal may see an element owned by tags. An
// element with no owning tag is visible to everyone.
func Allowed(ev Evaluator, principal string, tags []string) bool {
	for _, tag := range tags {
		if !ev.IsPermitted(principal, Permission(tag)) {
			return false
		}
	}
	return true
}

// AllowAll permits everything. It is used when authorization is disabled.
type AllowAll struct{}

func (AllowAll) IsPermitted(principal, permission string) bool { return true }

// Grant gives a principal a set of permission patterns in path.Match syntax.
// The principal "*" applies to every caller.
type Grant struct {
	Principal   string   `toml:"principal"`
	Permissions []string `toml:"permissions"`
}

// RoleEvaluator checks permissions against statically configured grants.
type RoleEvaluator struct {
	grants map[string][]string
}

func NewRoleEvaluator(grants []Grant) *RoleEvaluator {
	m := make(map[string][]string, len(grants))
	for _, g := range grants {
		m[g.Principal] = append(m[g.Principal], g.Permissions...)
	}
	return &RoleEvaluator{grants: m}
}

func (e *RoleEvaluator) IsPermitted(principal, permission string) bool {
	if principal != "" && matchAny(e.grants[principal], permission) {
		return true
	}
	return matchAny(e.grants["*"], permission)
}

func matchAny(patterns []string, permission string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, permission); err == nil && ok {
			return true
		}
	}
	return false
}
