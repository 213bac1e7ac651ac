package rbac

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds the engine's behavior switches. DefaultSettings gives
// the values used when an option is not set; LoadSettings reads
// ROLEFORGE_* environment variables on top of the defaults.
type Settings struct {
	// AllowSingletonUserRoles permits global role assignments to users.
	AllowSingletonUserRoles bool
	// AllowSingletonTeamRoles permits global role assignments to teams.
	AllowSingletonTeamRoles bool

	// BypassSuperuserFlags lists user flags that short-circuit every
	// permission check to true.
	BypassSuperuserFlags []string
	// BypassActionFlags maps an action prefix to a user flag that
	// short-circuits checks for that action, e.g. view -> is_system_auditor.
	BypassActionFlags map[string]string

	// CreatorDefaults lists the actions granted to an object's creator.
	CreatorDefaults []string

	// CacheParentPermissions additionally materializes child-type
	// permissions onto the parent object itself.
	CacheParentPermissions bool

	// Team-to-team grant switches. Each gates one pairing of actor team
	// scope and membership target scope.
	TeamTeamAllowed    bool
	TeamOrgAllowed     bool
	TeamOrgTeamAllowed bool

	// RolePrecreate is an optional path to a YAML file of managed role
	// templates applied by SeedManagedRoles.
	RolePrecreate string

	// CheckCacheSize bounds the in-process permission check cache;
	// zero disables it. CheckCacheTTL expires entries regardless of
	// write activity.
	CheckCacheSize int
	CheckCacheTTL  time.Duration
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		AllowSingletonUserRoles: false,
		AllowSingletonTeamRoles: false,
		BypassSuperuserFlags:    []string{"is_superuser"},
		BypassActionFlags:       map[string]string{"view": "is_system_auditor"},
		CreatorDefaults:         []string{"add", "change", "delete", "view"},
		CacheParentPermissions:  false,
		TeamTeamAllowed:         false,
		TeamOrgAllowed:          false,
		TeamOrgTeamAllowed:      true,
		CheckCacheSize:          0,
		CheckCacheTTL:           30 * time.Second,
	}
}

// LoadSettings builds Settings from the environment.
func LoadSettings() Settings {
	s := DefaultSettings()
	s.AllowSingletonUserRoles = getEnvBool("ROLEFORGE_ALLOW_SINGLETON_USER_ROLES", s.AllowSingletonUserRoles)
	s.AllowSingletonTeamRoles = getEnvBool("ROLEFORGE_ALLOW_SINGLETON_TEAM_ROLES", s.AllowSingletonTeamRoles)
	s.BypassSuperuserFlags = getEnvList("ROLEFORGE_BYPASS_SUPERUSER_FLAGS", s.BypassSuperuserFlags)
	s.BypassActionFlags = getEnvMap("ROLEFORGE_BYPASS_ACTION_FLAGS", s.BypassActionFlags)
	s.CreatorDefaults = getEnvList("ROLEFORGE_CREATOR_DEFAULTS", s.CreatorDefaults)
	s.CacheParentPermissions = getEnvBool("ROLEFORGE_CACHE_PARENT_PERMISSIONS", s.CacheParentPermissions)
	s.TeamTeamAllowed = getEnvBool("ROLEFORGE_TEAM_TEAM_ALLOWED", s.TeamTeamAllowed)
	s.TeamOrgAllowed = getEnvBool("ROLEFORGE_TEAM_ORG_ALLOWED", s.TeamOrgAllowed)
	s.TeamOrgTeamAllowed = getEnvBool("ROLEFORGE_TEAM_ORG_TEAM_ALLOWED", s.TeamOrgTeamAllowed)
	s.RolePrecreate = getEnv("ROLEFORGE_ROLE_PRECREATE", s.RolePrecreate)
	s.CheckCacheSize = getEnvInt("ROLEFORGE_CHECK_CACHE_SIZE", s.CheckCacheSize)
	s.CheckCacheTTL = getEnvDuration("ROLEFORGE_CHECK_CACHE_TTL", s.CheckCacheTTL)
	return s
}

// HasSuperuserFlag reports whether any configured superuser flag is set
// on the user.
func (s Settings) HasSuperuserFlag(u User) bool {
	for _, flag := range s.BypassSuperuserFlags {
		if u.HasFlag(flag) {
			return true
		}
	}
	return false
}

// HasActionFlag reports whether the user carries the bypass flag for an
// action prefix.
func (s Settings) HasActionFlag(u User, action string) bool {
	flag, ok := s.BypassActionFlags[action]
	return ok && u.HasFlag(flag)
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList parses a comma-separated environment variable.
func getEnvList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvMap parses "action:flag,action:flag" pairs.
func getEnvMap(key string, defaultValue map[string]string) map[string]string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(kv) == 2 && kv[0] != "" && kv[1] != "" {
			out[kv[0]] = kv[1]
		}
	}
	return out
}
