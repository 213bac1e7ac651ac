package rbac

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadSettings_Defaults(t *testing.T) {
	s := LoadSettings()
	assert.False(t, s.AllowSingletonUserRoles)
	assert.False(t, s.AllowSingletonTeamRoles)
	assert.Equal(t, []string{"is_superuser"}, s.BypassSuperuserFlags)
	assert.Equal(t, map[string]string{"view": "is_system_auditor"}, s.BypassActionFlags)
	assert.Equal(t, []string{"add", "change", "delete", "view"}, s.CreatorDefaults)
	assert.True(t, s.TeamOrgTeamAllowed)
	assert.False(t, s.TeamTeamAllowed)
	assert.Zero(t, s.CheckCacheSize)
}

func TestLoadSettings_Environment(t *testing.T) {
	t.Setenv("ROLEFORGE_ALLOW_SINGLETON_USER_ROLES", "true")
	t.Setenv("ROLEFORGE_BYPASS_SUPERUSER_FLAGS", "is_superuser, is_admin")
	t.Setenv("ROLEFORGE_BYPASS_ACTION_FLAGS", "view:is_auditor,change:is_operator")
	t.Setenv("ROLEFORGE_CREATOR_DEFAULTS", "view,change")
	t.Setenv("ROLEFORGE_CHECK_CACHE_SIZE", "1024")
	t.Setenv("ROLEFORGE_CHECK_CACHE_TTL", "5s")

	s := LoadSettings()
	assert.True(t, s.AllowSingletonUserRoles)
	assert.Equal(t, []string{"is_superuser", "is_admin"}, s.BypassSuperuserFlags)
	assert.Equal(t, map[string]string{"view": "is_auditor", "change": "is_operator"}, s.BypassActionFlags)
	assert.Equal(t, []string{"view", "change"}, s.CreatorDefaults)
	assert.Equal(t, 1024, s.CheckCacheSize)
	assert.Equal(t, 5*time.Second, s.CheckCacheTTL)
}

func TestLoadSettings_MalformedValuesKeepDefaults(t *testing.T) {
	t.Setenv("ROLEFORGE_ALLOW_SINGLETON_USER_ROLES", "definitely")
	t.Setenv("ROLEFORGE_CHECK_CACHE_SIZE", "lots")
	t.Setenv("ROLEFORGE_CHECK_CACHE_TTL", "soon")

	s := LoadSettings()
	assert.False(t, s.AllowSingletonUserRoles)
	assert.Zero(t, s.CheckCacheSize)
	assert.Equal(t, 30*time.Second, s.CheckCacheTTL)
}

func TestSettings_Flags(t *testing.T) {
	s := DefaultSettings()

	super := User{ID: 1, Flags: map[string]bool{"is_superuser": true}}
	auditor := User{ID: 2, Flags: map[string]bool{"is_system_auditor": true}}
	plain := User{ID: 3}

	assert.True(t, s.HasSuperuserFlag(super))
	assert.False(t, s.HasSuperuserFlag(auditor))
	assert.False(t, s.HasSuperuserFlag(plain))

	assert.True(t, s.HasActionFlag(auditor, "view"))
	assert.False(t, s.HasActionFlag(auditor, "change"))
	assert.False(t, s.HasActionFlag(plain, "view"))
}
