package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name     string
		required []Role
		actual   Role
		allowed  bool
	}{
		{"citizen meets citizen", []Role{RoleCitizen}, RoleCitizen, true},
		{"manager meets citizen", []Role{RoleCitizen}, RoleSectorManager, true},
		{"official meets citizen", []Role{RoleCitizen}, RoleGovernmentOfficial, true},
		{"official meets manager", []Role{RoleSectorManager}, RoleGovernmentOfficial, true},
		{"citizen fails manager", []Role{RoleSectorManager}, RoleCitizen, false},
		{"citizen fails official", []Role{RoleGovernmentOfficial}, RoleCitizen, false},
		{"manager fails official", []Role{RoleGovernmentOfficial}, RoleSectorManager, false},
		{"admin explicit", []Role{RoleSystemAdmin}, RoleSystemAdmin, true},
		{"official fails admin-only", []Role{RoleSystemAdmin}, RoleGovernmentOfficial, false},
		{"admin not implied by hierarchy", []Role{RoleCitizen}, RoleSystemAdmin, false},
		{"admin in mixed set", []Role{RoleSystemAdmin, RoleGovernmentOfficial}, RoleSystemAdmin, true},
		{"manager in mixed set", []Role{RoleSystemAdmin, RoleSectorManager}, RoleSectorManager, true},
		{"empty required denies", nil, RoleGovernmentOfficial, false},
		{"unknown role denies", []Role{RoleCitizen}, Role("superuser"), false},
		{"admin-only set denies citizen", []Role{RoleSystemAdmin}, RoleCitizen, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, Authorize(tt.required, tt.actual))
		})
	}
}

func TestCheckSectorAccess(t *testing.T) {
	tests := []struct {
		name      string
		role      Role
		assigned  Sector
		requested Sector
		allowed   bool
	}{
		{"manager own sector", RoleSectorManager, SectorHealthcare, SectorHealthcare, true},
		{"manager other sector", RoleSectorManager, SectorHealthcare, SectorAgriculture, false},
		{"manager no sector requested", RoleSectorManager, SectorHealthcare, "", true},
		{"official any sector", RoleGovernmentOfficial, SectorUrban, SectorAgriculture, true},
		{"official same sector", RoleGovernmentOfficial, SectorHealthcare, SectorHealthcare, true},
		{"citizen unaffected", RoleCitizen, "", SectorUrban, true},
		{"admin unaffected", RoleSystemAdmin, "", SectorHealthcare, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CheckSectorAccess(tt.role, tt.assigned, tt.requested))
		})
	}
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleCitizen))
	assert.True(t, ValidRole(RoleSystemAdmin))
	assert.False(t, ValidRole(Role("root")))
}

func TestValidSector(t *testing.T) {
	assert.True(t, ValidSector(SectorHealthcare))
	assert.False(t, ValidSector(Sector("finance")))
}
