package authz

// Role identifies an account's access tier across the platform.
type Role string

const (
	RoleCitizen            Role = "citizen"
	RoleSectorManager      Role = "sector_manager"
	RoleGovernmentOfficial Role = "government_official"
	RoleSystemAdmin        Role = "system_admin"
)

// Sector is one of the service domains a sector_manager may be scoped to.
type Sector string

const (
	SectorHealthcare  Sector = "healthcare"
	SectorAgriculture Sector = "agriculture"
	SectorUrban       Sector = "urban"
)

// roleLevels defines the hierarchy citizen < sector_manager < government_official.
// system_admin is deliberately absent: it is an orthogonal track and never
// implied by hierarchy comparison.
var roleLevels = map[Role]int{
	RoleCitizen:            1,
	RoleSectorManager:      2,
	RoleGovernmentOfficial: 3,
}

// ValidRole reports whether r is one of the four known roles.
func ValidRole(r Role) bool {
	if r == RoleSystemAdmin {
		return true
	}
	_, ok := roleLevels[r]
	return ok
}

// ValidSector reports whether s names a known service domain.
func ValidSector(s Sector) bool {
	switch s {
	case SectorHealthcare, SectorAgriculture, SectorUrban:
		return true
	}
	return false
}

// Authorize reports whether actual satisfies at least one of the required
// roles. system_admin is allowed only when explicitly listed in required;
// every other role passes when its hierarchy level meets or exceeds the
// minimum level among the required roles.
func Authorize(required []Role, actual Role) bool {
	if len(required) == 0 {
		return false
	}

	if actual == RoleSystemAdmin {
		for _, r := range required {
			if r == RoleSystemAdmin {
				return true
			}
		}
		return false
	}

	actualLevel, ok := roleLevels[actual]
	if !ok {
		return false
	}

	minLevel := 0
	for _, r := range required {
		level, ok := roleLevels[r]
		if !ok {
			// system_admin or unknown role in the required set does not
			// lower the hierarchy bar.
			continue
		}
		if minLevel == 0 || level < minLevel {
			minLevel = level
		}
	}
	if minLevel == 0 {
		return false
	}

	return actualLevel >= minLevel
}

// CheckSectorAccess reports whether a role scoped to assigned may act on the
// requested sector. Government officials always pass; sector managers pass
// only when requested is empty or equals their own sector; sector scoping
// does not restrict any other role.
func CheckSectorAccess(role Role, assigned, requested Sector) bool {
	if role != RoleSectorManager {
		return true
	}
	return requested == "" || requested == assigned
}
