package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"carbonregistry/model"

	"github.com/hyperledger/fabric/common/flogging"
)

var idLogger = flogging.MustGetLogger("carbonregistry.identitymanager")

// IdentityManager handles identity registration, role assignment and permission checks.
type IdentityManager struct {
	tx *ledgerTx
}

// NewIdentityManager creates a new instance of IdentityManager bound to one transaction.
func NewIdentityManager(tx *ledgerTx) *IdentityManager {
	return &IdentityManager{tx: tx}
}

// --- Internal Helper Functions ---

func isValidX509ID(id string) bool {
	// Basic check, can be enhanced if specific X.509 formats are enforced.
	return strings.HasPrefix(id, "x509::") || strings.HasPrefix(id, "eDUwOTo6") // "eDUwOTo6" is "x509::" base64 encoded
}

func parseRole(role string) (model.UserRole, error) {
	trimmed := strings.TrimSpace(role)
	for r := range model.ValidRoles {
		if strings.EqualFold(string(r), trimmed) {
			return r, nil
		}
	}
	return "", newError(CodeInvalidInput, "invalid role '%s'", role)
}

func (im *IdentityManager) createIdentityCompositeKey(fullID string) (string, error) {
	return im.tx.key(identityObjectType, fullID)
}

func (im *IdentityManager) callerMSPID() string {
	clientIdentity := im.tx.ctx.GetClientIdentity()
	if clientIdentity == nil {
		return ""
	}
	mspID, err := clientIdentity.GetMSPID()
	if err != nil {
		idLogger.Warningf("Could not determine MSPID for caller %s: %v. Storing empty MSPID.", im.tx.caller, err)
		return ""
	}
	return mspID
}

// getIdentity returns the stored identity or nil when none exists.
func (im *IdentityManager) getIdentity(fullID string) (*model.Identity, error) {
	key, err := im.createIdentityCompositeKey(fullID)
	if err != nil {
		return nil, err
	}
	var idInfo model.Identity
	found, err := im.tx.getJSON(key, &idInfo)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &idInfo, nil
}

func (im *IdentityManager) putIdentity(idInfo *model.Identity) error {
	key, err := im.createIdentityCompositeKey(idInfo.FullID)
	if err != nil {
		return err
	}
	return im.tx.putJSON(key, idInfo)
}

// GetIdentity returns the identity record of fullID or NotFound.
func (im *IdentityManager) GetIdentity(fullID string) (*model.Identity, error) {
	idInfo, err := im.getIdentity(strings.TrimSpace(fullID))
	if err != nil {
		return nil, err
	}
	if idInfo == nil {
		return nil, newError(CodeNotFound, "identity record not found for '%s'", fullID)
	}
	return idInfo, nil
}

// --- Authorization ---

// RequireActive loads the caller's record and fails unless it exists and is active.
func (im *IdentityManager) RequireActive() (*model.Identity, error) {
	idInfo, err := im.getIdentity(im.tx.caller)
	if err != nil {
		return nil, err
	}
	if idInfo == nil || !idInfo.IsActive {
		return nil, newError(CodeUserNotActive, "caller '%s' has no active identity record", im.tx.caller)
	}
	return idInfo, nil
}

// RequirePermission loads the caller's record and tests active && bits&perm != 0.
func (im *IdentityManager) RequirePermission(perm uint64) (*model.Identity, error) {
	idInfo, err := im.RequireActive()
	if err != nil {
		return nil, err
	}
	if idInfo.Permissions&perm == 0 {
		return nil, newError(CodePermissions, "caller '%s' lacks %s", im.tx.caller, model.FormatPermissions(perm))
	}
	idLogger.Debugf("Permission check passed for %s on '%s'.", model.FormatPermissions(perm), im.tx.caller)
	return idInfo, nil
}

// IsAdmin reports whether fullID is the registry admin or an active Admin/SuperAdmin.
func (im *IdentityManager) IsAdmin(fullID string) (bool, error) {
	reg, err := loadRegistryIfExists(im.tx)
	if err != nil {
		return false, err
	}
	if reg != nil && reg.Admin == fullID {
		return true, nil
	}
	idInfo, err := im.getIdentity(fullID)
	if err != nil {
		return false, err
	}
	return idInfo != nil && idInfo.IsActive && idInfo.Role.IsAdminRole(), nil
}

// RequireAdmin fails with Permissions unless the caller is an admin.
func (im *IdentityManager) RequireAdmin() error {
	isAdmin, err := im.IsAdmin(im.tx.caller)
	if err != nil {
		return fmt.Errorf("failed to check admin status: %w", err)
	}
	if !isAdmin {
		return newError(CodePermissions, "caller '%s' is not an admin", im.tx.caller)
	}
	return nil
}

// requireUserManager checks the "manage users" capability and returns the caller's record (nil for a bare registry admin).
func (im *IdentityManager) requireUserManager() (*model.Identity, bool, error) {
	reg, err := loadRegistryIfExists(im.tx)
	if err != nil {
		return nil, false, err
	}
	isRegistryAdmin := reg != nil && reg.Admin == im.tx.caller

	caller, err := im.getIdentity(im.tx.caller)
	if err != nil {
		return nil, false, err
	}
	if isRegistryAdmin {
		return caller, true, nil
	}
	if caller == nil || !caller.IsActive {
		return nil, false, newError(CodeUserNotActive, "caller '%s' has no active identity record", im.tx.caller)
	}
	if caller.Permissions&model.PermAssignRoles == 0 {
		return nil, false, newError(CodePermissions, "caller '%s' lacks %s", im.tx.caller, model.FormatPermissions(model.PermAssignRoles))
	}
	return caller, false, nil
}

// --- Public Identity Management Functions ---

// RegisterSelf creates the caller's record with the default permissions of a self-selectable role.
func (im *IdentityManager) RegisterSelf(role string) (*model.Identity, error) {
	r, err := parseRole(role)
	if err != nil {
		return nil, err
	}
	if r != model.RoleUser && r != model.RoleValidator {
		return nil, newError(CodePermissions, "role '%s' cannot be self-assigned", r)
	}
	existing, err := im.getIdentity(im.tx.caller)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, newError(CodeAlreadyExists, "identity '%s' is already registered", im.tx.caller)
	}

	idInfo := &model.Identity{
		ObjectType:    identityObjectType,
		FullID:        im.tx.caller,
		MSPID:         im.callerMSPID(),
		Role:          r,
		Permissions:   model.DefaultPermissions(r),
		AssignedBy:    im.tx.caller,
		AssignedAt:    im.tx.now,
		IsActive:      true,
		RegisteredAt:  im.tx.now,
		LastUpdatedAt: im.tx.now,
	}
	if err := im.putIdentity(idInfo); err != nil {
		return nil, err
	}
	if err := appendAudit(im.tx, model.AuditIdentityRegistered, im.tx.caller, true, "self-registered as "+string(r), nil); err != nil {
		return nil, err
	}
	idLogger.Infof("Identity '%s' self-registered with role %s.", im.tx.caller, r)
	return idInfo, nil
}

// AssignRole overwrites role, permissions and activation of target, creating the record if needed.
func (im *IdentityManager) AssignRole(target, role string, permissions uint64) (*model.Identity, error) {
	return im.changeRole(target, role, permissions, true)
}

// UpdateRole is AssignRole restricted to existing records.
func (im *IdentityManager) UpdateRole(target, role string, permissions uint64) (*model.Identity, error) {
	return im.changeRole(target, role, permissions, false)
}

func (im *IdentityManager) changeRole(target, role string, permissions uint64, createIfMissing bool) (*model.Identity, error) {
	caller, isRegistryAdmin, err := im.requireUserManager()
	if err != nil {
		return nil, err
	}
	target = strings.TrimSpace(target)
	if target == im.tx.caller {
		return nil, newError(CodePermissions, "identities cannot modify their own role")
	}
	r, err := parseRole(role)
	if err != nil {
		return nil, err
	}
	callerIsSuper := isSuperAdmin(caller, isRegistryAdmin)
	if r.IsAdminRole() && !callerIsSuper {
		return nil, newError(CodePermissions, "only a super admin may grant role '%s'", r)
	}
	if err := im.requireOutranks(target, callerIsSuper); err != nil {
		return nil, err
	}
	if !callerIsSuper && caller.Permissions&permissions != permissions {
		return nil, newError(CodePermissions, "caller '%s' cannot grant permissions it does not hold", im.tx.caller)
	}
	return im.applyRole(target, r, permissions, im.tx.caller, createIfMissing)
}

// applyRole writes the role change without authorization. Governance execution calls it directly.
func (im *IdentityManager) applyRole(target string, role model.UserRole, permissions uint64, assignedBy string, createIfMissing bool) (*model.Identity, error) {
	if !isValidX509ID(target) {
		return nil, newError(CodeInvalidInput, "target '%s' is not a valid X.509 ID format", target)
	}
	idInfo, err := im.getIdentity(target)
	if err != nil {
		return nil, err
	}
	if idInfo == nil {
		if !createIfMissing {
			return nil, newError(CodeNotFound, "identity record not found for '%s'", target)
		}
		idInfo = &model.Identity{
			ObjectType:   identityObjectType,
			FullID:       target,
			RegisteredAt: im.tx.now,
		}
		idLogger.Infof("Creating identity '%s' through role assignment by %s", target, assignedBy)
	}
	idInfo.Role = role
	idInfo.Permissions = permissions
	idInfo.IsActive = role != model.RoleNone
	idInfo.AssignedBy = assignedBy
	idInfo.AssignedAt = im.tx.now
	idInfo.LastUpdatedAt = im.tx.now
	if err := im.putIdentity(idInfo); err != nil {
		return nil, err
	}
	details := fmt.Sprintf("role=%s permissions=%s", role, model.FormatPermissions(permissions))
	if err := appendAudit(im.tx, model.AuditRoleAssigned, target, true, details, nil); err != nil {
		return nil, err
	}
	idLogger.Infof("Role '%s' assigned to identity '%s' by '%s'.", role, target, assignedBy)
	return idInfo, nil
}

func isSuperAdmin(caller *model.Identity, isRegistryAdmin bool) bool {
	return isRegistryAdmin || (caller != nil && caller.Role == model.RoleSuperAdmin)
}

// requireOutranks refuses changes to an admin-role record unless the caller is a super admin.
func (im *IdentityManager) requireOutranks(target string, callerIsSuper bool) error {
	if callerIsSuper {
		return nil
	}
	current, err := im.getIdentity(target)
	if err != nil {
		return err
	}
	if current != nil && current.Role.IsAdminRole() {
		return newError(CodePermissions, "only a super admin may change the %s '%s'", current.Role, target)
	}
	return nil
}

// RevokeRole deactivates target. The record is kept.
func (im *IdentityManager) RevokeRole(target string) (*model.Identity, error) {
	caller, isRegistryAdmin, err := im.requireUserManager()
	if err != nil {
		return nil, err
	}
	target = strings.TrimSpace(target)
	if target == im.tx.caller {
		return nil, newError(CodePermissions, "identities cannot revoke themselves")
	}
	reg, err := loadRegistryIfExists(im.tx)
	if err != nil {
		return nil, err
	}
	if reg != nil && reg.Admin == target {
		return nil, newError(CodePermissions, "the registry admin cannot be revoked, transfer authority first")
	}
	if err := im.requireOutranks(target, isSuperAdmin(caller, isRegistryAdmin)); err != nil {
		return nil, err
	}
	return im.applyRevoke(target, im.tx.caller)
}

func (im *IdentityManager) applyRevoke(target, revokedBy string) (*model.Identity, error) {
	idInfo, err := im.GetIdentity(target)
	if err != nil {
		return nil, err
	}
	idInfo.IsActive = false
	idInfo.Role = model.RoleNone
	idInfo.Permissions = 0
	idInfo.AssignedBy = revokedBy
	idInfo.AssignedAt = im.tx.now
	idInfo.LastUpdatedAt = im.tx.now
	if err := im.putIdentity(idInfo); err != nil {
		return nil, err
	}
	if err := appendAudit(im.tx, model.AuditRoleRevoked, target, true, "revoked by "+revokedBy, nil); err != nil {
		return nil, err
	}
	idLogger.Infof("Identity '%s' revoked by '%s'.", target, revokedBy)
	return idInfo, nil
}

// GetAllIdentities lists every identity. Callers need the manage-users capability.
func (im *IdentityManager) GetAllIdentities() ([]model.Identity, error) {
	if _, _, err := im.requireUserManager(); err != nil {
		return nil, err
	}
	rows, err := im.tx.scan(identityObjectType)
	if err != nil {
		return nil, err
	}
	identities := []model.Identity{}
	for _, raw := range rows {
		var idInfo model.Identity
		if err := json.Unmarshal(raw, &idInfo); err != nil {
			idLogger.Warningf("Failed to unmarshal identity data '%s': %v. Skipping.", string(raw), err)
			continue
		}
		identities = append(identities, idInfo)
	}
	idLogger.Infof("'%s' retrieved %d registered identities.", im.tx.caller, len(identities))
	return identities, nil
}
