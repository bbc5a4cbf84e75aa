package contract

import (
	"fmt"
	"testing"
	"time"

	"carbonregistry/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	admin2ID = "x509::CN=board2,OU=admin,O=Org1::CN=ca.org1.example.com"
	admin3ID = "x509::CN=board3,OU=admin,O=Org1::CN=ca.org1.example.com"
	admin4ID = "x509::CN=board4,OU=admin,O=Org1::CN=ca.org1.example.com"
)

// govSetup initializes a 2-of-3 multisig over the standard cast.
func govSetup(t *testing.T) *harness {
	t.Helper()
	h := standardSetup(t)
	_, err := h.cc.InitializeMultisig(h.as(adminID), []string{adminID, admin2ID, admin3ID}, 2)
	require.NoError(t, err)
	return h
}

// pass opens a proposal as admin2, approves it with admin2 and admin3, and executes it as the registry admin.
func (h *harness) pass(ptype model.ProposalType, target, payload string) (*model.Proposal, error) {
	h.t.Helper()
	p, err := h.cc.CreateProposal(h.as(admin2ID), string(ptype), target, payload, 0)
	require.NoError(h.t, err)
	_, err = h.cc.ApproveProposal(h.as(admin2ID), p.ID)
	require.NoError(h.t, err)
	_, err = h.cc.ApproveProposal(h.as(admin3ID), p.ID)
	require.NoError(h.t, err)
	return h.cc.ExecuteProposal(h.as(adminID), p.ID)
}

func TestInitializeMultisig(t *testing.T) {
	h := standardSetup(t)

	var crowd []string
	for i := 0; i <= model.MaxMultisigAdmins; i++ {
		crowd = append(crowd, fmt.Sprintf("x509::CN=member%d,OU=admin,O=Org1::CN=ca.org1.example.com", i))
	}
	_, err := h.cc.InitializeMultisig(h.as(adminID), crowd, 2)
	assert.ErrorIs(t, err, ErrTooManyAdmins)
	_, err = h.cc.InitializeMultisig(h.as(adminID), []string{adminID, admin2ID}, 0)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
	_, err = h.cc.InitializeMultisig(h.as(adminID), []string{adminID, admin2ID}, 3)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
	_, err = h.cc.InitializeMultisig(h.as(adminID), []string{adminID, adminID}, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.cc.InitializeMultisig(h.as(ownerID), []string{ownerID}, 1)
	assert.ErrorIs(t, err, ErrPermissions)

	cfg, err := h.cc.InitializeMultisig(h.as(adminID), []string{adminID, admin2ID, admin3ID}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{adminID, admin2ID, admin3ID}, cfg.Admins)
	assert.Equal(t, adminID, cfg.EmergencyAdmin)
	assert.True(t, cfg.IsEnabled)

	a2 := h.identity(admin2ID)
	assert.Equal(t, model.RoleAdmin, a2.Role)
	assert.Equal(t, "multisig:init", a2.AssignedBy)
	assert.Equal(t, model.RoleSuperAdmin, h.identity(adminID).Role, "existing admins keep their role")

	_, err = h.cc.InitializeMultisig(h.as(adminID), []string{adminID}, 1)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestAssignRoleProposal(t *testing.T) {
	h := govSetup(t)

	_, err := h.cc.CreateProposal(h.as(ownerID), string(model.ProposalAssignRole), investorID, `{"role":"Validator"}`, 0)
	assert.ErrorIs(t, err, ErrUnauthorizedAdmin)

	p, err := h.cc.CreateProposal(h.as(admin2ID), string(model.ProposalAssignRole), investorID, `{"role":"Validator"}`, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), p.ID)
	assert.Equal(t, uint32(2), p.RequiredApprovals)
	assert.WithinDuration(t, h.clock.Add(7*24*time.Hour), p.ExpiresAt, 0)

	_, err = h.cc.ApproveProposal(h.as(admin2ID), p.ID)
	require.NoError(t, err)
	_, err = h.cc.ApproveProposal(h.as(admin2ID), p.ID)
	assert.ErrorIs(t, err, ErrAlreadyApproved)
	_, err = h.cc.ApproveProposal(h.as(traderID), p.ID)
	assert.ErrorIs(t, err, ErrUnauthorizedAdmin)
	_, err = h.cc.ExecuteProposal(h.as(admin2ID), p.ID)
	assert.ErrorIs(t, err, ErrInsufficientApprovals)

	_, err = h.cc.RejectProposal(h.as(adminID), p.ID)
	require.NoError(t, err)
	_, err = h.cc.ApproveProposal(h.as(admin3ID), p.ID)
	require.NoError(t, err)

	done, err := h.cc.ExecuteProposal(h.as(admin3ID), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalExecuted, done.Status)
	assert.Equal(t, []string{adminID}, done.Rejections)
	assert.Equal(t, "ProposalExecuted", h.lastEvent().Name)

	inv := h.identity(investorID)
	assert.Equal(t, model.RoleValidator, inv.Role)
	assert.Equal(t, model.DefaultPermissions(model.RoleValidator), inv.Permissions)
	assert.Equal(t, "multisig:0", inv.AssignedBy)

	_, err = h.cc.ExecuteProposal(h.as(adminID), p.ID)
	assert.ErrorIs(t, err, ErrProposalAlreadyExecuted)

	stored, err := h.cc.GetProposal(h.as(ownerID), p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Executed)
	executed, err := h.cc.GetProposals(h.as(ownerID), string(model.ProposalExecuted))
	require.NoError(t, err)
	assert.Len(t, executed, 1)
}

func TestEmergencyPauseProposal(t *testing.T) {
	h := govSetup(t)

	_, err := h.pass(model.ProposalEmergencyPause, "", `{"paused":true}`)
	require.NoError(t, err)
	reg, err := h.cc.GetRegistry(h.as(ownerID))
	require.NoError(t, err)
	assert.True(t, reg.Paused)

	_, err = h.cc.RegisterSelf(h.as(verifier2ID), string(model.RoleValidator))
	assert.ErrorIs(t, err, ErrSystemPaused)
	err = h.cc.TransferCredits(h.as(ownerID), investorID, 1)
	assert.ErrorIs(t, err, ErrSystemPaused)

	_, err = h.cc.CreateProposal(h.as(admin3ID), string(model.ProposalEmergencyPause), "", `{"paused":false}`, 0)
	require.NoError(t, err, "governance keeps working while paused")

	err = h.cc.SetEmergencyPause(h.as(ownerID), false)
	assert.ErrorIs(t, err, ErrPermissions)
	require.NoError(t, h.cc.SetEmergencyPause(h.as(adminID), false))
	assert.Equal(t, "SystemUnpaused", h.lastEvent().Name)

	_, err = h.cc.RegisterSelf(h.as(verifier2ID), string(model.RoleValidator))
	require.NoError(t, err)
}

func TestProposalExpiry(t *testing.T) {
	h := govSetup(t)

	_, err := h.cc.CreateProposal(h.as(admin2ID), string(model.ProposalRevokeRole), traderID, "", 91*24*3600)
	assert.ErrorIs(t, err, ErrInvalidInput)

	p, err := h.cc.CreateProposal(h.as(admin2ID), string(model.ProposalRevokeRole), traderID, "", 3600)
	require.NoError(t, err)
	_, err = h.cc.ApproveProposal(h.as(admin2ID), p.ID)
	require.NoError(t, err)
	_, err = h.cc.ExpireProposal(h.as(traderID), p.ID)
	assert.ErrorIs(t, err, ErrInvalidInput)

	h.advance(2 * time.Hour)
	_, err = h.cc.ApproveProposal(h.as(admin3ID), p.ID)
	assert.ErrorIs(t, err, ErrProposalExpired)
	_, err = h.cc.ExecuteProposal(h.as(adminID), p.ID)
	assert.ErrorIs(t, err, ErrProposalExpired)

	expired, err := h.cc.ExpireProposal(h.as(traderID), p.ID)
	require.NoError(t, err, "anyone may sweep an expired proposal")
	assert.Equal(t, model.ProposalExpired, expired.Status)
	assert.True(t, h.identity(traderID).IsActive)
}

func TestCancelProposal(t *testing.T) {
	h := govSetup(t)
	p, err := h.cc.CreateProposal(h.as(admin2ID), string(model.ProposalRevokeRole), traderID, "", 0)
	require.NoError(t, err)

	_, err = h.cc.CancelProposal(h.as(admin3ID), p.ID)
	assert.ErrorIs(t, err, ErrUnauthorizedAdmin)

	cancelled, err := h.cc.CancelProposal(h.as(admin2ID), p.ID)
	require.NoError(t, err)
	assert.True(t, cancelled.Cancelled)
	_, err = h.cc.ApproveProposal(h.as(admin3ID), p.ID)
	assert.ErrorIs(t, err, ErrProposalCancelled)

	p, err = h.cc.CreateProposal(h.as(admin3ID), string(model.ProposalRevokeRole), traderID, "", 0)
	require.NoError(t, err)
	_, err = h.cc.CancelProposal(h.as(adminID), p.ID)
	require.NoError(t, err, "the emergency admin may cancel any proposal")
}

func TestAdminSetProposals(t *testing.T) {
	h := govSetup(t)

	_, err := h.pass(model.ProposalAddAdmin, admin4ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, h.identity(admin4ID).Role)
	_, err = h.pass(model.ProposalAddAdmin, admin4ID, "")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = h.pass(model.ProposalUpdateThreshold, "", `{"threshold":5}`)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
	_, err = h.pass(model.ProposalUpdateThreshold, "", `{"threshold":3}`)
	require.NoError(t, err)

	cfg, err := h.cc.GetMultisigConfig(h.as(ownerID))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), cfg.Threshold)
	assert.Len(t, cfg.Admins, 4)

	p, err := h.cc.CreateProposal(h.as(admin2ID), string(model.ProposalRemoveAdmin), admin4ID, "", 0)
	require.NoError(t, err)
	for _, a := range []string{admin2ID, admin3ID, adminID} {
		_, err = h.cc.ApproveProposal(h.as(a), p.ID)
		require.NoError(t, err)
	}
	_, err = h.cc.ExecuteProposal(h.as(adminID), p.ID)
	require.NoError(t, err)

	_, err = h.cc.CreateProposal(h.as(admin4ID), string(model.ProposalRevokeRole), traderID, "", 0)
	assert.ErrorIs(t, err, ErrUnauthorizedAdmin)

	p, err = h.cc.CreateProposal(h.as(admin2ID), string(model.ProposalRemoveAdmin), admin3ID, "", 0)
	require.NoError(t, err)
	for _, a := range []string{admin2ID, admin3ID, adminID} {
		_, err = h.cc.ApproveProposal(h.as(a), p.ID)
		require.NoError(t, err)
	}
	_, err = h.cc.ExecuteProposal(h.as(adminID), p.ID)
	assert.ErrorIs(t, err, ErrInvalidThreshold, "the admin set never drops below the threshold")
}

func TestRemovedAdminLosesAdminRights(t *testing.T) {
	h := govSetup(t)
	_, err := h.pass(model.ProposalAddAdmin, admin4ID, "")
	require.NoError(t, err)
	_, err = h.cc.AssignRole(h.as(admin4ID), traderID, "Validator", model.ValidatorPermissions)
	require.NoError(t, err, "a sitting admin manages roles")

	_, err = h.pass(model.ProposalRemoveAdmin, admin4ID, "")
	require.NoError(t, err)
	former := h.identity(admin4ID)
	assert.Equal(t, model.RoleUser, former.Role)
	assert.Equal(t, model.UserPermissions, former.Permissions)
	assert.True(t, former.IsActive)

	_, err = h.cc.InitializePool(h.as(admin4ID), creditAsset, quoteAsset, 30)
	assert.ErrorIs(t, err, ErrPermissions)
	_, err = h.cc.AssignRole(h.as(admin4ID), investorID, "Validator", model.ValidatorPermissions)
	assert.ErrorIs(t, err, ErrPermissions)
	err = h.cc.SetEmergencyPause(h.as(admin4ID), true)
	assert.ErrorIs(t, err, ErrPermissions)

	_, err = h.pass(model.ProposalRemoveAdmin, adminID, "")
	assert.ErrorIs(t, err, ErrPermissions, "the registry admin leaves only through an authority transfer")
}

func TestAuthorityAndRegistryProposals(t *testing.T) {
	h := govSetup(t)

	_, err := h.pass(model.ProposalUpdateRegistry, "", `{"minVerificationFee":25,"governmentAuthority":"`+verifier2ID+`"}`)
	require.NoError(t, err)
	reg, err := h.cc.GetRegistry(h.as(ownerID))
	require.NoError(t, err)
	assert.Equal(t, uint64(25), reg.MinVerificationFee)
	assert.Equal(t, verifier2ID, reg.GovernmentAuthority)

	_, err = h.pass(model.ProposalTransferAuthority, admin2ID, "")
	require.NoError(t, err)
	reg, err = h.cc.GetRegistry(h.as(ownerID))
	require.NoError(t, err)
	assert.Equal(t, admin2ID, reg.Admin)

	_, err = h.pass(model.ProposalRevokeRole, admin2ID, "")
	assert.ErrorIs(t, err, ErrPermissions)

	_, err = h.pass(model.ProposalRevokeRole, traderID, "")
	require.NoError(t, err)
	trader := h.identity(traderID)
	assert.False(t, trader.IsActive)
	assert.Equal(t, model.RoleNone, trader.Role)
}
