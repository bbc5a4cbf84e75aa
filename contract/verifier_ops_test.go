package contract

import (
	"testing"

	"carbonregistry/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acvaProfile = `{"verifierType":"TechnicalAuditor","credentials":["ISO 14065","CCTS-ACVA-017"],"specializations":["BlueCarbon","Forestry"]}`

func TestRegisterVerifier(t *testing.T) {
	h := standardSetup(t)

	_, err := h.cc.RegisterVerifier(h.as(ownerID), acvaProfile)
	assert.ErrorIs(t, err, ErrPermissions, "only VERIFY_PROJECT holders publish a profile")

	cases := []struct {
		name string
		json string
	}{
		{"unknown type", `{"verifierType":"Oracle","credentials":["x"]}`},
		{"no credentials", `{"verifierType":"CertificationBody","credentials":[]}`},
		{"blank credential", `{"verifierType":"CertificationBody","credentials":[" "]}`},
		{"unknown sector", `{"verifierType":"CertificationBody","credentials":["x"],"specializations":["Mining"]}`},
		{"malformed", `{"verifierType":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.cc.RegisterVerifier(h.as(verifierID), tc.json)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	v, err := h.cc.RegisterVerifier(h.as(verifierID), acvaProfile)
	require.NoError(t, err)
	assert.Equal(t, model.VerifierTechnicalAuditor, v.VerifierType)
	assert.Equal(t, model.InitialVerifierReputation, v.ReputationScore)
	assert.Zero(t, v.VerificationCount)
	assert.True(t, v.IsActive)
	assert.Equal(t, []model.ProjectSector{model.SectorBlueCarbon, model.SectorForestry}, v.Specializations)
	assert.Equal(t, "VerifierRegistered", h.lastEvent().Name)

	_, err = h.cc.RegisterVerifier(h.as(verifierID), acvaProfile)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, err := h.cc.GetVerifier(h.as(traderID), verifierID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ISO 14065", "CCTS-ACVA-017"}, got.Credentials)
	_, err = h.cc.GetVerifier(h.as(traderID), ownerID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerificationRewardsVerifier(t *testing.T) {
	h := standardSetup(t)
	_, err := h.cc.RegisterVerifier(h.as(verifierID), acvaProfile)
	require.NoError(t, err)

	h.verifiedProject("P1", 21.9497, 89.1833, 1000, 1000)
	h.verifiedProject("P2", 10, 10, 50, 40)

	v, err := h.cc.GetVerifier(h.as(verifierID), verifierID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v.VerificationCount)
	assert.Equal(t, model.InitialVerifierReputation+2*model.VerificationReward, v.ReputationScore)
	assert.WithinDuration(t, h.clock, v.LastVerifiedAt, 0)
}

func TestSuspendedVerifierCannotVerify(t *testing.T) {
	h := standardSetup(t)
	_, err := h.cc.RegisterVerifier(h.as(verifierID), acvaProfile)
	require.NoError(t, err)
	h.registeredProject("P1", 21.9497, 89.1833, 1000)
	h.registeredProject("P2", 10, 10, 50)
	h.fund(feeAsset, ownerID, 2*minFee)
	_, err = h.cc.InitializeVerification(h.as(ownerID), "P1", minFee, verifierID)
	require.NoError(t, err)

	_, err = h.cc.SetVerifierActive(h.as(ownerID), verifierID, false)
	assert.ErrorIs(t, err, ErrPermissions)
	v, err := h.cc.SetVerifierActive(h.as(adminID), verifierID, false)
	require.NoError(t, err)
	assert.False(t, v.IsActive)

	_, err = h.cc.VerifyProject(h.as(verifierID), "P1", 500, 4, "")
	assert.ErrorIs(t, err, ErrVerifierNotActive)
	_, err = h.cc.BeginReview(h.as(verifierID), "P1")
	assert.ErrorIs(t, err, ErrVerifierNotActive)
	_, err = h.cc.InitializeVerification(h.as(ownerID), "P2", minFee, verifierID)
	assert.ErrorIs(t, err, ErrVerifierNotActive)

	_, err = h.cc.SetVerifierActive(h.as(adminID), verifierID, true)
	require.NoError(t, err)
	p, err := h.cc.VerifyProject(h.as(verifierID), "P1", 500, 4, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, p.Status)
	v, err = h.cc.GetVerifier(h.as(verifierID), verifierID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.VerificationCount)
}
