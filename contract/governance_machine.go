package contract

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"carbonregistry/model"

	mapset "github.com/deckarep/golang-set/v2"
)

// ProposalEffect is the side effect an executed proposal asks the contract to apply.
// Exactly one of the payload pointers is set, matching Type, except for target-only types.
type ProposalEffect struct {
	ProposalID uint64
	Type       model.ProposalType
	Target     string
	Role       *model.RolePayload
	Settings   *model.RegistrySettings
	Pause      *model.PausePayload
	Threshold  *model.ThresholdPayload
}

// decodeProposalEffect validates the payload of a proposal type and returns the effect it describes.
func decodeProposalEffect(ptype model.ProposalType, target, payload string) (*ProposalEffect, error) {
	if !model.ValidProposalTypes[ptype] {
		return nil, newError(CodeInvalidInput, "unknown proposal type '%s'", ptype)
	}
	if len(payload) > model.MaxProposalPayload {
		return nil, newError(CodeDataTooLarge, "payload is %d bytes, limit is %d", len(payload), model.MaxProposalPayload)
	}
	effect := &ProposalEffect{Type: ptype, Target: strings.TrimSpace(target)}
	needsTarget := true
	decode := func(v interface{}) error {
		if strings.TrimSpace(payload) == "" {
			return newError(CodeInvalidInput, "%s proposals need a payload", ptype)
		}
		if err := json.Unmarshal([]byte(payload), v); err != nil {
			return newError(CodeInvalidInput, "invalid %s payload: %v", ptype, err)
		}
		return nil
	}

	switch ptype {
	case model.ProposalAssignRole:
		effect.Role = &model.RolePayload{}
		if err := decode(effect.Role); err != nil {
			return nil, err
		}
		if !model.ValidRoles[effect.Role.Role] {
			return nil, newError(CodeInvalidInput, "invalid role '%s'", effect.Role.Role)
		}
	case model.ProposalUpdateRegistry:
		needsTarget = false
		effect.Settings = &model.RegistrySettings{}
		if err := decode(effect.Settings); err != nil {
			return nil, err
		}
		if effect.Settings.GovernmentAuthority == nil && effect.Settings.MinVerificationFee == nil && effect.Settings.ComplianceRequiredForMint == nil {
			return nil, newError(CodeInvalidInput, "UpdateRegistry payload changes nothing")
		}
	case model.ProposalEmergencyPause:
		needsTarget = false
		effect.Pause = &model.PausePayload{}
		if err := decode(effect.Pause); err != nil {
			return nil, err
		}
	case model.ProposalUpdateThreshold:
		needsTarget = false
		effect.Threshold = &model.ThresholdPayload{}
		if err := decode(effect.Threshold); err != nil {
			return nil, err
		}
		if effect.Threshold.Threshold == 0 {
			return nil, newError(CodeInvalidThreshold, "threshold must be at least 1")
		}
	}

	if needsTarget {
		if effect.Target == "" {
			return nil, newError(CodeInvalidInput, "%s proposals need a target", ptype)
		}
		if !isValidX509ID(effect.Target) {
			return nil, newError(CodeInvalidInput, "target '%s' is not a valid X.509 ID format", effect.Target)
		}
	}
	return effect, nil
}

// openProposal builds a new proposal in the Open state.
func openProposal(id uint64, effect *ProposalEffect, proposer, payload string, now time.Time, ttl time.Duration, required uint32) *model.Proposal {
	return &model.Proposal{
		ObjectType:        proposalObjectType,
		ID:                id,
		ProposalType:      effect.Type,
		Proposer:          proposer,
		Target:            effect.Target,
		Payload:           payload,
		CreatedAt:         now,
		ExpiresAt:         now.Add(ttl),
		Status:            model.ProposalOpen,
		Approvals:         []string{},
		Rejections:        []string{},
		RequiredApprovals: required,
	}
}

// requireOpen rejects proposals that are settled or past their expiry.
func requireOpen(p *model.Proposal, now time.Time) error {
	switch p.Status {
	case model.ProposalExecuted:
		return newError(CodeProposalAlreadyExecuted, "proposal %d was executed", p.ID)
	case model.ProposalCancelled:
		return newError(CodeProposalCancelled, "proposal %d was cancelled", p.ID)
	case model.ProposalExpired:
		return newError(CodeProposalExpired, "proposal %d expired", p.ID)
	}
	if !now.Before(p.ExpiresAt) {
		return newError(CodeProposalExpired, "proposal %d expired at %s", p.ID, p.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func cloneProposal(p *model.Proposal) *model.Proposal {
	next := *p
	next.Approvals = append([]string{}, p.Approvals...)
	next.Rejections = append([]string{}, p.Rejections...)
	return &next
}

func sortedMembers(s mapset.Set[string]) []string {
	out := s.ToSlice()
	sort.Strings(out)
	return out
}

// voteTransition records one vote. A voter appears at most once across both sets.
func voteTransition(p *model.Proposal, voter string, approve bool, now time.Time) (*model.Proposal, error) {
	if err := requireOpen(p, now); err != nil {
		return nil, err
	}
	approvals := mapset.NewThreadUnsafeSet(p.Approvals...)
	rejections := mapset.NewThreadUnsafeSet(p.Rejections...)
	if approvals.Contains(voter) || rejections.Contains(voter) {
		return nil, newError(CodeAlreadyApproved, "'%s' already voted on proposal %d", voter, p.ID)
	}
	next := cloneProposal(p)
	if approve {
		approvals.Add(voter)
		next.Approvals = sortedMembers(approvals)
	} else {
		rejections.Add(voter)
		next.Rejections = sortedMembers(rejections)
	}
	return next, nil
}

// executeTransition settles an approved proposal and returns the effect to apply.
func executeTransition(p *model.Proposal, executor string, now time.Time) (*model.Proposal, *ProposalEffect, error) {
	if err := requireOpen(p, now); err != nil {
		return nil, nil, err
	}
	if uint32(mapset.NewThreadUnsafeSet(p.Approvals...).Cardinality()) < p.RequiredApprovals {
		return nil, nil, newError(CodeInsufficientApprovals, "proposal %d has %d of %d approvals", p.ID, len(p.Approvals), p.RequiredApprovals)
	}
	effect, err := decodeProposalEffect(p.ProposalType, p.Target, p.Payload)
	if err != nil {
		return nil, nil, err
	}
	effect.ProposalID = p.ID
	next := cloneProposal(p)
	next.Status = model.ProposalExecuted
	next.Executed = true
	next.ExecutedAt = now
	next.ExecutedBy = executor
	return next, effect, nil
}

// cancelTransition withdraws an open proposal.
func cancelTransition(p *model.Proposal) (*model.Proposal, error) {
	switch p.Status {
	case model.ProposalExecuted:
		return nil, newError(CodeProposalAlreadyExecuted, "proposal %d was executed", p.ID)
	case model.ProposalCancelled:
		return nil, newError(CodeProposalCancelled, "proposal %d was already cancelled", p.ID)
	case model.ProposalExpired:
		return nil, newError(CodeProposalExpired, "proposal %d expired", p.ID)
	}
	next := cloneProposal(p)
	next.Status = model.ProposalCancelled
	next.Cancelled = true
	return next, nil
}

// expireTransition closes an open proposal whose expiry has passed.
func expireTransition(p *model.Proposal, now time.Time) (*model.Proposal, error) {
	if p.Status != model.ProposalOpen {
		return nil, newError(CodeInvalidInput, "proposal %d is %s", p.ID, p.Status)
	}
	if now.Before(p.ExpiresAt) {
		return nil, newError(CodeInvalidInput, "proposal %d is open until %s", p.ID, p.ExpiresAt.Format(time.RFC3339))
	}
	next := cloneProposal(p)
	next.Status = model.ProposalExpired
	return next, nil
}
