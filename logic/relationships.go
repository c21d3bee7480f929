package logic

import (
	"errors"
	"fedi_core/dal"
	"fedi_core/shared"
	"time"
)

// IRelationships owns the follow and block/mute edges between identities.
// Every transition is idempotent: repeating it, or applying it to an edge already past it, changes nothing.
type IRelationships interface {
	Follow(sourceId, targetId int64) (*dal.Follow, error)
	Unfollow(sourceId, targetId int64) (*dal.Follow, error)
	AcceptFollowRequest(sourceId, targetId int64) (*dal.Follow, error)
	RejectFollowRequest(sourceId, targetId int64) (*dal.Follow, error)
	// UpdateFollowState moves the follow to toState if its state is in fromStates (empty: any).
	// Returns nil if there is no follow between the two.
	UpdateFollowState(sourceId, targetId int64, fromStates []dal.FollowState, toState dal.FollowState) (*dal.Follow, error)
	FollowingIds(identityId int64) ([]int64, error)
	FollowerIds(identityId int64) ([]int64, error)
	FollowingRequestIds(identityId int64) ([]int64, error)
	RequestedFollowerIds(identityId int64) ([]int64, error)

	Block(sourceId, targetId int64) (*dal.Block, error)
	Mute(sourceId, targetId int64, duration time.Duration, includeNotifications bool) (*dal.Block, error)
	Unblock(sourceId, targetId int64) error
	Unmute(sourceId, targetId int64) error
	MutingIds(identityId int64) ([]int64, error)
	BlockingIds(identityId int64) ([]int64, error)
	// RejectingIds are identities on either side of an active full block with identityId.
	RejectingIds(identityId int64) ([]int64, error)
}

// States from which an accept moves on. An accepted follow is left alone.
var acceptableFollowStates = []dal.FollowState{
	dal.FollowUnrequested, dal.FollowPendingApproval, dal.FollowAccepting, dal.FollowRejecting,
}

type relationships struct {
	logger shared.ILogger
	repo   dal.IRepo
}

func NewRelationships(logger shared.ILogger, repo dal.IRepo) IRelationships {
	return &relationships{logger, repo}
}

func getIdentities(tx dal.IRepo, sourceId, targetId int64) (source, target *dal.Identity, err error) {
	if sourceId == targetId {
		return nil, nil, shared.NewPreconditionError("identity %d cannot relate to itself", sourceId)
	}
	if source, err = tx.GetIdentity(sourceId); err != nil {
		return
	}
	if target, err = tx.GetIdentity(targetId); err != nil {
		return
	}
	if source == nil || target == nil {
		return nil, nil, shared.ErrNotFound
	}
	return
}

func (rel *relationships) Follow(sourceId, targetId int64) (*dal.Follow, error) {

	var res *dal.Follow
	err := rel.repo.RunInTx(func(tx dal.IRepo) error {

		source, _, err := getIdentities(tx, sourceId, targetId)
		if err != nil {
			return err
		}

		follow, err := tx.GetFollow(sourceId, targetId)
		if err != nil {
			return err
		}
		if follow != nil {
			// Keep the row and its boosts preference; only a lapsed follow starts over
			if follow.State != dal.FollowAccepted && follow.State != dal.FollowUnrequested {
				if err = tx.SetFollowState(follow.Id, dal.FollowUnrequested); err != nil {
					return err
				}
				follow.State = dal.FollowUnrequested
			}
			res = follow
			return nil
		}

		follow = &dal.Follow{
			SourceId: sourceId,
			TargetId: targetId,
			Boosts:   true,
			State:    dal.FollowUnrequested,
		}
		makeUri := func(id int64) string { return shared.FollowUri(source.ActorUri, id) }
		if err = tx.AddFollow(follow, makeUri); err != nil {
			if !errors.Is(err, shared.ErrConstraintViolation) {
				return err
			}
			if follow, err = tx.GetFollow(sourceId, targetId); err != nil {
				return err
			}
		}
		res = follow
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (rel *relationships) Unfollow(sourceId, targetId int64) (*dal.Follow, error) {
	return rel.UpdateFollowState(sourceId, targetId, nil, dal.FollowUndone)
}

func (rel *relationships) AcceptFollowRequest(sourceId, targetId int64) (*dal.Follow, error) {
	return rel.UpdateFollowState(sourceId, targetId, acceptableFollowStates, dal.FollowAccepted)
}

func (rel *relationships) RejectFollowRequest(sourceId, targetId int64) (*dal.Follow, error) {
	return rel.UpdateFollowState(sourceId, targetId, nil, dal.FollowRejecting)
}

func (rel *relationships) UpdateFollowState(
	sourceId, targetId int64,
	fromStates []dal.FollowState,
	toState dal.FollowState,
) (*dal.Follow, error) {

	var res *dal.Follow
	err := rel.repo.RunInTx(func(tx dal.IRepo) (err error) {
		res, err = updateFollowState(tx, sourceId, targetId, fromStates, toState)
		return
	})
	return res, err
}

func updateFollowState(
	tx dal.IRepo,
	sourceId, targetId int64,
	fromStates []dal.FollowState,
	toState dal.FollowState,
) (*dal.Follow, error) {

	follow, err := tx.GetFollow(sourceId, targetId)
	if err != nil || follow == nil {
		return nil, err
	}
	if follow.State == toState || (len(fromStates) > 0 && !containsState(fromStates, follow.State)) {
		return follow, nil
	}
	if err = tx.SetFollowState(follow.Id, toState); err != nil {
		return nil, err
	}
	follow.State = toState
	return follow, nil
}

func containsState[T comparable](states []T, state T) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func (rel *relationships) FollowingIds(identityId int64) ([]int64, error) {
	return rel.repo.GetFollowTargetIds(identityId, dal.FollowAccepted)
}

func (rel *relationships) FollowerIds(identityId int64) ([]int64, error) {
	return rel.repo.GetFollowSourceIds(identityId, dal.FollowAccepted)
}

func (rel *relationships) FollowingRequestIds(identityId int64) ([]int64, error) {
	return rel.repo.GetFollowTargetIds(identityId, dal.FollowPendingApproval)
}

func (rel *relationships) RequestedFollowerIds(identityId int64) ([]int64, error) {
	return rel.repo.GetFollowSourceIds(identityId, dal.FollowPendingApproval)
}

func (rel *relationships) Block(sourceId, targetId int64) (*dal.Block, error) {
	return rel.blockOrMute(sourceId, targetId, false, 0, false)
}

func (rel *relationships) Mute(sourceId, targetId int64, duration time.Duration, includeNotifications bool) (*dal.Block, error) {
	return rel.blockOrMute(sourceId, targetId, true, duration, includeNotifications)
}

func (rel *relationships) blockOrMute(
	sourceId, targetId int64,
	mute bool,
	duration time.Duration,
	includeNotifications bool,
) (*dal.Block, error) {

	var res *dal.Block
	err := rel.repo.RunInTx(func(tx dal.IRepo) error {

		source, _, err := getIdentities(tx, sourceId, targetId)
		if err != nil {
			return err
		}
		if !source.Local {
			return shared.NewPreconditionError("cannot block or mute from remote identity %d", sourceId)
		}

		var expires *time.Time
		if mute && duration > 0 {
			exp := time.Now().UTC().Add(duration)
			expires = &exp
		}
		makeUri := func(id int64) string { return shared.BlockUri(source.ActorUri, id) }

		block, err := tx.GetBlock(sourceId, targetId, mute)
		if err != nil {
			return err
		}
		if block == nil {
			block = &dal.Block{
				SourceId:             sourceId,
				TargetId:             targetId,
				Mute:                 mute,
				IncludeNotifications: mute && includeNotifications,
				Expires:              expires,
				State:                dal.BlockNew,
			}
			if err = tx.AddBlock(block, makeUri); err != nil {
				return err
			}
		} else {
			if !block.State.IsActive() {
				block.State = dal.BlockNew
			}
			if block.Uri == "" {
				block.Uri = makeUri(block.Id)
			}
			if mute {
				block.IncludeNotifications = includeNotifications
				if expires != nil {
					block.Expires = expires
				}
			}
			if err = tx.UpdateBlock(block); err != nil {
				return err
			}
		}

		// A full block tears down follows in both directions, in the same transaction
		if !mute {
			if _, err = updateFollowState(tx, sourceId, targetId, nil, dal.FollowUndone); err != nil {
				return err
			}
			if _, err = updateFollowState(tx, targetId, sourceId, nil, dal.FollowRejecting); err != nil {
				return err
			}
		}
		res = block
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (rel *relationships) Unblock(sourceId, targetId int64) error {
	return rel.repo.SetBlocksState(sourceId, targetId, false, dal.BlockUndone)
}

func (rel *relationships) Unmute(sourceId, targetId int64) error {
	return rel.repo.SetBlocksState(sourceId, targetId, true, dal.BlockUndone)
}

func (rel *relationships) MutingIds(identityId int64) ([]int64, error) {
	return rel.repo.GetBlockTargetIds(identityId, true, dal.ActiveBlockStates)
}

func (rel *relationships) BlockingIds(identityId int64) ([]int64, error) {
	return rel.repo.GetBlockTargetIds(identityId, false, dal.ActiveBlockStates)
}

func (rel *relationships) RejectingIds(identityId int64) ([]int64, error) {

	blocking, err := rel.repo.GetBlockTargetIds(identityId, false, dal.ActiveBlockStates)
	if err != nil {
		return nil, err
	}
	blockedBy, err := rel.repo.GetBlockSourceIds(identityId, false, dal.ActiveBlockStates)
	if err != nil {
		return nil, err
	}

	res := make([]int64, 0, len(blocking)+len(blockedBy))
	seen := map[int64]bool{}
	for _, id := range append(blocking, blockedBy...) {
		if !seen[id] {
			seen[id] = true
			res = append(res, id)
		}
	}
	return res, nil
}
