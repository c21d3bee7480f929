package logic

import (
	"errors"
	"fedi_core/dal"
	"fedi_core/shared"
)

// IInteractionLedger records likes, boosts, votes and pins, and keeps post stats in step with them.
type IInteractionLedger interface {
	ToggleOn(identityId, postId int64, iType dal.InteractionType) (*dal.PostInteraction, error)
	ToggleOff(identityId, postId int64, iType dal.InteractionType) error
	// GetUserInteraction returns nil if the identity never interacted with the post this way.
	GetUserInteraction(postId, identityId int64, iType dal.InteractionType) (*dal.PostInteraction, error)
	PostLikedBy(postId, identityId int64) (bool, error)
	GetPostStats(postId int64) (*dal.PostStats, error)
	LikePost(postId, identityId int64) (*dal.PostInteraction, error)
	UnlikePost(postId, identityId int64) error
	BoostPost(postId, identityId int64) (*dal.PostInteraction, error)
	UnboostPost(postId, identityId int64) error
}

type interactionLedger struct {
	logger  shared.ILogger
	repo    dal.IRepo
	metrics IMetrics
}

func NewInteractionLedger(logger shared.ILogger, repo dal.IRepo, metrics IMetrics) IInteractionLedger {
	return &interactionLedger{logger, repo, metrics}
}

func getInteractionTarget(tx dal.IRepo, identityId, postId int64) (*dal.Post, error) {
	post, err := tx.GetPost(postId)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, shared.ErrNotFound
	}
	idn, err := tx.GetIdentity(identityId)
	if err != nil {
		return nil, err
	}
	if idn == nil {
		return nil, shared.ErrNotFound
	}
	return post, nil
}

func (il *interactionLedger) ToggleOn(identityId, postId int64, iType dal.InteractionType) (*dal.PostInteraction, error) {

	var res *dal.PostInteraction
	err := il.repo.RunInTx(func(tx dal.IRepo) error {

		post, err := getInteractionTarget(tx, identityId, postId)
		if err != nil {
			return err
		}

		pi, err := tx.GetInteraction(identityId, postId, iType)
		if err != nil {
			return err
		}
		if pi == nil {
			pi = &dal.PostInteraction{
				IdentityId: identityId,
				PostId:     postId,
				Type:       iType,
				State:      dal.InteractionNew,
			}
			if err = tx.AddInteraction(pi); err != nil {
				if !errors.Is(err, shared.ErrConstraintViolation) {
					return err
				}
				if pi, err = tx.GetInteraction(identityId, postId, iType); err != nil {
					return err
				}
			}
		} else if !containsState(dal.LiveInteractionStates, pi.State) {
			// Revive the undone row rather than adding another
			if err = tx.SetInteractionState(pi.Id, dal.InteractionNew); err != nil {
				return err
			}
			pi.State = dal.InteractionNew
		}

		if _, err = calculateStats(tx, post); err != nil {
			return err
		}
		res = pi
		return nil
	})
	if err != nil {
		return nil, err
	}

	il.metrics.InteractionToggled(string(iType), true)
	return res, nil
}

func (il *interactionLedger) ToggleOff(identityId, postId int64, iType dal.InteractionType) error {

	err := il.repo.RunInTx(func(tx dal.IRepo) error {
		post, err := getInteractionTarget(tx, identityId, postId)
		if err != nil {
			return err
		}
		if err = tx.SetInteractionsState(identityId, postId, iType, dal.InteractionUndone); err != nil {
			return err
		}
		_, err = calculateStats(tx, post)
		return err
	})
	if err != nil {
		return err
	}

	il.metrics.InteractionToggled(string(iType), false)
	return nil
}

func (il *interactionLedger) GetUserInteraction(postId, identityId int64, iType dal.InteractionType) (*dal.PostInteraction, error) {
	post, err := il.repo.GetPost(postId)
	if err != nil {
		return nil, err
	}
	if post == nil {
		il.logger.Warnf("Cannot find post %d", postId)
		return nil, shared.ErrNotFound
	}
	return il.repo.GetInteraction(identityId, postId, iType)
}

func (il *interactionLedger) PostLikedBy(postId, identityId int64) (bool, error) {
	pi, err := il.GetUserInteraction(postId, identityId, dal.InteractionLike)
	if err != nil || pi == nil {
		return false, err
	}
	return containsState(dal.LiveInteractionStates, pi.State), nil
}

func (il *interactionLedger) GetPostStats(postId int64) (*dal.PostStats, error) {
	post, err := il.repo.GetPost(postId)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, shared.ErrNotFound
	}
	return &post.Stats, nil
}

func (il *interactionLedger) LikePost(postId, identityId int64) (*dal.PostInteraction, error) {
	return il.ToggleOn(identityId, postId, dal.InteractionLike)
}

func (il *interactionLedger) UnlikePost(postId, identityId int64) error {
	return il.ToggleOff(identityId, postId, dal.InteractionLike)
}

func (il *interactionLedger) BoostPost(postId, identityId int64) (*dal.PostInteraction, error) {
	return il.ToggleOn(identityId, postId, dal.InteractionBoost)
}

func (il *interactionLedger) UnboostPost(postId, identityId int64) error {
	return il.ToggleOff(identityId, postId, dal.InteractionBoost)
}
