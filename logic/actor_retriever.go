package logic

import (
	"encoding/json"
	"fedi_core/dto"
	"fedi_core/shared"
	"fmt"
	"net/http"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../test/mocks/mock_actor_retriever.go -package mocks fedi_core/logic IActorRetriever

type IActorRetriever interface {
	Retrieve(actorUri string) (info *dto.UserInfo, err error)
}

type actorRetriever struct {
	logger  shared.ILogger
	fetcher IHttpFetcher
}

func NewActorRetriever(logger shared.ILogger, fetcher IHttpFetcher) IActorRetriever {
	return &actorRetriever{logger, fetcher}
}

func (ar *actorRetriever) Retrieve(actorUri string) (info *dto.UserInfo, err error) {

	var res *FetchResult
	if res, err = ar.fetcher.Get(actorUri, "application/activity+json", "actor"); err != nil {
		ar.logger.Infof("Failed to fetch actor %s: %v", actorUri, err)
		return nil, shared.ErrNotFound
	}
	if res.Status != http.StatusOK {
		ar.logger.Infof("Fetching actor %s: got status %d", actorUri, res.Status)
		return nil, shared.ErrNotFound
	}

	var obj dto.UserInfo
	if err = json.Unmarshal(res.Body, &obj); err != nil {
		return nil, fmt.Errorf("%w: malformed actor document at %s: %v", shared.ErrProtocol, actorUri, err)
	}
	if obj.Id == "" {
		return nil, fmt.Errorf("%w: actor document at %s has no id", shared.ErrProtocol, actorUri)
	}

	return &obj, nil
}
