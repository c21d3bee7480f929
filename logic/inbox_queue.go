package logic

import (
	"encoding/json"
	"fedi_core/dal"
	"fedi_core/dto"
	"fedi_core/shared"
	"fmt"
	"time"
)

// IInboxQueue is the durable log of inbound payloads. Payloads are stored verbatim before anything
// looks at them; the external processor walks the log and marks entries processed or failed.
type IInboxQueue interface {
	Append(payload json.RawMessage) (int64, error)
	// AppendInternal wraps payload as {"type":"__internal__","object":payload}.
	AppendInternal(payload any) (int64, error)
	Get(id int64) (*dal.InboxMessage, error)
	NextBatch(limit int) ([]*dal.InboxMessage, error)
	MarkProcessed(id int64) error
	MarkFailed(id int64) error
	Count(state dal.InboxState) (int, error)
}

const maxInboxBatch = 1000

type inboxQueue struct {
	logger  shared.ILogger
	repo    dal.IRepo
	metrics IMetrics
}

func NewInboxQueue(logger shared.ILogger, repo dal.IRepo, metrics IMetrics) IInboxQueue {
	return &inboxQueue{logger, repo, metrics}
}

func (iq *inboxQueue) Append(payload json.RawMessage) (int64, error) {

	if !json.Valid(payload) {
		return 0, fmt.Errorf("%w: inbox payload is not valid JSON", shared.ErrProtocol)
	}

	// Label only; the payload is kept as received even if the envelope looks odd
	kind := "unknown"
	var actBase dto.ActivityInBase
	if err := json.Unmarshal(payload, &actBase); err == nil && actBase.Type != "" {
		kind = actBase.Type
	}
	return iq.append(payload, kind)
}

func (iq *inboxQueue) AppendInternal(payload any) (int64, error) {
	msg := dto.InternalMessage{Type: dto.InternalMessageType, Object: payload}
	msgJson, err := json.Marshal(&msg)
	if err != nil {
		return 0, err
	}
	return iq.append(msgJson, dto.InternalMessageType)
}

func (iq *inboxQueue) append(payload json.RawMessage, kind string) (int64, error) {
	id, err := iq.repo.AddInboxMessage(payload, time.Now().UTC())
	if err != nil {
		iq.logger.Errorf("Failed to store inbox message: %v", err)
		return 0, err
	}
	iq.metrics.InboxAppended(kind)
	iq.updateQueueLength()
	return id, nil
}

func (iq *inboxQueue) updateQueueLength() {
	if count, err := iq.repo.CountInboxMessages(dal.InboxReceived); err == nil {
		iq.metrics.InboxQueueLength(count)
	}
}

func (iq *inboxQueue) Get(id int64) (*dal.InboxMessage, error) {
	msg, err := iq.repo.GetInboxMessage(id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, shared.ErrNotFound
	}
	return msg, nil
}

// NextBatch returns up to limit unprocessed messages, oldest first.
func (iq *inboxQueue) NextBatch(limit int) ([]*dal.InboxMessage, error) {
	if limit <= 0 || limit > maxInboxBatch {
		limit = maxInboxBatch
	}
	return iq.repo.GetInboxMessages(dal.InboxReceived, limit)
}

func (iq *inboxQueue) MarkProcessed(id int64) error {
	return iq.setState(id, dal.InboxProcessed)
}

func (iq *inboxQueue) MarkFailed(id int64) error {
	return iq.setState(id, dal.InboxFailed)
}

func (iq *inboxQueue) setState(id int64, state dal.InboxState) error {
	if _, err := iq.Get(id); err != nil {
		return err
	}
	if err := iq.repo.SetInboxMessageState(id, state); err != nil {
		return err
	}
	iq.updateQueueLength()
	return nil
}

func (iq *inboxQueue) Count(state dal.InboxState) (int, error) {
	return iq.repo.CountInboxMessages(state)
}
