package watermilldb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	watermillsql "github.com/ThreeDotsLabs/watermill-sql/v3/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tokenmarket/marketd/internal/core/domain"
	"github.com/tokenmarket/marketd/internal/core/ports"
	pgdb "github.com/tokenmarket/marketd/internal/infrastructure/db/postgres"
)

const (
	metadataEventType = "event_type"
	metadataTokenId   = "token_id"
	metadataTopic0    = "topic0"
	metadataTopic1    = "topic1"
	metadataData      = "data"

	subscriberBufferSize = 64
)

var publisherTypes = map[string]func(...interface{}) (message.Publisher, *sql.DB, error){
	"inmemory": newInMemoryPublisher,
	"postgres": newPostgresPublisher,
}

type eventPublisher struct {
	publisher message.Publisher
	db        *sql.DB

	subscribers    map[string]map[string]chan domain.Event // topic -> id -> channel
	subscriberLock *sync.Mutex
}

// NewService opens a publisher of the given type. inmemory takes no config,
// postgres takes the dsn of the event db.
func NewService(publisherType string, config ...interface{}) (ports.EventPublisher, error) {
	factory, ok := publisherTypes[publisherType]
	if !ok {
		return nil, fmt.Errorf("invalid event publisher type: %s", publisherType)
	}
	publisher, db, err := factory(config...)
	if err != nil {
		return nil, err
	}
	return NewEventPublisher(publisher, db), nil
}

func NewEventPublisher(publisher message.Publisher, db *sql.DB) ports.EventPublisher {
	return &eventPublisher{
		publisher:      publisher,
		db:             db,
		subscribers:    make(map[string]map[string]chan domain.Event),
		subscriberLock: &sync.Mutex{},
	}
}

func (e *eventPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	byTopic := make(map[string][]domain.Event)
	topics := make([]string, 0)
	for _, event := range events {
		topic := event.GetTopic()
		if _, ok := byTopic[topic]; !ok {
			topics = append(topics, topic)
		}
		byTopic[topic] = append(byTopic[topic], event)
	}

	for _, topic := range topics {
		msgs, err := toWatermillMessages(byTopic[topic])
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			msg.SetContext(ctx)
		}
		if err := e.publisher.Publish(topic, msgs...); err != nil {
			return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
		}
		e.dispatch(topic, byTopic[topic])
	}
	return nil
}

func (e *eventPublisher) Subscribe(ctx context.Context, topic string) <-chan domain.Event {
	id := uuid.New().String()
	ch := make(chan domain.Event, subscriberBufferSize)

	e.subscriberLock.Lock()
	if _, ok := e.subscribers[topic]; !ok {
		e.subscribers[topic] = make(map[string]chan domain.Event)
	}
	e.subscribers[topic][id] = ch
	e.subscriberLock.Unlock()

	go func() {
		<-ctx.Done()
		e.subscriberLock.Lock()
		defer e.subscriberLock.Unlock()
		if _, ok := e.subscribers[topic][id]; ok {
			delete(e.subscribers[topic], id)
			close(ch)
		}
	}()

	return ch
}

func (e *eventPublisher) Close() {
	e.subscriberLock.Lock()
	for topic, subs := range e.subscribers {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(e.subscribers, topic)
	}
	e.subscriberLock.Unlock()

	//nolint:errcheck
	e.publisher.Close()
	if e.db != nil {
		//nolint:errcheck
		e.db.Close()
	}
}

// dispatch forwards events to the in-process subscribers of the topic.
// Slow subscribers miss events rather than blocking the publisher.
func (e *eventPublisher) dispatch(topic string, events []domain.Event) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	for id, ch := range e.subscribers[topic] {
		for _, event := range events {
			select {
			case ch <- event:
			default:
				log.WithField("subscriber", id).Warnf(
					"subscriber channel full, dropping %s event", event.GetType(),
				)
			}
		}
	}
}

func toWatermillMessages(events []domain.Event) ([]*message.Message, error) {
	watermillMessages := make([]*message.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize %s event: %w", event.GetType(), err)
		}

		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set(metadataEventType, event.GetType().String())

		switch ev := event.(type) {
		case domain.ListingCreated:
			msg.Metadata.Set(metadataTokenId, strconv.FormatUint(ev.TokenId, 10))
			evmLog, err := EncodeListingCreated(ev)
			if err != nil {
				return nil, err
			}
			msg.Metadata.Set(metadataTopic0, evmLog.Topics[0].Hex())
			msg.Metadata.Set(metadataTopic1, evmLog.Topics[1].Hex())
			msg.Metadata.Set(metadataData, "0x"+hex.EncodeToString(evmLog.Data))
		case domain.ListingSold:
			msg.Metadata.Set(metadataTokenId, strconv.FormatUint(ev.TokenId, 10))
		}

		watermillMessages = append(watermillMessages, msg)
	}

	return watermillMessages, nil
}

// DeserializeEvent decodes the payload of a published message.
func DeserializeEvent(buf []byte) (domain.Event, error) {
	var eventType struct {
		Type domain.EventType
	}

	if err := json.Unmarshal(buf, &eventType); err != nil {
		return nil, err
	}

	switch eventType.Type {
	case domain.EventTypeListingCreated:
		var event = domain.ListingCreated{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeListingSold:
		var event = domain.ListingSold{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	}

	return nil, fmt.Errorf("unknown event")
}

func newInMemoryPublisher(_ ...interface{}) (message.Publisher, *sql.DB, error) {
	return gochannel.NewGoChannel(gochannel.Config{}, NewLogger()), nil, nil
}

func newPostgresPublisher(config ...interface{}) (message.Publisher, *sql.DB, error) {
	if len(config) != 1 {
		return nil, nil, fmt.Errorf("invalid event publisher config for postgres")
	}
	dsn, ok := config[0].(string)
	if !ok {
		return nil, nil, fmt.Errorf("invalid DSN for postgres")
	}

	db, err := pgdb.OpenDb(dsn, true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event db: %s", err)
	}

	publisher, err := watermillsql.NewPublisher(
		db,
		watermillsql.PublisherConfig{
			SchemaAdapter:        watermillsql.DefaultPostgreSQLSchema{},
			AutoInitializeSchema: true,
		},
		NewLogger(),
	)
	if err != nil {
		//nolint:errcheck
		db.Close()
		return nil, nil, fmt.Errorf("failed to create event publisher: %s", err)
	}
	return publisher, db, nil
}
