//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-relay/domain"
)

// IMessageRepository is the persistence store consumed by the messaging
// core: create-or-fetch a room, append a message (the store assigns id and
// timestamp), list a room's messages in creation order.
type IMessageRepository interface {
	UpsertRoom(name string) (RoomRef, error)
	AppendMessage(room RoomRef, sender, content string) (domain.Message, error)
	ListMessages(room RoomRef) ([]domain.Message, error)
	SearchMessages(ctx context.Context, query, roomName string, limit int) ([]domain.Message, error)
}

type MessageRepository struct {
	db    *badger.DB
	index *bluge.Writer
	log   *slog.Logger
}

// NewMessageRepository wires BadgerDB for durable storage and an optional
// Bluge writer for full-text search. A nil index disables search indexing.
func NewMessageRepository(db *badger.DB, index *bluge.Writer, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, index: index, log: log}
}

// RoomRef is the handle returned by UpsertRoom and required by every other
// store operation.
type RoomRef struct {
	ID   uuid.UUID
	Name string
}

type roomRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
}

type messageRecord struct {
	ID      string `json:"id"`
	Room    string `json:"room"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
	At      int64  `json:"at"`
}

func roomKey(name string) []byte {
	return []byte("room:" + name)
}

// messageKey is formatted as "msg:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
func messageKey(room RoomRef, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", room.ID, at.UnixNano(), id))
}

// UpsertRoom fetches the room record for a name, creating it on first use.
// "Room doesn't exist" is never an error.
func (m MessageRepository) UpsertRoom(name string) (RoomRef, error) {
	var record roomRecord
	err := m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(name))
		switch err {
		case nil:
			return item.Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
		case badger.ErrKeyNotFound:
			record = roomRecord{
				ID:        uuid.NewString(),
				Name:      name,
				CreatedAt: time.Now().UTC().UnixNano(),
			}
			data, err := json.Marshal(record)
			if err != nil {
				return err
			}
			return txn.Set(roomKey(name), data)
		default:
			return err
		}
	})
	if err != nil {
		return RoomRef{}, err
	}
	id, err := uuid.Parse(record.ID)
	if err != nil {
		return RoomRef{}, err
	}
	return RoomRef{ID: id, Name: name}, nil
}

// AppendMessage persists a message and assigns its id and creation time.
// The message is also pushed to the search index; an indexing failure is
// logged but does not undo the durable write.
func (m MessageRepository) AppendMessage(room RoomRef, sender, content string) (domain.Message, error) {
	message := domain.Message{
		ID:        uuid.New(),
		Room:      room.Name,
		Sender:    sender,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	key := messageKey(room, message.CreatedAt, message.ID)
	data, err := json.Marshal(fromMessage(message))
	if err != nil {
		return domain.Message{}, err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return domain.Message{}, err
	}

	if m.index != nil {
		doc := bluge.NewDocument(string(key)).
			AddField(bluge.NewKeywordField("room", room.ID.String())).
			AddField(bluge.NewTextField("content", content).StoreValue())
		if err := m.index.Update(doc.ID(), doc); err != nil {
			m.log.Error("Message stored but not indexed", "key", string(key), "error", err)
		}
	}
	return message, nil
}

// ListMessages retrieves every message of a room using a prefix scan.
// Thanks to the padded timestamp in the key, messages are naturally sorted
// by creation time ascending.
func (m MessageRepository) ListMessages(room RoomRef) ([]domain.Message, error) {
	var records []messageRecord
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", room.ID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record messageRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toMessages(records)
}

// SearchMessages runs a full-text query over the indexed contents,
// optionally scoped to one room, and resolves the hits back to the stored
// messages. An unknown room yields no results, not an error.
func (m MessageRepository) SearchMessages(ctx context.Context, query, roomName string, limit int) ([]domain.Message, error) {
	if m.index == nil {
		return nil, nil
	}

	boolean := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField("content"))
	if roomName != "" {
		room, found, err := m.lookupRoom(roomName)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		boolean.AddMust(bluge.NewTermQuery(room.ID.String()).SetField("room"))
	}

	reader, err := m.index.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, boolean))
	if err != nil {
		return nil, err
	}

	var keys []string
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				keys = append(keys, string(value))
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return m.loadByKeys(keys)
}

// lookupRoom is a read-only variant of UpsertRoom used by search.
func (m MessageRepository) lookupRoom(name string) (RoomRef, bool, error) {
	var record roomRecord
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	switch err {
	case nil:
	case badger.ErrKeyNotFound:
		return RoomRef{}, false, nil
	default:
		return RoomRef{}, false, err
	}
	id, err := uuid.Parse(record.ID)
	if err != nil {
		return RoomRef{}, false, err
	}
	return RoomRef{ID: id, Name: name}, true, nil
}

func (m MessageRepository) loadByKeys(keys []string) ([]domain.Message, error) {
	var records []messageRecord
	err := m.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get([]byte(key))
			if err == badger.ErrKeyNotFound {
				// Indexed but since dropped from the store, skip.
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				var record messageRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toMessages(records)
}

func fromMessage(message domain.Message) messageRecord {
	return messageRecord{
		ID:      message.ID.String(),
		Room:    message.Room,
		Sender:  message.Sender,
		Content: message.Content,
		At:      message.CreatedAt.UnixNano(),
	}
}

func toMessages(records []messageRecord) ([]domain.Message, error) {
	var parseErr error
	messages := lo.Map(records, func(record messageRecord, _ int) domain.Message {
		id, err := uuid.Parse(record.ID)
		if err != nil && parseErr == nil {
			parseErr = err
		}
		return domain.Message{
			ID:        id,
			Room:      record.Room,
			Sender:    record.Sender,
			Content:   record.Content,
			CreatedAt: time.Unix(0, record.At).UTC(),
		}
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return messages, nil
}
