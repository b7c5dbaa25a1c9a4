//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IRoomRepository interface {
	CreateRoom(name string) (string, error)
	RoomExists(id string) (bool, error)
	RoomName(id string) (string, error)
	StoreMessages(id string, messages []DiskMessage) error
	Messages(id string) ([]DiskMessage, error)
}

// DiskMessage is the storage shape of a chat message.
type DiskMessage struct {
	ID     uuid.UUID `json:"id"`
	Room   string    `json:"room"`
	Author string    `json:"author"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

type roomRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) IRoomRepository {
	return &RoomRepository{db: db, log: log}
}

// CreateRoom assigns the stable room identifier and persists the record.
func (r RoomRepository) CreateRoom(name string) (string, error) {
	record := roomRecord{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(roomKey(record.ID)), data)
	})
	if err != nil {
		return "", err
	}
	return record.ID, nil
}

func (r RoomRepository) RoomExists(id string) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(roomKey(id)))
		return err
	})
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r RoomRepository) RoomName(id string) (string, error) {
	var record roomRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(roomKey(id)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return "", err
	}
	return record.Name, nil
}

// StoreMessages persists a room's full message sequence. Keys embed the
// message's index zero-padded to 9 digits so a lexicographic prefix scan
// returns the history in post order. Rewriting already-stored prefixes is
// idempotent, which keeps the whole-sequence contract cheap to honor.
func (r RoomRepository) StoreMessages(id string, messages []DiskMessage) error {
	return r.db.Update(func(txn *badger.Txn) error {
		for i, message := range messages {
			data, err := json.Marshal(message)
			if err != nil {
				return fmt.Errorf("marshal failed: %w", err)
			}
			if err := txn.Set([]byte(messageKey(id, i)), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Messages returns the persisted history of a room in post order.
// Unknown rooms yield an empty history, not an error.
func (r RoomRepository) Messages(id string) ([]DiskMessage, error) {
	var messages []DiskMessage
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", id))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var message DiskMessage
				if err := json.Unmarshal(val, &message); err != nil {
					return err
				}
				messages = append(messages, message)
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
	return messages, nil
}

func roomKey(id string) string {
	return "room:" + id
}

func messageKey(id string, index int) string {
	return fmt.Sprintf("msg:%s:%09d", id, index)
}
