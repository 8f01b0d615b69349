package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/campusconnect/internal/db"
	"github.com/lalith-99/campusconnect/internal/models"
	"github.com/lalith-99/campusconnect/internal/repository"
)

const (
	chatColumns    = `id, user_low, user_high, last_updated, created_at`
	messageColumns = `id, chat_id, sender_id, content, created_at`

	// Attempts at insert-then-refetch before giving up. The second pass only
	// happens if the conflicting row was invisible to the first refetch.
	findOrCreateAttempts = 2
)

type ChatStore struct {
	pool *pgxpool.Pool
}

func NewChatStore(pool *pgxpool.Pool) *ChatStore {
	return &ChatStore{pool: pool}
}

var _ repository.ChatRepository = (*ChatStore)(nil)

func (s *ChatStore) FindOrCreate(ctx context.Context, a, b uuid.UUID) (*models.Chat, error) {
	pair := models.NormalizePair(a, b)

	var chat *models.Chat
	err := db.Retry(ctx, func(ctx context.Context) error {
		var err error
		chat, err = s.findOrCreate(ctx, pair)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find or create chat: %w", db.Classify(err))
	}
	return chat, nil
}

func (s *ChatStore) findOrCreate(ctx context.Context, pair [2]uuid.UUID) (*models.Chat, error) {
	for attempt := 0; attempt < findOrCreateAttempts; attempt++ {
		// ON CONFLICT DO NOTHING waits for a concurrent inserter of the same
		// pair to finish, so the loser never errors; it just gets no row
		// back and falls through to the refetch.
		var id uuid.UUID
		err := s.pool.QueryRow(ctx, `
			INSERT INTO chats (user_low, user_high, last_updated, created_at)
			VALUES ($1, $2, now(), now())
			ON CONFLICT ON CONSTRAINT chats_pair_key DO NOTHING
			RETURNING id`,
			pair[0], pair[1],
		).Scan(&id)
		switch {
		case err == nil:
			return getChat(ctx, s.pool, id)
		case isForeignKeyViolation(err):
			return nil, repository.ErrNotFound
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("insert chat: %w", err)
		}

		row := s.pool.QueryRow(ctx,
			`SELECT id FROM chats WHERE user_low = $1 AND user_high = $2`,
			pair[0], pair[1],
		)
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("refetch chat: %w", err)
		}
		return getChat(ctx, s.pool, id)
	}
	return nil, fmt.Errorf("chat for pair %s/%s not visible after %d attempts", pair[0], pair[1], findOrCreateAttempts)
}

func (s *ChatStore) GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	var chat *models.Chat
	err := db.Retry(ctx, func(ctx context.Context) error {
		var err error
		chat, err = getChat(ctx, s.pool, chatID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, db.Classify(err)
	}
	return chat, nil
}

func (s *ChatStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	var chats []models.Chat
	err := db.Retry(ctx, func(ctx context.Context) error {
		var err error
		chats, err = s.listByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, db.Classify(err)
	}
	return chats, nil
}

func (s *ChatStore) listByUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	// One REPEATABLE READ snapshot for both queries so the message lists
	// match the chat rows they hang off.
	var chats []models.Chat
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+chatColumns+`
			FROM chats
			WHERE user_low = $1 OR user_high = $1
			ORDER BY last_updated DESC, id`,
			userID,
		)
		if err != nil {
			return fmt.Errorf("list chats: %w", err)
		}
		chats, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Chat, error) {
			c, err := scanChat(row)
			if err != nil {
				return models.Chat{}, err
			}
			return *c, nil
		})
		if err != nil {
			return fmt.Errorf("scan chats: %w", err)
		}
		if len(chats) == 0 {
			return nil
		}

		ids := make([]string, len(chats))
		index := make(map[uuid.UUID]int, len(chats))
		for i := range chats {
			ids[i] = chats[i].ID.String()
			index[chats[i].ID] = i
		}

		msgs, err := queryMessages(ctx, tx, `
			SELECT `+messageColumns+`
			FROM chat_messages
			WHERE chat_id = ANY($1::uuid[])
			ORDER BY chat_id, id`,
			ids,
		)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			i := index[m.ChatID]
			chats[i].Messages = append(chats[i].Messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if chats == nil {
		chats = make([]models.Chat, 0)
	}
	return chats, nil
}

func (s *ChatStore) AppendMessage(ctx context.Context, chatID, senderID uuid.UUID, content string) (*models.Message, *models.Chat, error) {
	var (
		msg  *models.Message
		chat *models.Chat
	)
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// Row lock on the chat serializes appends per chat: the message ids,
		// the timestamps and last_updated all advance in lock order.
		var lastUpdated time.Time
		err := tx.QueryRow(ctx,
			`SELECT last_updated FROM chats WHERE id = $1 FOR UPDATE`,
			chatID,
		).Scan(&lastUpdated)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return repository.ErrNotFound
			}
			return fmt.Errorf("lock chat: %w", err)
		}

		msg = &models.Message{}
		err = tx.QueryRow(ctx, `
			INSERT INTO chat_messages (chat_id, sender_id, content, created_at)
			VALUES ($1, $2, $3, GREATEST(clock_timestamp(), $4::timestamptz))
			RETURNING `+messageColumns,
			chatID, senderID, content, lastUpdated,
		).Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.Timestamp)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE chats SET last_updated = $2 WHERE id = $1`,
			chatID, msg.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("touch chat: %w", err)
		}

		chat, err = getChat(ctx, tx, chatID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, db.Classify(err)
	}
	return msg, chat, nil
}

func getChat(ctx context.Context, q querier, chatID uuid.UUID) (*models.Chat, error) {
	chat, err := scanChat(q.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1`, chatID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}

	chat.Messages, err = queryMessages(ctx, q, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE chat_id = $1
		ORDER BY id`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func queryMessages(ctx context.Context, q querier, query string, args ...any) ([]models.Message, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func scanChat(row pgx.Row) (*models.Chat, error) {
	var c models.Chat
	if err := row.Scan(
		&c.ID,
		&c.Participants[0],
		&c.Participants[1],
		&c.LastUpdated,
		&c.CreatedAt,
	); err != nil {
		return nil, err
	}
	c.Messages = make([]models.Message, 0)
	return &c, nil
}
