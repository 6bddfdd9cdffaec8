package storage

import (
	"context"
	"cueword/domain"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidTextRepr     = "22P02"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresRepo{pool: pool}, nil
}

func (pgr *PostgresRepo) Close() {
	pgr.pool.Close()
}

// classify maps driver errors onto domain errors. notFound is returned for
// missing rows, malformed ids and dangling references.
func classify(err error, notFound error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return notFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgInvalidTextRepr, pgForeignKeyViolation:
			return notFound
		}
	}

	return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
}

func (pgr *PostgresRepo) GetUserById(ctx context.Context, id string) (domain.User, error) {
	user := domain.User{Id: id}

	row := pgr.pool.QueryRow(ctx, "SELECT username FROM users WHERE id = $1", id)
	if err := row.Scan(&user.Username); err != nil {
		return domain.User{}, classify(err, domain.ErrUserNotFound)
	}

	return user, nil
}

func (pgr *PostgresRepo) CreateUser(ctx context.Context, username string) (string, error) {
	row := pgr.pool.QueryRow(ctx, "INSERT INTO users(username) VALUES($1) RETURNING id", username)

	var id string
	if err := row.Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return "", fmt.Errorf("%w: duplicate username %q", domain.UnexpectedDatabaseError, username)
		}
		return "", classify(err, domain.ErrUserNotFound)
	}

	return id, nil
}

// CreateCatalog registers a new word catalog. Games created from it play
// roundsPerGame words.
func (pgr *PostgresRepo) CreateCatalog(ctx context.Context, name string, roundsPerGame int) (string, error) {
	row := pgr.pool.QueryRow(ctx, "INSERT INTO catalogs(name, rounds_per_game) VALUES($1, $2) RETURNING id", name, roundsPerGame)

	var id string
	if err := row.Scan(&id); err != nil {
		return "", classify(err, domain.ErrCatalogNotFound)
	}
	return id, nil
}

func (pgr *PostgresRepo) AddWord(ctx context.Context, catalogId string, word domain.CatalogRound) (string, error) {
	row := pgr.pool.QueryRow(ctx,
		`INSERT INTO words(catalog_id, key, cue_word_1, cue_word_2, cue_word_3, cue_word_4, cue_word_5)
		 VALUES($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		catalogId, word.Key, word.Cues[0], word.Cues[1], word.Cues[2], word.Cues[3], word.Cues[4],
	)

	var id string
	if err := row.Scan(&id); err != nil {
		return "", classify(err, domain.ErrCatalogNotFound)
	}
	return id, nil
}

// CreatePlayedGame records a new game of the catalog owned by ownerId and
// picks, at random, the words it will play. It returns the new game id.
func (pgr *PostgresRepo) CreatePlayedGame(ctx context.Context, catalogId string, ownerId string) (string, error) {
	var gameId string

	err := pgx.BeginFunc(ctx, pgr.pool, func(tx pgx.Tx) error {
		var roundsPerGame int
		row := tx.QueryRow(ctx, "SELECT rounds_per_game FROM catalogs WHERE id = $1", catalogId)
		if err := row.Scan(&roundsPerGame); err != nil {
			return classify(err, domain.ErrCatalogNotFound)
		}

		row = tx.QueryRow(ctx, "INSERT INTO played_games(catalog_id, owner_id) VALUES($1, $2) RETURNING id", catalogId, ownerId)
		if err := row.Scan(&gameId); err != nil {
			return classify(err, domain.ErrUserNotFound)
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO played_game_words(played_game_id, word_id, position)
			 SELECT $1, picked.id, row_number() OVER ()
			 FROM (SELECT id FROM words WHERE catalog_id = $2 ORDER BY random() LIMIT $3) AS picked`,
			gameId, catalogId, roundsPerGame,
		)
		if err != nil {
			return classify(err, domain.ErrCatalogNotFound)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrEmptyCatalog
		}
		return nil
	})

	if err != nil {
		return "", err
	}
	return gameId, nil
}

// GetRoundsForGame returns the words of a played game in play order.
func (pgr *PostgresRepo) GetRoundsForGame(ctx context.Context, gameId string) ([]domain.CatalogRound, error) {
	rows, err := pgr.pool.Query(ctx,
		`SELECT w.id, w.key, w.cue_word_1, w.cue_word_2, w.cue_word_3, w.cue_word_4, w.cue_word_5
		 FROM played_game_words pgw
		 JOIN words w ON w.id = pgw.word_id
		 WHERE pgw.played_game_id = $1
		 ORDER BY pgw.position`,
		gameId,
	)
	if err != nil {
		return nil, classify(err, domain.ErrGameNotFound)
	}
	defer rows.Close()

	rounds := []domain.CatalogRound{}
	for rows.Next() {
		var r domain.CatalogRound
		if err := rows.Scan(&r.WordId, &r.Key, &r.Cues[0], &r.Cues[1], &r.Cues[2], &r.Cues[3], &r.Cues[4]); err != nil {
			return nil, classify(err, domain.ErrGameNotFound)
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, domain.ErrGameNotFound)
	}

	if len(rounds) == 0 {
		return nil, domain.ErrGameNotFound
	}
	return rounds, nil
}
