package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cueword/config"
	"cueword/crypto"
	"cueword/domain"
	"cueword/game"
	"cueword/logger"
	"cueword/migrations"
	"cueword/storage"
	"cueword/wire"

	"github.com/spf13/cobra"
)

type catalogWriter interface {
	CreateCatalog(ctx context.Context, name string, roundsPerGame int) (string, error)
	AddWord(ctx context.Context, catalogId string, word domain.CatalogRound) (string, error)
}

type userCreator interface {
	CreateUser(ctx context.Context, username string) (string, error)
}

type tokenGenerator interface {
	Generate(id string, now time.Time) (string, error)
}

// parseCatalog reads one word per line: the key followed by its cues, tab
// separated. Blank lines and lines starting with # are skipped.
func parseCatalog(r io.Reader) ([]domain.CatalogRound, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = 1 + domain.CueCount
	cr.LazyQuotes = true

	var words []domain.CatalogRound
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		line, _ := cr.FieldPos(0)
		word := domain.CatalogRound{Key: strings.TrimSpace(record[0])}
		for i := range domain.CueCount {
			word.Cues[i] = strings.TrimSpace(record[i+1])
		}
		if _, err := game.NewRound(word); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		words = append(words, word)
	}

	if len(words) == 0 {
		return nil, domain.ErrEmptyCatalog
	}
	return words, nil
}

func importCatalog(ctx context.Context, w catalogWriter, name string, roundsPerGame int, words []domain.CatalogRound) (string, error) {
	if roundsPerGame < 1 || roundsPerGame > len(words) {
		return "", fmt.Errorf("rounds per game must be between 1 and %d, got %d", len(words), roundsPerGame)
	}

	catalogId, err := w.CreateCatalog(ctx, name, roundsPerGame)
	if err != nil {
		return "", fmt.Errorf("creating catalog %q: %w", name, err)
	}
	for _, word := range words {
		if _, err := w.AddWord(ctx, catalogId, word); err != nil {
			return "", fmt.Errorf("adding %q: %w", word.Key, err)
		}
		logger.Debugf("added %s to %s", word.Key, catalogId)
	}
	return catalogId, nil
}

func issueIdentity(ctx context.Context, users userCreator, tokens tokenGenerator, username string, now time.Time) (string, string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", "", errors.New("username cannot be blank")
	}
	id, err := users.CreateUser(ctx, username)
	if err != nil {
		return "", "", err
	}
	token, err := tokens.Generate(id, now)
	if err != nil {
		return "", "", err
	}
	return id, token, nil
}

func openRepo(ctx context.Context, cfg *config.Config) (*storage.PostgresRepo, error) {
	logger.Setup(cfg.Debug, os.Stderr)
	if cfg.PostgresURL == "" {
		return nil, errors.New("missing postgres url (--postgres-url or CUEWORD_POSTGRES_URL)")
	}
	if err := migrations.Migrate(cfg.PostgresURL); err != nil {
		return nil, err
	}
	return storage.NewPostgresRepo(ctx, cfg.PostgresURL)
}

func newSeedCmd(cfg *config.Config) *cobra.Command {
	var name string
	var roundsPerGame int

	cmd := &cobra.Command{
		Use:   "seed <catalog.tsv>",
		Short: "Import a word catalog and print its id.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			words, err := parseCatalog(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			repo, err := openRepo(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			catalogId, err := importCatalog(cmd.Context(), repo, name, roundsPerGame, words)
			if err != nil {
				return err
			}
			logger.Infof("imported %d words into %s", len(words), catalogId)
			fmt.Fprintln(cmd.OutOrStdout(), catalogId)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "catalog name")
	cmd.Flags().IntVar(&roundsPerGame, "rounds", 5, "words played per game")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newUserCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "user <username>",
		Short: "Create a player identity and print its token.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.JWTKey == "" {
				return errors.New("missing jwt signing key (--jwt-key or CUEWORD_JWT_KEY)")
			}
			repo, err := openRepo(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			id, token, err := issueIdentity(cmd.Context(), repo, crypto.NewJWTManager(cfg.JWTKey, tokenAge), args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id=%s\ntoken=%s\n", id, token)
			return nil
		},
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the protobuf schema of the websocket packets.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), wire.Schema())
			return err
		},
	}
}
