package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type EdxAuthor struct {
	EdxUID string `db:"edx_uid"`
}

// UpsertAuthors makes sure an author row exists for every uid.
func (d *DB) UpsertAuthors(ctx context.Context, uids []string) error {
	return upsertAuthors(ctx, d, uids)
}

func upsertAuthors(ctx context.Context, e sqlx.ExecerContext, uids []string) error {
	for _, uid := range uniqueStrings(uids) {
		if _, err := e.ExecContext(ctx, "INSERT INTO edx_authors (edx_uid) VALUES ($1) ON CONFLICT (edx_uid) DO NOTHING", uid); err != nil {
			return fmt.Errorf("failed to upsert author %q: %w", uid, err)
		}
	}
	return nil
}

func (d *DB) AuthorExists(ctx context.Context, uid string) (bool, error) {
	var count int
	if err := d.GetContext(ctx, &count, "SELECT COUNT(*) FROM edx_authors WHERE edx_uid = $1", uid); err != nil {
		return false, fmt.Errorf("failed to check author: %w", err)
	}
	return count > 0, nil
}

func (d *DB) FindAuthors(ctx context.Context, field string, value string) ([]EdxAuthor, error) {
	if field != "edx_uid" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	var authors []EdxAuthor
	if err := d.SelectContext(ctx, &authors, "SELECT edx_uid FROM edx_authors WHERE edx_uid = $1", value); err != nil {
		return nil, fmt.Errorf("failed to find authors: %w", err)
	}
	return authors, nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}
	return unique
}
