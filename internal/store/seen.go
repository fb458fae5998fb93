package store

import (
	"context"
	"fmt"

	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/pkg/user"
)

const notSeenClause = `not exists (select 1 from json_each(coalesce(m.SeenBy, '[]')) where json_each.value in (?))`

// MarkSeen adds reader to the seen set of every message selected by query
// that reader received from someone else. Readers already present under any
// identifier variant are skipped, so repeating the call changes nothing.
// It returns the number of messages touched.
func (s *Store) MarkSeen(ctx context.Context, query model.SeenQuery, reader user.ID) (int64, error) {
	if reader == "" {
		return 0, fmt.Errorf("%w: reader is required", model.ErrorValidation)
	}
	self := reader.Variants()

	selector, arg := "", interface{}(nil)
	switch {
	case query.MessageID != "":
		selector, arg = `m.ID = ?`, query.MessageID
	case query.ConversationWith != "":
		selector, arg = `m.CreatorID in (?)`, query.ConversationWith.Variants()
	default:
		return 0, fmt.Errorf("%w: a message or conversation is required", model.ErrorValidation)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, storeError("beginning transaction", err)
	}
	defer tx.Rollback()

	q, args, err := s.in(`update messages as m
		set SeenBy = json_insert(coalesce(m.SeenBy, '[]'), '$[#]', ?), UpdatedAt = ?
		where `+selector+` and `+recipientClause+` and m.CreatorID not in (?) and `+notSeenClause,
		reader, s.clock.next(), arg, self, self, self)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, storeError("marking seen", err)
	}
	touched, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("getting rows affected", err)
	}

	if touched == 0 && query.MessageID != "" {
		if _, err := getMessage(ctx, tx, query.MessageID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storeError("committing seen", err)
	}
	return touched, nil
}

// BackfillSeen repairs seen state on legacy rows. Step A gives every message
// without a seen set an empty one; step B marks as seen, for u, every message
// u received from someone else. Both steps are safe to re-run.
func (s *Store) BackfillSeen(ctx context.Context, u user.ID) (model.BackfillResult, error) {
	result := model.BackfillResult{}
	if u == "" {
		return result, fmt.Errorf("%w: user is required", model.ErrorValidation)
	}
	self := u.Variants()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, storeError("beginning transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `update messages set SeenBy = '[]' where SeenBy is null`)
	if err != nil {
		return result, storeError("adding seen sets", err)
	}
	if result.TouchedA, err = res.RowsAffected(); err != nil {
		return result, storeError("getting rows affected", err)
	}

	q, args, err := s.in(`update messages as m
		set SeenBy = json_insert(m.SeenBy, '$[#]', ?)
		where `+recipientClause+` and m.CreatorID not in (?) and `+notSeenClause,
		u, self, self, self)
	if err != nil {
		return result, err
	}
	res, err = tx.ExecContext(ctx, q, args...)
	if err != nil {
		return result, storeError("marking seen", err)
	}
	if result.TouchedB, err = res.RowsAffected(); err != nil {
		return result, storeError("getting rows affected", err)
	}

	if err := tx.Commit(); err != nil {
		return result, storeError("committing backfill", err)
	}
	return result, nil
}
