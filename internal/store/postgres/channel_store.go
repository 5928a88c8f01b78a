package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bidstream/bidstream/internal/domain"
)

// ChannelStore implements domain.ChannelDirectory using PostgreSQL.
type ChannelStore struct {
	pool *pgxpool.Pool
}

// NewChannelStore creates a new ChannelStore backed by the given connection
// pool.
func NewChannelStore(pool *pgxpool.Pool) *ChannelStore {
	return &ChannelStore{pool: pool}
}

func scanChannelFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Channel, error) {
	var c domain.Channel
	var highlighted *string

	if err := scanner.Scan(&c.ID, &c.HostID, &c.Live, &highlighted); err != nil {
		return domain.Channel{}, err
	}
	if highlighted != nil {
		c.HighlightedProductID = *highlighted
	}
	return c, nil
}

// Get retrieves a channel by ID.
func (s *ChannelStore) Get(ctx context.Context, channelID string) (domain.Channel, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, host_id, live, highlighted_product_id
		 FROM channels WHERE id = $1`, channelID)

	c, err := scanChannelFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Channel{}, domain.ErrChannelNotFound
		}
		return domain.Channel{}, fmt.Errorf("postgres: get channel %s: %w", channelID, err)
	}
	return c, nil
}

// GetLiveByHost returns the live channel hosted by the user.
func (s *ChannelStore) GetLiveByHost(ctx context.Context, hostID string) (domain.Channel, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, host_id, live, highlighted_product_id
		 FROM channels WHERE host_id = $1 AND live`, hostID)

	c, err := scanChannelFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Channel{}, domain.ErrChannelNotFound
		}
		return domain.Channel{}, fmt.Errorf("postgres: get live channel for host %s: %w", hostID, err)
	}
	return c, nil
}

// ClearHighlighted removes the product from the channel's stage if it is
// still the highlighted one. The WHERE clause makes the call idempotent under
// concurrent settlement attempts.
func (s *ChannelStore) ClearHighlighted(ctx context.Context, channelID, productID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE channels SET highlighted_product_id = NULL
		 WHERE id = $1 AND highlighted_product_id = $2`,
		channelID, productID)
	if err != nil {
		return false, fmt.Errorf("postgres: clear highlight on channel %s: %w", channelID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Compile-time interface check.
var _ domain.ChannelDirectory = (*ChannelStore)(nil)
