package journal

import (
	"context"
	"fmt"

	"github.com/mymindmirror/mindmirror/internal/types"
)

// SearchKeyword finds the owner's entries whose plaintext contains the
// keyword, case-insensitively. Ciphertext cannot be indexed for substring
// queries, so this fetches the full corpus and decrypts every entry before
// filtering in memory. The O(n)-decrypts-per-search cost is inherent to
// encrypting at rest and grows linearly with corpus size.
func (s *Service) SearchKeyword(ctx context.Context, sess Session, keyword string) ([]types.Entry, error) {
	if err := requireSecret(sess); err != nil {
		return nil, err
	}
	recs, err := s.store.ListByOwner(ctx, sess.OwnerID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch corpus: %w", err)
	}

	matches := make([]types.Entry, 0)
	for i := range recs {
		entry := s.decryptRecord(&recs[i], sess.Secret)
		if containsFold(entry.Text, keyword) {
			matches = append(matches, *entry)
		}
	}
	return matches, nil
}

// SearchMoodRange finds entries whose stored mood score lies in [min, max].
// The mood filter runs on the plain numeric column; only matching entries
// pay the decrypt cost, for display.
func (s *Service) SearchMoodRange(ctx context.Context, sess Session, min, max float64) ([]types.Entry, error) {
	if err := requireSecret(sess); err != nil {
		return nil, err
	}
	recs, err := s.store.ListByMoodRange(ctx, sess.OwnerID, min, max)
	if err != nil {
		return nil, fmt.Errorf("mood range query: %w", err)
	}
	return s.decryptRecords(recs, sess.Secret), nil
}
