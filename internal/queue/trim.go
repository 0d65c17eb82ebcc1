package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// TrimAcked caps stream at roughly maxLen entries. It never removes an entry
// that any consumer group has yet to read or acknowledge, so a backlog can
// grow past maxLen until the workers catch up. Without a group nothing is
// trimmed.
func TrimAcked(ctx context.Context, client redis.Cmdable, stream string, maxLen int64) (int64, error) {
	if maxLen <= 0 {
		return 0, nil
	}

	newest, err := client.XRevRangeN(ctx, stream, "+", "-", maxLen).Result()
	if err != nil {
		return 0, fmt.Errorf("read stream tail: %w", err)
	}
	if int64(len(newest)) < maxLen {
		return 0, nil
	}
	cutoff := newest[len(newest)-1].ID

	groups, err := client.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return 0, fmt.Errorf("read stream groups: %w", err)
	}
	if len(groups) == 0 {
		return 0, nil
	}

	for _, g := range groups {
		floor, err := groupFloor(ctx, client, stream, g)
		if err != nil {
			return 0, err
		}
		if less, err := idLess(floor, cutoff); err != nil {
			return 0, err
		} else if less {
			cutoff = floor
		}
	}

	removed, err := client.XTrimMinID(ctx, stream, cutoff).Result()
	if err != nil {
		return 0, fmt.Errorf("trim stream: %w", err)
	}
	return removed, nil
}

// groupFloor is the oldest id the group still needs: its oldest pending
// entry, or the first entry after the last one delivered.
func groupFloor(ctx context.Context, client redis.Cmdable, stream string, g redis.XInfoGroup) (string, error) {
	if g.Pending > 0 {
		summary, err := client.XPending(ctx, stream, g.Name).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("read pending for %s: %w", g.Name, err)
		}
		if summary != nil && summary.Lower != "" {
			return summary.Lower, nil
		}
	}
	return nextID(normalizeID(g.LastDeliveredID))
}

func normalizeID(id string) string {
	if id == "" || id == "0" {
		return "0-0"
	}
	if !strings.Contains(id, "-") {
		return id + "-0"
	}
	return id
}

func parseID(id string) (uint64, uint64, error) {
	ms, seq, ok := strings.Cut(id, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed stream id %q", id)
	}
	t, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed stream id %q: %w", id, err)
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed stream id %q: %w", id, err)
	}
	return t, n, nil
}

func idLess(a, b string) (bool, error) {
	at, an, err := parseID(a)
	if err != nil {
		return false, err
	}
	bt, bn, err := parseID(b)
	if err != nil {
		return false, err
	}
	return at < bt || (at == bt && an < bn), nil
}
