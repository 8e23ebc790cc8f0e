package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"net/netip"

	"gorm.io/gorm"
)

// ErrNoSegment is returned when no configured IP range contains an address.
var ErrNoSegment = errors.New("no ip range contains address")

// ipKey renders an address as a fixed-width hex key over its 16-byte form,
// so lexicographic comparison matches numeric address order for both
// families.
func ipKey(addr netip.Addr) string {
	b := addr.As16()
	return hex.EncodeToString(b[:])
}

// normalizedPrefixLen maps a prefix length onto a /128 scale; an IPv4 /24
// becomes 120. Narrower prefixes always have the larger number.
func normalizedPrefixLen(p netip.Prefix) int {
	if p.Addr().Is4() {
		return p.Bits() + 96
	}
	return p.Bits()
}

// rangeBounds computes the hex keys of the first and last address covered by
// a prefix.
func rangeBounds(p netip.Prefix) (minKey, maxKey string) {
	first := p.Masked().Addr().As16()
	last := first
	bits := normalizedPrefixLen(p)
	for i := bits; i < 128; i++ {
		last[i/8] |= 1 << (7 - i%8)
	}
	return hex.EncodeToString(first[:]), hex.EncodeToString(last[:])
}

// SegmentForIP finds the segment whose range contains addr. Overlapping
// ranges resolve deterministically: narrowest prefix first, then lowest id.
func (s *Store) SegmentForIP(ctx context.Context, addr netip.Addr) (string, error) {
	key := ipKey(addr)
	var row IPRangeModel
	err := s.db.WithContext(ctx).
		Where("min_ip <= ? AND max_ip >= ?", key, key).
		Order("prefix_len DESC, id ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNoSegment
	}
	if err != nil {
		return "", err
	}
	s.debugLog("segment lookup %s -> %s (%s)", addr, row.Segment, row.CIDR)
	return row.Segment, nil
}
