// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package event

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	base62Len      = 22
	uriScheme      = "spotify"
)

var (
	// ErrUnknownItemType is returned when an ID without a renderable item type is turned into a URI.
	ErrUnknownItemType = errors.New("track id: unknown item type")

	// ErrInvalidBase62 is returned for malformed base62 identifiers.
	ErrInvalidBase62 = errors.New("track id: invalid base62 id")

	// ErrInvalidURI is returned for malformed spotify URIs.
	ErrInvalidURI = errors.New("track id: invalid uri")

	big62 = big.NewInt(62)
)

// ItemType is the kind of catalogue item an ID refers to.
type ItemType string

const (
	ItemTypeTrack    ItemType = "track"
	ItemTypeEpisode  ItemType = "episode"
	ItemTypeAlbum    ItemType = "album"
	ItemTypeArtist   ItemType = "artist"
	ItemTypePlaylist ItemType = "playlist"
	ItemTypeShow     ItemType = "show"
	ItemTypeUnknown  ItemType = ""
)

func (t ItemType) valid() bool {
	switch t {
	case ItemTypeTrack, ItemTypeEpisode, ItemTypeAlbum, ItemTypeArtist, ItemTypePlaylist, ItemTypeShow:
		return true
	}
	return false
}

// TrackID is an opaque 128-bit catalogue identifier with its item type.
type TrackID struct {
	Type ItemType
	ID   [16]byte
}

// Base62 renders the 128-bit id as the canonical 22-character base62 string.
func (t TrackID) Base62() string {
	n := new(big.Int).SetBytes(t.ID[:])
	out := make([]byte, base62Len)
	mod := new(big.Int)
	for i := base62Len - 1; i >= 0; i-- {
		n.DivMod(n, big62, mod)
		out[i] = base62Alphabet[mod.Int64()]
	}
	return string(out)
}

// URI renders the canonical "spotify:<type>:<base62>" form.
func (t TrackID) URI() (string, error) {
	if !t.Type.valid() {
		return "", ErrUnknownItemType
	}
	return uriScheme + ":" + string(t.Type) + ":" + t.Base62(), nil
}

// String implements fmt.Stringer; it never fails.
func (t TrackID) String() string {
	uri, err := t.URI()
	if err != nil {
		return "spotify:unknown:" + t.Base62()
	}
	return uri
}

// ParseBase62 builds a TrackID of the given type from a 22-character base62 id.
func ParseBase62(typ ItemType, s string) (TrackID, error) {
	if len(s) != base62Len {
		return TrackID{}, fmt.Errorf("%w: length %d", ErrInvalidBase62, len(s))
	}
	n := new(big.Int)
	for i := 0; i < len(s); i++ {
		d := strings.IndexByte(base62Alphabet, s[i])
		if d < 0 {
			return TrackID{}, fmt.Errorf("%w: character %q", ErrInvalidBase62, s[i])
		}
		n.Mul(n, big62)
		n.Add(n, big.NewInt(int64(d)))
	}
	if n.BitLen() > 128 {
		return TrackID{}, fmt.Errorf("%w: overflow", ErrInvalidBase62)
	}
	var id TrackID
	id.Type = typ
	n.FillBytes(id.ID[:])
	return id, nil
}

// ParseURI parses "spotify:<type>:<base62>".
func ParseURI(uri string) (TrackID, error) {
	parts := strings.Split(uri, ":")
	if len(parts) != 3 || parts[0] != uriScheme {
		return TrackID{}, fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	typ := ItemType(parts[1])
	if !typ.valid() {
		return TrackID{}, fmt.Errorf("%w: item type %q", ErrInvalidURI, parts[1])
	}
	return ParseBase62(typ, parts[2])
}
