package minter

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// MetadataLabelNFT is the CIP-25 transaction metadata label.
const MetadataLabelNFT = 721

// Metadata is transaction metadata keyed by label.
type Metadata map[uint64]any

// NewNFTMetadata assembles {721: {policy: {name: {...}}}} for a single asset.
// Text longer than the ledger limit is split into a list of chunks.
func NewNFTMetadata(policy PolicyID, token TokenMetadata) Metadata {
	asset := map[string]any{
		"name": metadataText(token.Name),
	}
	if token.Image != "" {
		asset["image"] = metadataText(token.Image)
	}
	if token.MediaType != "" {
		asset["mediaType"] = metadataText(token.MediaType)
	}
	if token.Description != "" {
		asset["description"] = metadataText(token.Description)
	}

	return Metadata{
		MetadataLabelNFT: map[string]any{
			policy.String(): map[string]any{
				token.Name: asset,
			},
		},
	}
}

func metadataText(s string) any {
	if len(s) <= MaxMetadataStringSize {
		return s
	}
	return ChunkString(s, MaxMetadataStringSize)
}

// AuxiliaryData encodes the metadata in the shelley auxiliary data format
// (a bare label map).
func (m Metadata) AuxiliaryData() (raw cbor.RawMessage, err error) {
	if len(m) == 0 {
		return
	}

	raw, err = cborEncoder.Marshal(map[uint64]any(m))
	if err != nil {
		err = errors.Wrap(err, "unable to encode transaction metadata")
	}

	return
}
