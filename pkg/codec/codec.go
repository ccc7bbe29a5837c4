package codec

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/luxfi/ruth/pkg/errs"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = m

	dopts := cbor.DecOptions{}
	dm, err := dopts.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// EncodeUpdate serializes a ClientUpdate to its opaque store representation.
func EncodeUpdate(u *ClientUpdate) ([]byte, error) {
	b, err := encMode.Marshal(u)
	if err != nil {
		return nil, errs.New(errs.CodecError, "codec.EncodeUpdate", err)
	}
	return b, nil
}

// DecodeUpdate deserializes a ClientUpdate from its opaque store
// representation.
func DecodeUpdate(b []byte) (*ClientUpdate, error) {
	var u ClientUpdate
	if err := decMode.Unmarshal(b, &u); err != nil {
		return nil, errs.New(errs.CodecError, "codec.DecodeUpdate", err)
	}
	return &u, nil
}

// EncodeSeedSet serializes a SeedSet for transport to clients.
func EncodeSeedSet(s *SeedSet) ([]byte, error) {
	b, err := encMode.Marshal(s)
	if err != nil {
		return nil, errs.New(errs.CodecError, "codec.EncodeSeedSet", err)
	}
	return b, nil
}

// DecodeSeedSet deserializes a SeedSet.
func DecodeSeedSet(b []byte) (*SeedSet, error) {
	var s SeedSet
	if err := decMode.Unmarshal(b, &s); err != nil {
		return nil, errs.New(errs.CodecError, "codec.DecodeSeedSet", err)
	}
	return &s, nil
}

// EncodeAggResponse serializes an AggResponse for transport back to clients
// once a round has aggregated.
func EncodeAggResponse(r *AggResponse) ([]byte, error) {
	b, err := encMode.Marshal(r)
	if err != nil {
		return nil, errs.New(errs.CodecError, "codec.EncodeAggResponse", err)
	}
	return b, nil
}

// DecodeAggResponse deserializes an AggResponse.
func DecodeAggResponse(b []byte) (*AggResponse, error) {
	var r AggResponse
	if err := decMode.Unmarshal(b, &r); err != nil {
		return nil, errs.New(errs.CodecError, "codec.DecodeAggResponse", err)
	}
	return &r, nil
}
