package codec

import "errors"

// Sentinel errors for codec operations.
var (
	ErrSerialize     = errors.New("serialize failed")
	ErrDeserialize   = errors.New("deserialize failed")
	ErrUnknownCodec  = errors.New("unknown codec")
	ErrAlreadyExists = errors.New("codec already registered")
)
