package message

// Options controls encoding variants threaded through every meta frame
// encode and decode.
type Options struct {
	// LegacyFieldFlagEncoding writes FieldMetaData flags as a single byte
	// instead of a UInt16.
	LegacyFieldFlagEncoding bool
}
