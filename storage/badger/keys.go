package badger

import (
	"encoding/binary"
)

const (
	indexVectorsKey  = "index:vectors"
	indexManifestKey = "index:manifest"
	messagePrefix    = "msg"
	messageIDSeq     = "msgseq"
)

// makeMessagePrefix returns the key prefix shared by every message of a session.
func makeMessagePrefix(sessionID string) []byte {
	prefix := messagePrefix + ":" + sessionID + ":"
	return []byte(prefix)
}

// makeMessageKey appends the sequence number in BigEndian order so
// lexicographic key order is insertion order within a session.
func makeMessageKey(sessionID string, seq uint64) []byte {
	prefix := makeMessagePrefix(sessionID)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}
