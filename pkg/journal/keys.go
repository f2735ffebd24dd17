package journal

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Key Layout
// ==========
//
// Records live under one prefix, ordered by time:
//
//	"r:" <unix nanos, 8 bytes big-endian> <record uuid, 16 bytes>  ->  Record (JSON)
//
// Big-endian timestamps make byte order equal time order, so a forward scan
// yields oldest first and a reverse scan newest first. The UUID suffix keeps
// keys unique when two records share a nanosecond.

// recordPrefix namespaces record keys inside the database.
const recordPrefix = "r:"

// keyLen is the fixed length of every record key.
const keyLen = len(recordPrefix) + 8 + 16

// recordKey builds the key for a record written at t. Times before the Unix
// epoch are not expected and would sort after every later record.
func recordKey(t time.Time, id uuid.UUID) []byte {
	key := make([]byte, 0, keyLen)
	key = append(key, recordPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(t.UnixNano()))
	key = append(key, id[:]...)
	return key
}

// prefixEnd is the smallest key greater than every record key, used to seek
// a reverse iterator.
func prefixEnd() []byte {
	end := []byte(recordPrefix)
	return append(end, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
}

// parseRecordKey splits a record key back into its timestamp and ID. Keys
// of the wrong length or prefix are rejected.
func parseRecordKey(key []byte) (time.Time, uuid.UUID, error) {
	if len(key) != keyLen || string(key[:len(recordPrefix)]) != recordPrefix {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed journal key %x", key)
	}
	nanos := binary.BigEndian.Uint64(key[len(recordPrefix):])
	id, err := uuid.FromBytes(key[len(recordPrefix)+8:])
	if err != nil {
		return time.Time{}, uuid.Nil, err
	}
	return time.Unix(0, int64(nanos)), id, nil
}
