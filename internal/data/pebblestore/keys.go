package pebblestore

import (
	"fmt"
	"strconv"
)

// Key layout. Every namespace ends in a 0x00 separator so that a prefix
// scan over one namespace never bleeds into another. User ids are checked
// by data.CheckUserID on write and never contain the separator.
//
//	u\0<user_id>                       -> userRecord
//	e\0<email>                         -> user_id
//	k\0<api_key>                       -> credentialRecord
//	t\0<push_token>                    -> pushTokenRecord
//	tu\0<user_id>\0<push_token>        -> ""
//	m\0<seq>                           -> messageRecord
//	i\0<message_id>                    -> seq
//	x\0<user_id>\0<seq>                -> ""   (messages a user took part in)
//	c\0<low_id>\0<high_id>\0<seq>      -> ""   (messages of one conversation)
//	meta\0seq                          -> last assigned seq
const sep = "\x00"

var seqKey = []byte("meta" + sep + "seq")

func userKey(id string) []byte     { return []byte("u" + sep + id) }
func emailKey(email string) []byte { return []byte("e" + sep + email) }
func apiKeyKey(k string) []byte    { return []byte("k" + sep + k) }
func tokenKey(tok string) []byte   { return []byte("t" + sep + tok) }
func msgIDKey(id string) []byte    { return []byte("i" + sep + id) }

func userTokenPrefix(userID string) []byte { return []byte("tu" + sep + userID + sep) }
func userTokenKey(userID, tok string) []byte {
	return append(userTokenPrefix(userID), tok...)
}

func seqString(seq uint64) string { return fmt.Sprintf("%020d", seq) }

func msgKey(seq uint64) []byte { return []byte("m" + sep + seqString(seq)) }

func inboxPrefix(userID string) []byte { return []byte("x" + sep + userID + sep) }
func inboxKey(userID string, seq uint64) []byte {
	return append(inboxPrefix(userID), seqString(seq)...)
}

// pair orders two user ids so both directions share one conversation key.
func pair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

func convPrefix(a, b string) []byte {
	lo, hi := pair(a, b)
	return []byte("c" + sep + lo + sep + hi + sep)
}

func convKey(a, b string, seq uint64) []byte {
	return append(convPrefix(a, b), seqString(seq)...)
}

var (
	apiKeyPrefix = []byte("k" + sep)
	tokenPrefix  = []byte("t" + sep)
)

// upperBound returns the smallest key greater than every key with prefix.
// All prefixes here end in the 0x00 separator, so bumping the last byte is
// enough.
func upperBound(prefix []byte) []byte {
	ub := append([]byte(nil), prefix...)
	ub[len(ub)-1]++
	return ub
}

// seqFromKey parses the trailing seq of an index key.
func seqFromKey(key, prefix []byte) (uint64, error) {
	return strconv.ParseUint(string(key[len(prefix):]), 10, 64)
}
