// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package pebblestore

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/klaxon-im/klaxon/backend"
)

// Key prefixes. Message keys embed the thread tag and a zero-padded
// timestamp so a prefix scan yields one thread's log in timestamp order.
const (
	contactPrefix = "contact/"
	groupPrefix   = "group/"
	profilePrefix = "profile/"
	messagePrefix = "msg/"
	blobPrefix    = "blob/"

	metaVersionKey      = "meta/version"
	metaSaltKey         = "meta/salt"
	metaCheckKey        = "meta/check"
	metaRegistrationKey = "meta/registration"
)

func contactRecordKey(id uuid.UUID) []byte {
	return []byte(contactPrefix + id.String())
}

func groupRecordKey(key backend.GroupKey) []byte {
	return []byte(groupPrefix + key.String())
}

func profileRecordKey(id uuid.UUID) []byte {
	return []byte(profilePrefix + id.String())
}

func messageRecordKey(thread backend.Thread, ts backend.Timestamp) []byte {
	return fmt.Appendf(nil, "%s%s/%020d", messagePrefix, thread, int64(ts))
}

// threadMessagePrefix is the key prefix covering one thread's log.
func threadMessagePrefix(thread backend.Thread) []byte {
	return []byte(messagePrefix + thread.String() + "/")
}

func blobRecordKey(addr BlobAddress) []byte {
	return []byte(blobPrefix + addr.String())
}

// threadOfMessageKey recovers the thread tag from a message key.
func threadOfMessageKey(key []byte) (backend.Thread, bool) {
	k := string(key)
	if !strings.HasPrefix(k, messagePrefix) {
		return backend.Thread{}, false
	}
	tag := k[len(messagePrefix):]
	slash := strings.LastIndexByte(tag, '/')
	if slash < 0 {
		return backend.Thread{}, false
	}
	thread, err := backend.ParseThread(tag[:slash])
	if err != nil {
		return backend.Thread{}, false
	}
	return thread, true
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, for use as an exclusive iterator upper bound. Nil
// means unbounded (the prefix was all 0xff).
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
