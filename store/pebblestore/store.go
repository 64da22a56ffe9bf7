// Copyright 2026 The Klaxon Authors
// SPDX-License-Identifier: Apache-2.0

package pebblestore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/klaxon-im/klaxon/backend"
	"github.com/klaxon-im/klaxon/lib/codec"
	"github.com/klaxon-im/klaxon/lib/secret"
)

// storeFormatVersion is the on-disk format, checked on every open.
const storeFormatVersion byte = 1

// checkPlaintext is the known plaintext sealed into meta/check when an
// encrypted store is created, so a wrong passphrase fails at open
// rather than on the first record read.
const checkPlaintext = "klaxon store check v1"

// ErrPassphraseRequired is returned by Open when the store at the given
// location is encrypted and no passphrase was supplied. Callers branch
// on it to prompt and retry.
var ErrPassphraseRequired = errors.New("pebblestore: store is encrypted: passphrase required")

// Options configures opening a store.
type Options struct {
	// Passphrase encrypts the store at rest. Nil opens or creates an
	// unencrypted store. The buffer is borrowed for the open and not
	// closed; the caller may close it once Open returns.
	Passphrase *secret.Buffer

	// Logger receives store logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store is a Pebble-backed backend.Store. All methods are safe for
// concurrent use; writes land with pebble.Sync before returning.
type Store struct {
	db     *pebble.DB
	seal   *sealer
	log    *slog.Logger
	closed atomic.Bool
}

var _ backend.Store = (*Store)(nil)

// Open opens or creates the store at location. Whether a store
// encrypts is fixed at creation: opening an encrypted store without
// its passphrase fails, as does opening a plain store with one.
func Open(location string, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	db, err := pebble.Open(location, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebblestore: open %s: %w", location, err)
	}
	s := &Store{db: db, log: log}
	if err := s.initialize(opts.Passphrase); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Info("store opened", "location", location, "sealed", s.seal.sealed())
	return s, nil
}

// initialize reads or writes the bootstrap metadata and builds the
// sealer matching the store's creation-time encryption choice.
func (s *Store) initialize(passphrase *secret.Buffer) error {
	version, err := s.rawGet(metaVersionKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		return s.create(passphrase)
	case err != nil:
		return err
	}

	if len(version) != 1 || version[0] != storeFormatVersion {
		return fmt.Errorf("pebblestore: unsupported store format %v (this build reads %d)", version, storeFormatVersion)
	}
	return s.attach(passphrase)
}

// create writes the metadata for a brand-new store. The version record
// lands last: a store without one is partial and gets rebuilt, so a
// crash mid-create can never leave metadata that misreads as a complete
// store of the other mode.
func (s *Store) create(passphrase *secret.Buffer) error {
	for _, key := range []string{metaSaltKey, metaCheckKey} {
		if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
			return fmt.Errorf("pebblestore: clearing partial %s: %w", key, err)
		}
	}

	if passphrase == nil {
		s.seal = newPlainSealer()
		return s.rawSet(metaVersionKey, []byte{storeFormatVersion})
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("pebblestore: generating store salt: %w", err)
	}
	if err := s.rawSet(metaSaltKey, salt); err != nil {
		return err
	}

	sealer, err := newSealer(passphrase, salt)
	if err != nil {
		return err
	}
	s.seal = sealer

	check, err := s.seal.seal([]byte(metaCheckKey), []byte(checkPlaintext))
	if err != nil {
		return err
	}
	if err := s.rawSet(metaCheckKey, check); err != nil {
		return err
	}
	return s.rawSet(metaVersionKey, []byte{storeFormatVersion})
}

// attach builds the sealer for an existing store and verifies the
// passphrase against the check record.
func (s *Store) attach(passphrase *secret.Buffer) error {
	check, err := s.rawGet(metaCheckKey)
	if errors.Is(err, pebble.ErrNotFound) {
		if passphrase != nil {
			return errors.New("pebblestore: store is not encrypted but a passphrase was given")
		}
		s.seal = newPlainSealer()
		return nil
	}
	if err != nil {
		return err
	}

	if passphrase == nil {
		return ErrPassphraseRequired
	}
	salt, err := s.rawGet(metaSaltKey)
	if err != nil {
		return fmt.Errorf("pebblestore: encrypted store has no salt record: %w", err)
	}
	sealer, err := newSealer(passphrase, salt)
	if err != nil {
		return err
	}
	if _, err := sealer.open([]byte(metaCheckKey), check); err != nil {
		sealer.close()
		return err
	}
	s.seal = sealer
	return nil
}

// Close releases the sealer keys and the database. Idempotent.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.seal.close(); err != nil {
		s.log.Warn("releasing store keys failed", "error", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("pebblestore: close: %w", err)
	}
	return nil
}

// Sealed reports whether this store encrypts at rest.
func (s *Store) Sealed() bool {
	return s.seal.sealed()
}

// Contacts lists all stored contact records in ID order.
func (s *Store) Contacts(ctx context.Context) ([]backend.ContactRecord, error) {
	var out []backend.ContactRecord
	err := s.scanRecords(contactPrefix, func(key, plain []byte) error {
		var rec backend.ContactRecord
		if err := codec.Unmarshal(plain, &rec); err != nil {
			return fmt.Errorf("pebblestore: decoding %s: %w", key, err)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Contact reads one contact record.
func (s *Store) Contact(ctx context.Context, id uuid.UUID) (backend.ContactRecord, error) {
	var rec backend.ContactRecord
	if err := s.getRecord(contactRecordKey(id), &rec); err != nil {
		return backend.ContactRecord{}, err
	}
	return rec, nil
}

// SaveContact writes a contact record, replacing any existing one.
func (s *Store) SaveContact(ctx context.Context, rec backend.ContactRecord) error {
	return s.putRecord(contactRecordKey(rec.ID), rec)
}

// Groups lists all stored group records in master key order.
func (s *Store) Groups(ctx context.Context) ([]backend.GroupRecord, error) {
	var out []backend.GroupRecord
	err := s.scanRecords(groupPrefix, func(key, plain []byte) error {
		var rec backend.GroupRecord
		if err := codec.Unmarshal(plain, &rec); err != nil {
			return fmt.Errorf("pebblestore: decoding %s: %w", key, err)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Group reads one group record.
func (s *Store) Group(ctx context.Context, key backend.GroupKey) (backend.GroupRecord, error) {
	var rec backend.GroupRecord
	if err := s.getRecord(groupRecordKey(key), &rec); err != nil {
		return backend.GroupRecord{}, err
	}
	return rec, nil
}

// SaveGroup writes a group record, replacing any existing one.
func (s *Store) SaveGroup(ctx context.Context, rec backend.GroupRecord) error {
	return s.putRecord(groupRecordKey(rec.Key), rec)
}

// Profile reads the cached profile for a contact.
func (s *Store) Profile(ctx context.Context, id uuid.UUID) (backend.Profile, error) {
	var profile backend.Profile
	if err := s.getRecord(profileRecordKey(id), &profile); err != nil {
		return backend.Profile{}, err
	}
	return profile, nil
}

// SaveProfile caches a contact's profile.
func (s *Store) SaveProfile(ctx context.Context, id uuid.UUID, profile backend.Profile) error {
	return s.putRecord(profileRecordKey(id), profile)
}

// Messages returns the thread's persisted envelopes in ascending
// timestamp order. The zero-padded timestamp suffix makes key order
// timestamp order.
func (s *Store) Messages(ctx context.Context, thread backend.Thread) ([]backend.Envelope, error) {
	var out []backend.Envelope
	err := s.scanRecords(string(threadMessagePrefix(thread)), func(key, plain []byte) error {
		var env backend.Envelope
		if err := codec.Unmarshal(plain, &env); err != nil {
			return fmt.Errorf("pebblestore: decoding %s: %w", key, err)
		}
		out = append(out, env)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveMessage persists an envelope into the thread's log, overwriting
// any record at the same timestamp.
func (s *Store) SaveMessage(ctx context.Context, thread backend.Thread, env backend.Envelope) error {
	return s.putRecord(messageRecordKey(thread, env.Timestamp), env)
}

// DeleteMessage removes one envelope from the thread's log, reporting
// whether a record existed.
func (s *Store) DeleteMessage(ctx context.Context, thread backend.Thread, ts backend.Timestamp) (bool, error) {
	key := messageRecordKey(thread, ts)
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pebblestore: reading %s: %w", key, err)
	}
	closer.Close()

	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return false, fmt.Errorf("pebblestore: deleting %s: %w", key, err)
	}
	return true, nil
}

// Registration reads the device registration record.
func (s *Store) Registration(ctx context.Context) (backend.Registration, error) {
	var reg backend.Registration
	if err := s.getRecord([]byte(metaRegistrationKey), &reg); err != nil {
		return backend.Registration{}, err
	}
	return reg, nil
}

// SaveRegistration writes the device registration record.
func (s *Store) SaveRegistration(ctx context.Context, reg backend.Registration) error {
	return s.putRecord([]byte(metaRegistrationKey), reg)
}

// PutBlob stores content-addressed bytes (avatars, attachment data) and
// returns the address. Storing the same content twice writes once.
func (s *Store) PutBlob(ctx context.Context, content []byte) (BlobAddress, error) {
	addr := s.seal.blobAddress(content)
	key := blobRecordKey(addr)

	_, closer, err := s.db.Get(key)
	if err == nil {
		closer.Close()
		return addr, nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return BlobAddress{}, fmt.Errorf("pebblestore: reading %s: %w", key, err)
	}

	sealed, err := s.seal.seal(key, packBlob(content))
	if err != nil {
		return BlobAddress{}, err
	}
	if err := s.db.Set(key, sealed, pebble.Sync); err != nil {
		return BlobAddress{}, fmt.Errorf("pebblestore: writing %s: %w", key, err)
	}
	return addr, nil
}

// Blob reads content-addressed bytes back.
func (s *Store) Blob(ctx context.Context, addr BlobAddress) ([]byte, error) {
	key := blobRecordKey(addr)
	stored, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("pebblestore: %s: %w", key, backend.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pebblestore: reading %s: %w", key, err)
	}
	defer closer.Close()

	plain, err := s.seal.open(key, stored)
	if err != nil {
		return nil, err
	}
	return unpackBlob(plain)
}

// Threads lists every thread with at least one persisted message, in
// key order.
func (s *Store) Threads(ctx context.Context) ([]backend.Thread, error) {
	iter, err := s.newPrefixIter(messagePrefix)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []backend.Thread
	for iter.First(); iter.Valid(); iter.Next() {
		thread, ok := threadOfMessageKey(iter.Key())
		if !ok {
			s.log.Warn("skipping malformed message key", "key", string(iter.Key()))
			continue
		}
		// Keys sort by thread tag, so duplicates are adjacent.
		if len(out) == 0 || out[len(out)-1] != thread {
			out = append(out, thread)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("pebblestore: scanning threads: %w", err)
	}
	return out, nil
}

// Stats summarizes the store's contents.
type Stats struct {
	Contacts     int
	Groups       int
	Profiles     int
	Messages     int
	Blobs        int
	MessageBytes int64
	BlobBytes    int64
	Sealed       bool
}

// Stats counts stored records by kind. Byte figures are stored (post
// seal and compression) sizes.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Sealed: s.seal.sealed()}

	count := func(prefix string, n *int, bytes *int64) error {
		iter, err := s.newPrefixIter(prefix)
		if err != nil {
			return err
		}
		defer iter.Close()
		for iter.First(); iter.Valid(); iter.Next() {
			*n++
			if bytes != nil {
				*bytes += int64(len(iter.Value()))
			}
		}
		if err := iter.Error(); err != nil {
			return fmt.Errorf("pebblestore: scanning %s: %w", prefix, err)
		}
		return nil
	}

	if err := count(contactPrefix, &stats.Contacts, nil); err != nil {
		return Stats{}, err
	}
	if err := count(groupPrefix, &stats.Groups, nil); err != nil {
		return Stats{}, err
	}
	if err := count(profilePrefix, &stats.Profiles, nil); err != nil {
		return Stats{}, err
	}
	if err := count(messagePrefix, &stats.Messages, &stats.MessageBytes); err != nil {
		return Stats{}, err
	}
	if err := count(blobPrefix, &stats.Blobs, &stats.BlobBytes); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// RawRecord opens the record at a storage key and returns its plaintext
// encoding. Debugging hook for the inspector; metadata keys and blobs
// are not records and will not open.
func (s *Store) RawRecord(ctx context.Context, key string) ([]byte, error) {
	stored, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("pebblestore: %s: %w", key, backend.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pebblestore: reading %s: %w", key, err)
	}
	defer closer.Close()
	plain, err := s.seal.open([]byte(key), stored)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), plain...), nil
}

// putRecord encodes, seals, and writes one record.
func (s *Store) putRecord(key []byte, v any) error {
	plain, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("pebblestore: encoding %s: %w", key, err)
	}
	sealed, err := s.seal.seal(key, plain)
	if err != nil {
		return err
	}
	if err := s.db.Set(key, sealed, pebble.Sync); err != nil {
		return fmt.Errorf("pebblestore: writing %s: %w", key, err)
	}
	return nil
}

// getRecord reads, opens, and decodes one record. A missing key maps to
// backend.ErrNotFound.
func (s *Store) getRecord(key []byte, v any) error {
	stored, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("pebblestore: %s: %w", key, backend.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("pebblestore: reading %s: %w", key, err)
	}
	defer closer.Close()

	plain, err := s.seal.open(key, stored)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("pebblestore: decoding %s: %w", key, err)
	}
	return nil
}

// scanRecords iterates all records under prefix in key order, calling
// visit with each opened value. The plain bytes alias iterator memory
// and are only valid inside the call.
func (s *Store) scanRecords(prefix string, visit func(key, plain []byte) error) error {
	iter, err := s.newPrefixIter(prefix)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		plain, err := s.seal.open(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if err := visit(iter.Key(), plain); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("pebblestore: scanning %s: %w", prefix, err)
	}
	return nil
}

func (s *Store) newPrefixIter(prefix string) (*pebble.Iterator, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound([]byte(prefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("pebblestore: iterating %s: %w", prefix, err)
	}
	return iter, nil
}

// rawGet reads a metadata record, copying the value out of Pebble's
// buffer. Missing keys return pebble.ErrNotFound for the caller to
// branch on.
func (s *Store) rawGet(key string) ([]byte, error) {
	v, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("pebblestore: reading %s: %w", key, err)
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func (s *Store) rawSet(key string, value []byte) error {
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("pebblestore: writing %s: %w", key, err)
	}
	return nil
}
