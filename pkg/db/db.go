// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package db implements a simple key-value database for test case inputs.
// The database index is cached in memory and mirrored on disk.
// Values are kept flate-compressed in memory and are inflated only on Get,
// so opening a large corpus is cheap and a damaged value surfaces as an error
// when the input is actually needed.
package db

import (
	"bufio"
	"bytes"
	"compress/flate"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/textfuzz/textfuzz/pkg/hash"
	"github.com/textfuzz/textfuzz/pkg/log"
	"github.com/textfuzz/textfuzz/pkg/osutil"
)

type DB struct {
	Version uint64 // arbitrary user version (0 for new database)

	records     map[string]record
	filename    string
	uncompacted int           // number of records in the file
	pending     *bytes.Buffer // pending writes to the file
}

type record struct {
	packed []byte // flate-compressed value, nil for empty values
	seq    uint64
}

// Record is a value with its user-defined sequence number.
type Record struct {
	Val []byte
	Seq uint64
}

var ErrNotFound = errors.New("record not found")

func Open(filename string) (*DB, error) {
	db := &DB{
		filename: filename,
	}
	f, err := os.OpenFile(db.filename, os.O_RDONLY|os.O_CREATE, osutil.DefaultFilePerm)
	if err != nil {
		return nil, err
	}
	db.Version, db.records, db.uncompacted = deserializeDB(bufio.NewReader(f))
	f.Close()
	if len(db.records) == 0 || db.uncompacted/10*9 > len(db.records) {
		if err := db.compact(); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func (db *DB) Len() int {
	return len(db.records)
}

// Keys returns all record keys in lexicographical order.
func (db *DB) Keys() []string {
	keys := make([]string, 0, len(db.records))
	for key := range db.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Get inflates and returns the value stored under key.
func (db *DB) Get(key string) ([]byte, error) {
	rec, ok := db.records[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	val, err := inflate(rec.packed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress record %q: %w", key, err)
	}
	return val, nil
}

func (db *DB) Save(key string, val []byte, seq uint64) {
	if seq == seqDeleted {
		panic("reserved seq")
	}
	packed := deflate(val)
	if rec, ok := db.records[key]; ok && seq == rec.seq && bytes.Equal(packed, rec.packed) {
		return
	}
	db.records[key] = record{packed, seq}
	db.serialize(key, packed, seq)
	db.uncompacted++
}

func (db *DB) Flush() error {
	if db.uncompacted/10*9 > len(db.records) {
		return db.compact()
	}
	if db.pending == nil {
		return nil
	}
	f, err := os.OpenFile(db.filename, os.O_WRONLY|os.O_APPEND|os.O_CREATE, osutil.DefaultFilePerm)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(db.pending.Bytes()); err != nil {
		return err
	}
	db.pending = nil
	return nil
}

func (db *DB) BumpVersion(version uint64) error {
	if db.Version == version {
		return db.Flush()
	}
	db.Version = version
	return db.compact()
}

func (db *DB) compact() error {
	buf := new(bytes.Buffer)
	serializeHeader(buf, db.Version)
	for _, key := range db.Keys() {
		rec := db.records[key]
		serializeRecord(buf, key, rec.packed, rec.seq)
	}
	if err := osutil.WriteFile(db.filename, buf.Bytes()); err != nil {
		return err
	}
	db.uncompacted = len(db.records)
	db.pending = nil
	return nil
}

func (db *DB) serialize(key string, packed []byte, seq uint64) {
	if db.pending == nil {
		db.pending = new(bytes.Buffer)
	}
	serializeRecord(db.pending, key, packed, seq)
}

const (
	dbMagic    = uint32(0xbaddb)
	recMagic   = uint32(0xfee1bad)
	curVersion = uint32(2)
	seqDeleted = ^uint64(0)
)

func deflate(val []byte) []byte {
	if len(val) == 0 {
		return nil
	}
	buf := new(bytes.Buffer)
	fw, err := flate.NewWriter(buf, flate.BestCompression)
	if err != nil {
		panic(err)
	}
	if _, err := fw.Write(val); err != nil {
		panic(err)
	}
	if err := fw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func inflate(packed []byte) ([]byte, error) {
	if len(packed) == 0 {
		return nil, nil
	}
	fr := flate.NewReader(bytes.NewReader(packed))
	defer fr.Close()
	return io.ReadAll(fr)
}

func serializeHeader(w *bytes.Buffer, version uint64) {
	binary.Write(w, binary.LittleEndian, dbMagic)
	binary.Write(w, binary.LittleEndian, curVersion)
	binary.Write(w, binary.LittleEndian, version)
}

func serializeRecord(w *bytes.Buffer, key string, packed []byte, seq uint64) {
	binary.Write(w, binary.LittleEndian, recMagic)
	binary.Write(w, binary.LittleEndian, uint32(len(key)))
	w.WriteString(key)
	binary.Write(w, binary.LittleEndian, seq)
	if seq == seqDeleted {
		if len(packed) != 0 {
			panic("deleting record with value")
		}
		return
	}
	binary.Write(w, binary.LittleEndian, uint32(len(packed)))
	w.Write(packed)
}

func deserializeDB(r *bufio.Reader) (version uint64, records map[string]record, uncompacted int) {
	records = make(map[string]record)
	ver, err := deserializeHeader(r)
	if err != nil {
		log.Logf(0, "failed to deserialize database header: %v", err)
		return
	}
	version = ver
	for {
		key, packed, seq, err := deserializeRecord(r)
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Logf(0, "failed to deserialize database record: %v", err)
			return
		}
		uncompacted++
		if seq == seqDeleted {
			delete(records, key)
		} else {
			records[key] = record{packed, seq}
		}
	}
}

func deserializeHeader(r *bufio.Reader) (uint64, error) {
	var magic, ver uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, err
	}
	if magic != dbMagic {
		return 0, fmt.Errorf("bad db header: 0x%x", magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &ver); err != nil {
		return 0, err
	}
	if ver == 0 || ver > curVersion {
		return 0, fmt.Errorf("bad db version: %v", ver)
	}
	var userVer uint64
	if ver >= 2 {
		if err := binary.Read(r, binary.LittleEndian, &userVer); err != nil {
			return 0, err
		}
	}
	return userVer, nil
}

func deserializeRecord(r *bufio.Reader) (key string, packed []byte, seq uint64, err error) {
	var magic uint32
	if err = binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return
	}
	if magic != recMagic {
		err = fmt.Errorf("bad record header: 0x%x", magic)
		return
	}
	var keyLen uint32
	if err = binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return
	}
	keyBuf := make([]byte, keyLen)
	if _, err = io.ReadFull(r, keyBuf); err != nil {
		return
	}
	key = string(keyBuf)
	if err = binary.Read(r, binary.LittleEndian, &seq); err != nil {
		return
	}
	if seq == seqDeleted {
		return
	}
	var packedLen uint32
	if err = binary.Read(r, binary.LittleEndian, &packedLen); err != nil {
		return
	}
	if packedLen != 0 {
		packed = make([]byte, packedLen)
		if _, err = io.ReadFull(r, packed); err != nil {
			return
		}
	}
	return
}

// Create creates a new database in the specified file with the specified records.
// Records are keyed by the hash of their values.
func Create(filename string, version uint64, records []Record) error {
	os.Remove(filename)
	db, err := Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open database file: %w", err)
	}
	if err := db.BumpVersion(version); err != nil {
		return fmt.Errorf("failed to bump database version: %w", err)
	}
	for _, rec := range records {
		db.Save(hash.String(rec.Val), rec.Val, rec.Seq)
	}
	if err := db.Flush(); err != nil {
		return fmt.Errorf("failed to save database file: %w", err)
	}
	return nil
}
