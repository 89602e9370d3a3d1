package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"net/http"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

func init() {
	// http.Header is a map type; register it once for the gob codec shared
	// by the leveldb and redis backends.
	gob.Register(http.Header{})
}

// Key layout inside the single database:
//
//	m\x00<partition>            partition marker
//	e\x00<partition>\x00<key>   entry, gob-encoded
//
// Partition names never contain NUL, so prefixes are unambiguous.
const sep = "\x00"

// LevelDBStore persists partitions in a single LevelDB database so cached
// responses survive process restarts.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) the database at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Open(name string) (Partition, error) {
	marker := []byte("m" + sep + name)
	if _, err := s.db.Get(marker, nil); err == leveldb.ErrNotFound {
		if err := s.db.Put(marker, []byte{}, nil); err != nil {
			return nil, fmt.Errorf("create partition %s: %w", name, err)
		}
	} else if err != nil {
		return nil, err
	}
	return &levelPartition{db: s.db, name: name}, nil
}

func (s *LevelDBStore) List() ([]string, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte("m"+sep)), nil)
	defer it.Release()

	var names []string
	for it.Next() {
		names = append(names, string(bytes.TrimPrefix(it.Key(), []byte("m"+sep))))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *LevelDBStore) Delete(name string) error {
	batch := new(leveldb.Batch)
	batch.Delete([]byte("m" + sep + name))

	it := s.db.NewIterator(util.BytesPrefix([]byte("e"+sep+name+sep)), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	err := it.Error()
	it.Release()
	if err != nil {
		return err
	}

	return s.db.Write(batch, nil)
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

type levelPartition struct {
	db   *leveldb.DB
	name string
}

func (p *levelPartition) entryKey(key string) []byte {
	return []byte("e" + sep + p.name + sep + key)
}

func (p *levelPartition) Get(key string) (*Entry, bool) {
	data, err := p.db.Get(p.entryKey(key), nil)
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		return nil, false
	}
	return &entry, true
}

func (p *levelPartition) Set(key string, entry *Entry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return err
	}
	return p.db.Put(p.entryKey(key), buf.Bytes(), nil)
}

func (p *levelPartition) Len() int {
	it := p.db.NewIterator(util.BytesPrefix([]byte("e"+sep+p.name+sep)), nil)
	defer it.Release()

	n := 0
	for it.Next() {
		n++
	}
	return n
}
