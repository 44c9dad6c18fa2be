// Copyright 2016 Michael Stapelberg and contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package recordstore implements keyed records that are persisted to the file
// system, one JSON file per record.
package recordstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio"
)

const ext = ".json"

var (
	ErrNotFound   = errors.New("record not found")
	ErrExists     = errors.New("record already exists")
	ErrInvalidKey = errors.New("invalid record key")
)

// WriteError is returned when a record cannot be persisted. The previous
// record (if any) is left untouched.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing record %q: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// A Table is a directory of records of type T.
type Table[T any] struct {
	Dir string
}

func validKey(key string) error {
	if key == "" ||
		strings.HasPrefix(key, ".") ||
		strings.ContainsAny(key, `/\`+"\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func (t *Table[T]) path(key string) string {
	return filepath.Join(t.Dir, key+ext)
}

// Get returns the record stored under key, or an error wrapping ErrNotFound.
func (t *Table[T]) Get(key string) (T, error) {
	var rec T
	if err := validKey(key); err != nil {
		return rec, err
	}
	b, err := os.ReadFile(t.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return rec, fmt.Errorf("%w: %q", ErrNotFound, key)
		}
		return rec, err
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, fmt.Errorf("parsing record %q: %v", key, err)
	}
	return rec, nil
}

// Put atomically creates or replaces the record stored under key.
func (t *Table[T]) Put(key string, rec T) error {
	if err := validKey(key); err != nil {
		return err
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return &WriteError{Key: key, Err: err}
	}
	if err := os.MkdirAll(t.Dir, 0755); err != nil {
		return &WriteError{Key: key, Err: err}
	}
	o, err := renameio.TempFile("", t.path(key))
	if err != nil {
		return &WriteError{Key: key, Err: err}
	}
	defer o.Cleanup()
	if _, err := o.Write(b); err != nil {
		return &WriteError{Key: key, Err: err}
	}
	if err := o.CloseAtomicallyReplace(); err != nil {
		return &WriteError{Key: key, Err: err}
	}
	return nil
}

// Create stores rec under key unless a record already exists there, in which
// case it returns an error wrapping ErrExists and leaves that record as is.
func (t *Table[T]) Create(key string, rec T) error {
	if err := validKey(key); err != nil {
		return err
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return &WriteError{Key: key, Err: err}
	}
	if err := os.MkdirAll(t.Dir, 0755); err != nil {
		return &WriteError{Key: key, Err: err}
	}
	// The fully written temporary file is linked into place. link(2) fails
	// if the destination exists.
	o, err := renameio.TempFile(t.Dir, t.path(key))
	if err != nil {
		return &WriteError{Key: key, Err: err}
	}
	defer o.Cleanup() // removes the temporary name
	if _, err := o.Write(b); err != nil {
		return &WriteError{Key: key, Err: err}
	}
	if err := o.Sync(); err != nil {
		return &WriteError{Key: key, Err: err}
	}
	if err := os.Link(o.Name(), t.path(key)); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %q", ErrExists, key)
		}
		return &WriteError{Key: key, Err: err}
	}
	return nil
}

// Keys returns the keys of all records, sorted. A table whose directory does
// not exist yet is empty.
func (t *Table[T]) Keys() ([]string, error) {
	entries, err := os.ReadDir(t.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() ||
			filepath.Ext(name) != ext ||
			strings.HasPrefix(name, ".") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ext))
	}
	sort.Strings(keys)
	return keys, nil
}

// List returns all records, sorted by key.
func (t *Table[T]) List() ([]T, error) {
	keys, err := t.Keys()
	if err != nil {
		return nil, err
	}
	recs := make([]T, 0, len(keys))
	for _, key := range keys {
		rec, err := t.Get(key)
		if err != nil {
			// Deleted in between our ReadDir() and now.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Delete removes the record stored under key.
func (t *Table[T]) Delete(key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := os.Remove(t.path(key)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %q", ErrNotFound, key)
		}
		return err
	}
	return nil
}
