// Copyright 2019 Tamás Gulácsi
//
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package model

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// UIDPrefix starts every store key. Real model paths never start with it.
const UIDPrefix = "/uid--"

// IsStoreKey reports whether path is a temporary object store key.
func IsStoreKey(path string) bool { return strings.HasPrefix(path, UIDPrefix) }

// Store passes structured values through string-only templates.
// Keys are read at most once. A Store belongs to one processing run and is
// not safe for concurrent use.
type Store struct {
	entries map[string]interface{}
	NewID   func() string
}

// NewStore returns an empty store generating uuid based keys.
func NewStore() *Store {
	return &Store{entries: make(map[string]interface{}), NewID: uuid.NewString}
}

// Put stores a copy of v and returns its key.
func (S *Store) Put(v interface{}) string {
	key := UIDPrefix + S.NewID()
	S.entries[key] = DeepCopy(v)
	return key
}

// Has reports whether key is still waiting to be consumed.
func (S *Store) Has(key string) bool {
	_, ok := S.entries[key]
	return ok
}

// Take returns and forgets the value stored under key.
func (S *Store) Take(key string) (interface{}, bool) {
	v, ok := S.entries[key]
	if ok {
		delete(S.entries, key)
	}
	return v, ok
}

// Len returns the number of unconsumed entries.
func (S *Store) Len() int { return len(S.entries) }

// Flush moves every pending entry into dst under its own key as path.
func (S *Store) Flush(dst Setter) int {
	keys := S.keys()
	for _, k := range keys {
		dst.SetProperty(k, S.entries[k])
		delete(S.entries, k)
	}
	return len(keys)
}

// Sweep drops the unconsumed entries and returns their keys.
func (S *Store) Sweep() []string {
	keys := S.keys()
	for _, k := range keys {
		delete(S.entries, k)
	}
	return keys
}

func (S *Store) keys() []string {
	keys := make([]string, 0, len(S.entries))
	for k := range S.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
