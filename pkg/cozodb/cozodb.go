// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package cozodb

/*
#cgo LDFLAGS: -lcozo_c
#include <stdlib.h>
#include "cozo_c.h"
*/
import "C"

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// CozoDB is a handle to an open CozoDB instance reached through libcozo_c.
// A process may open multiple instances (one per repository, per the
// storage package's repo-scoped data directories); each handle owns a
// database id on the C side and must be closed exactly once.
type CozoDB struct {
	id     C.int32_t
	mu     sync.Mutex
	closed bool
}

// NamedRows is the tabular result of a Datalog query: column headers plus
// rows of arbitrary-width values. Values are decoded with encoding/json's
// defaults, so every number (integer-shaped or not) arrives as float64;
// callers that need int64 convert explicitly.
type NamedRows struct {
	Headers []string
	Rows    [][]any
	Next    *NamedRows // chained result; Run and RunReadOnly leave it nil
}

type rawResult struct {
	Ok      bool            `json:"ok"`
	Headers []string        `json:"headers"`
	Rows    [][]any         `json:"rows"`
	Message string          `json:"message"`
	Display string          `json:"display"`
	Code    string          `json:"code"`
	Next    json.RawMessage `json:"next,omitempty"`
}

// New opens (or creates) a CozoDB instance at path using the named storage
// engine ("mem", "sqlite", or "rocksdb"). options is passed through as
// engine-specific configuration (e.g. rocksdb tuning); nil uses defaults.
func New(engine, path string, options map[string]string) (CozoDB, error) {
	if engine == "" {
		engine = "mem"
	}

	optJSON := "{}"
	if len(options) > 0 {
		b, err := json.Marshal(options)
		if err != nil {
			return CozoDB{}, fmt.Errorf("marshal cozodb options: %w", err)
		}
		optJSON = string(b)
	}

	cEngine := C.CString(engine)
	defer C.free(unsafe.Pointer(cEngine))
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	cOpts := C.CString(optJSON)
	defer C.free(unsafe.Pointer(cOpts))

	id := C.cozo_open_db(cEngine, cPath, cOpts)
	if id < 0 {
		return CozoDB{}, fmt.Errorf("cozo_open_db failed for engine %q at %q", engine, path)
	}

	return CozoDB{id: id}, nil
}

// Run executes a Datalog script that may mutate the database.
func (db *CozoDB) Run(script string, params map[string]any) (NamedRows, error) {
	return db.run(script, params, false)
}

// RunReadOnly executes a Datalog script enforcing read-only semantics at
// the database level; any embedded mutation is rejected before it runs.
func (db *CozoDB) RunReadOnly(script string, params map[string]any) (NamedRows, error) {
	return db.run(script, params, true)
}

func (db *CozoDB) run(script string, params map[string]any, immutable bool) (NamedRows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return NamedRows{}, errors.New("cozodb: handle is closed")
	}

	paramJSON := "{}"
	if len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			return NamedRows{}, fmt.Errorf("marshal query params: %w", err)
		}
		paramJSON = string(b)
	}

	cScript := C.CString(script)
	defer C.free(unsafe.Pointer(cScript))
	cParams := C.CString(paramJSON)
	defer C.free(unsafe.Pointer(cParams))

	var immutableFlag C.int32_t
	if immutable {
		immutableFlag = 1
	}

	cResult := C.cozo_run_query(db.id, cScript, cParams, immutableFlag)
	defer C.cozo_free_str(cResult)

	raw := C.GoString(cResult)
	var parsed rawResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return NamedRows{}, fmt.Errorf("parse cozodb response: %w", err)
	}

	if !parsed.Ok {
		msg := parsed.Display
		if msg == "" {
			msg = parsed.Message
		}
		if msg == "" {
			msg = "unknown cozodb error"
		}
		return NamedRows{}, fmt.Errorf("cozodb query error: %s", msg)
	}

	return NamedRows{Headers: parsed.Headers, Rows: parsed.Rows}, nil
}

// Backup writes a full database snapshot to path.
func (db *CozoDB) Backup(path string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errors.New("cozodb: handle is closed")
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	ok := C.cozo_backup(db.id, cPath)
	if ok == 0 {
		return fmt.Errorf("cozodb: backup to %q failed", path)
	}
	return nil
}

// Restore replaces the database contents with a snapshot previously
// written by Backup.
func (db *CozoDB) Restore(path string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errors.New("cozodb: handle is closed")
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	ok := C.cozo_restore(db.id, cPath)
	if ok == 0 {
		return fmt.Errorf("cozodb: restore from %q failed", path)
	}
	return nil
}

// Close releases the underlying database handle. Safe to call more than
// once; subsequent calls are no-ops.
func (db *CozoDB) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return
	}
	C.cozo_close_db(db.id)
	db.closed = true
}
