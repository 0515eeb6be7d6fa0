package memstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// Snapshot file names inside the data directory.
const (
	EntityTypesFile   = "entity_types.jsonl"
	RelationTypesFile = "relation_types.jsonl"
	EntitiesFile      = "entities.jsonl"
	RelationsFile     = "relations.jsonl"
)

type entityRecord struct {
	ID         string         `json:"id"`
	Type       string         `json:"entity_type"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type relationRecord struct {
	ID         string         `json:"id"`
	Type       string         `json:"relation_type"`
	FromID     string         `json:"from_entity"`
	ToID       string         `json:"to_entity"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Open returns a store backed by a JSONL snapshot in dataDir. The snapshot
// is loaded now and written back by Close. Missing files mean an empty
// store.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := loadSnapshot(dataDir)
	if err != nil {
		return nil, err
	}
	s := New()
	s.state = st
	s.dataDir = dataDir
	return s, nil
}

func loadSnapshot(dir string) (state, error) {
	st := newState()

	if err := eachRecord(filepath.Join(dir, EntityTypesFile), func(def types.EntityType) {
		st.entityTypes[def.Name] = def
	}); err != nil {
		return state{}, err
	}
	if err := eachRecord(filepath.Join(dir, RelationTypesFile), func(def types.RelationType) {
		st.relationTypes[def.Name] = def
	}); err != nil {
		return state{}, err
	}
	if err := eachRecord(filepath.Join(dir, EntitiesFile), func(r entityRecord) {
		if _, dup := st.entities[r.ID]; dup || r.ID == "" {
			return
		}
		st.entities[r.ID] = types.EntityRow(r)
		st.entityOrder = append(st.entityOrder, r.ID)
	}); err != nil {
		return state{}, err
	}
	// Relations whose endpoints did not load are dropped, as a cascade
	// would have done.
	if err := eachRecord(filepath.Join(dir, RelationsFile), func(r relationRecord) {
		if _, dup := st.relations[r.ID]; dup || r.ID == "" {
			return
		}
		_, okFrom := st.entities[r.FromID]
		_, okTo := st.entities[r.ToID]
		if !okFrom || !okTo {
			return
		}
		st.relations[r.ID] = types.RelationRow(r)
		st.relationOrder = append(st.relationOrder, r.ID)
	}); err != nil {
		return state{}, err
	}
	return st, nil
}

// eachRecord decodes every line of a JSONL file into T and passes it to fn.
// Blank and malformed lines are skipped. A missing file has no records.
func eachRecord[T any](path string, fn func(T)) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var rec T
		if err := dec.Decode(&rec); err != nil {
			continue
		}
		fn(rec)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", path, err)
	}
	return nil
}

// writeSnapshot writes every file of the snapshot.
func writeSnapshot(dir string, st state) error {
	ents := make([]any, 0, len(st.entityTypes))
	for _, name := range slices.Sorted(maps.Keys(st.entityTypes)) {
		ents = append(ents, st.entityTypes[name])
	}
	rels := make([]any, 0, len(st.relationTypes))
	for _, name := range slices.Sorted(maps.Keys(st.relationTypes)) {
		rels = append(rels, st.relationTypes[name])
	}
	entities := make([]any, 0, len(st.entityOrder))
	for _, id := range st.entityOrder {
		entities = append(entities, entityRecord(st.entities[id]))
	}
	relations := make([]any, 0, len(st.relationOrder))
	for _, id := range st.relationOrder {
		relations = append(relations, relationRecord(st.relations[id]))
	}

	files := []struct {
		name    string
		records []any
	}{
		{EntityTypesFile, ents},
		{RelationTypesFile, rels},
		{EntitiesFile, entities},
		{RelationsFile, relations},
	}
	for _, f := range files {
		if err := writeJSONL(filepath.Join(dir, f.name), f.records); err != nil {
			return err
		}
	}
	return nil
}

// writeJSONL atomically replaces path using the temp-file, fsync, rename
// pattern.
func writeJSONL(path string, records []any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fail(fmt.Errorf("writing record: %w", err))
		}
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flushing buffer: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
