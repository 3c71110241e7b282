package burrow

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cuemby/burrow/pkg/kvstore"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/schema"
)

// CompactCondition is the (min_file_size, min_bytes, min_ratio) predicate
// open_instance evaluates against the substrate's free-space stats before
// returning control to the caller.
type CompactCondition struct {
	MinFileSize int64
	MinBytes    int64
	MinRatio    float64
}

func (c CompactCondition) satisfiedBy(st kvstore.Stats) bool {
	if st.FileSize < c.MinFileSize || st.FreelistSize < c.MinBytes || st.FileSize == 0 {
		return false
	}
	return float64(st.FreelistSize)/float64(st.FileSize) >= c.MinRatio
}

// Instance is one open Burrow environment: a substrate handle bound to a
// validated schema, plus the watcher registry every collection in it
// shares. Instances are process-wide singletons keyed by id; OpenInstance
// and Instance.Close maintain a reference count so multiple callers in the
// same process can share one handle safely.
type Instance struct {
	id     int32
	name   string
	dir    string
	db     kvstore.DB
	schema *schema.Schema

	watchers *watchRegistry

	mu       sync.Mutex
	refCount int
	openedAt time.Time
}

var (
	registryMu sync.Mutex
	registry   = make(map[int32]*Instance)
	openGroup  singleflight.Group
)

// GetInstance looks up an already-open instance by id without opening a
// new one.
func GetInstance(id int32) (*Instance, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	inst, ok := registry[id]
	return inst, ok
}

// OpenInstance opens the instance named id, creating its substrate file
// under dir if absent and bringing its bucket layout up to date with sc.
// Concurrent callers racing to open the same id are deduplicated through
// a singleflight.Group keyed by id, so only one of them touches the
// substrate; the rest observe the same result.
func OpenInstance(id int32, name, dir string, sc *schema.Schema, maxSizeMiB uint, compact *CompactCondition) (*Instance, error) {
	v, err, _ := openGroup.Do(strconv.Itoa(int(id)), func() (interface{}, error) {
		return openInstance(id, name, dir, sc, maxSizeMiB, compact)
	})
	if err != nil {
		return nil, err
	}
	inst := v.(*Instance)
	inst.mu.Lock()
	inst.refCount++
	inst.mu.Unlock()
	return inst, nil
}

func openInstance(id int32, name, dir string, sc *schema.Schema, maxSizeMiB uint, compact *CompactCondition) (*Instance, error) {
	if inst, ok := GetInstance(id); ok {
		if err := sc.CompatibleWith(inst.schema); err != nil {
			return nil, wrapErr(KindSchemaMismatch, err, "instance %d already open with an incompatible schema", id)
		}
		return inst, nil
	}

	logger := log.WithInstance(id)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapErr(KindPathError, err, "create instance directory %s", dir)
	}
	dbPath := filepath.Join(dir, name+".db")
	manifestPath := filepath.Join(dir, name+".schema.yaml")

	if onDisk, err := schema.LoadYAMLFile(manifestPath); err == nil {
		if err := sc.CompatibleWith(onDisk); err != nil {
			return nil, wrapErr(KindSchemaMismatch, err, "schema incompatible with %s", manifestPath)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, wrapErr(KindSchemaMismatch, err, "read schema manifest %s", manifestPath)
	}

	db, err := kvstore.OpenBolt(dbPath, maxSizeMiB)
	if err != nil {
		return nil, wrapErr(KindPathError, err, "open substrate at %s", dbPath)
	}

	if err := applySchema(db, sc); err != nil {
		db.Close()
		return nil, err
	}

	if compact != nil && compact.satisfiedBy(db.Stats()) {
		logger.Info().Msg("compact predicate satisfied at open, compacting before serving traffic")
		if err := db.Close(); err != nil {
			return nil, wrapErr(KindDbFull, err, "close before compaction")
		}
		if err := compactFile(dbPath); err != nil {
			return nil, wrapErr(KindDbFull, err, "compact %s", dbPath)
		}
		recordCompaction()
		db, err = kvstore.OpenBolt(dbPath, maxSizeMiB)
		if err != nil {
			return nil, wrapErr(KindPathError, err, "reopen substrate after compaction at %s", dbPath)
		}
	}

	if err := schema.DumpYAMLFile(manifestPath, sc); err != nil {
		db.Close()
		return nil, wrapErr(KindSchemaMismatch, err, "write schema manifest %s", manifestPath)
	}

	inst := &Instance{
		id:       id,
		name:     name,
		dir:      dir,
		db:       db,
		schema:   sc,
		watchers: newWatchRegistry(),
		openedAt: time.Now(),
	}

	registryMu.Lock()
	registry[id] = inst
	registryMu.Unlock()

	metrics.InstancesOpen.Inc()
	logger.Info().Str("path", dbPath).Int("collections", len(sc.Collections)).Msg("instance opened")
	return inst, nil
}

// applySchema brings the substrate's bucket layout up to date with sc:
// one top-level bucket per collection holding primary objects, one
// nested bucket per secondary index holding index entries. Existing
// buckets are left untouched; this is purely additive.
func applySchema(db kvstore.DB, sc *schema.Schema) error {
	for _, c := range sc.Collections {
		if err := db.CreateBucketIfNotExists([]byte(c.Name)); err != nil {
			return wrapErr(KindSchemaMismatch, err, "create bucket for collection %q", c.Name)
		}
	}
	tx, err := db.Begin(true)
	if err != nil {
		return wrapErr(KindDbFull, err, "begin schema-apply transaction")
	}
	for _, c := range sc.Collections {
		for _, idx := range c.Indexes {
			if _, err := tx.CreateBucketIfNotExists([]byte(c.Name), []byte(idx.Name)); err != nil {
				tx.Rollback()
				return wrapErr(KindSchemaMismatch, err, "create index bucket %s/%s", c.Name, idx.Name)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapErr(KindDbFull, err, "commit schema-apply transaction")
	}
	return nil
}

// compactFile streams a consistent snapshot of the database at path into
// a sibling temporary file, then renames it over the original — the
// same hot-copy-then-swap shape cmd/warren-migrate's backup step uses,
// applied to the whole file instead of one bucket.
func compactFile(path string) error {
	db, err := kvstore.OpenBolt(path, 0)
	if err != nil {
		return err
	}
	defer db.Close()

	tmpPath := path + ".compact"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := db.Copy(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := db.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// Close releases one reference to inst. When the last reference is
// released the substrate handle is actually closed; if del is true the
// instance's on-disk files are removed afterward. Close reports whether
// it performed the final, physical close.
func (inst *Instance) Close(del bool) (bool, error) {
	inst.mu.Lock()
	inst.refCount--
	last := inst.refCount <= 0
	inst.mu.Unlock()
	if !last {
		return false, nil
	}

	registryMu.Lock()
	delete(registry, inst.id)
	registryMu.Unlock()

	if err := inst.db.Close(); err != nil {
		return true, wrapErr(KindDbFull, err, "close instance %d", inst.id)
	}
	metrics.InstancesOpen.Dec()

	if del {
		dbPath := filepath.Join(inst.dir, inst.name+".db")
		manifestPath := filepath.Join(inst.dir, inst.name+".schema.yaml")
		_ = os.Remove(dbPath)
		_ = os.Remove(manifestPath)
	}
	return true, nil
}

// Copy streams a consistent snapshot of the instance to path.
func (inst *Instance) Copy(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return wrapErr(KindPathError, err, "create copy destination %s", path)
	}
	defer f.Close()
	if err := inst.db.Copy(f); err != nil {
		return wrapErr(KindDbFull, err, "copy instance %d", inst.id)
	}
	return nil
}

func (inst *Instance) ID() int32     { return inst.id }
func (inst *Instance) Name() string  { return inst.name }
func (inst *Instance) Dir() string   { return inst.dir }
func (inst *Instance) Schema() *schema.Schema { return inst.schema }

// Collections returns the names of every collection in the instance's
// schema, in declaration order.
func (inst *Instance) Collections() []string {
	names := make([]string, len(inst.schema.Collections))
	for i, c := range inst.schema.Collections {
		names[i] = c.Name
	}
	return names
}

// Collection binds name to a Collection handle scoped to this instance,
// or reports false if the schema has no such collection.
func (inst *Instance) Collection(name string) (*Collection, bool) {
	c, ok := inst.schema.Collection(name)
	if !ok {
		return nil, false
	}
	return &Collection{inst: inst, coll: c}, true
}

// Begin starts a new transaction against the instance's substrate.
func (inst *Instance) Begin(write bool) (*Txn, error) {
	tx, err := inst.db.Begin(write)
	if err != nil {
		return nil, wrapErr(KindDbFull, err, "begin transaction")
	}
	recordTxnBegin(write)
	return newTxn(inst, tx, write), nil
}

// Metrics returns a point-in-time snapshot of the instance's state, for
// any host process that wants engine-shaped numbers without scraping
// Prometheus.
func (inst *Instance) Metrics() *InstanceMetrics {
	return &InstanceMetrics{
		ID:              inst.id,
		Name:            inst.name,
		Dir:             inst.dir,
		CollectionCount: len(inst.schema.Collections),
		OpenedAt:        inst.openedAt,
	}
}

// Watch subscribes to every change-notification in the instance, across
// every collection.
func (inst *Instance) Watch() (<-chan Event, Cancel) {
	return inst.watchers.SubscribeInstance()
}
