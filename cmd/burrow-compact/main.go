package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/cuemby/burrow/pkg/kvstore"
)

var (
	dataDir     = flag.String("dir", "./burrow-data", "Instance directory")
	name        = flag.String("name", "default", "Instance name")
	dryRun      = flag.Bool("dry-run", false, "Report substrate stats without compacting")
	minFileSize = flag.Int64("min-file-size", 0, "Skip compaction below this file size in bytes")
	minBytes    = flag.Int64("min-bytes", 0, "Skip compaction below this many reclaimable bytes")
	minRatio    = flag.Float64("min-ratio", 0, "Skip compaction below this reclaimable/total ratio")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Burrow Substrate Compaction Tool")
	log.Println("================================")

	dbPath := filepath.Join(*dataDir, *name+".db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("substrate file not found at %s", dbPath)
	}

	db, err := kvstore.OpenBolt(dbPath, 0)
	if err != nil {
		log.Fatalf("open %s: %v", dbPath, err)
	}

	before := db.Stats()
	log.Printf("file size: %d bytes", before.FileSize)
	log.Printf("reclaimable (freelist): %d bytes", before.FreelistSize)
	if before.FileSize > 0 {
		log.Printf("reclaimable ratio: %.4f", float64(before.FreelistSize)/float64(before.FileSize))
	}

	if !satisfied(before) {
		log.Println("compact predicate not satisfied, nothing to do")
		db.Close()
		return
	}

	if *dryRun {
		log.Println("[dry run] would compact now")
		db.Close()
		return
	}

	if err := db.Close(); err != nil {
		log.Fatalf("close before compaction: %v", err)
	}

	if err := compactFile(dbPath); err != nil {
		log.Fatalf("compact %s: %v", dbPath, err)
	}

	db, err = kvstore.OpenBolt(dbPath, 0)
	if err != nil {
		log.Fatalf("reopen after compaction: %v", err)
	}
	defer db.Close()

	after := db.Stats()
	log.Printf("✓ compacted: %d -> %d bytes (%d bytes reclaimed)", before.FileSize, after.FileSize, before.FileSize-after.FileSize)
}

func satisfied(st kvstore.Stats) bool {
	if st.FileSize == 0 || st.FileSize < *minFileSize || st.FreelistSize < *minBytes {
		return false
	}
	return float64(st.FreelistSize)/float64(st.FileSize) >= *minRatio
}

// compactFile streams a consistent snapshot of the database at path into a
// sibling temporary file, then renames it over the original. This is the
// same hot-copy-then-swap pattern cmd/warren-migrate's backup step used,
// applied here to rebuild the whole file instead of backing up one bucket.
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
