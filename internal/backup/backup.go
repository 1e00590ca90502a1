// Package backup produces and restores the engine's .ngbak archive: a tar
// bundle of every file-based storage surface plus a manifest with a
// directory-wide content checksum, per spec §6.
package backup

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"graphrag/internal/errs"
	"graphrag/internal/objectstore"
)

// EngineVersion is reported in every manifest's nano_graphrag_version field.
const EngineVersion = "graphrag-1"

// Source names the on-disk files backing the file-based storage backends.
// The engine façade is responsible for pointing this at the paths its
// config resolved to; backends not backed by a local file (Redis, Qdrant,
// Neo4j) are omitted here and noted by name only in Manifest.Backends.
type Source struct {
	// KVFiles maps each KV namespace to its JSONFile path.
	KVFiles map[string]string
	// VectorFiles maps each vector namespace to its Nano/HNSW snapshot path.
	VectorFiles map[string]string
	// GraphFile is the path to the in-memory graph's snapshot, if any.
	GraphFile string
	// Backends records the backend name used for each surface
	// ("kv", "vector", "graph") for informational/compatibility purposes.
	Backends map[string]string
}

// Manifest describes one backup archive.
type Manifest struct {
	BackupID  string            `json:"backup_id"`
	CreatedAt time.Time         `json:"created_at"`
	Version   string            `json:"nano_graphrag_version"`
	Backends  map[string]string `json:"backends"`
	Checksum  string            `json:"checksum"`
}

// Create stages every file named in src into a tree shaped like:
//
//	kv/<namespace><ext>
//	vector/<namespace><ext>
//	graph/<basename>
//	manifest.json
//
// (<ext> being the source file's own extension), computes the deterministic checksum per the manifest protocol, and writes
// a single tar archive at destPath. If upload is non-nil, the produced
// archive is also uploaded to object storage under its own basename.
func Create(ctx context.Context, destPath string, src Source, upload objectstore.ObjectStore) (Manifest, error) {
	stage, err := os.MkdirTemp("", "graphrag-backup-*")
	if err != nil {
		return Manifest{}, errs.Wrap(errs.TransientExternal, "backup", "stage dir", err)
	}
	defer os.RemoveAll(stage)

	if err := stageFiles(stage, "kv", src.KVFiles); err != nil {
		return Manifest{}, err
	}
	if err := stageFiles(stage, "vector", src.VectorFiles); err != nil {
		return Manifest{}, err
	}
	if src.GraphFile != "" {
		if _, err := os.Stat(src.GraphFile); err == nil {
			if err := copyFile(src.GraphFile, filepath.Join(stage, "graph", filepath.Base(src.GraphFile))); err != nil {
				return Manifest{}, err
			}
		}
	}

	manifest := Manifest{
		BackupID:  uuid.NewString(),
		CreatedAt: time.Now(),
		Version:   EngineVersion,
		Backends:  src.Backends,
	}
	manifestPath := filepath.Join(stage, "manifest.json")
	if err := writeManifest(manifestPath, manifest); err != nil {
		return Manifest{}, err
	}

	checksum, err := directoryChecksum(stage)
	if err != nil {
		return Manifest{}, err
	}
	manifest.Checksum = checksum
	if err := writeManifest(manifestPath, manifest); err != nil {
		return Manifest{}, err
	}

	if err := tarDirectory(stage, destPath); err != nil {
		return Manifest{}, err
	}

	if upload != nil {
		if err := uploadArchive(ctx, upload, destPath); err != nil {
			// Best-effort: the local .ngbak archive is already valid and
			// complete; a failed offsite copy is logged, not fatal.
			log.Warn().Err(err).Str("backup_id", manifest.BackupID).Msg("backup s3 upload failed")
		}
	}

	return manifest, nil
}

// Restore extracts archivePath into destDir, recomputes the directory
// checksum (excluding manifest.json's checksum field, per the same
// protocol used at creation), and returns an error if it doesn't match the
// manifest's recorded value.
func Restore(_ context.Context, archivePath, destDir string) (Manifest, error) {
	if err := untarArchive(archivePath, destDir); err != nil {
		return Manifest{}, err
	}

	manifestPath := filepath.Join(destDir, "manifest.json")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return Manifest{}, errs.Wrap(errs.DataIntegrity, "backup", "read manifest", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return Manifest{}, errs.Wrap(errs.DataIntegrity, "backup", "decode manifest", err)
	}

	recomputed, err := directoryChecksum(destDir)
	if err != nil {
		return Manifest{}, err
	}
	if recomputed != manifest.Checksum {
		return Manifest{}, errs.New(errs.DataIntegrity, "backup", "checksum mismatch: archive corrupt or tampered")
	}
	return manifest, nil
}

func stageFiles(stage, subdir string, files map[string]string) error {
	for name, path := range files {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // namespace never flushed to disk yet, nothing to back up
		}
		dst := filepath.Join(stage, subdir, name+filepath.Ext(path))
		if err := copyFile(path, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errs.Wrap(errs.TransientExternal, "backup", "mkdir", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return errs.Wrap(errs.TransientExternal, "backup", "open "+src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errs.Wrap(errs.TransientExternal, "backup", "create "+dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return errs.Wrap(errs.TransientExternal, "backup", "copy "+src, err)
	}
	return nil
}

func writeManifest(path string, m Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Internal, "backup", "encode manifest", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errs.Wrap(errs.TransientExternal, "backup", "write manifest", err)
	}
	return nil
}

// directoryChecksum hashes every file in dir by sorted relative path and
// content, treating manifest.json specially: its checksum field is zeroed
// before hashing so the value doesn't depend on itself.
func directoryChecksum(dir string) (string, error) {
	var paths []string
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return "", errs.Wrap(errs.TransientExternal, "backup", "walk", err)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, rel := range paths {
		content, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil {
			return "", errs.Wrap(errs.TransientExternal, "backup", "read "+rel, err)
		}
		if rel == "manifest.json" {
			content, err = zeroChecksumField(content)
			if err != nil {
				return "", err
			}
		}
		io.WriteString(h, rel)
		h.Write([]byte{0})
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func zeroChecksumField(raw []byte) ([]byte, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errs.Wrap(errs.DataIntegrity, "backup", "decode manifest for checksum", err)
	}
	m.Checksum = ""
	canonical, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "backup", "encode manifest for checksum", err)
	}
	return canonical, nil
}

func tarDirectory(srcDir, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return errs.Wrap(errs.TransientExternal, "backup", "create archive", err)
	}
	defer out.Close()

	tw := tar.NewWriter(out)
	defer tw.Close()

	err = filepath.Walk(srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil || rel == "." {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return errs.Wrap(errs.Internal, "backup", "write archive", err)
	}
	return nil
}

func untarArchive(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errs.Wrap(errs.TransientExternal, "backup", "open archive", err)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errs.Wrap(errs.DataIntegrity, "backup", "read archive", err)
		}
		target := filepath.Join(destDir, filepath.FromSlash(hdr.Name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errs.Wrap(errs.TransientExternal, "backup", "mkdir", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errs.Wrap(errs.TransientExternal, "backup", "mkdir", err)
			}
			out, err := os.Create(target)
			if err != nil {
				return errs.Wrap(errs.TransientExternal, "backup", "create "+target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return errs.Wrap(errs.Internal, "backup", "extract "+target, err)
			}
			out.Close()
		}
	}
	return nil
}

func uploadArchive(ctx context.Context, store objectstore.ObjectStore, archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = store.Put(ctx, filepath.Base(archivePath), f, objectstore.PutOptions{ContentType: "application/x-tar"})
	return err
}
